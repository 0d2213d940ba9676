package main

import "github.com/aweris/blobdir/cmd/blobdir/cmd"

func main() {
	cmd.Execute()
}
