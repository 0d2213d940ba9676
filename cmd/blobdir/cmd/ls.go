package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:     "ls [prefix]",
	Aliases: []string{"list"},
	Short:   "List files",
	Long:    "List all files in the directory, optionally filtered by name prefix.",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runList,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	dir, err := openDir()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	files, err := dir.List(cmd.Context(), prefix)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range files {
		fmt.Fprintf(out, "%s\t%d\n", f.Name, f.Size)
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "(no files)")
	}
	return nil
}
