package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <name> [file]",
	Short: "Store a file",
	Long:  "Replace the content of <name> with [file], or with stdin when no file or \"-\" is given.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) (err error) {
	var data []byte
	if len(args) == 1 || args[1] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[1])
	}
	if err != nil {
		return err
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

	return dir.AtomicWrite(cmd.Context(), args[0], data)
}
