package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/blobdir"
)

var exportCmd = &cobra.Command{
	Use:   "export <dir> [prefix]",
	Short: "Copy files to a local directory",
	Long:  "Write every file whose name starts with [prefix] below a local directory.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().Int("jobs", blobdir.DefaultPoolSize, "parallel reads")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	prefix := ""
	if len(args) > 1 {
		prefix = args[1]
	}
	jobs, _ := cmd.Flags().GetInt("jobs")

	dir, err := openDir()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	n, err := exportTree(cmd.Context(), dir, args[0], prefix, jobs)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d files.\n", n)
	return nil
}

// exportTree copies the files matching prefix below root, jobs at a time.
func exportTree(ctx context.Context, dir *blobdir.Dir, root, prefix string, jobs int) (int, error) {
	files, err := dir.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	p := pool.New().WithMaxGoroutines(max(jobs, 1)).WithContext(ctx).WithCancelOnError()
	for _, f := range files {
		p.Go(func(ctx context.Context) error {
			data, err := dir.AtomicRead(ctx, f.Name)
			if err != nil {
				return err
			}
			target := filepath.Join(root, filepath.FromSlash(f.Name))
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			return os.WriteFile(target, data, 0644)
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}
	return len(files), nil
}
