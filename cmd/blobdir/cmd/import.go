package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/blobdir"
)

var importCmd = &cobra.Command{
	Use:   "import <dir> [prefix]",
	Short: "Store every file of a local directory",
	Long:  "Walk a local directory and store each regular file under [prefix]<relative path>.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runImport,
}

func init() {
	importCmd.Flags().Int("jobs", blobdir.DefaultPoolSize, "parallel writes")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) (err error) {
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

	n, err := importTree(cmd.Context(), dir, args[0], prefix, jobs)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d files.\n", n)
	return nil
}

// importTree writes every regular file below root to dir, jobs at a time.
func importTree(ctx context.Context, dir *blobdir.Dir, root, prefix string, jobs int) (int, error) {
	var names []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	p := pool.New().WithMaxGoroutines(max(jobs, 1)).WithContext(ctx).WithCancelOnError()
	for _, file := range names {
		p.Go(func(ctx context.Context) error {
			rel, err := filepath.Rel(root, file)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return dir.AtomicWrite(ctx, path.Join(prefix, filepath.ToSlash(rel)), data)
		})
	}
	if err := p.Wait(); err != nil {
		return 0, err
	}
	return len(names), nil
}
