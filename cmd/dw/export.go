package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/droidweekly/internal/export"
	"github.com/ehrlich-b/droidweekly/internal/repository"
)

func exportCmd(o *globalOpts) *cobra.Command {
	var formatFlag, outFlag, dirFlag string
	cmd := &cobra.Command{
		Use:   "export [latest|<number>]",
		Short: "Write an issue as JSON, CSV or Markdown",
		Long: "Exports one issue to stdout or --out. With --dir, every cached issue is " +
			"written to its own file in that directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			if dirFlag != "" {
				n, err := exportAll(a, format, dirFlag)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d issues to %s\n", n, dirFlag)
				return nil
			}

			var res *repository.Result
			if len(args) == 0 || args[0] == "latest" {
				res, err = a.repo.LoadLatest(cmd.Context())
			} else {
				id, perr := issueArg(args[0])
				if perr != nil {
					return perr
				}
				res, err = a.repo.LoadIssueID(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			iss := export.NewIssue(res.IssueID, a.cfg.Site.URL, res.Articles)

			var w io.Writer = cmd.OutOrStdout()
			if outFlag != "" {
				f, err := os.Create(outFlag)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export.Write(w, format, iss)
		},
	}
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "md", "json, csv or md")
	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&dirFlag, "dir", "", "export every cached issue into this directory")
	return cmd
}

func exportAll(a *app, format export.Format, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}
	ids, err := a.store.CachedIssueIDs()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		res, err := a.repo.Cached(id)
		if err != nil {
			return 0, err
		}
		path := filepath.Join(dir, fmt.Sprintf("issue-%d%s", id, format.Ext()))
		if err := writeExport(path, format, export.NewIssue(id, a.cfg.Site.URL, res.Articles)); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func writeExport(path string, format export.Format, iss export.Issue) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, iss); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}
