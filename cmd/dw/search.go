package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ehrlich-b/droidweekly/internal/search"
)

func searchCmd(o *globalOpts) *cobra.Command {
	var jsonFlag, interactive bool
	var limit int
	cmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Search cached articles",
		Long: "Searches titles, descriptions and stored article text of every cached issue. " +
			"With -i, reads one query per line from stdin and prints results as they arrive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()
			a.repo.SearchLimit = limit

			if interactive {
				return interactiveSearch(cmd, search.New(a.repo.Search, 0), cmd.InOrStdin())
			}
			if len(args) == 0 {
				return fmt.Errorf("no keywords given")
			}
			q := strings.Join(args, " ")
			arts, err := a.repo.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd.OutOrStdout(), arts)
			}
			printArticles(cmd.OutOrStdout(), arts, true)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print JSON")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read queries from stdin")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum results")
	return cmd
}

func interactiveSearch(cmd *cobra.Command, s *search.Searcher, in io.Reader) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	prompt := func() {}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		prompt = func() { fmt.Fprint(out, "search> ") }
	}

	queries := make(chan string)
	go func() {
		defer close(queries)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case queries <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	prompt()
	for res := range s.Run(ctx, queries) {
		if res.Query == "" {
			prompt()
			continue
		}
		fmt.Fprintf(out, "%d results for %q\n", len(res.Articles), res.Query)
		printArticles(out, res.Articles, true)
		prompt()
	}
	return nil
}
