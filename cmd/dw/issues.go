package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/droidweekly/internal/archive"
	"github.com/ehrlich-b/droidweekly/internal/config"
	"github.com/ehrlich-b/droidweekly/internal/issue"
	"github.com/ehrlich-b/droidweekly/internal/repository"
)

func latestCmd(o *globalOpts) *cobra.Command {
	var jsonFlag bool
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the current issue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.repo.LoadLatest(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print JSON")
	return cmd
}

func issueCmd(o *globalOpts) *cobra.Command {
	var jsonFlag, cachedFlag, bodiesFlag bool
	cmd := &cobra.Command{
		Use:   "issue <number|path>",
		Short: "Show a past issue, from the cache when possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := issueArg(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			var res *repository.Result
			if cachedFlag {
				res, err = a.repo.Cached(id)
			} else {
				res, err = a.repo.LoadIssueID(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			if bodiesFlag {
				a.enableReader()
				n, err := a.repo.Enrich(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "stored %d article bodies\n", n)
			}
			if jsonFlag {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print JSON")
	cmd.Flags().BoolVar(&cachedFlag, "cached", false, "never touch the network")
	cmd.Flags().BoolVar(&bodiesFlag, "bodies", false, "fetch linked article text for search")
	return cmd
}

func issuesCmd(o *globalOpts) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List known issues, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.store.ListRefs(limit)
			if err != nil {
				return err
			}
			printRows(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of issues (0 = all)")
	return cmd
}

func feedCmd(o *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "feed",
		Short: "List issues announced in the RSS feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.feed == nil {
				return fmt.Errorf("site.feed_url is not configured")
			}

			refs, err := a.feed.Latest(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.repo.AddRefs(refs); err != nil {
				return err
			}
			printRefs(cmd.OutOrStdout(), refs)
			return nil
		},
	}
}

func syncCmd(o *globalOpts) *cobra.Command {
	var archiveFlag, bodiesFlag bool
	var pages, concurrency int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Backfill every known issue into the cache",
		Long: "Refreshes the latest issue, then fetches each known past issue that is not cached yet. " +
			"With --archive the site archive is crawled first to discover older issues.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if bodiesFlag {
				a.enableReader()
			}
			if _, err := a.repo.LoadLatest(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "latest: %v\n", err)
			}
			if a.feed != nil {
				if refs, err := a.feed.Latest(ctx); err == nil {
					a.repo.AddRefs(refs)
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "feed: %v\n", err)
				}
			}
			if archiveFlag {
				c := &archive.Crawler{
					UserAgent: a.client.UserAgent(),
					Timeout:   config.Duration(a.cfg.Site.Timeout, 0),
					Pages:     pages,
				}
				refs, err := c.Crawl(ctx, a.cfg.Site.ArchiveURL)
				if err != nil {
					return fmt.Errorf("crawl archive: %w", err)
				}
				fmt.Fprintf(out, "archive lists %d issues\n", len(refs))
				if err := a.repo.AddRefs(refs); err != nil {
					return err
				}
			}

			refs, err := a.repo.Refs()
			if err != nil {
				return err
			}
			rep, err := a.repo.Sync(ctx, refs, concurrency)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "fetched %d, already cached %d, failed %d\n", rep.Fetched, rep.Skipped, len(rep.Failed))
			failed := make([]int, 0, len(rep.Failed))
			for id := range rep.Failed {
				failed = append(failed, id)
			}
			sort.Sort(sort.Reverse(sort.IntSlice(failed)))
			for _, id := range failed {
				fmt.Fprintf(out, "  %s: %v\n", issue.PathFor(id), rep.Failed[id])
			}

			if bodiesFlag {
				a.repo.Wait()
				ids, err := a.store.CachedIssueIDs()
				if err != nil {
					return err
				}
				total := 0
				for _, id := range ids {
					n, err := a.repo.Enrich(ctx, id)
					total += n
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "stored %d article bodies\n", total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&archiveFlag, "archive", false, "crawl the site archive for older issues")
	cmd.Flags().IntVar(&pages, "pages", 1, "archive pages to follow")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "issues fetched at once")
	cmd.Flags().BoolVar(&bodiesFlag, "bodies", false, "also fetch linked article text for search")
	return cmd
}
