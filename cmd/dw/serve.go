package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/droidweekly/internal/config"
	"github.com/ehrlich-b/droidweekly/internal/notify"
	"github.com/ehrlich-b/droidweekly/internal/server"
	"github.com/ehrlich-b/droidweekly/internal/watch"
)

func serveCmd(o *globalOpts) *cobra.Command {
	var addrFlag string
	var watchFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache over HTTP with a WebSocket event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := addrFlag
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(a.repo, a.store, []byte(a.cfg.Server.JWTSecret))

			g, ctx := errgroup.WithContext(cmd.Context())
			if watchFlag {
				loop := newLoop(a)
				srv.Watch = loop
				g.Go(func() error { return ignoreCancel(loop.Run(ctx)) })
				g.Go(func() error { return watchConfig(ctx, a.cfgPath, loop) })
			}
			g.Go(func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "dw serve listening on %s\n", addr)
				return srv.ListenAndServe(ctx, addr)
			})
			err = g.Wait()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down...")
			return err
		},
	}
	cmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "also refresh the latest issue every watch.interval")
	return cmd
}

func watchCmd(o *globalOpts) *cobra.Command {
	var onceFlag bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh the latest issue periodically and notify on new issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			loop := newLoop(a)
			if onceFlag {
				if err := loop.Check(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "latest issue #%d\n", loop.Last())
				return nil
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return ignoreCancel(loop.Run(ctx)) })
			g.Go(func() error { return watchConfig(ctx, a.cfgPath, loop) })
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&onceFlag, "once", false, "check once and exit")
	return cmd
}

func tokenCmd(o *globalOpts) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API (needs server.jwt_secret)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.path())
			if err != nil {
				return err
			}
			tok, exp, err := server.MintToken([]byte(cfg.Server.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dw", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func newLoop(a *app) *watch.Loop {
	loop := &watch.Loop{
		Repo:     a.repo,
		Interval: config.Duration(a.cfg.Watch.Interval, watch.DefaultInterval),
		BaseURL:  a.cfg.Site.URL,
	}
	if a.cfg.Notify.Topic != "" {
		loop.Notifier = notify.New(a.cfg.Notify.Topic, a.cfg.Notify.Token, a.cfg.Notify.Events)
	}
	if last, err := a.repo.LatestID(); err == nil {
		loop.SetLast(last)
	}
	return loop
}

// watchConfig applies watch.interval edits to a running loop.
func watchConfig(ctx context.Context, path string, loop *watch.Loop) error {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		d := config.Duration(cfg.Watch.Interval, watch.DefaultInterval)
		loop.SetInterval(d)
		slog.Info("watch interval updated", "interval", d)
	})
	if err != nil {
		// no config dir to watch is not fatal
		slog.Warn("config watch unavailable", "path", path, "err", err)
	}
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
