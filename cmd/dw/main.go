package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts globalOpts

	root := &cobra.Command{
		Use:   "dw",
		Short: "droidweekly: Android Weekly in your terminal",
		Long: "Fetches androidweekly.net issues, keeps them in a local SQLite cache " +
			"and searches them offline.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.droidweekly/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		latestCmd(&opts),
		issueCmd(&opts),
		issuesCmd(&opts),
		searchCmd(&opts),
		feedCmd(&opts),
		syncCmd(&opts),
		exportCmd(&opts),
		serveCmd(&opts),
		watchCmd(&opts),
		tokenCmd(&opts),
		configCmd(&opts),
	)
	return root
}
