package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehrlich-b/droidweekly/internal/config"
	"github.com/ehrlich-b/droidweekly/internal/notify"
)

func configCmd(o *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(configInitCmd(o), configShowCmd(o), configPathCmd(o), configTestNotifyCmd(o))
	return cmd
}

func configInitCmd(o *globalOpts) *cobra.Command {
	var force, ntfy bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := o.path()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg := config.Default()
			if ntfy {
				cfg.Notify.Topic = notify.GenerateTopic()
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			if ntfy {
				fmt.Fprintf(cmd.OutOrStdout(), "subscribe to ntfy topic %s for new-issue alerts\n", cfg.Notify.Topic)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().BoolVar(&ntfy, "ntfy", false, "generate a private ntfy topic")
	return cmd
}

func configShowCmd(o *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.path())
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret != "" {
				cfg.Server.JWTSecret = "<redacted>"
			}
			if cfg.Notify.Token != "" {
				cfg.Notify.Token = "<redacted>"
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func configPathCmd(o *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), o.path())
			return nil
		},
	}
}

func configTestNotifyCmd(o *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test push notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.path())
			if err != nil {
				return err
			}
			if cfg.Notify.Topic == "" {
				return fmt.Errorf("notify.topic is not configured")
			}
			if err := notify.New(cfg.Notify.Topic, cfg.Notify.Token, cfg.Notify.Events).SendTest(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}
