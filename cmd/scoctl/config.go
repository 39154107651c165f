package main

import (
	"fmt"

	"github.com/danmuck/scosock/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate scod configuration files",
	}

	var kind string
	var force bool
	template := &cobra.Command{
		Use:   "template <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], kind, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template to %s\n", kind, args[0])
			return nil
		},
	}
	template.Flags().StringVar(&kind, "kind", "daemon", "config kind: daemon|loopback")
	template.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validate := &cobra.Command{
		Use:   "validate <path>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDaemonConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s: %d adapters, %d echo listeners\n", args[0], len(cfg.Adapters), len(cfg.Echo))
			return nil
		},
	}

	cmd.AddCommand(template, validate)
	return cmd
}
