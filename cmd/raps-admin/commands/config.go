package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/config"
)

func configCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage tool configuration",
	}

	var initPath string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := initPath
			if path == "" {
				base, err := os.UserConfigDir()
				if err != nil {
					return fmt.Errorf("determining config directory: %w", err)
				}
				path = filepath.Join(base, "raps", "raps.yaml")
			}
			if err := config.WriteStarter(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&initPath, "path", "", "Destination file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile: %s\n", env.config.Profile)
			fmt.Fprintf(cmd.OutOrStdout(), "base_url: %s\n", env.profile.BaseURL)
			fmt.Fprintf(cmd.OutOrStdout(), "account_id: %s\n", env.profile.AccountID)
			fmt.Fprintf(cmd.OutOrStdout(), "state_dir: %s\n", env.store.Dir())
			fmt.Fprintf(cmd.OutOrStdout(), "bulk.concurrency: %d\n", env.config.Bulk.Concurrency)
			fmt.Fprintf(cmd.OutOrStdout(), "bulk.max_retries: %d\n", env.config.Bulk.MaxRetries)
			return nil
		},
	})

	return cmd
}
