package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/bulk"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/filter"
	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/operations"
)

// bulkFlags are the execution knobs shared by every bulk subcommand.
type bulkFlags struct {
	account         string
	filterExpr      string
	concurrency     int
	maxRetries      int
	retryBaseDelay  time.Duration
	continueOnError bool
	dryRun          bool
	outputJSON      bool
}

func (f *bulkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.account, "account", "", "Account id (defaults to the profile)")
	cmd.Flags().StringVar(&f.filterExpr, "filter", "",
		"Project filter, e.g. 'name:*Hospital*,status:active,platform:acc'")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Concurrent project operations")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "Maximum attempts per project")
	cmd.Flags().DurationVar(&f.retryBaseDelay, "retry-base-delay", 0,
		"Base delay for retry backoff")
	cmd.Flags().BoolVar(&f.continueOnError, "continue-on-error", true,
		"Keep processing remaining projects after a failure")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false,
		"Preview the operation without applying any change")
	cmd.Flags().BoolVar(&f.outputJSON, "json", false, "Output the result in JSON format")
}

// bulkConfig folds flags over the configuration defaults. ContinueOnError
// holds only when both the configuration and the flag allow it.
func (f *bulkFlags) bulkConfig(env *environment) bulk.Config {
	config := bulk.Config{
		Concurrency:     env.config.Bulk.Concurrency,
		MaxRetries:      env.config.Bulk.MaxRetries,
		RetryBaseDelay:  env.config.Bulk.RetryBaseDelay,
		ContinueOnError: env.config.Bulk.ContinueOnError && f.continueOnError,
		DryRun:          f.dryRun,
	}
	if f.concurrency > 0 {
		config.Concurrency = f.concurrency
	}
	if f.maxRetries > 0 {
		config.MaxRetries = f.maxRetries
	}
	if f.retryBaseDelay > 0 {
		config.RetryBaseDelay = f.retryBaseDelay
	}
	return config
}

func (f *bulkFlags) projectFilter() (*filter.ProjectFilter, error) {
	return filter.ParseExpression(f.filterExpr)
}

// progressPrinter writes a single updating progress line to stderr.
func progressPrinter() bulk.ProgressFunc {
	return func(update bulk.ProgressUpdate) {
		fmt.Fprintf(os.Stderr, "\r%d/%d done (%d ok, %d skipped, %d failed)",
			update.Completed+update.Failed+update.Skipped,
			update.Total,
			update.Completed,
			update.Skipped,
			update.Failed,
		)
		if update.IsComplete() {
			fmt.Fprintln(os.Stderr)
		}
	}
}

func printResult(cmd *cobra.Command, result *bulk.OperationResult, outputJSON bool) error {
	if outputJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Operation %s: %d total, %d completed, %d skipped, %d failed (%s)\n",
		result.OperationID,
		result.Total,
		result.Completed,
		result.Skipped,
		result.Failed,
		result.Duration.Round(time.Millisecond),
	)
	for _, detail := range result.Details {
		if detail.Result.IsFailed() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s (attempts: %d)\n",
				detail.ProjectID, detail.Result, detail.Attempts)
		}
	}
	return nil
}

func bulkCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Apply an administrative change to many projects",
	}

	cmd.AddCommand(bulkAddUserCommand(opts))
	cmd.AddCommand(bulkRemoveUserCommand(opts))
	cmd.AddCommand(bulkUpdateRoleCommand(opts))
	cmd.AddCommand(bulkFolderRightsCommand(opts))
	cmd.AddCommand(bulkResumeCommand(opts))

	return cmd
}

func bulkAddUserCommand(opts *rootOptions) *cobra.Command {
	flags := &bulkFlags{}
	var email, roleID string

	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Add a user to every matching project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			accountID, err := env.accountID(flags.account)
			if err != nil {
				return err
			}
			projectFilter, err := flags.projectFilter()
			if err != nil {
				return err
			}

			result, err := env.service.BulkAddUser(
				cmd.Context(),
				operations.AddUserParams{
					AccountID: accountID,
					UserEmail: email,
					RoleID:    roleID,
				},
				projectFilter,
				flags.bulkConfig(env),
				progressPrinter(),
			)
			if err != nil {
				return err
			}
			return printResult(cmd, result, flags.outputJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "Email of the user to add")
	cmd.Flags().StringVar(&roleID, "role", "", "Role id to assign")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func bulkRemoveUserCommand(opts *rootOptions) *cobra.Command {
	flags := &bulkFlags{}
	var email string

	cmd := &cobra.Command{
		Use:   "remove-user",
		Short: "Remove a user from every matching project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			accountID, err := env.accountID(flags.account)
			if err != nil {
				return err
			}
			projectFilter, err := flags.projectFilter()
			if err != nil {
				return err
			}

			result, err := env.service.BulkRemoveUser(
				cmd.Context(),
				operations.RemoveUserParams{AccountID: accountID, UserEmail: email},
				projectFilter,
				flags.bulkConfig(env),
				progressPrinter(),
			)
			if err != nil {
				return err
			}
			return printResult(cmd, result, flags.outputJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "Email of the user to remove")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func bulkUpdateRoleCommand(opts *rootOptions) *cobra.Command {
	flags := &bulkFlags{}
	var email, newRole, fromRole string

	cmd := &cobra.Command{
		Use:   "update-role",
		Short: "Change a user's role in every matching project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			accountID, err := env.accountID(flags.account)
			if err != nil {
				return err
			}
			projectFilter, err := flags.projectFilter()
			if err != nil {
				return err
			}

			result, err := env.service.BulkUpdateRole(
				cmd.Context(),
				operations.UpdateRoleParams{
					AccountID:  accountID,
					UserEmail:  email,
					NewRoleID:  newRole,
					FromRoleID: fromRole,
				},
				projectFilter,
				flags.bulkConfig(env),
				progressPrinter(),
			)
			if err != nil {
				return err
			}
			return printResult(cmd, result, flags.outputJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "Email of the user to update")
	cmd.Flags().StringVar(&newRole, "new-role", "", "Role id to assign")
	cmd.Flags().StringVar(&fromRole, "from-role", "",
		"Only update members currently holding this role id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("new-role")

	return cmd
}

func bulkFolderRightsCommand(opts *rootOptions) *cobra.Command {
	flags := &bulkFlags{}
	var email, level, folderSpec string

	cmd := &cobra.Command{
		Use:   "folder-rights",
		Short: "Update a user's folder permissions in every matching project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			accountID, err := env.accountID(flags.account)
			if err != nil {
				return err
			}
			projectFilter, err := flags.projectFilter()
			if err != nil {
				return err
			}
			permissionLevel, err := operations.ParsePermissionLevel(level)
			if err != nil {
				return err
			}
			folder, err := operations.ParseFolderType(folderSpec)
			if err != nil {
				return err
			}

			result, err := env.service.BulkUpdateFolderRights(
				cmd.Context(),
				operations.FolderRightsParams{
					AccountID: accountID,
					UserEmail: email,
					Level:     permissionLevel,
					Folder:    folder,
				},
				projectFilter,
				flags.bulkConfig(env),
				progressPrinter(),
			)
			if err != nil {
				return err
			}
			return printResult(cmd, result, flags.outputJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "Email of the user")
	cmd.Flags().StringVar(&level, "level", "",
		"Permission level: view_only, view_download, upload_only, view_download_upload, "+
			"view_download_upload_edit, folder_control")
	cmd.Flags().StringVar(&folderSpec, "folder", "project_files",
		"Folder: project_files, plans or custom:<folder-id>")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("level")

	return cmd
}

func bulkResumeCommand(opts *rootOptions) *cobra.Command {
	flags := &bulkFlags{}

	cmd := &cobra.Command{
		Use:   "resume [operation-id]",
		Short: "Resume an interrupted bulk operation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			config := flags.bulkConfig(env)

			var result *bulk.OperationResult
			if len(args) == 1 {
				operationID, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid operation id %q: %w", args[0], err)
				}
				result, err = env.service.Resume(
					cmd.Context(), operationID, config, progressPrinter())
				if err != nil {
					return err
				}
			} else {
				result, err = env.service.ResumeLatest(
					cmd.Context(), config, progressPrinter())
				if err != nil {
					return err
				}
			}
			return printResult(cmd, result, flags.outputJSON)
		},
	}

	flags.register(cmd)
	return cmd
}
