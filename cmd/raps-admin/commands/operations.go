package commands

import (
	"encoding/json"
	"fmt"

	"github.com/aquasecurity/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dmytro-yemelianov/raps-go/cmd/raps-admin/state"
)

func operationsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "operations",
		Aliases: []string{"ops"},
		Short:   "Inspect and manage persisted bulk operations",
	}

	cmd.AddCommand(operationsListCommand(opts))
	cmd.AddCommand(operationsShowCommand(opts))
	cmd.AddCommand(operationsCancelCommand(opts))
	cmd.AddCommand(operationsDeleteCommand(opts))

	return cmd
}

func operationsListCommand(opts *rootOptions) *cobra.Command {
	var statusValue string
	var outputJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List persisted operations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}

			var statusFilter *state.OperationStatus
			if statusValue != "" {
				status := state.OperationStatus(statusValue)
				switch status {
				case state.StatusPending, state.StatusInProgress, state.StatusCompleted,
					state.StatusFailed, state.StatusCancelled:
					statusFilter = &status
				default:
					return fmt.Errorf("unknown status %q", statusValue)
				}
			}

			summaries, err := env.store.List(cmd.Context(), statusFilter)
			if err != nil {
				return err
			}

			if outputJSON {
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No operations found")
				return nil
			}

			t := table.New(cmd.OutOrStdout())
			t.SetHeaders("ID", "TYPE", "STATUS", "TOTAL", "OK", "SKIP", "FAIL", "UPDATED")
			for _, summary := range summaries {
				t.AddRow(
					summary.OperationID.String(),
					string(summary.OperationType),
					string(summary.Status),
					fmt.Sprintf("%d", summary.Total),
					fmt.Sprintf("%d", summary.Completed),
					fmt.Sprintf("%d", summary.Skipped),
					fmt.Sprintf("%d", summary.Failed),
					summary.UpdatedAt.Format("2006-01-02 15:04:05"),
				)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&statusValue, "status", "",
		"Filter by status: pending, in_progress, completed, failed, cancelled")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	return cmd
}

func operationsShowCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <operation-id>",
		Short: "Show the full persisted state of an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			operationID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid operation id %q: %w", args[0], err)
			}

			record, err := env.store.Load(cmd.Context(), operationID)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	return cmd
}

func operationsCancelCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Cancel a pending or in-progress operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			operationID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid operation id %q: %w", args[0], err)
			}

			if err := env.store.Cancel(cmd.Context(), operationID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operation %s cancelled\n", operationID)
			return nil
		},
	}
	return cmd
}

func operationsDeleteCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete <operation-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a persisted operation record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment(opts)
			if err != nil {
				return err
			}
			operationID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid operation id %q: %w", args[0], err)
			}

			if err := env.store.Delete(cmd.Context(), operationID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operation %s deleted\n", operationID)
			return nil
		},
	}
	return cmd
}
