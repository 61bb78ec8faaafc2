package client

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/webclinic017/pgjobq/internal/runtime"
)

// NewMigrateCommand constructs the `migrate` command.
func NewMigrateCommand(open RuntimeFunc) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				if err := rt.Migrate(cmd.Context()); err != nil {
					return err
				}
				version, err := rt.DB().SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}

				out := map[string]any{
					"status":         "OK",
					"schema_version": version,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	return migrateCmd
}

// NewReapCommand constructs the `reap` command, a one-shot sweep of
// expired in-flight messages. Normally the worker's reaper loop does this.
func NewReapCommand(open RuntimeFunc) *cobra.Command {
	reapCmd := &cobra.Command{
		Use:   "reap",
		Short: "Reclaim in-flight messages whose visibility deadline passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				n, err := rt.Engine().ReapExpired(cmd.Context(), limit)
				if err != nil {
					return err
				}

				out := map[string]any{
					"status":    "OK",
					"reclaimed": n,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	reapCmd.Flags().Int("limit", 100, "Maximum rows to reclaim in one pass")
	return reapCmd
}

// NewPromoteCommand constructs the `promote` command, a one-shot sweep of
// due scheduled messages. Normally the worker's scheduler loop does this.
func NewPromoteCommand(open RuntimeFunc) *cobra.Command {
	promoteCmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote scheduled messages whose delivery time arrived",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				n, err := rt.Engine().PromoteDue(cmd.Context(), limit)
				if err != nil {
					return err
				}

				out := map[string]any{
					"status":   "OK",
					"promoted": n,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	promoteCmd.Flags().Int("limit", 100, "Maximum rows to promote in one pass")
	return promoteCmd
}
