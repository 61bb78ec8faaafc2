package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/webclinic017/pgjobq/internal/runtime"
)

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(open RuntimeFunc) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"q"},
		Short:   "Queue administration (create, list, stats, purge)",
		Long: `Queue administration commands.

Commands:
  create      Create a new queue
  list        List all queues
  stats       Per-status message counts and backlog age
  purge       Delete old completed messages`,
	}

	queueCmd.AddCommand(
		newQueueCreateCommand(open),
		newQueueListCommand(open),
		newQueueStatsCommand(open),
		newQueuePurgeCommand(open),
	)

	return queueCmd
}

// newQueueCreateCommand constructs the `queue create` subcommand.
func newQueueCreateCommand(open RuntimeFunc) *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("queue name required")
			}

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				if _, err := rt.CreateQueue(cmd.Context(), name); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	createCmd.Flags().String("name", "", "Queue name")
	return createCmd
}

// newQueueListCommand constructs the `queue list` subcommand.
func newQueueListCommand(open RuntimeFunc) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				infos, err := rt.Engine().ListQueues(cmd.Context())
				if err != nil {
					return err
				}

				out := make([]map[string]any, 0, len(infos))
				for _, info := range infos {
					out = append(out, map[string]any{
						"name":          info.Name,
						"created_at_ms": info.CreatedAt.UnixMilli(),
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	return listCmd
}

// newQueueStatsCommand constructs the `queue stats` subcommand.
func newQueueStatsCommand(open RuntimeFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Get queue statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("queue name required")
			}

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(cmd.Context(), name)
				if err != nil {
					return err
				}
				s, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}

				out := map[string]any{
					"queue":     s.Queue,
					"scheduled": s.Scheduled,
					"pending":   s.Pending,
					"in_flight": s.InFlight,
					"completed": s.Completed,
					"total":     s.Total(),
				}
				if s.OldestPendingAge > 0 {
					out["oldest_pending_age_ms"] = s.OldestPendingAge.Milliseconds()
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	statsCmd.Flags().String("name", "", "Queue name")
	return statsCmd
}

// newQueuePurgeCommand constructs the `queue purge` subcommand.
func newQueuePurgeCommand(open RuntimeFunc) *cobra.Command {
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete completed messages older than a cutoff",
		Long: `Delete completed messages from a queue.

Only completed messages are removed; scheduled, pending, and in-flight
messages are never touched. With --older-than-ms 0 every completed
message goes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			olderThanMs, _ := cmd.Flags().GetInt64("older-than-ms")
			limit, _ := cmd.Flags().GetInt("limit")
			if name == "" {
				return fmt.Errorf("queue name required")
			}

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(cmd.Context(), name)
				if err != nil {
					return err
				}
				n, err := q.PurgeCompleted(cmd.Context(), time.Duration(olderThanMs)*time.Millisecond, limit)
				if err != nil {
					return err
				}

				out := map[string]any{
					"status": "OK",
					"purged": n,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	purgeCmd.Flags().String("name", "", "Queue name")
	purgeCmd.Flags().Int64("older-than-ms", 0, "Only purge messages completed at least this long ago")
	purgeCmd.Flags().Int("limit", 500, "Maximum rows to delete in one pass")
	return purgeCmd
}
