package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webclinic017/pgjobq/internal/queue"
	"github.com/webclinic017/pgjobq/internal/runtime"
)

// NewSendCommand constructs the `send` command.
func NewSendCommand(open RuntimeFunc) *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send",
		Short: "Send one or more messages to a queue",
		Long: `Send messages to a queue.

Repeat --data to send a batch; batch inserts are all-or-nothing. With
--wait the command blocks until every sent message has been
acknowledged by a consumer.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			data, _ := cmd.Flags().GetStringArray("data")
			delayMs, _ := cmd.Flags().GetInt64("delay-ms")
			wait, _ := cmd.Flags().GetBool("wait")
			waitTimeoutMs, _ := cmd.Flags().GetInt64("wait-timeout-ms")
			if queueName == "" {
				return fmt.Errorf("queue name required")
			}
			if len(data) == 0 {
				return fmt.Errorf("payload required, pass --data")
			}

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(cmd.Context(), queueName)
				if err != nil {
					return err
				}

				delay := time.Duration(delayMs) * time.Millisecond
				var results []*queue.Enqueued
				if len(data) == 1 {
					enq, err := q.Enqueue(cmd.Context(), []byte(data[0]), delay)
					if err != nil {
						return err
					}
					results = []*queue.Enqueued{enq}
				} else {
					payloads := make([][]byte, len(data))
					for i, s := range data {
						payloads[i] = []byte(s)
					}
					results, err = q.EnqueueBatch(cmd.Context(), payloads, delay)
					if err != nil {
						return err
					}
				}

				if wait {
					wctx := cmd.Context()
					if waitTimeoutMs > 0 {
						var cancel context.CancelFunc
						wctx, cancel = context.WithTimeout(wctx, time.Duration(waitTimeoutMs)*time.Millisecond)
						defer cancel()
					}
					for _, enq := range results {
						if err := enq.Completion.Wait(wctx); err != nil {
							return fmt.Errorf("wait for completion of %s: %w", enq.ID, err)
						}
					}
				}

				out := make([]map[string]any, 0, len(results))
				for _, enq := range results {
					m := map[string]any{
						"status":        "OK",
						"id":            enq.ID,
						"deliver_at_ms": enq.DeliverAt.UnixMilli(),
					}
					if wait {
						m["completed"] = true
					}
					out = append(out, m)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if len(out) == 1 {
					return enc.Encode(out[0])
				}
				return enc.Encode(out)
			})
		},
	}
	sendCmd.Flags().StringP("queue", "q", "", "Queue name")
	sendCmd.Flags().StringArray("data", []string{}, "Payload data (repeat for a batch)")
	sendCmd.Flags().Int64("delay-ms", 0, "Delay in milliseconds before the message is deliverable")
	sendCmd.Flags().Bool("wait", false, "Block until a consumer acknowledges the message")
	sendCmd.Flags().Int64("wait-timeout-ms", 0, "Give up waiting after this long (0 waits until interrupted)")
	return sendCmd
}

// NewReceiveCommand constructs the `receive` command.
func NewReceiveCommand(open RuntimeFunc) *cobra.Command {
	receiveCmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive messages (worker mode)",
		Long: `Receive messages from a queue and print them as JSON lines.

Each message is claimed with a visibility timeout and must be
acknowledged (ack) or returned (release) before its deadline, or it
becomes claimable again with the attempt already counted. With
--auto-ack every printed message is acknowledged immediately. With
--follow the command keeps receiving until interrupted; otherwise it
returns after the first batch, or empty once --block-ms passes with
nothing eligible.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, _ := cmd.Flags().GetString("queue")
			count, _ := cmd.Flags().GetInt("count")
			visibilityMs, _ := cmd.Flags().GetInt64("visibility-ms")
			blockMs, _ := cmd.Flags().GetInt64("block-ms")
			follow, _ := cmd.Flags().GetBool("follow")
			autoAck, _ := cmd.Flags().GetBool("auto-ack")
			if queueName == "" {
				return fmt.Errorf("queue name required")
			}

			ctx := cmd.Context()
			if follow {
				sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				ctx = sctx
			}

			return withRuntime(ctx, open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(ctx, queueName)
				if err != nil {
					return err
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				visibility := time.Duration(visibilityMs) * time.Millisecond
				for {
					rctx := ctx
					var cancel context.CancelFunc
					if !follow && blockMs > 0 {
						rctx, cancel = context.WithTimeout(ctx, time.Duration(blockMs)*time.Millisecond)
					}
					ds, err := q.Receive(rctx, count, visibility)
					if cancel != nil {
						cancel()
					}
					if err != nil {
						// Interrupt or block timeout ends the command cleanly.
						if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
							return nil
						}
						return err
					}

					for _, d := range ds {
						dm := decodedMessage(d.ID, d.Payload)
						dm["attempt"] = d.AttemptCount
						dm["lock_token"] = d.LockToken
						dm["visibility_deadline_ms"] = d.VisibilityDeadline.UnixMilli()
						_ = enc.Encode(dm)

						if autoAck {
							if err := d.Ack(ctx); err != nil {
								_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to auto-ack: %v\n", err)
							}
						}
					}
					if !follow {
						return nil
					}
				}
			})
		},
	}
	receiveCmd.Flags().StringP("queue", "q", "", "Queue name")
	receiveCmd.Flags().Int("count", 1, "Maximum messages per claim")
	receiveCmd.Flags().Int64("visibility-ms", 30000, "Visibility timeout in milliseconds")
	receiveCmd.Flags().Int64("block-ms", 5000, "How long to wait when nothing is eligible (0 waits forever)")
	receiveCmd.Flags().Bool("follow", false, "Keep receiving until interrupted")
	receiveCmd.Flags().Bool("auto-ack", false, "Acknowledge messages immediately after printing")
	return receiveCmd
}

// NewAckCommand constructs the `ack` command.
func NewAckCommand(open RuntimeFunc) *cobra.Command {
	ackCmd := &cobra.Command{
		Use:   "ack",
		Short: "Mark a claimed message as completed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, id, token, err := claimHandleFlags(cmd)
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(cmd.Context(), queueName)
				if err != nil {
					return err
				}
				if err := q.Ack(cmd.Context(), id, token); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	addClaimHandleFlags(ackCmd)
	return ackCmd
}

// NewReleaseCommand constructs the `release` command.
func NewReleaseCommand(open RuntimeFunc) *cobra.Command {
	releaseCmd := &cobra.Command{
		Use:   "release",
		Short: "Return a claimed message to the queue without an attempt penalty",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, id, token, err := claimHandleFlags(cmd)
			if err != nil {
				return err
			}

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(cmd.Context(), queueName)
				if err != nil {
					return err
				}
				if err := q.Release(cmd.Context(), id, token); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
				return nil
			})
		},
	}
	addClaimHandleFlags(releaseCmd)
	return releaseCmd
}

// NewExtendCommand constructs the `extend` command.
func NewExtendCommand(open RuntimeFunc) *cobra.Command {
	extendCmd := &cobra.Command{
		Use:   "extend",
		Short: "Extend the visibility deadline of a claimed message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queueName, id, token, err := claimHandleFlags(cmd)
			if err != nil {
				return err
			}
			extensionMs, _ := cmd.Flags().GetInt64("extension-ms")

			return withRuntime(cmd.Context(), open, func(rt *runtime.Runtime) error {
				q, err := rt.OpenQueue(cmd.Context(), queueName)
				if err != nil {
					return err
				}
				deadline, err := q.Extend(cmd.Context(), id, token, time.Duration(extensionMs)*time.Millisecond)
				if err != nil {
					return err
				}

				out := map[string]any{
					"status":          "OK",
					"new_deadline_ms": deadline.UnixMilli(),
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			})
		},
	}
	addClaimHandleFlags(extendCmd)
	extendCmd.Flags().Int64("extension-ms", 30000, "New visibility window in milliseconds, measured from now")
	return extendCmd
}

// addClaimHandleFlags registers the flags identifying a claimed message.
func addClaimHandleFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("queue", "q", "", "Queue name")
	cmd.Flags().String("id", "", "Message ID")
	cmd.Flags().String("token", "", "Lock token from the claim")
}

// claimHandleFlags reads and validates the claimed-message flags.
func claimHandleFlags(cmd *cobra.Command) (queueName, id, token string, err error) {
	queueName, _ = cmd.Flags().GetString("queue")
	id, _ = cmd.Flags().GetString("id")
	token, _ = cmd.Flags().GetString("token")
	if queueName == "" {
		return "", "", "", fmt.Errorf("queue name required")
	}
	if id == "" {
		return "", "", "", fmt.Errorf("message id required")
	}
	if token == "" {
		return "", "", "", fmt.Errorf("lock token required")
	}
	return queueName, id, token, nil
}
