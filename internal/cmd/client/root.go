package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the pgjobq client.
// It registers the queue group and the message-level commands.
func NewRoot(open RuntimeFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "pgjobq",
		Short: "pgjobq client commands",
	}
	root.AddCommand(NewQueueCommand(open))
	root.AddCommand(NewSendCommand(open))
	root.AddCommand(NewReceiveCommand(open))
	root.AddCommand(NewAckCommand(open))
	root.AddCommand(NewReleaseCommand(open))
	root.AddCommand(NewExtendCommand(open))
	root.AddCommand(NewMigrateCommand(open))
	root.AddCommand(NewReapCommand(open))
	root.AddCommand(NewPromoteCommand(open))
	return root
}
