package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// PendingOptions holds flags for the pending commands.
type PendingOptions struct {
	*RootOptions
	Status string
}

// NewPendingCommand creates the pending command group.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review host changes queued at this participant",
	}

	list := &cobra.Command{
		Use:   "list <db>",
		Short: "List queued actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := model.PartialDataPending
			if opts.Status != "" {
				s, err := model.ParsePartialDataStatus(opts.Status)
				if err != nil {
					return err
				}
				status = s
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				actions, err := n.Participant().PendingActions(cmd.Context(), args[0], status)
				if err != nil {
					return err
				}
				rows := make([][]string, len(actions))
				for i, a := range actions {
					rows[i] = []string{
						strconv.FormatInt(a.ID, 10),
						a.Table,
						strconv.FormatInt(a.RowID, 10),
						a.Action.String(),
						a.Status.String(),
						a.RequestedAt.Format(time.RFC3339),
					}
				}
				return opts.formatter(cmd).Table(actions, []string{"ID", "TABLE", "ROW", "ACTION", "STATUS", "REQUESTED"}, rows)
			})
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "Pending (default), SuccessOverwriteOrLog, Ignored or Unknown for all")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <db> <table> <row-id>",
		Short: "Apply a queued action and report it to the host",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rowID, err := parseRowID(args[2])
			if err != nil {
				return err
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				res, report, err := n.Participant().ApprovePending(cmd.Context(), args[0], args[1], rowID)
				if err != nil {
					return err
				}
				text := fmt.Sprintf("Row %d: %s", rowID, res.Status)
				if !report.OK() {
					text += fmt.Sprintf(" (host not notified: %s)", report.Message)
				}
				return opts.formatter(cmd).Success(map[string]any{"result": res, "report": report}, text)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reject <db> <table> <row-id>",
		Short: "Discard a queued action",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rowID, err := parseRowID(args[2])
			if err != nil {
				return err
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				res, err := n.Participant().RejectPending(cmd.Context(), args[0], args[1], rowID)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(res, fmt.Sprintf("Row %d: %s", rowID, res.Status))
			})
		},
	})

	return cmd
}

func parseRowID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid row id %q", s))
	}
	return id, nil
}
