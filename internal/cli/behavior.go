package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// BehaviorOptions holds flags for behavior set.
type BehaviorOptions struct {
	*RootOptions
	UpdatesFromHost string
	DeletesFromHost string
	UpdatesToHost   string
	DeletesToHost   string
}

// NewBehaviorCommand creates the behavior command group.
func NewBehaviorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BehaviorOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "behavior",
		Short: "Read or change how a partial table reacts to changes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <db> <table>",
		Short: "Show a partial table's behaviors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				s, err := n.Participant().Behaviors(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Table(s,
					[]string{"UPDATES FROM HOST", "DELETES FROM HOST", "UPDATES TO HOST", "DELETES TO HOST"},
					[][]string{{s.UpdatesFromHost.String(), s.DeletesFromHost.String(), s.UpdatesToHost.String(), s.DeletesToHost.String()}})
			})
		},
	})

	set := &cobra.Command{
		Use:   "set <db> <table>",
		Short: "Change one or more behaviors of a partial table",
		Long: `Change behaviors of a partial table. Only the flags given are changed.

Example:
  coop behavior set hr EMPLOYEE --updates-from-host QueueForReviewAndLog
  coop behavior set hr EMPLOYEE --deletes-to-host DoNothing`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := opts.changes()
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				return NewExitError(ExitCommandError, "no behavior flags given")
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				for _, change := range changes {
					if err := change(cmd.Context(), n.Participant(), args[0], args[1]); err != nil {
						return err
					}
				}
				s, err := n.Participant().Behaviors(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(s, fmt.Sprintf("Behaviors of %s.%s updated", args[0], args[1]))
			})
		},
	}
	set.Flags().StringVar(&opts.UpdatesFromHost, "updates-from-host", "", "AllowOverwrite|QueueForReview|OverwriteWithLog|Ignore|QueueForReviewAndLog")
	set.Flags().StringVar(&opts.DeletesFromHost, "deletes-from-host", "", "AllowRemoval|QueueForReview|DeleteWithLog|Ignore|QueueForReviewAndLog")
	set.Flags().StringVar(&opts.UpdatesToHost, "updates-to-host", "", "SendDataHashChange|DoNothing")
	set.Flags().StringVar(&opts.DeletesToHost, "deletes-to-host", "", "SendNotification|DoNothing")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "remote-delete <db> <alias> <behavior>",
		Short: "Change how the host reacts to a participant's deletes (Ignore|AutoDelete|UpdateStatusOnly)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := model.ParseRemoteDeleteBehavior(args[2])
			if err != nil {
				return err
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				if err := n.Host().ChangeRemoteDeleteBehavior(cmd.Context(), args[0], args[1], b); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"alias": args[1], "remote_delete": b.String()},
					fmt.Sprintf("Remote delete behavior of %s set to %s", args[1], b))
			})
		},
	})

	return cmd
}

type behaviorChange func(ctx context.Context, p *coop.Participant, db, table string) error

// changes parses the given flags into setter calls.
func (o *BehaviorOptions) changes() ([]behaviorChange, error) {
	var out []behaviorChange
	if o.UpdatesFromHost != "" {
		b, err := model.ParseUpdatesFromHostBehavior(o.UpdatesFromHost)
		if err != nil {
			return nil, err
		}
		out = append(out, func(ctx context.Context, p *coop.Participant, db, table string) error {
			return p.ChangeUpdatesFromHost(ctx, db, table, b)
		})
	}
	if o.DeletesFromHost != "" {
		b, err := model.ParseDeletesFromHostBehavior(o.DeletesFromHost)
		if err != nil {
			return nil, err
		}
		out = append(out, func(ctx context.Context, p *coop.Participant, db, table string) error {
			return p.ChangeDeletesFromHost(ctx, db, table, b)
		})
	}
	if o.UpdatesToHost != "" {
		b, err := model.ParseUpdatesToHostBehavior(o.UpdatesToHost)
		if err != nil {
			return nil, err
		}
		out = append(out, func(ctx context.Context, p *coop.Participant, db, table string) error {
			return p.ChangeUpdatesToHost(ctx, db, table, b)
		})
	}
	if o.DeletesToHost != "" {
		b, err := model.ParseDeletesToHostBehavior(o.DeletesToHost)
		if err != nil {
			return nil, err
		}
		out = append(out, func(ctx context.Context, p *coop.Participant, db, table string) error {
			return p.ChangeDeletesToHost(ctx, db, table, b)
		})
	}
	return out, nil
}
