package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// ContractOptions holds flags for the contract commands.
type ContractOptions struct {
	*RootOptions
	Description  string
	RemoteDelete string
	Received     bool
	Status       string
}

// NewContractCommand creates the contract command group.
func NewContractCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Issue, review and decide contracts",
	}

	generate := &cobra.Command{
		Use:   "generate <db> <alias>",
		Short: "Generate a contract for a participant",
		Long: `Snapshot the schema and policies of a host database into a new contract.
Every table needs a policy first.

Example:
  coop contract generate hr acme --remote-delete AutoDelete`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := model.ParseRemoteDeleteBehavior(opts.RemoteDelete)
			if err != nil {
				return err
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				c, err := n.Host().GenerateContract(cmd.Context(), args[0], args[1], opts.Description, rdb)
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(c,
					fmt.Sprintf("Contract %s generated for %s on %s", c.ContractID, c.ParticipantAlias, c.DatabaseName))
			})
		},
	}
	generate.Flags().StringVar(&opts.Description, "description", "", "contract description")
	generate.Flags().StringVar(&opts.RemoteDelete, "remote-delete", "Ignore", "reaction to participant deletes (Ignore|AutoDelete|UpdateStatusOnly)")
	cmd.AddCommand(generate)

	cmd.AddCommand(&cobra.Command{
		Use:   "send <contract-id>",
		Short: "Offer a generated contract to its participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				sent, err := n.Host().SendContract(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				text := "Contract delivered"
				if !sent {
					text = "Contract not delivered; participant unreachable"
				}
				if err := opts.formatter(cmd).Success(map[string]bool{"sent": sent}, text); err != nil {
					return err
				}
				if !sent {
					return NewExitError(ExitFailure, "contract not delivered")
				}
				return nil
			})
		},
	})

	list := &cobra.Command{
		Use:   "list",
		Short: "List issued contracts, or received ones with --received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f store.ContractFilter
			if opts.Status != "" {
				s, err := model.ParseContractStatus(opts.Status)
				if err != nil {
					return err
				}
				f.Status = s
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				var cs []model.Contract
				var err error
				if opts.Received {
					cs, err = n.Participant().Contracts(cmd.Context(), f)
				} else {
					cs, err = n.Host().Contracts(cmd.Context(), f)
				}
				if err != nil {
					return err
				}
				return printContracts(opts.formatter(cmd), cs)
			})
		},
	}
	list.Flags().BoolVar(&opts.Received, "received", false, "list contracts offered to this node")
	list.Flags().StringVar(&opts.Status, "status", "", "filter by status (NotSent|Pending|Accepted|Rejected)")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List received contracts awaiting a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				cs, err := n.Participant().PendingContracts(cmd.Context())
				if err != nil {
					return err
				}
				return printContracts(opts.formatter(cmd), cs)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "accept <contract-id>",
		Short: "Accept a received contract and create its partial database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				res, err := n.Participant().AcceptContract(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				text := "Contract accepted"
				if !res.IsHostNotified {
					text = "Contract accepted; host not notified, run accept again to retry"
				}
				return opts.formatter(cmd).Success(res, text)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reject <contract-id>",
		Short: "Reject a received contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				if err := n.Participant().RejectContract(cmd.Context(), args[0]); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"contract_id": args[0]}, "Contract rejected")
			})
		},
	})

	return cmd
}

func printContracts(f *OutputFormatter, cs []model.Contract) error {
	rows := make([][]string, len(cs))
	for i, c := range cs {
		rows[i] = []string{c.ContractID, c.DatabaseName, c.ParticipantAlias, c.Host.Name, c.Status.String()}
	}
	return f.Table(cs, []string{"CONTRACT", "DATABASE", "PARTICIPANT", "HOST", "STATUS"}, rows)
}
