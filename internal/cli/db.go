package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// NewDBCommand creates the db command group.
func NewDBCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage hosted databases",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a host database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				if err := n.Host().CreateDatabase(cmd.Context(), args[0]); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"database": args[0]},
					fmt.Sprintf("Database %s created", args[0]))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List host and partial databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				names, err := n.Databases()
				if err != nil {
					return err
				}
				rows := make([][]string, len(names))
				for i, name := range names {
					rows[i] = []string{name}
				}
				return opts.formatter(cmd).Table(names, []string{"DATABASE"}, rows)
			})
		},
	})

	return cmd
}

// TableOptions holds flags for table create.
type TableOptions struct {
	*RootOptions
	Columns []string
}

// NewTableCommand creates the table command group.
func NewTableCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TableOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables of a host database",
	}

	create := &cobra.Command{
		Use:   "create <db> <table>",
		Short: "Create a table",
		Long: `Create a table in a host database. Columns are NAME:TYPE with optional
:pk and :notnull suffixes.

Example:
  coop table create hr EMPLOYEE --column Id:INTEGER:pk --column Name:TEXT:notnull`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := model.ParseTableSchema(args[1], opts.Columns)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid columns", err)
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				if err := n.Host().CreateTable(cmd.Context(), args[0], schema); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(schema,
					fmt.Sprintf("Table %s.%s created with %d columns", args[0], schema.Name, len(schema.Columns)))
			})
		},
	}
	create.Flags().StringArrayVar(&opts.Columns, "column", nil, "column as NAME:TYPE[:pk][:notnull] (repeatable)")
	_ = create.MarkFlagRequired("column")
	cmd.AddCommand(create)

	return cmd
}

// NewPolicyCommand creates the policy command group.
func NewPolicyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Read or set a table's logical storage policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <db> <table>",
		Short: "Show a table's policy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				p, err := n.Host().GetPolicy(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"table": args[1], "policy": p.String()}, p.String())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <db> <table> <policy>",
		Short: "Set a table's policy (None|HostOnly|ParticipantOwned|Shared|Mirror)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := model.ParseLogicalStoragePolicy(args[2])
			if err != nil {
				return err
			}
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				if err := n.Host().SetPolicy(cmd.Context(), args[0], args[1], p); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]string{"table": args[1], "policy": p.String()},
					fmt.Sprintf("Policy of %s.%s set to %s", args[0], args[1], p))
			})
		},
	})

	return cmd
}

// ParticipantOptions holds flags for participant add.
type ParticipantOptions struct {
	*RootOptions
	Addresses []string
}

// NewParticipantCommand creates the participant command group.
func NewParticipantCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ParticipantOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Manage participants of a host database",
	}

	add := &cobra.Command{
		Use:   "add <db> <alias>",
		Short: "Register a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				if err := n.Host().AddParticipant(cmd.Context(), args[0], args[1], opts.Addresses); err != nil {
					return err
				}
				return opts.formatter(cmd).Success(map[string]any{"alias": args[1], "addresses": opts.Addresses},
					fmt.Sprintf("Participant %s added to %s", args[1], args[0]))
			})
		},
	}
	add.Flags().StringSliceVar(&opts.Addresses, "addr", nil, "participant address (repeatable)")
	_ = add.MarkFlagRequired("addr")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "list <db>",
		Short: "List participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				ps, err := n.Host().Participants(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, len(ps))
				for i, p := range ps {
					rows[i] = []string{p.Alias, p.AcceptanceState.String(), p.RemoteDeleteBehavior.String(), strings.Join(p.Addresses, ",")}
				}
				return opts.formatter(cmd).Table(ps, []string{"ALIAS", "STATE", "REMOTE DELETE", "ADDRESSES"}, rows)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "auth <db> <alias>",
		Short: "Check that a participant accepts this host's credentials",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				ok, err := n.Host().TryAuthAtParticipant(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				text := "authenticated"
				if !ok {
					text = "not authenticated"
				}
				return opts.formatter(cmd).Success(map[string]bool{"authenticated": ok}, text)
			})
		},
	})

	return cmd
}
