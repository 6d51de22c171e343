package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
)

// ExecOptions holds flags for exec.
type ExecOptions struct {
	*RootOptions
	Participant bool
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "exec <db> <statement>",
		Short: "Run an INSERT, UPDATE or DELETE",
		Long: `Run a write against a host database, pushing it to participants as the
table's policy requires. With --participant the write runs against a partial
database and the host is notified per the table's behaviors.

Example:
  coop exec hr "INSERT INTO EMPLOYEE (Id, Name) VALUES (1, 'Alice')"
  coop exec --participant hr "DELETE FROM EMPLOYEE WHERE Id = 1"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withNode(cmd.Context(), func(n *coop.Node) error {
				f := opts.formatter(cmd)
				if opts.Participant {
					res, err := n.Participant().ExecuteStatement(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					text := fmt.Sprintf("%d row(s) changed", len(res.Rows))
					if !res.Report.OK() {
						text += fmt.Sprintf("; %d of %d host notifications failed", res.Report.Failed, res.Report.Calls)
					}
					return f.Success(res, text)
				}

				res, err := n.Host().ExecuteStatement(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				failed := 0
				for _, p := range res.Pushes {
					if p.Error != "" {
						failed++
						f.VerboseLog("push to %s failed: %s", p.Participant, p.Error)
					}
				}
				text := fmt.Sprintf("%d row(s) changed, %d push(es)", len(res.Rows), len(res.Pushes))
				if failed > 0 {
					text += fmt.Sprintf(", %d failed", failed)
				}
				return f.Success(res, text)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Participant, "participant", false, "write to a partial database")
	return cmd
}
