package cli

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dynamoRando/rcd-sub004/internal/config"
	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
)

// openNode opens the node described by cfg. A non-nil reg instruments the
// notifier.
func openNode(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*coop.Node, error) {
	kind, err := cfg.TransportKind()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid transport", err)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid transport timeout", err)
	}
	n, err := notify.New(kind, notify.Options{Registry: notify.NewRegistry(), Timeout: timeout})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create notifier", err)
	}
	if reg != nil {
		if n, err = notify.Instrument(n, reg); err != nil {
			return nil, err
		}
	}
	node, err := coop.Open(ctx, coop.Config{
		DataDir:    cfg.DataDir,
		Name:       cfg.Name,
		Addresses:  cfg.Addresses,
		Notifier:   n,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open node", err)
	}
	return node, nil
}

// withNode opens the node, runs fn and closes the node again.
func (o *RootOptions) withNode(ctx context.Context, fn func(*coop.Node) error) error {
	node, err := openNode(ctx, o.Config, nil)
	if err != nil {
		return err
	}
	defer node.Close()
	return fn(node)
}
