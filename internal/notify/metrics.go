package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Instrumented counts calls made through a Notifier.
type Instrumented struct {
	next  Notifier
	calls *prometheus.CounterVec
}

var _ Notifier = (*Instrumented)(nil)

// Instrument wraps n with a coop_notify_calls_total counter registered on reg.
// Registering twice on the same registry reuses the existing collector.
func Instrument(n Notifier, reg prometheus.Registerer) (*Instrumented, error) {
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coop",
		Subsystem: "notify",
		Name:      "calls_total",
		Help:      "Remote notifier calls by call name and result.",
	}, []string{"call", "result"})

	if err := reg.Register(calls); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		calls = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Instrumented{next: n, calls: calls}, nil
}

// result labels a call outcome by its error code.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	if code := model.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}

func (i *Instrumented) observe(call string, err error) error {
	i.calls.WithLabelValues(call, result(err)).Inc()
	if err != nil {
		slog.Warn("remote call failed", "call", call, "error", err)
	}
	return err
}

func (i *Instrumented) NotifyHostOfUpdatedHash(ctx context.Context, addr string, req HashChange) error {
	return i.observe(CallUpdatedHash, i.next.NotifyHostOfUpdatedHash(ctx, addr, req))
}

func (i *Instrumented) NotifyHostOfRemovedRow(ctx context.Context, addr string, req RowRemoval) error {
	return i.observe(CallRemovedRow, i.next.NotifyHostOfRemovedRow(ctx, addr, req))
}

func (i *Instrumented) NotifyHostOfAcceptanceOfContract(ctx context.Context, addr string, req Acceptance) error {
	return i.observe(CallContractAcceptance, i.next.NotifyHostOfAcceptanceOfContract(ctx, addr, req))
}

func (i *Instrumented) SendParticipantContract(ctx context.Context, addr string, req ContractOffer) error {
	return i.observe(CallSendContract, i.next.SendParticipantContract(ctx, addr, req))
}

func (i *Instrumented) TryAuthAtParticipant(ctx context.Context, addr string, req AuthRequest) error {
	return i.observe(CallTryAuth, i.next.TryAuthAtParticipant(ctx, addr, req))
}

func (i *Instrumented) InsertAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	res, err := i.next.InsertAtParticipant(ctx, addr, req)
	return res, i.observe(CallInsert, err)
}

func (i *Instrumented) UpdateAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	res, err := i.next.UpdateAtParticipant(ctx, addr, req)
	return res, i.observe(CallUpdate, err)
}

func (i *Instrumented) DeleteAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	res, err := i.next.DeleteAtParticipant(ctx, addr, req)
	return res, i.observe(CallDelete, err)
}
