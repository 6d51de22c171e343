package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

var errUnreachable = errors.New("address unreachable")

// Registry maps addresses to in-process handlers.
type Registry struct {
	mu           sync.RWMutex
	hosts        map[string]HostHandler
	participants map[string]ParticipantHandler
	down         map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		hosts:        make(map[string]HostHandler),
		participants: make(map[string]ParticipantHandler),
		down:         make(map[string]bool),
	}
}

// RegisterHost makes h reachable at addr.
func (r *Registry) RegisterHost(addr string, h HostHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[addr] = h
}

// RegisterParticipant makes p reachable at addr.
func (r *Registry) RegisterParticipant(addr string, p ParticipantHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[addr] = p
}

// SetDown marks addr unreachable (or reachable again) without unregistering it.
func (r *Registry) SetDown(addr string, down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down[addr] = down
}

func (r *Registry) host(addr string) (HostHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[addr]
	if !ok || r.down[addr] {
		return nil, fmt.Errorf("host %s: %w", addr, errUnreachable)
	}
	return h, nil
}

func (r *Registry) participant(addr string) (ParticipantHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[addr]
	if !ok || r.down[addr] {
		return nil, fmt.Errorf("participant %s: %w", addr, errUnreachable)
	}
	return p, nil
}

// Loopback delivers calls to handlers in the same process.
type Loopback struct {
	registry *Registry
	timeout  time.Duration
}

var _ Notifier = (*Loopback)(nil)

func (l *Loopback) hostCall(ctx context.Context, call, addr string, fn func(context.Context, HostHandler) error) error {
	h, err := l.registry.host(addr)
	if err != nil {
		return model.NewRemoteNotifyError(call, err)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := fn(ctx, h); err != nil {
		return wrapFailure(call, err)
	}
	return wrapFailure(call, ctx.Err())
}

func (l *Loopback) participantCall(ctx context.Context, call, addr string, fn func(context.Context, ParticipantHandler) error) error {
	p, err := l.registry.participant(addr)
	if err != nil {
		return model.NewRemoteNotifyError(call, err)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := fn(ctx, p); err != nil {
		return wrapFailure(call, err)
	}
	return wrapFailure(call, ctx.Err())
}

func (l *Loopback) NotifyHostOfUpdatedHash(ctx context.Context, addr string, req HashChange) error {
	return l.hostCall(ctx, CallUpdatedHash, addr, func(ctx context.Context, h HostHandler) error {
		return h.HandleUpdatedHash(ctx, req)
	})
}

func (l *Loopback) NotifyHostOfRemovedRow(ctx context.Context, addr string, req RowRemoval) error {
	return l.hostCall(ctx, CallRemovedRow, addr, func(ctx context.Context, h HostHandler) error {
		return h.HandleRemovedRow(ctx, req)
	})
}

func (l *Loopback) NotifyHostOfAcceptanceOfContract(ctx context.Context, addr string, req Acceptance) error {
	return l.hostCall(ctx, CallContractAcceptance, addr, func(ctx context.Context, h HostHandler) error {
		return h.HandleContractAcceptance(ctx, req)
	})
}

func (l *Loopback) SendParticipantContract(ctx context.Context, addr string, req ContractOffer) error {
	return l.participantCall(ctx, CallSendContract, addr, func(ctx context.Context, p ParticipantHandler) error {
		return p.HandleContractOffer(ctx, req)
	})
}

func (l *Loopback) TryAuthAtParticipant(ctx context.Context, addr string, req AuthRequest) error {
	return l.participantCall(ctx, CallTryAuth, addr, func(ctx context.Context, p ParticipantHandler) error {
		return p.HandleAuth(ctx, req)
	})
}

func (l *Loopback) push(ctx context.Context, call, addr string, fn func(context.Context, ParticipantHandler) (model.PartialDataResult, error)) (model.PartialDataResult, error) {
	var res model.PartialDataResult
	err := l.participantCall(ctx, call, addr, func(ctx context.Context, p ParticipantHandler) error {
		var err error
		res, err = fn(ctx, p)
		return err
	})
	if err != nil {
		return model.PartialDataResult{}, err
	}
	return res, nil
}

func (l *Loopback) InsertAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	return l.push(ctx, CallInsert, addr, func(ctx context.Context, p ParticipantHandler) (model.PartialDataResult, error) {
		return p.HandleInsert(ctx, req)
	})
}

func (l *Loopback) UpdateAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	return l.push(ctx, CallUpdate, addr, func(ctx context.Context, p ParticipantHandler) (model.PartialDataResult, error) {
		return p.HandleUpdate(ctx, req)
	})
}

func (l *Loopback) DeleteAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	return l.push(ctx, CallDelete, addr, func(ctx context.Context, p ParticipantHandler) (model.PartialDataResult, error) {
		return p.HandleDelete(ctx, req)
	})
}
