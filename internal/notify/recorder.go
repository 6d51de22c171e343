package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Call is one recorded notifier call.
type Call struct {
	Name   string `json:"call" yaml:"call"`
	Addr   string `json:"addr" yaml:"addr"`
	Table  string `json:"table,omitempty" yaml:"table,omitempty"`
	RowID  int64  `json:"row_id,omitempty" yaml:"row_id,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
	Result string `json:"result" yaml:"result"`
}

// Recorder records every call before forwarding it.
type Recorder struct {
	next Notifier

	mu    sync.Mutex
	calls []Call
}

var _ Notifier = (*Recorder)(nil)

// NewRecorder wraps n.
func NewRecorder(n Notifier) *Recorder {
	return &Recorder{next: n}
}

// Calls returns a copy of the calls recorded so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls named name were recorded.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(c Call, err error) error {
	c.Result = result(err)
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	return err
}

func (r *Recorder) NotifyHostOfUpdatedHash(ctx context.Context, addr string, req HashChange) error {
	err := r.next.NotifyHostOfUpdatedHash(ctx, addr, req)
	return r.record(Call{Name: CallUpdatedHash, Addr: addr, Table: req.TableName, RowID: req.RowID, Detail: fmt.Sprintf("hash=%d", req.Hash)}, err)
}

func (r *Recorder) NotifyHostOfRemovedRow(ctx context.Context, addr string, req RowRemoval) error {
	err := r.next.NotifyHostOfRemovedRow(ctx, addr, req)
	return r.record(Call{Name: CallRemovedRow, Addr: addr, Table: req.TableName, RowID: req.RowID}, err)
}

func (r *Recorder) NotifyHostOfAcceptanceOfContract(ctx context.Context, addr string, req Acceptance) error {
	err := r.next.NotifyHostOfAcceptanceOfContract(ctx, addr, req)
	return r.record(Call{Name: CallContractAcceptance, Addr: addr, Detail: "db=" + req.DatabaseName}, err)
}

func (r *Recorder) SendParticipantContract(ctx context.Context, addr string, req ContractOffer) error {
	err := r.next.SendParticipantContract(ctx, addr, req)
	return r.record(Call{Name: CallSendContract, Addr: addr, Detail: "db=" + req.Contract.DatabaseName}, err)
}

func (r *Recorder) TryAuthAtParticipant(ctx context.Context, addr string, req AuthRequest) error {
	err := r.next.TryAuthAtParticipant(ctx, addr, req)
	return r.record(Call{Name: CallTryAuth, Addr: addr}, err)
}

func pushCall(name, addr string, req DataPush, res model.PartialDataResult) Call {
	c := Call{Name: name, Addr: addr, Table: req.Mutation.Table, RowID: req.Mutation.RowID}
	if res.Status != model.PartialDataUnknown {
		c.Detail = "status=" + res.Status.String()
	}
	return c
}

func (r *Recorder) InsertAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	res, err := r.next.InsertAtParticipant(ctx, addr, req)
	return res, r.record(pushCall(CallInsert, addr, req, res), err)
}

func (r *Recorder) UpdateAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	res, err := r.next.UpdateAtParticipant(ctx, addr, req)
	return res, r.record(pushCall(CallUpdate, addr, req, res), err)
}

func (r *Recorder) DeleteAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	res, err := r.next.DeleteAtParticipant(ctx, addr, req)
	return res, r.record(pushCall(CallDelete, addr, req, res), err)
}
