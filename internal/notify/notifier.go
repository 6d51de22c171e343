package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// HashChange reports a participant's new hash for a row.
type HashChange struct {
	Credentials  model.Credentials `json:"credentials"`
	DatabaseName string            `json:"database_name"`
	TableName    string            `json:"table_name"`
	RowID        int64             `json:"row_id"`
	Hash         uint64            `json:"hash,string"`

	// Values is the whole row, sent for tables whose host applies
	// participant writes.
	Values []model.ColumnValue `json:"values,omitempty"`
}

// RowRemoval reports that a participant deleted a row.
type RowRemoval struct {
	Credentials  model.Credentials `json:"credentials"`
	DatabaseName string            `json:"database_name"`
	TableName    string            `json:"table_name"`
	RowID        int64             `json:"row_id"`
}

// Acceptance tells the host a participant accepted a contract.
type Acceptance struct {
	Credentials  model.Credentials `json:"credentials"`
	ContractID   string            `json:"contract_id"`
	DatabaseName string            `json:"database_name"`
}

// ContractOffer carries a contract from host to participant.
type ContractOffer struct {
	Credentials model.Credentials `json:"credentials"`
	Contract    model.Contract    `json:"contract"`
}

// AuthRequest probes whether a participant accepts the host's credentials.
type AuthRequest struct {
	Credentials model.Credentials `json:"credentials"`
}

// DataPush carries a host mutation to a partial database.
type DataPush struct {
	Credentials  model.Credentials `json:"credentials"`
	DatabaseName string            `json:"database_name"`
	Mutation     model.Mutation    `json:"mutation"`
}

// Notifier makes calls on remote nodes. addr names the target node. A nil
// error means the remote side acknowledged the call.
type Notifier interface {
	NotifyHostOfUpdatedHash(ctx context.Context, addr string, req HashChange) error
	NotifyHostOfRemovedRow(ctx context.Context, addr string, req RowRemoval) error
	NotifyHostOfAcceptanceOfContract(ctx context.Context, addr string, req Acceptance) error
	SendParticipantContract(ctx context.Context, addr string, req ContractOffer) error
	TryAuthAtParticipant(ctx context.Context, addr string, req AuthRequest) error
	InsertAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error)
	UpdateAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error)
	DeleteAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error)
}

// HostHandler receives the calls a participant makes on a host.
type HostHandler interface {
	HandleUpdatedHash(ctx context.Context, req HashChange) error
	HandleRemovedRow(ctx context.Context, req RowRemoval) error
	HandleContractAcceptance(ctx context.Context, req Acceptance) error
}

// ParticipantHandler receives the calls a host makes on a participant.
type ParticipantHandler interface {
	HandleContractOffer(ctx context.Context, req ContractOffer) error
	HandleAuth(ctx context.Context, req AuthRequest) error
	HandleInsert(ctx context.Context, req DataPush) (model.PartialDataResult, error)
	HandleUpdate(ctx context.Context, req DataPush) (model.PartialDataResult, error)
	HandleDelete(ctx context.Context, req DataPush) (model.PartialDataResult, error)
}

// Call names, used in logs, metrics and recorded traces.
const (
	CallUpdatedHash        = "notify_host_of_updated_hash"
	CallRemovedRow         = "notify_host_of_removed_row"
	CallContractAcceptance = "notify_host_of_acceptance_of_contract"
	CallSendContract       = "send_participant_contract"
	CallTryAuth            = "try_auth_at_participant"
	CallInsert             = "insert_at_participant"
	CallUpdate             = "update_at_participant"
	CallDelete             = "delete_at_participant"
)

// Kind selects a transport.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindLoopback
	KindHTTP
)

func (k Kind) String() string {
	switch k {
	case KindLoopback:
		return "loopback"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// ParseKind converts a transport name. Unknown names fail with NOT_IMPLEMENTED.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loopback":
		return KindLoopback, nil
	case "http":
		return KindHTTP, nil
	default:
		return KindUnknown, notImplemented(s)
	}
}

func notImplemented(kind string) *model.Error {
	return &model.Error{
		Code:    model.ErrCodeNotImplemented,
		Message: fmt.Sprintf("transport %q is not implemented", kind),
	}
}

var errNoAddress = errors.New("no addresses")

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 10 * time.Second

// Options configure New.
type Options struct {
	// Registry is required for KindLoopback.
	Registry *Registry

	// HTTPClient is used by KindHTTP. A client with Timeout is created when nil.
	HTTPClient HTTPDoer

	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// New returns the Notifier for kind.
func New(kind Kind, opts Options) (Notifier, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch kind {
	case KindLoopback:
		if opts.Registry == nil {
			return nil, &model.Error{Code: model.ErrCodeNotImplemented, Message: "loopback transport needs a registry"}
		}
		return &Loopback{registry: opts.Registry, timeout: timeout}, nil
	case KindHTTP:
		return NewHTTP(opts.HTTPClient, timeout), nil
	default:
		return nil, notImplemented(kind.String())
	}
}

// wrapFailure passes typed remote errors through and turns anything else,
// including a deadline, into REMOTE_NOTIFY_FAILURE.
func wrapFailure(call string, err error) error {
	if err == nil {
		return nil
	}
	if code := model.CodeOf(err); code != "" {
		return err
	}
	return model.NewRemoteNotifyError(call, err)
}

// TryEach calls fn with each address in turn until one succeeds or fails
// with something other than REMOTE_NOTIFY_FAILURE.
func TryEach(addrs []string, fn func(addr string) error) error {
	if len(addrs) == 0 {
		return model.NewRemoteNotifyError("resolve address", errNoAddress)
	}
	var err error
	for _, addr := range addrs {
		if err = fn(addr); err == nil || !IsSoftFailure(err) {
			return err
		}
	}
	return err
}

// IsSoftFailure reports whether err is a transport failure, which callers
// report as an unsuccessful call rather than an error.
func IsSoftFailure(err error) bool {
	return model.IsCode(err, model.ErrCodeRemoteNotifyFailure)
}
