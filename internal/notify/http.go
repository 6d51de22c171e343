package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Endpoint paths served by internal/httpapi.
const (
	PathPrefix             = "/coop/v1"
	PathUpdatedHash        = PathPrefix + "/host/hash"
	PathRemovedRow         = PathPrefix + "/host/removed-row"
	PathContractAcceptance = PathPrefix + "/host/contract-acceptance"
	PathContractOffer      = PathPrefix + "/participant/contract"
	PathAuth               = PathPrefix + "/participant/auth"
	PathInsert             = PathPrefix + "/participant/insert"
	PathUpdate             = PathPrefix + "/participant/update"
	PathDelete             = PathPrefix + "/participant/delete"
)

// ErrorBody is the JSON body of a failed call.
type ErrorBody struct {
	Code    model.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// maxResponse bounds how much of a response body is read.
const maxResponse = 1 << 20

// HTTPDoer is the part of *http.Client the transport uses.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTP posts calls as JSON.
type HTTP struct {
	client  HTTPDoer
	timeout time.Duration
}

var _ Notifier = (*HTTP)(nil)

// NewHTTP returns an HTTP transport. A nil client gets a default one with
// timeout.
func NewHTTP(client HTTPDoer, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{client: client, timeout: timeout}
}

func endpoint(addr, path string) string {
	addr = strings.TrimSuffix(addr, "/")
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return addr + path
}

// post sends body to addr+path and decodes a 2xx reply into out, if non-nil.
func (h *HTTP) post(ctx context.Context, call, addr, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return model.NewRemoteNotifyError(call, fmt.Errorf("encode request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(addr, path), bytes.NewReader(payload))
	if err != nil {
		return model.NewRemoteNotifyError(call, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return model.NewRemoteNotifyError(call, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return model.NewRemoteNotifyError(call, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Code != "" {
			return &model.Error{Code: eb.Code, Message: eb.Message}
		}
		return model.NewRemoteNotifyError(call, fmt.Errorf("status %d", resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return model.NewRemoteNotifyError(call, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (h *HTTP) NotifyHostOfUpdatedHash(ctx context.Context, addr string, req HashChange) error {
	return h.post(ctx, CallUpdatedHash, addr, PathUpdatedHash, req, nil)
}

func (h *HTTP) NotifyHostOfRemovedRow(ctx context.Context, addr string, req RowRemoval) error {
	return h.post(ctx, CallRemovedRow, addr, PathRemovedRow, req, nil)
}

func (h *HTTP) NotifyHostOfAcceptanceOfContract(ctx context.Context, addr string, req Acceptance) error {
	return h.post(ctx, CallContractAcceptance, addr, PathContractAcceptance, req, nil)
}

func (h *HTTP) SendParticipantContract(ctx context.Context, addr string, req ContractOffer) error {
	return h.post(ctx, CallSendContract, addr, PathContractOffer, req, nil)
}

func (h *HTTP) TryAuthAtParticipant(ctx context.Context, addr string, req AuthRequest) error {
	return h.post(ctx, CallTryAuth, addr, PathAuth, req, nil)
}

func (h *HTTP) InsertAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	var res model.PartialDataResult
	err := h.post(ctx, CallInsert, addr, PathInsert, req, &res)
	return res, err
}

func (h *HTTP) UpdateAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	var res model.PartialDataResult
	err := h.post(ctx, CallUpdate, addr, PathUpdate, req, &res)
	return res, err
}

func (h *HTTP) DeleteAtParticipant(ctx context.Context, addr string, req DataPush) (model.PartialDataResult, error) {
	var res model.PartialDataResult
	err := h.post(ctx, CallDelete, addr, PathDelete, req, &res)
	return res, err
}
