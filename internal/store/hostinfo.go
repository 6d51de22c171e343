package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// LoadHostInfo reads this node's identity. The bool is false on a fresh node.
func LoadHostInfo(ctx context.Context, q Querier) (model.HostInfo, bool, error) {
	var (
		h     model.HostInfo
		addrs string
	)
	err := q.QueryRowContext(ctx, `
		SELECT HOST_ID, HOST_NAME, TOKEN, ADDRESSES FROM COOP_HOST_INFO WHERE SINGLETON = 1
	`).Scan(&h.ID, &h.Name, &h.Token, &addrs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.HostInfo{}, false, nil
	}
	if err != nil {
		return model.HostInfo{}, false, fmt.Errorf("load host info: %w", err)
	}
	if h.Addresses, err = unmarshalAddresses(addrs); err != nil {
		return model.HostInfo{}, false, fmt.Errorf("load host info: %w", err)
	}
	return h, true, nil
}

// SaveHostInfo writes this node's identity, replacing any previous one.
func SaveHostInfo(ctx context.Context, q Querier, h model.HostInfo) error {
	addrs, err := marshalAddresses(h.Addresses)
	if err != nil {
		return fmt.Errorf("save host info: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO COOP_HOST_INFO (SINGLETON, HOST_ID, HOST_NAME, TOKEN, ADDRESSES)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (SINGLETON) DO UPDATE SET
			HOST_ID = excluded.HOST_ID,
			HOST_NAME = excluded.HOST_NAME,
			TOKEN = excluded.TOKEN,
			ADDRESSES = excluded.ADDRESSES
	`, h.ID, h.Name, h.Token, addrs)
	if err != nil {
		return fmt.Errorf("save host info: %w", err)
	}
	return nil
}

// RemoteHost is a host this node holds partial databases for.
type RemoteHost struct {
	ID        string
	Name      string
	TokenHash string
	Addresses []string
	FirstSeen time.Time
}

// GetRemoteHost looks up a known host by id.
func GetRemoteHost(ctx context.Context, q Querier, id string) (RemoteHost, bool, error) {
	var (
		h         RemoteHost
		addrs, at string
	)
	err := q.QueryRowContext(ctx, `
		SELECT HOST_ID, HOST_NAME, TOKEN_HASH, ADDRESSES, FIRST_SEEN FROM COOP_REMOTE_HOSTS WHERE HOST_ID = ?
	`, id).Scan(&h.ID, &h.Name, &h.TokenHash, &addrs, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return RemoteHost{}, false, nil
	}
	if err != nil {
		return RemoteHost{}, false, fmt.Errorf("get remote host %s: %w", id, err)
	}
	if h.Addresses, err = unmarshalAddresses(addrs); err != nil {
		return RemoteHost{}, false, err
	}
	if h.FirstSeen, err = parseTime(at); err != nil {
		return RemoteHost{}, false, err
	}
	return h, true, nil
}

// PutRemoteHost records a host the first time it is seen. Later calls refresh
// its name and addresses but never replace the stored token hash.
func PutRemoteHost(ctx context.Context, q Querier, h RemoteHost) error {
	addrs, err := marshalAddresses(h.Addresses)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO COOP_REMOTE_HOSTS (HOST_ID, HOST_NAME, TOKEN_HASH, ADDRESSES, FIRST_SEEN)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (HOST_ID) DO UPDATE SET
			HOST_NAME = excluded.HOST_NAME,
			ADDRESSES = excluded.ADDRESSES
	`, h.ID, h.Name, h.TokenHash, addrs, formatTime(h.FirstSeen))
	if err != nil {
		return fmt.Errorf("put remote host %s: %w", h.ID, err)
	}
	return nil
}
