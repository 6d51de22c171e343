package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// verifiedTTL bounds how long a successful bcrypt check is reused.
const verifiedTTL = time.Minute

// Verifier authenticates inbound calls. Participants are checked against the
// token hash recorded when they accepted a contract; hosts against the hash
// recorded the first time they offered one.
type Verifier struct {
	hasher Hasher
	seen   *cache.Cache
}

// NewVerifier returns a Verifier using h.
func NewVerifier(h Hasher) *Verifier {
	return &Verifier{hasher: h, seen: cache.New(verifiedTTL, 2*verifiedTTL)}
}

// Hasher returns the hasher used for new token hashes.
func (v *Verifier) Hasher() Hasher { return v.hasher }

func (v *Verifier) check(hash, token, subject string) error {
	key := hash + "\x00" + token
	if _, ok := v.seen.Get(key); ok {
		return nil
	}
	if err := v.hasher.Verify(hash, token, subject); err != nil {
		slog.Warn("authentication failed", "subject", subject)
		return err
	}
	v.seen.SetDefault(key, struct{}{})
	return nil
}

// Participant verifies creds presented by a participant of db. creds.Name is
// the participant alias.
func (v *Verifier) Participant(ctx context.Context, db store.Querier, creds model.Credentials) (model.Participant, error) {
	subject := "participant " + creds.Name
	p, err := store.GetParticipant(ctx, db, creds.Name)
	if model.IsCode(err, model.ErrCodeParticipantNotFound) {
		slog.Warn("authentication failed", "subject", subject, "reason", "unknown alias")
		return model.Participant{}, model.NewAuthError(subject)
	}
	if err != nil {
		return model.Participant{}, err
	}
	if p.ID == "" || p.ID != creds.ID {
		slog.Warn("authentication failed", "subject", subject, "reason", "id mismatch")
		return model.Participant{}, model.NewAuthError(subject)
	}
	if err := v.check(p.TokenHash, creds.Token, subject); err != nil {
		return model.Participant{}, err
	}
	return p, nil
}

// Host verifies creds presented by a remote host. Unknown hosts fail.
func (v *Verifier) Host(ctx context.Context, system store.Querier, creds model.Credentials) (store.RemoteHost, error) {
	subject := "host " + creds.ID
	h, ok, err := store.GetRemoteHost(ctx, system, creds.ID)
	if err != nil {
		return store.RemoteHost{}, err
	}
	if !ok {
		slog.Warn("authentication failed", "subject", subject, "reason", "unknown host")
		return store.RemoteHost{}, model.NewAuthError(subject)
	}
	if err := v.check(h.TokenHash, creds.Token, subject); err != nil {
		return store.RemoteHost{}, err
	}
	return h, nil
}

// TrustHost records a host on first contact and verifies it afterwards.
// addresses are refreshed on every call.
func (v *Verifier) TrustHost(ctx context.Context, system store.Querier, creds model.Credentials, addresses []string, at time.Time) error {
	if strings.TrimSpace(creds.ID) == "" || creds.Token == "" {
		return model.NewAuthError("host " + creds.Name)
	}
	_, known, err := store.GetRemoteHost(ctx, system, creds.ID)
	if err != nil {
		return err
	}
	if known {
		if _, err := v.Host(ctx, system, creds); err != nil {
			return err
		}
		return store.PutRemoteHost(ctx, system, store.RemoteHost{ID: creds.ID, Name: creds.Name, Addresses: addresses, FirstSeen: at})
	}

	hash, err := v.hasher.Hash(creds.Token)
	if err != nil {
		return err
	}
	slog.Info("trusting new host", "host_id", creds.ID, "host", creds.Name)
	return store.PutRemoteHost(ctx, system, store.RemoteHost{
		ID:        creds.ID,
		Name:      creds.Name,
		TokenHash: hash,
		Addresses: addresses,
		FirstSeen: at,
	})
}
