package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

const participantColumns = `ALIAS, PARTICIPANT_ID, ADDRESSES, TOKEN_HASH, ACCEPTANCE_STATE, REMOTE_DELETE_BEHAVIOR, CONTRACT_ID`

func scanParticipant(sc interface{ Scan(...any) error }) (model.Participant, error) {
	var (
		p          model.Participant
		addrs      string
		state, rdb uint8
		err        error
	)
	if err = sc.Scan(&p.Alias, &p.ID, &addrs, &p.TokenHash, &state, &rdb, &p.ContractID); err != nil {
		return model.Participant{}, err
	}
	if p.Addresses, err = unmarshalAddresses(addrs); err != nil {
		return model.Participant{}, err
	}
	if p.AcceptanceState, err = model.DecodeContractStatus(state); err != nil {
		return model.Participant{}, err
	}
	if p.RemoteDeleteBehavior, err = model.DecodeRemoteDeleteBehavior(rdb); err != nil {
		return model.Participant{}, err
	}
	return p, nil
}

// AddParticipant registers a participant alias. Adding an existing alias
// refreshes its addresses and leaves everything else unchanged.
func AddParticipant(ctx context.Context, q Querier, p model.Participant) error {
	addrs, err := marshalAddresses(p.Addresses)
	if err != nil {
		return err
	}
	state := p.AcceptanceState
	if state == model.ContractStatusUnknown {
		state = model.ContractStatusNotSent
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO COOP_PARTICIPANTS (ALIAS, ADDRESSES, ACCEPTANCE_STATE, REMOTE_DELETE_BEHAVIOR)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ALIAS) DO UPDATE SET ADDRESSES = excluded.ADDRESSES
	`, p.Alias, addrs, int(state), int(p.RemoteDeleteBehavior))
	if err != nil {
		return fmt.Errorf("add participant %s: %w", p.Alias, err)
	}
	return nil
}

// GetParticipant returns the participant with alias, or PARTICIPANT_NOT_FOUND.
func GetParticipant(ctx context.Context, q Querier, alias string) (model.Participant, error) {
	p, err := scanParticipant(q.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM COOP_PARTICIPANTS WHERE ALIAS = ?`, alias))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Participant{}, model.NewParticipantNotFoundError("", alias)
	}
	if err != nil {
		return model.Participant{}, fmt.Errorf("get participant %s: %w", alias, err)
	}
	return p, nil
}

// ListParticipants returns all participants ordered by alias.
func ListParticipants(ctx context.Context, q Querier) ([]model.Participant, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+participantColumns+` FROM COOP_PARTICIPANTS ORDER BY ALIAS`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// SetParticipantState records the acceptance state of the latest contract
// offered to alias.
func SetParticipantState(ctx context.Context, q Querier, alias string, state model.ContractStatus) error {
	return updateParticipant(ctx, q, alias, `ACCEPTANCE_STATE = ?`, int(state))
}

// RecordParticipantAcceptance stores the identity a participant presented
// when accepting contractID, and makes that contract its active one.
func RecordParticipantAcceptance(ctx context.Context, q Querier, alias, participantID, tokenHash, contractID string, rdb model.RemoteDeleteBehavior) error {
	return updateParticipant(ctx, q, alias,
		`PARTICIPANT_ID = ?, TOKEN_HASH = ?, CONTRACT_ID = ?, REMOTE_DELETE_BEHAVIOR = ?, ACCEPTANCE_STATE = ?`,
		participantID, tokenHash, contractID, int(rdb), int(model.ContractStatusAccepted))
}

// SetRemoteDeleteBehavior changes how the host reacts to deletions reported by alias.
func SetRemoteDeleteBehavior(ctx context.Context, q Querier, alias string, b model.RemoteDeleteBehavior) error {
	return updateParticipant(ctx, q, alias, `REMOTE_DELETE_BEHAVIOR = ?`, int(b))
}

func updateParticipant(ctx context.Context, q Querier, alias, set string, args ...any) error {
	args = append(args, alias)
	res, err := q.ExecContext(ctx, `UPDATE COOP_PARTICIPANTS SET `+set+` WHERE ALIAS = ?`, args...)
	if err != nil {
		return fmt.Errorf("update participant %s: %w", alias, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update participant %s: rows affected: %w", alias, err)
	}
	if n == 0 {
		return model.NewParticipantNotFoundError("", alias)
	}
	return nil
}
