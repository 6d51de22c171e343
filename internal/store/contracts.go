package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// ContractRole distinguishes the two sides' copies of a contract. A node
// acting as both host and participant keeps both rows.
type ContractRole uint8

const (
	// RoleIssued marks a contract this node generated as host.
	RoleIssued ContractRole = 1
	// RoleReceived marks a contract offered to this node as participant.
	RoleReceived ContractRole = 2
)

// ContractRecord is a stored contract plus the acceptance step flags.
type ContractRecord struct {
	Contract     model.Contract
	Role         ContractRole
	Provisioned  bool
	HostNotified bool
	UpdatedAt    time.Time
}

// ContractFilter narrows ListContracts. Zero fields match everything.
type ContractFilter struct {
	Status   model.ContractStatus
	Database string
	Alias    string
}

// InsertContract stores a contract document. Uses ON CONFLICT DO NOTHING for
// idempotency: a contract id that already exists for role is left untouched
// and inserted is false.
func InsertContract(ctx context.Context, q Querier, role ContractRole, c model.Contract, at time.Time) (inserted bool, err error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return false, fmt.Errorf("insert contract: marshal: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO COOP_CONTRACTS
		(CONTRACT_ID, ROLE, VERSION_ID, DATABASE_NAME, DATABASE_ID, PARTICIPANT_ALIAS, HOST_ID,
		 STATUS, DOCUMENT, GENERATED_AT, UPDATED_AT)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (CONTRACT_ID, ROLE) DO NOTHING
	`,
		c.ContractID,
		int(role),
		c.VersionID,
		c.DatabaseName,
		c.DatabaseID,
		c.ParticipantAlias,
		c.Host.ID,
		int(c.Status),
		string(doc),
		formatTime(c.GeneratedAt),
		formatTime(at),
	)
	if err != nil {
		return false, fmt.Errorf("insert contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert contract: rows affected: %w", err)
	}
	return n > 0, nil
}

const contractColumns = `STATUS, DOCUMENT, PROVISIONED, HOST_NOTIFIED, UPDATED_AT, ROLE`

func scanContract(sc interface{ Scan(...any) error }) (ContractRecord, error) {
	var (
		rec                ContractRecord
		status, role       uint8
		doc, updated       string
		provisioned, notif int
	)
	if err := sc.Scan(&status, &doc, &provisioned, &notif, &updated, &role); err != nil {
		return ContractRecord{}, err
	}
	if err := json.Unmarshal([]byte(doc), &rec.Contract); err != nil {
		return ContractRecord{}, fmt.Errorf("decode contract document: %w", err)
	}
	st, err := model.DecodeContractStatus(status)
	if err != nil {
		return ContractRecord{}, err
	}
	rec.Contract.Status = st
	rec.Role = ContractRole(role)
	rec.Provisioned = provisioned != 0
	rec.HostNotified = notif != 0
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return ContractRecord{}, err
	}
	return rec, nil
}

// GetContract returns the contract with id for role, or CONTRACT_NOT_FOUND.
func GetContract(ctx context.Context, q Querier, role ContractRole, id string) (ContractRecord, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM COOP_CONTRACTS WHERE CONTRACT_ID = ? AND ROLE = ?`, id, int(role))
	rec, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ContractRecord{}, model.NewContractNotFoundError(id)
	}
	if err != nil {
		return ContractRecord{}, fmt.Errorf("get contract %s: %w", id, err)
	}
	return rec, nil
}

// ListContracts returns contracts for role matching f, oldest first.
func ListContracts(ctx context.Context, q Querier, role ContractRole, f ContractFilter) ([]ContractRecord, error) {
	conds := []string{"ROLE = ?"}
	args := []any{int(role)}
	if f.Status != model.ContractStatusUnknown {
		conds = append(conds, "STATUS = ?")
		args = append(args, int(f.Status))
	}
	if f.Database != "" {
		conds = append(conds, "DATABASE_NAME = ? COLLATE NOCASE")
		args = append(args, f.Database)
	}
	if f.Alias != "" {
		conds = append(conds, "PARTICIPANT_ALIAS = ? COLLATE NOCASE")
		args = append(args, f.Alias)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+contractColumns+` FROM COOP_CONTRACTS
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY GENERATED_AT ASC, CONTRACT_ID ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var out []ContractRecord
	for rows.Next() {
		rec, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("list contracts: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return out, nil
}

// ActiveContract returns the most recently generated Accepted contract for
// (database, alias). The bool is false when none is active.
func ActiveContract(ctx context.Context, q Querier, role ContractRole, database, alias string) (ContractRecord, bool, error) {
	recs, err := ListContracts(ctx, q, role, ContractFilter{
		Status:   model.ContractStatusAccepted,
		Database: database,
		Alias:    alias,
	})
	if err != nil || len(recs) == 0 {
		return ContractRecord{}, false, err
	}
	return recs[len(recs)-1], true, nil
}

// TransitionContract moves a contract from one of the given states to to.
// The update is conditional on the current status, so two racing callers
// cannot both win; changed reports whether this call performed the move.
func TransitionContract(ctx context.Context, q Querier, role ContractRole, id string, to model.ContractStatus, at time.Time, from ...model.ContractStatus) (changed bool, err error) {
	if len(from) == 0 {
		return false, fmt.Errorf("transition contract %s: no source states", id)
	}
	args := []any{int(to), formatTime(at), id, int(role)}
	marks := make([]string, len(from))
	for i, s := range from {
		if !s.CanTransitionTo(to) {
			return false, model.NewInvalidTransitionError(id, s, to)
		}
		marks[i] = "?"
		args = append(args, int(s))
	}

	res, err := q.ExecContext(ctx, `
		UPDATE COOP_CONTRACTS SET STATUS = ?, UPDATED_AT = ?
		WHERE CONTRACT_ID = ? AND ROLE = ? AND STATUS IN (`+strings.Join(marks, ", ")+`)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("transition contract %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition contract %s: rows affected: %w", id, err)
	}
	return n > 0, nil
}

// MarkProvisioned records that the partial database for a received contract exists.
func MarkProvisioned(ctx context.Context, q Querier, id string, at time.Time) error {
	return setFlag(ctx, q, id, "PROVISIONED", at)
}

// MarkHostNotified records that the host acknowledged acceptance of a received contract.
func MarkHostNotified(ctx context.Context, q Querier, id string, at time.Time) error {
	return setFlag(ctx, q, id, "HOST_NOTIFIED", at)
}

func setFlag(ctx context.Context, q Querier, id, column string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE COOP_CONTRACTS SET `+column+` = 1, UPDATED_AT = ?
		WHERE CONTRACT_ID = ? AND ROLE = ?
	`, formatTime(at), id, int(RoleReceived))
	if err != nil {
		return fmt.Errorf("mark contract %s %s: %w", id, strings.ToLower(column), err)
	}
	return nil
}
