package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// GetPolicy returns the policy stored for table. The bool is false when none
// was ever set.
func GetPolicy(ctx context.Context, q Querier, table string) (model.LogicalStoragePolicy, bool, error) {
	var code uint8
	err := q.QueryRowContext(ctx,
		`SELECT POLICY FROM COOP_POLICIES WHERE TABLE_NAME = ?`, table,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PolicyNone, false, nil
	}
	if err != nil {
		return model.PolicyNone, false, fmt.Errorf("get policy %s: %w", table, err)
	}
	p, err := model.DecodeLogicalStoragePolicy(code)
	if err != nil {
		return model.PolicyNone, false, err
	}
	return p, true, nil
}

// SetPolicy stores p for table, overwriting any previous policy.
func SetPolicy(ctx context.Context, q Querier, table string, p model.LogicalStoragePolicy, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO COOP_POLICIES (TABLE_NAME, POLICY, UPDATED_AT) VALUES (?, ?, ?)
		ON CONFLICT (TABLE_NAME) DO UPDATE SET
			POLICY = excluded.POLICY,
			UPDATED_AT = excluded.UPDATED_AT
	`, table, int(p), formatTime(at))
	if err != nil {
		return fmt.Errorf("set policy %s: %w", table, err)
	}
	return nil
}

// ListPolicies returns every stored policy keyed by table name.
func ListPolicies(ctx context.Context, q Querier) (map[string]model.LogicalStoragePolicy, error) {
	rows, err := q.QueryContext(ctx, `SELECT TABLE_NAME, POLICY FROM COOP_POLICIES ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.LogicalStoragePolicy)
	for rows.Next() {
		var (
			table string
			code  uint8
		)
		if err := rows.Scan(&table, &code); err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		p, err := model.DecodeLogicalStoragePolicy(code)
		if err != nil {
			return nil, err
		}
		out[table] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	return out, nil
}
