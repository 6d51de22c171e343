package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// GetBehaviors returns the behavior settings for table. The bool is false
// when the table has none.
func GetBehaviors(ctx context.Context, q Querier, table string) (model.BehaviorSettings, bool, error) {
	var (
		s        model.BehaviorSettings
		ufh, dfh uint8
		uth, dth uint8
	)
	err := q.QueryRowContext(ctx, `
		SELECT TABLE_NAME, UPDATES_FROM_HOST, DELETES_FROM_HOST, UPDATES_TO_HOST, DELETES_TO_HOST
		FROM COOP_BEHAVIORS WHERE TABLE_NAME = ?
	`, table).Scan(&s.Table, &ufh, &dfh, &uth, &dth)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BehaviorSettings{}, false, nil
	}
	if err != nil {
		return model.BehaviorSettings{}, false, fmt.Errorf("get behaviors %s: %w", table, err)
	}

	if s.UpdatesFromHost, err = model.DecodeUpdatesFromHostBehavior(ufh); err != nil {
		return model.BehaviorSettings{}, false, err
	}
	if s.DeletesFromHost, err = model.DecodeDeletesFromHostBehavior(dfh); err != nil {
		return model.BehaviorSettings{}, false, err
	}
	if s.UpdatesToHost, err = model.DecodeUpdatesToHostBehavior(uth); err != nil {
		return model.BehaviorSettings{}, false, err
	}
	if s.DeletesToHost, err = model.DecodeDeletesToHostBehavior(dth); err != nil {
		return model.BehaviorSettings{}, false, err
	}
	return s, true, nil
}

// PutBehaviors stores s, replacing any previous settings for the table.
func PutBehaviors(ctx context.Context, q Querier, s model.BehaviorSettings) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO COOP_BEHAVIORS
		(TABLE_NAME, UPDATES_FROM_HOST, DELETES_FROM_HOST, UPDATES_TO_HOST, DELETES_TO_HOST)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (TABLE_NAME) DO UPDATE SET
			UPDATES_FROM_HOST = excluded.UPDATES_FROM_HOST,
			DELETES_FROM_HOST = excluded.DELETES_FROM_HOST,
			UPDATES_TO_HOST = excluded.UPDATES_TO_HOST,
			DELETES_TO_HOST = excluded.DELETES_TO_HOST
	`, s.Table, int(s.UpdatesFromHost), int(s.DeletesFromHost), int(s.UpdatesToHost), int(s.DeletesToHost))
	if err != nil {
		return fmt.Errorf("put behaviors %s: %w", s.Table, err)
	}
	return nil
}

// InsertDefaultBehaviors gives table the default settings unless it already
// has some. Uses ON CONFLICT DO NOTHING so re-provisioning keeps local changes.
func InsertDefaultBehaviors(ctx context.Context, q Querier, table string) error {
	s := model.DefaultBehaviorSettings(table)
	_, err := q.ExecContext(ctx, `
		INSERT INTO COOP_BEHAVIORS
		(TABLE_NAME, UPDATES_FROM_HOST, DELETES_FROM_HOST, UPDATES_TO_HOST, DELETES_TO_HOST)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (TABLE_NAME) DO NOTHING
	`, s.Table, int(s.UpdatesFromHost), int(s.DeletesFromHost), int(s.UpdatesToHost), int(s.DeletesToHost))
	if err != nil {
		return fmt.Errorf("insert default behaviors %s: %w", table, err)
	}
	return nil
}
