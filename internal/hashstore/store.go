package hashstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Querier is the subset of *sql.DB and *sql.Tx used by the store.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeFormat is used for UPDATED_AT so values sort lexically.
const timeFormat = time.RFC3339Nano

// Store reads and writes metadata tables.
type Store struct {
	now func() time.Time
}

// New returns a Store stamping writes with now. A nil now uses time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeFormat)
}

// Ensure creates the metadata table for table if it does not exist.
func (s *Store) Ensure(ctx context.Context, q Querier, table string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ROW_ID INTEGER NOT NULL,
	HASH INTEGER NOT NULL,
	PARTICIPANT_ID TEXT NOT NULL DEFAULT '',
	IS_DELETED INTEGER NOT NULL DEFAULT 0,
	UPDATED_AT TEXT NOT NULL,
	PRIMARY KEY (ROW_ID, PARTICIPANT_ID)
)`, quoteIdent(MetadataTableName(table)))
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure metadata table for %s: %w", table, err)
	}
	return nil
}

// Exists reports whether the metadata table for table has been created.
func (s *Store) Exists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`,
		MetadataTableName(table),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check metadata table for %s: %w", table, err)
	}
	return n > 0, nil
}

// RecordInsert records the hash of a newly inserted row.
func (s *Store) RecordInsert(ctx context.Context, q Querier, table string, rowID int64, hash uint64, participantID string) error {
	return s.upsert(ctx, q, table, rowID, hash, participantID, false)
}

// RecordUpdate records the new hash of an updated row. A tombstoned entry is
// revived.
func (s *Store) RecordUpdate(ctx context.Context, q Querier, table string, rowID int64, hash uint64, participantID string) error {
	return s.upsert(ctx, q, table, rowID, hash, participantID, false)
}

// MarkDeleted replaces the entry with the deletion marker and sets IS_DELETED.
func (s *Store) MarkDeleted(ctx context.Context, q Querier, table string, rowID int64, participantID string) error {
	return s.upsert(ctx, q, table, rowID, TombstoneHash(rowID), participantID, true)
}

func (s *Store) upsert(ctx context.Context, q Querier, table string, rowID int64, hash uint64, participantID string, deleted bool) error {
	if err := s.Ensure(ctx, q, table); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (ROW_ID, HASH, PARTICIPANT_ID, IS_DELETED, UPDATED_AT)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ROW_ID, PARTICIPANT_ID) DO UPDATE SET
			HASH = excluded.HASH,
			IS_DELETED = excluded.IS_DELETED,
			UPDATED_AT = excluded.UPDATED_AT
	`, quoteIdent(MetadataTableName(table)))

	if _, err := q.ExecContext(ctx, query, rowID, int64(hash), participantID, boolInt(deleted), s.stamp()); err != nil {
		return fmt.Errorf("write metadata %s/%d: %w", table, rowID, err)
	}
	return nil
}

// RecordDelete physically removes the entry for (rowID, participantID).
func (s *Store) RecordDelete(ctx context.Context, q Querier, table string, rowID int64, participantID string) error {
	ok, err := s.Exists(ctx, q, table)
	if err != nil || !ok {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE ROW_ID = ? AND PARTICIPANT_ID = ?`,
		quoteIdent(MetadataTableName(table)))
	if _, err := q.ExecContext(ctx, query, rowID, participantID); err != nil {
		return fmt.Errorf("delete metadata %s/%d: %w", table, rowID, err)
	}
	return nil
}

// RemoveAll removes every entry for rowID, including participant references.
func (s *Store) RemoveAll(ctx context.Context, q Querier, table string, rowID int64) error {
	ok, err := s.Exists(ctx, q, table)
	if err != nil || !ok {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE ROW_ID = ?`, quoteIdent(MetadataTableName(table)))
	if _, err := q.ExecContext(ctx, query, rowID); err != nil {
		return fmt.Errorf("delete metadata %s/%d: %w", table, rowID, err)
	}
	return nil
}

// Get returns the entry for (rowID, participantID). The bool is false when no
// entry exists.
func (s *Store) Get(ctx context.Context, q Querier, table string, rowID int64, participantID string) (model.RowMetadata, bool, error) {
	ok, err := s.Exists(ctx, q, table)
	if err != nil || !ok {
		return model.RowMetadata{}, false, err
	}

	query := fmt.Sprintf(`
		SELECT ROW_ID, HASH, PARTICIPANT_ID, IS_DELETED
		FROM %s
		WHERE ROW_ID = ? AND PARTICIPANT_ID = ?
	`, quoteIdent(MetadataTableName(table)))

	md, err := scanMetadata(table, q.QueryRowContext(ctx, query, rowID, participantID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.RowMetadata{}, false, nil
	}
	if err != nil {
		return model.RowMetadata{}, false, fmt.Errorf("read metadata %s/%d: %w", table, rowID, err)
	}
	return md, true, nil
}

// List returns every entry for table ordered by row id then participant id.
func (s *Store) List(ctx context.Context, q Querier, table string) ([]model.RowMetadata, error) {
	ok, err := s.Exists(ctx, q, table)
	if err != nil || !ok {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT ROW_ID, HASH, PARTICIPANT_ID, IS_DELETED
		FROM %s
		ORDER BY ROW_ID ASC, PARTICIPANT_ID ASC
	`, quoteIdent(MetadataTableName(table)))

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list metadata %s: %w", table, err)
	}
	defer rows.Close()

	var out []model.RowMetadata
	for rows.Next() {
		md, err := scanMetadata(table, rows)
		if err != nil {
			return nil, fmt.Errorf("scan metadata %s: %w", table, err)
		}
		out = append(out, md)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata %s: %w", table, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(table string, sc scanner) (model.RowMetadata, error) {
	var (
		md      model.RowMetadata
		hash    int64
		deleted int
	)
	if err := sc.Scan(&md.RowID, &hash, &md.ParticipantID, &deleted); err != nil {
		return model.RowMetadata{}, err
	}
	md.Table = table
	md.Hash = uint64(hash)
	md.IsDeleted = deleted != 0
	return md, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
