package behavior

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dynamoRando/rcd-sub004/internal/hashstore"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// DeleteMode selects what happens to metadata when a row is deleted.
type DeleteMode uint8

const (
	// DropMetadata removes the deleting party's own entry.
	DropMetadata DeleteMode = iota

	// TombstoneMetadata replaces the own entry with the deletion marker.
	TombstoneMetadata

	// PurgeMetadata removes every entry for the row, participant references included.
	PurgeMetadata
)

// Writer changes data rows and keeps their own metadata entry in step.
// Every method takes the caller's transaction.
type Writer struct {
	hashes *hashstore.Store
}

// NewWriter returns a Writer recording hashes in h.
func NewWriter(h *hashstore.Store) *Writer {
	return &Writer{hashes: h}
}

// Hashes returns the metadata store.
func (w *Writer) Hashes() *hashstore.Store { return w.hashes }

func (w *Writer) rowHash(ctx context.Context, q store.Querier, table string, rowID int64) (uint64, error) {
	row, ok, err := store.ReadRow(ctx, q, table, rowID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("row %s/%d vanished after write", table, rowID)
	}
	return hashstore.HashRow(row), nil
}

// Insert adds a row. A non-zero rowID pins the row id; when that row already
// exists it is overwritten instead.
func (w *Writer) Insert(ctx context.Context, q store.Querier, table string, rowID int64, values []model.ColumnValue, track bool) (model.RowOutcome, error) {
	if rowID != 0 {
		_, exists, err := store.ReadRow(ctx, q, table, rowID)
		if err != nil {
			return model.RowOutcome{}, err
		}
		if exists {
			out, _, err := w.Update(ctx, q, table, rowID, values, track)
			return out, err
		}
	}

	id, err := store.InsertRow(ctx, q, table, rowID, values)
	if err != nil {
		return model.RowOutcome{}, err
	}
	hash, err := w.rowHash(ctx, q, table, id)
	if err != nil {
		return model.RowOutcome{}, err
	}
	if track {
		if err := w.hashes.RecordInsert(ctx, q, table, id, hash, ""); err != nil {
			return model.RowOutcome{}, err
		}
	}
	return model.RowOutcome{RowID: id, Hash: hash}, nil
}

// Update overwrites columns of an existing row. The bool is false when the
// row does not exist.
func (w *Writer) Update(ctx context.Context, q store.Querier, table string, rowID int64, values []model.ColumnValue, track bool) (model.RowOutcome, bool, error) {
	ok, err := store.UpdateRow(ctx, q, table, rowID, values)
	if err != nil || !ok {
		return model.RowOutcome{RowID: rowID}, false, err
	}
	hash, err := w.rowHash(ctx, q, table, rowID)
	if err != nil {
		return model.RowOutcome{}, false, err
	}
	if track {
		if err := w.hashes.RecordUpdate(ctx, q, table, rowID, hash, ""); err != nil {
			return model.RowOutcome{}, false, err
		}
	}
	return model.RowOutcome{RowID: rowID, Hash: hash}, true, nil
}

// Delete removes a row and adjusts its metadata per mode. The bool is false
// when the row does not exist.
func (w *Writer) Delete(ctx context.Context, q store.Querier, table string, rowID int64, mode DeleteMode, track bool) (model.RowOutcome, bool, error) {
	ok, err := store.DeleteRow(ctx, q, table, rowID)
	if err != nil || !ok {
		return model.RowOutcome{RowID: rowID}, false, err
	}
	if track {
		switch mode {
		case TombstoneMetadata:
			err = w.hashes.MarkDeleted(ctx, q, table, rowID, "")
		case PurgeMetadata:
			err = w.hashes.RemoveAll(ctx, q, table, rowID)
		default:
			err = w.hashes.RecordDelete(ctx, q, table, rowID, "")
		}
		if err != nil {
			return model.RowOutcome{}, false, err
		}
	}
	return model.RowOutcome{RowID: rowID, Deleted: true}, true, nil
}

// Targets returns the existing rows a mutation addresses: RowID when set,
// otherwise every row matching Where.
func Targets(ctx context.Context, q store.Querier, m model.Mutation) ([]int64, error) {
	if m.RowID != 0 {
		_, ok, err := store.ReadRow(ctx, q, m.Table, m.RowID)
		if err != nil || !ok {
			return nil, err
		}
		return []int64{m.RowID}, nil
	}
	return store.FindRowIDs(ctx, q, m.Table, m.Where)
}

// LocalOptions controls Apply.
type LocalOptions struct {
	// Track keeps the own metadata entry of each row in step.
	Track bool

	// Delete selects metadata handling for deleted rows.
	Delete DeleteMode
}

// Apply runs a locally issued mutation in a single transaction and returns
// the rows it changed.
func (w *Writer) Apply(ctx context.Context, db *store.DB, m model.Mutation, opts LocalOptions) ([]model.RowOutcome, error) {
	var out []model.RowOutcome
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = w.ApplyTx(ctx, tx, m, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTx is Apply inside the caller's transaction.
func (w *Writer) ApplyTx(ctx context.Context, q store.Querier, m model.Mutation, opts LocalOptions) ([]model.RowOutcome, error) {
	switch m.Action {
	case model.ActionInsert:
		o, err := w.Insert(ctx, q, m.Table, m.RowID, m.Values, opts.Track)
		if err != nil {
			return nil, err
		}
		return []model.RowOutcome{o}, nil

	case model.ActionUpdate, model.ActionDelete:
		ids, err := Targets(ctx, q, m)
		if err != nil {
			return nil, err
		}
		out := make([]model.RowOutcome, 0, len(ids))
		for _, id := range ids {
			var (
				o  model.RowOutcome
				ok bool
			)
			if m.Action == model.ActionUpdate {
				o, ok, err = w.Update(ctx, q, m.Table, id, m.Values, opts.Track)
			} else {
				o, ok, err = w.Delete(ctx, q, m.Table, id, opts.Delete, opts.Track)
			}
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, o)
			}
		}
		return out, nil

	default:
		return nil, model.NewParseError(fmt.Sprintf("unsupported action %s", m.Action), nil)
	}
}
