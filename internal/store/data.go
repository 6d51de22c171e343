package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/hashstore"
	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var validType = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ]*(\(\s*[0-9]+\s*(,\s*[0-9]+\s*)?\))?$`)

// TableNames returns the user tables of a database, sorted. System,
// metadata and history tables are excluded.
func TableNames(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if hashstore.IsReservedName(name) {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

// canonicalTable returns the stored spelling of table, or TABLE_NOT_FOUND.
func canonicalTable(ctx context.Context, q Querier, table string) (string, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, table,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && hashstore.IsReservedName(name)) {
		return "", model.NewTableNotFoundError("", table)
	}
	if err != nil {
		return "", fmt.Errorf("lookup table %s: %w", table, err)
	}
	return name, nil
}

// TableSchema returns the columns of table in declared order.
func TableSchema(ctx context.Context, q Querier, table string) (model.TableSchema, error) {
	name, err := canonicalTable(ctx, q, table)
	if err != nil {
		return model.TableSchema{}, err
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(name)))
	if err != nil {
		return model.TableSchema{}, fmt.Errorf("table info %s: %w", name, err)
	}
	defer rows.Close()

	schema := model.TableSchema{Name: name}
	for rows.Next() {
		var (
			col     model.ColumnSchema
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&col.Ordinal, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return model.TableSchema{}, fmt.Errorf("scan table info %s: %w", name, err)
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk > 0
		schema.Columns = append(schema.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return model.TableSchema{}, fmt.Errorf("iterate table info %s: %w", name, err)
	}
	return schema, nil
}

// TableDDL renders the CREATE TABLE statement for t. Column types are
// checked against a conservative pattern since schemas arrive from remote
// parties.
func TableDDL(t model.TableSchema) (string, error) {
	if t.Name == "" || len(t.Columns) == 0 {
		return "", model.NewParseError(fmt.Sprintf("table %q has no columns", t.Name), nil)
	}
	if hashstore.IsReservedName(t.Name) {
		return "", &model.Error{
			Code:    model.ErrCodeNameCollision,
			Message: "table name is reserved",
			Table:   t.Name,
		}
	}

	cols := append([]model.ColumnSchema(nil), t.Columns...)
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })

	var pks []string
	for _, c := range cols {
		if c.PrimaryKey {
			pks = append(pks, QuoteIdent(c.Name))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdent(t.Name))
	for i, c := range cols {
		if c.Name == "" {
			return "", model.NewParseError(fmt.Sprintf("table %s has an unnamed column", t.Name), nil)
		}
		if c.Type != "" && !validType.MatchString(c.Type) {
			return "", model.NewParseError(fmt.Sprintf("column %s.%s has invalid type %q", t.Name, c.Name, c.Type), nil)
		}
		b.WriteString("    ")
		b.WriteString(QuoteIdent(c.Name))
		if c.Type != "" {
			b.WriteString(" " + c.Type)
		}
		if c.PrimaryKey && len(pks) == 1 {
			b.WriteString(" PRIMARY KEY")
		}
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if i < len(cols)-1 || len(pks) > 1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if len(pks) > 1 {
		fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n", strings.Join(pks, ", "))
	}
	b.WriteString(")")
	return b.String(), nil
}

// CreateTable creates t if it does not exist.
func CreateTable(ctx context.Context, q Querier, t model.TableSchema) error {
	ddl, err := TableDDL(t)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// rowIDAlias returns the INTEGER PRIMARY KEY column aliasing rowid, if any.
func rowIDAlias(s model.TableSchema) string {
	var alias string
	for _, c := range s.Columns {
		if !c.PrimaryKey {
			continue
		}
		if alias != "" {
			return ""
		}
		if !strings.EqualFold(strings.TrimSpace(c.Type), "INTEGER") {
			return ""
		}
		alias = c.Name
	}
	return alias
}

// InsertRow inserts values into table and returns the new row id. A non-zero
// rowID pins the row id so both parties address the row the same way.
func InsertRow(ctx context.Context, q Querier, table string, rowID int64, values []model.ColumnValue) (int64, error) {
	schema, err := TableSchema(ctx, q, table)
	if err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(values)+1)
	args := make([]any, 0, len(values)+1)
	pinned := false
	alias := rowIDAlias(schema)
	for _, cv := range values {
		if alias != "" && strings.EqualFold(cv.Column, alias) {
			pinned = true
		}
		cols = append(cols, QuoteIdent(cv.Column))
		args = append(args, cv.Value.Arg())
	}
	if rowID != 0 && !pinned {
		col := "rowid"
		if alias != "" {
			col = QuoteIdent(alias)
		}
		cols = append(cols, col)
		args = append(args, rowID)
	}
	if len(cols) == 0 {
		return 0, model.NewParseError(fmt.Sprintf("insert into %s has no values", schema.Name), nil)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(schema.Name), strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", schema.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: last insert id: %w", schema.Name, err)
	}
	return id, nil
}

// UpdateRow sets values on the row with rowID. Reports whether the row existed.
func UpdateRow(ctx context.Context, q Querier, table string, rowID int64, values []model.ColumnValue) (bool, error) {
	name, err := canonicalTable(ctx, q, table)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, model.NewParseError(fmt.Sprintf("update of %s has no values", name), nil)
	}

	sets := make([]string, len(values))
	args := make([]any, 0, len(values)+1)
	for i, cv := range values {
		sets[i] = QuoteIdent(cv.Column) + " = ?"
		args = append(args, cv.Value.Arg())
	}
	args = append(args, rowID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE rowid = ?", QuoteIdent(name), strings.Join(sets, ", "))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update %s/%d: %w", name, rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s/%d: rows affected: %w", name, rowID, err)
	}
	return n > 0, nil
}

// DeleteRow removes the row with rowID. Reports whether the row existed.
func DeleteRow(ctx context.Context, q Querier, table string, rowID int64) (bool, error) {
	name, err := canonicalTable(ctx, q, table)
	if err != nil {
		return false, err
	}
	res, err := q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", QuoteIdent(name)), rowID)
	if err != nil {
		return false, fmt.Errorf("delete %s/%d: %w", name, rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%d: rows affected: %w", name, rowID, err)
	}
	return n > 0, nil
}

// ReadRow returns the row with rowID in declared column order.
func ReadRow(ctx context.Context, q Querier, table string, rowID int64) (model.Row, bool, error) {
	schema, err := TableSchema(ctx, q, table)
	if err != nil {
		return model.Row{}, false, err
	}

	cols := make([]string, len(schema.Columns))
	names := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = QuoteIdent(c.Name)
		names[i] = c.Name
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE rowid = ?", strings.Join(cols, ", "), QuoteIdent(schema.Name))
	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	err = q.QueryRowContext(ctx, query, rowID).Scan(ptrs...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Row{}, false, nil
	}
	if err != nil {
		return model.Row{}, false, fmt.Errorf("read %s/%d: %w", schema.Name, rowID, err)
	}

	row := model.Row{RowID: rowID, Columns: names, Values: make([]model.Value, len(raw))}
	for i, v := range raw {
		row.Values[i], err = model.FromDriver(v)
		if err != nil {
			return model.Row{}, false, fmt.Errorf("read %s/%d column %s: %w", schema.Name, rowID, names[i], err)
		}
	}
	return row, true, nil
}

// FindRowIDs returns the ids of rows matching every predicate, ascending.
// No predicates matches every row.
func FindRowIDs(ctx context.Context, q Querier, table string, where []model.Predicate) ([]int64, error) {
	name, err := canonicalTable(ctx, q, table)
	if err != nil {
		return nil, err
	}

	query := "SELECT rowid FROM " + QuoteIdent(name)
	args := make([]any, 0, len(where))
	if len(where) > 0 {
		conds := make([]string, len(where))
		for i, p := range where {
			op := " = ?"
			if p.Value.IsNull() {
				op = " IS NULL"
			} else {
				args = append(args, p.Value.Arg())
			}
			conds[i] = QuoteIdent(p.Column) + op
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rowid ASC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find rows in %s: %w", name, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows in %s: %w", name, err)
	}
	return ids, nil
}

// CountRows returns the number of rows in table.
func CountRows(ctx context.Context, q Querier, table string) (int, error) {
	name, err := canonicalTable(ctx, q, table)
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(name)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", name, err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// HistoryEntry is a prior version of a row saved before a host mutation
// overwrote or removed it.
type HistoryEntry struct {
	ID         int64
	RowID      int64
	Action     model.Action
	Values     []model.ColumnValue
	RecordedAt time.Time
}

func ensureHistory(ctx context.Context, q Querier, table string) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	HISTORY_ID INTEGER PRIMARY KEY AUTOINCREMENT,
	ROW_ID INTEGER NOT NULL,
	ACTION INTEGER NOT NULL,
	ROW_DATA TEXT NOT NULL,
	RECORDED_AT TEXT NOT NULL
)`, QuoteIdent(hashstore.HistoryTableName(table))))
	if err != nil {
		return fmt.Errorf("ensure history table for %s: %w", table, err)
	}
	return nil
}

// CopyToHistory saves the current version of a row before action is applied
// to it. Reports false when the row does not exist.
func CopyToHistory(ctx context.Context, q Querier, table string, rowID int64, action model.Action, at time.Time) (bool, error) {
	row, ok, err := ReadRow(ctx, q, table, rowID)
	if err != nil || !ok {
		return false, err
	}
	data, err := model.MarshalColumnValues(row.ColumnValues())
	if err != nil {
		return false, err
	}
	name, err := canonicalTable(ctx, q, table)
	if err != nil {
		return false, err
	}
	if err := ensureHistory(ctx, q, name); err != nil {
		return false, err
	}

	_, err = q.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (ROW_ID, ACTION, ROW_DATA, RECORDED_AT) VALUES (?, ?, ?, ?)
	`, QuoteIdent(hashstore.HistoryTableName(name))), rowID, int(action), data, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("write history %s/%d: %w", name, rowID, err)
	}
	return true, nil
}

// ListHistory returns the history of table, oldest first. A table that never
// had history returns nil.
func ListHistory(ctx context.Context, q Querier, table string) ([]HistoryEntry, error) {
	hist := hashstore.HistoryTableName(table)
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE`, hist,
	).Scan(&n); err != nil {
		return nil, fmt.Errorf("lookup history for %s: %w", table, err)
	}
	if n == 0 {
		return nil, nil
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT HISTORY_ID, ROW_ID, ACTION, ROW_DATA, RECORDED_AT FROM %s ORDER BY HISTORY_ID ASC
	`, QuoteIdent(hist)))
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", table, err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e        HistoryEntry
			action   uint8
			data, at string
		)
		if err := rows.Scan(&e.ID, &e.RowID, &action, &data, &at); err != nil {
			return nil, fmt.Errorf("scan history for %s: %w", table, err)
		}
		if e.Action, err = model.DecodeAction(action); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Values); err != nil {
			return nil, fmt.Errorf("decode history row data: %w", err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("decode history time: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history for %s: %w", table, err)
	}
	return out, nil
}
