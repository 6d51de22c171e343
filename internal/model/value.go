package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind is the SQLite storage class of a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

var valueKindTable = enumTable{
	enum:  "ValueKind",
	names: []string{"Null", "Integer", "Real", "Text", "Blob"},
}

func (k ValueKind) String() string { return valueKindTable.name(uint8(k)) }

func (k *ValueKind) UnmarshalJSON(data []byte) error {
	v, err := decodeJSONCode(valueKindTable.enum, data, func(code uint8) (ValueKind, error) {
		if err := valueKindTable.check(code); err != nil {
			return KindNull, err
		}
		return ValueKind(code), nil
	})
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Value is a single column value. Only the field matching Kind is meaningful.
type Value struct {
	Kind ValueKind `json:"k"`
	Int  int64     `json:"i,omitempty"`
	Real float64   `json:"r,omitempty"`
	Text string    `json:"t,omitempty"`
	Blob []byte    `json:"b,omitempty"`
}

// Null returns the NULL value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an INTEGER value.
func Int(n int64) Value { return Value{Kind: KindInteger, Int: n} }

// Real returns a REAL value.
func Real(f float64) Value { return Value{Kind: KindReal, Real: f} }

// Text returns a TEXT value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Blob returns a BLOB value.
func Blob(b []byte) Value { return Value{Kind: KindBlob, Blob: b} }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Arg returns v as a database/sql argument.
func (v Value) Arg() any {
	switch v.Kind {
	case KindInteger:
		return v.Int
	case KindReal:
		return v.Real
	case KindText:
		return v.Text
	case KindBlob:
		return v.Blob
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInteger:
		return v.Int == o.Int
	case KindReal:
		return v.Real == o.Real
	case KindText:
		return v.Text == o.Text
	case KindBlob:
		return bytes.Equal(v.Blob, o.Blob)
	default:
		return true
	}
}

// String renders v as a SQL literal.
func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindText:
		return "'" + strings.ReplaceAll(v.Text, "'", "''") + "'"
	case KindBlob:
		return "X'" + strings.ToUpper(hex.EncodeToString(v.Blob)) + "'"
	default:
		return "NULL"
	}
}

// sqliteTimeFormat matches the first timestamp layout of the sqlite3 driver.
const sqliteTimeFormat = "2006-01-02 15:04:05.999999999-07:00"

// FromDriver converts a value scanned from the sqlite3 driver.
func FromDriver(src any) (Value, error) {
	switch val := src.(type) {
	case nil:
		return Null(), nil
	case int64:
		return Int(val), nil
	case int:
		return Int(int64(val)), nil
	case float64:
		return Real(val), nil
	case string:
		return Text(val), nil
	case []byte:
		b := make([]byte, len(val))
		copy(b, val)
		return Blob(b), nil
	case bool:
		if val {
			return Int(1), nil
		}
		return Int(0), nil
	case time.Time:
		return Text(val.Format(sqliteTimeFormat)), nil
	default:
		return Value{}, fmt.Errorf("unsupported column value type %T", src)
	}
}

// ColumnValue binds a value to a column name.
type ColumnValue struct {
	Column string `json:"column"`
	Value  Value  `json:"value"`
}

// Row is a data row read back from a table, in declared column order.
type Row struct {
	RowID   int64    `json:"row_id"`
	Columns []string `json:"columns"`
	Values  []Value  `json:"values"`
}

// Get returns the value of column (case-insensitive).
func (r Row) Get(column string) (Value, bool) {
	for i, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// ColumnValues returns the row as column/value pairs.
func (r Row) ColumnValues() []ColumnValue {
	out := make([]ColumnValue, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = ColumnValue{Column: c, Value: r.Values[i]}
	}
	return out
}

// MarshalColumnValues encodes pairs as JSON for persistence.
func MarshalColumnValues(values []ColumnValue) (string, error) {
	if values == nil {
		values = []ColumnValue{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal column values: %w", err)
	}
	return string(b), nil
}
