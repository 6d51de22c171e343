// Package stmt extracts row mutations from INSERT, UPDATE and DELETE
// statements.
//
// Only the shapes the cooperation protocol forwards are accepted: a single
// row of literal values, literal assignments, and a WHERE clause made of
// column = literal terms joined by AND.
package stmt

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/rqlite/sql"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// Parse parses a single INSERT, UPDATE or DELETE statement into a Mutation.
// Any other statement, or any expression that is not a literal, fails with
// a PARSE_ERROR.
func Parse(query string) (model.Mutation, error) {
	s, err := sql.NewParser(strings.NewReader(query)).ParseStatement()
	if err != nil {
		return model.Mutation{}, model.NewParseError("invalid statement", err)
	}

	switch s := s.(type) {
	case *sql.InsertStatement:
		return parseInsert(s)
	case *sql.UpdateStatement:
		return parseUpdate(s)
	case *sql.DeleteStatement:
		return parseDelete(s)
	default:
		return model.Mutation{}, model.NewParseError(fmt.Sprintf("unsupported statement %T", s), nil)
	}
}

func parseInsert(s *sql.InsertStatement) (model.Mutation, error) {
	switch {
	case s.WithClause != nil:
		return model.Mutation{}, model.NewParseError("WITH clause not supported", nil)
	case s.Select != nil || s.DefaultValues.IsValid():
		return model.Mutation{}, model.NewParseError("INSERT needs a VALUES list", nil)
	case s.UpsertClause != nil || s.InsertOr.IsValid() || s.Replace.IsValid():
		return model.Mutation{}, model.NewParseError("conflict clauses not supported", nil)
	case s.Table == nil || s.Table.Name == "":
		return model.Mutation{}, model.NewParseError("missing table name", nil)
	case len(s.Columns) == 0:
		return model.Mutation{}, model.NewParseError("INSERT needs a column list", nil)
	case len(s.ValueLists) != 1:
		return model.Mutation{}, model.NewParseError("INSERT must have exactly one row of values", nil)
	}
	exprs := s.ValueLists[0].Exprs
	if len(exprs) != len(s.Columns) {
		return model.Mutation{}, model.NewParseError(
			fmt.Sprintf("%d columns but %d values", len(s.Columns), len(exprs)), nil)
	}

	m := model.Mutation{Action: model.ActionInsert, Table: s.Table.Name}
	for i, col := range s.Columns {
		v, err := literal(exprs[i])
		if err != nil {
			return model.Mutation{}, err
		}
		m.Values = append(m.Values, model.ColumnValue{Column: col.Name, Value: v})
	}
	return m, nil
}

func parseUpdate(s *sql.UpdateStatement) (model.Mutation, error) {
	if s.WithClause != nil {
		return model.Mutation{}, model.NewParseError("WITH clause not supported", nil)
	}
	table, err := tableName(s.Table)
	if err != nil {
		return model.Mutation{}, err
	}

	m := model.Mutation{Action: model.ActionUpdate, Table: table}
	for _, a := range s.Assignments {
		if len(a.Columns) != 1 {
			return model.Mutation{}, model.NewParseError("multi-column assignment not supported", nil)
		}
		v, err := literal(a.Expr)
		if err != nil {
			return model.Mutation{}, err
		}
		m.Values = append(m.Values, model.ColumnValue{Column: a.Columns[0].Name, Value: v})
	}
	if len(m.Values) == 0 {
		return model.Mutation{}, model.NewParseError("UPDATE without assignments", nil)
	}

	m.Where, err = predicates(s.WhereExpr)
	if err != nil {
		return model.Mutation{}, err
	}
	return m, nil
}

func parseDelete(s *sql.DeleteStatement) (model.Mutation, error) {
	if s.WithClause != nil {
		return model.Mutation{}, model.NewParseError("WITH clause not supported", nil)
	}
	if s.LimitExpr != nil || len(s.OrderingTerms) > 0 {
		return model.Mutation{}, model.NewParseError("ORDER BY and LIMIT not supported", nil)
	}
	table, err := tableName(s.Table)
	if err != nil {
		return model.Mutation{}, err
	}

	where, err := predicates(s.WhereExpr)
	if err != nil {
		return model.Mutation{}, err
	}
	return model.Mutation{Action: model.ActionDelete, Table: table, Where: where}, nil
}

func tableName(t *sql.QualifiedTableName) (string, error) {
	if t == nil || t.Name == nil || t.Name.Name == "" {
		return "", model.NewParseError("missing table name", nil)
	}
	return t.Name.Name, nil
}

// predicates flattens an AND chain of equality terms. A nil expression
// yields no predicates.
func predicates(e sql.Expr) ([]model.Predicate, error) {
	switch e := e.(type) {
	case nil:
		return nil, nil
	case *sql.ParenExpr:
		return predicates(e.X)
	case *sql.BinaryExpr:
		switch e.Op {
		case sql.AND:
			left, err := predicates(e.X)
			if err != nil {
				return nil, err
			}
			right, err := predicates(e.Y)
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		case sql.EQ:
			p, err := equality(e.X, e.Y)
			if err != nil {
				return nil, err
			}
			return []model.Predicate{p}, nil
		}
		return nil, model.NewParseError(fmt.Sprintf("unsupported operator %s", e.Op), nil)
	default:
		return nil, model.NewParseError(fmt.Sprintf("unsupported condition %s", e), nil)
	}
}

func equality(x, y sql.Expr) (model.Predicate, error) {
	if id, ok := x.(*sql.Ident); ok {
		v, err := literal(y)
		if err != nil {
			return model.Predicate{}, err
		}
		return model.Predicate{Column: id.Name, Value: v}, nil
	}
	if id, ok := y.(*sql.Ident); ok {
		v, err := literal(x)
		if err != nil {
			return model.Predicate{}, err
		}
		return model.Predicate{Column: id.Name, Value: v}, nil
	}
	return model.Predicate{}, model.NewParseError("equality must compare a column with a literal", nil)
}

func literal(e sql.Expr) (model.Value, error) {
	switch e := e.(type) {
	case *sql.ParenExpr:
		return literal(e.X)
	case *sql.StringLit:
		return model.Text(e.Value), nil
	case *sql.NumberLit:
		return number(e.Value, false)
	case *sql.NullLit:
		return model.Null(), nil
	case *sql.BoolLit:
		if e.Value {
			return model.Int(1), nil
		}
		return model.Int(0), nil
	case *sql.BlobLit:
		b, err := hex.DecodeString(e.Value)
		if err != nil {
			return model.Value{}, model.NewParseError("invalid blob literal", err)
		}
		return model.Blob(b), nil
	case *sql.UnaryExpr:
		n, ok := e.X.(*sql.NumberLit)
		if !ok {
			break
		}
		switch e.Op {
		case sql.MINUS:
			return number(n.Value, true)
		case sql.PLUS:
			return number(n.Value, false)
		}
	}
	return model.Value{}, model.NewParseError(fmt.Sprintf("expected a literal, got %s", e), nil)
}

func number(s string, negate bool) (model.Value, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return model.Value{}, model.NewParseError("invalid hex literal", err)
		}
		if negate {
			n = -n
		}
		return model.Int(n), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if negate {
			n = -n
		}
		return model.Int(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Value{}, model.NewParseError("invalid numeric literal", err)
	}
	if negate {
		f = -f
	}
	return model.Real(f), nil
}
