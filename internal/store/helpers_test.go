package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestCatalog opens a catalog in a temporary directory.
func createTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// createTestHostDB creates a host database with an EMPLOYEE table.
func createTestHostDB(t *testing.T, c *Catalog) *DB {
	t.Helper()
	ctx := context.Background()
	d, err := c.Create(ctx, DatabaseInfo{ID: "db-1", Name: "hr", Kind: KindHost})
	require.NoError(t, err)
	require.NoError(t, CreateTable(ctx, d, employeeSchema()))
	return d
}

func employeeSchema() model.TableSchema {
	return model.TableSchema{
		Name: "EMPLOYEE",
		Columns: []model.ColumnSchema{
			{Name: "Id", Type: "INTEGER", Ordinal: 0, PrimaryKey: true},
			{Name: "Name", Type: "TEXT", Ordinal: 1, NotNull: true},
			{Name: "Salary", Type: "REAL", Ordinal: 2},
		},
	}
}

func employee(id int64, name string) []model.ColumnValue {
	return []model.ColumnValue{
		{Column: "Id", Value: model.Int(id)},
		{Column: "Name", Value: model.Text(name)},
		{Column: "Salary", Value: model.Real(1000)},
	}
}
