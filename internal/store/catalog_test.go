package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

func TestCatalog_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	c := createTestCatalog(t)

	host, err := c.Create(ctx, DatabaseInfo{ID: "db-1", Name: "hr", Kind: KindHost})
	require.NoError(t, err)
	part, err := c.Create(ctx, DatabaseInfo{ID: "db-2", Name: "sales", Kind: KindPartial, HostID: "host-1"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(c.Dir(), "hr.db"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(c.Dir(), "sales.dbpart"))
	assert.NoError(t, err)

	got, err := c.Get("HR")
	require.NoError(t, err)
	assert.Same(t, host, got, "one *DB per file")

	info, err := GetDatabaseInfo(ctx, part)
	require.NoError(t, err)
	assert.Equal(t, DatabaseInfo{ID: "db-2", Name: "sales", Kind: KindPartial, HostID: "host-1"}, info)

	names, err := c.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"hr", "sales"}, names)
}

func TestCatalog_CreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := createTestCatalog(t)

	_, err := c.Create(ctx, DatabaseInfo{ID: "db-1", Name: "hr", Kind: KindHost})
	require.NoError(t, err)
	d, err := c.Create(ctx, DatabaseInfo{ID: "db-other", Name: "hr", Kind: KindHost})
	require.NoError(t, err)

	info, err := GetDatabaseInfo(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "db-1", info.ID, "identity is fixed at first creation")
}

func TestCatalog_KindCollision(t *testing.T) {
	ctx := context.Background()
	c := createTestCatalog(t)

	_, err := c.Create(ctx, DatabaseInfo{ID: "db-1", Name: "hr", Kind: KindHost})
	require.NoError(t, err)
	_, err = c.Create(ctx, DatabaseInfo{ID: "db-2", Name: "hr", Kind: KindPartial})
	assert.True(t, model.IsCode(err, model.ErrCodeNameCollision), "got %v", err)
}

func TestCatalog_NotFound(t *testing.T) {
	c := createTestCatalog(t)

	_, err := c.Get("missing")
	assert.True(t, model.IsCode(err, model.ErrCodeDbNotFound))

	_, err = c.Get("../etc/passwd")
	assert.True(t, model.IsCode(err, model.ErrCodeDbNotFound))
}

func TestCatalog_InvalidName(t *testing.T) {
	c := createTestCatalog(t)
	_, err := c.Create(context.Background(), DatabaseInfo{ID: "x", Name: "../x", Kind: KindHost})
	assert.True(t, model.IsCode(err, model.ErrCodeParseError))
}

func TestCatalog_ReopensFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c1, err := OpenCatalog(dir)
	require.NoError(t, err)
	_, err = c1.Create(ctx, DatabaseInfo{ID: "db-1", Name: "hr", Kind: KindHost})
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := OpenCatalog(dir)
	require.NoError(t, err)
	defer c2.Close()

	d, err := c2.Get("hr")
	require.NoError(t, err)
	assert.Equal(t, KindHost, d.Kind())
}
