package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

// File names inside a catalog directory.
const (
	SystemFile       = "coop.db"
	HostExtension    = ".db"
	PartialExtension = ".dbpart"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DatabaseInfo is the identity row stored inside each host or partial database.
type DatabaseInfo struct {
	ID     string
	Name   string
	Kind   Kind
	HostID string
}

// Catalog owns the database files of one node: the system database and every
// host and partial database under a single directory. Opened databases are
// cached so each file has one *DB and therefore one writer.
type Catalog struct {
	dir    string
	system *DB

	mu  sync.Mutex
	dbs map[string]*DB
}

// OpenCatalog opens (creating if needed) the catalog rooted at dir.
func OpenCatalog(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	system, err := Open(filepath.Join(dir, SystemFile), "", KindSystem)
	if err != nil {
		return nil, fmt.Errorf("open system database: %w", err)
	}
	return &Catalog{dir: dir, system: system, dbs: make(map[string]*DB)}, nil
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string { return c.dir }

// System returns the node-wide system database.
func (c *Catalog) System() *DB { return c.system }

func fileFor(dir, name string, kind Kind) string {
	ext := HostExtension
	if kind == KindPartial {
		ext = PartialExtension
	}
	return filepath.Join(dir, name+ext)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// kindOnDisk reports which kind of file exists for name, or 0.
func (c *Catalog) kindOnDisk(name string) Kind {
	switch {
	case exists(fileFor(c.dir, name, KindHost)):
		return KindHost
	case exists(fileFor(c.dir, name, KindPartial)):
		return KindPartial
	default:
		return 0
	}
}

// Create creates the database described by info, or opens it if it already
// exists with the same kind. A name already used by the other kind fails
// with NAME_COLLISION.
func (c *Catalog) Create(ctx context.Context, info DatabaseInfo) (*DB, error) {
	if !validName.MatchString(info.Name) {
		return nil, model.NewParseError(fmt.Sprintf("invalid database name %q", info.Name), nil)
	}
	if info.Kind != KindHost && info.Kind != KindPartial {
		return nil, fmt.Errorf("create database %s: invalid kind %s", info.Name, info.Kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if k := c.kindOnDisk(info.Name); k != 0 && k != info.Kind {
		return nil, &model.Error{
			Code:     model.ErrCodeNameCollision,
			Message:  fmt.Sprintf("a %s database with this name exists", k),
			Database: info.Name,
		}
	}

	db, err := c.openLocked(info.Name, info.Kind)
	if err != nil {
		return nil, err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO COOP_DATABASE_INFO (SINGLETON, DATABASE_ID, DATABASE_NAME, KIND, HOST_ID)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (SINGLETON) DO NOTHING
	`, info.ID, info.Name, int(info.Kind), info.HostID)
	if err != nil {
		return nil, fmt.Errorf("write database info: %w", err)
	}
	return db, nil
}

// Get returns the named host or partial database. Fails with DB_NOT_FOUND
// when no file exists.
func (c *Catalog) Get(name string) (*DB, error) {
	if !validName.MatchString(name) {
		return nil, model.NewDbNotFoundError(name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.dbs[strings.ToLower(name)]; ok {
		return db, nil
	}
	kind := c.kindOnDisk(name)
	if kind == 0 {
		return nil, model.NewDbNotFoundError(name)
	}
	return c.openLocked(name, kind)
}

func (c *Catalog) openLocked(name string, kind Kind) (*DB, error) {
	key := strings.ToLower(name)
	if db, ok := c.dbs[key]; ok {
		return db, nil
	}
	db, err := Open(fileFor(c.dir, name, kind), name, kind)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", name, err)
	}
	c.dbs[key] = db
	return db, nil
}

// List returns the names of all host and partial databases, sorted.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list data dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == SystemFile {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == HostExtension || ext == PartialExtension {
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every open database.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, db := range c.dbs {
		errs = append(errs, db.Close())
		delete(c.dbs, key)
	}
	errs = append(errs, c.system.Close())
	return errors.Join(errs...)
}

// GetDatabaseInfo reads the identity row of a host or partial database.
func GetDatabaseInfo(ctx context.Context, q Querier) (DatabaseInfo, error) {
	var (
		info DatabaseInfo
		kind int
	)
	err := q.QueryRowContext(ctx, `
		SELECT DATABASE_ID, DATABASE_NAME, KIND, HOST_ID FROM COOP_DATABASE_INFO WHERE SINGLETON = 1
	`).Scan(&info.ID, &info.Name, &kind, &info.HostID)
	if errors.Is(err, sql.ErrNoRows) {
		return DatabaseInfo{}, fmt.Errorf("read database info: missing identity row")
	}
	if err != nil {
		return DatabaseInfo{}, fmt.Errorf("read database info: %w", err)
	}
	info.Kind = Kind(kind)
	return info, nil
}
