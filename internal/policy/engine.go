package policy

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

const (
	defaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

// Engine reads and writes logical storage policies.
type Engine struct {
	cache *cache.Cache
	now   func() time.Time
}

// New returns an Engine stamping writes with now.
func New(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cache: cache.New(defaultExpiration, cleanupInterval),
		now:   now,
	}
}

func cacheKey(db *store.DB, table string) string {
	return db.Path() + "\x00" + strings.ToLower(table)
}

// Get returns the policy of table. Fails with TABLE_NOT_FOUND when the table
// does not exist and has no policy, and POLICY_NOT_SET when it exists
// without one.
//
// A partial database records policies for tables it does not hold, so a
// stored policy is returned even when the table is absent.
func (e *Engine) Get(ctx context.Context, db *store.DB, table string) (model.LogicalStoragePolicy, error) {
	key := cacheKey(db, table)
	if v, ok := e.cache.Get(key); ok {
		return v.(model.LogicalStoragePolicy), nil
	}

	p, found, err := store.GetPolicy(ctx, db, table)
	if err != nil {
		return model.PolicyNone, err
	}
	if found {
		e.cache.SetDefault(key, p)
		return p, nil
	}

	if _, err := store.TableSchema(ctx, db, table); err != nil {
		if model.IsCode(err, model.ErrCodeTableNotFound) {
			return model.PolicyNone, model.NewTableNotFoundError(db.Name(), table)
		}
		return model.PolicyNone, err
	}
	return model.PolicyNone, model.NewPolicyNotSetError(db.Name(), table)
}

// Set stores p for table, replacing any previous policy.
func (e *Engine) Set(ctx context.Context, db *store.DB, table string, p model.LogicalStoragePolicy) error {
	if _, err := model.DecodeLogicalStoragePolicy(uint8(p)); err != nil {
		return err
	}
	schema, err := store.TableSchema(ctx, db, table)
	if err != nil {
		if model.IsCode(err, model.ErrCodeTableNotFound) {
			return model.NewTableNotFoundError(db.Name(), table)
		}
		return err
	}
	if err := store.SetPolicy(ctx, db, schema.Name, p, e.now()); err != nil {
		return err
	}
	e.cache.Delete(cacheKey(db, table))

	slog.Info("policy set", "db", db.Name(), "table", schema.Name, "policy", p.String())
	return nil
}

// RequireAll returns the policy of every user table in db, keyed by table
// name. Fails with NOT_ALL_TABLES_SET naming every table without a policy.
func (e *Engine) RequireAll(ctx context.Context, db *store.DB) (map[string]model.LogicalStoragePolicy, error) {
	tables, err := store.TableNames(ctx, db)
	if err != nil {
		return nil, err
	}
	stored, err := store.ListPolicies(ctx, db)
	if err != nil {
		return nil, err
	}
	byLower := make(map[string]model.LogicalStoragePolicy, len(stored))
	for t, p := range stored {
		byLower[strings.ToLower(t)] = p
	}

	out := make(map[string]model.LogicalStoragePolicy, len(tables))
	var missing []string
	for _, t := range tables {
		p, ok := byLower[strings.ToLower(t)]
		if !ok {
			missing = append(missing, t)
			continue
		}
		out[t] = p
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, model.NewNotAllTablesSetError(db.Name(), missing)
	}
	return out, nil
}

// Invalidate drops every cached policy of db. Callers that write policies
// directly through the store, such as the provisioner, call it after commit.
func (e *Engine) Invalidate(db *store.DB) {
	prefix := db.Path() + "\x00"
	for key := range e.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			e.cache.Delete(key)
		}
	}
}
