// Package provision materializes a partial database from an accepted
// contract.
//
// Only tables whose policy keeps data at the participant are created.
// Policies for every table in the contract are recorded so the participant
// can tell a table it does not hold from one it never heard of. Metadata
// tables are never created here; the hash store creates them on first write.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/policy"
	"github.com/dynamoRando/rcd-sub004/internal/store"
)

// Provisioner creates partial databases.
type Provisioner struct {
	catalog  *store.Catalog
	policies *policy.Engine
	now      func() time.Time
}

// New returns a Provisioner writing into catalog.
func New(catalog *store.Catalog, policies *policy.Engine, now func() time.Time) *Provisioner {
	if now == nil {
		now = time.Now
	}
	return &Provisioner{catalog: catalog, policies: policies, now: now}
}

// Plan returns the tables of c the participant holds, in contract order.
func Plan(c model.Contract) []model.TableSchema {
	var out []model.TableSchema
	for _, t := range c.Tables {
		if policy.RulesFor(t.Policy).ParticipantHoldsData {
			out = append(out, t)
		}
	}
	return out
}

// DDL renders the statements Plan would execute for c.
func DDL(c model.Contract) (string, error) {
	var stmts []string
	for _, t := range Plan(c) {
		ddl, err := store.TableDDL(t)
		if err != nil {
			return "", err
		}
		stmts = append(stmts, ddl+";")
	}
	return strings.Join(stmts, "\n\n"), nil
}

// CreatePartialDatabaseFromContract creates the partial database for c and
// its tables if they do not exist. Safe to call again after a partial
// failure or a success.
func (p *Provisioner) CreatePartialDatabaseFromContract(ctx context.Context, c model.Contract) (bool, error) {
	if c.Status != model.ContractStatusAccepted {
		return false, &model.Error{
			Code:     model.ErrCodeInvalidTransition,
			Message:  fmt.Sprintf("contract %s is %s, not Accepted", c.ContractID, c.Status),
			Database: c.DatabaseName,
		}
	}

	db, err := p.catalog.Create(ctx, store.DatabaseInfo{
		ID:     c.DatabaseID,
		Name:   c.DatabaseName,
		Kind:   store.KindPartial,
		HostID: c.Host.ID,
	})
	if err != nil {
		return false, err
	}
	info, err := store.GetDatabaseInfo(ctx, db)
	if err != nil {
		return false, err
	}
	if info.HostID != c.Host.ID {
		return false, &model.Error{
			Code:     model.ErrCodeNameCollision,
			Message:  fmt.Sprintf("partial database belongs to host %s", info.HostID),
			Database: c.DatabaseName,
		}
	}

	created := Plan(c)
	now := p.now()
	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, t := range created {
			if err := store.CreateTable(ctx, tx, t); err != nil {
				return err
			}
			if err := store.InsertDefaultBehaviors(ctx, tx, t.Name); err != nil {
				return err
			}
		}
		for _, t := range c.Tables {
			if err := store.SetPolicy(ctx, tx, t.Name, t.Policy, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("provision %s: %w", c.DatabaseName, err)
	}
	if p.policies != nil {
		p.policies.Invalidate(db)
	}

	slog.Info("partial database provisioned",
		"db", c.DatabaseName,
		"contract_id", c.ContractID,
		"tables", len(created),
	)
	return true, nil
}
