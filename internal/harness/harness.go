package harness

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
	"github.com/dynamoRando/rcd-sub004/internal/testutil"
)

// Loopback addresses of the two nodes.
const (
	HostAddr        = "host:7400"
	ParticipantAddr = "part:7401"

	participantAlias = "participant"
)

// Harness holds the two nodes of a running scenario.
type Harness struct {
	scenario *Scenario
	host     *coop.Node
	part     *coop.Node
	registry *notify.Registry
	recorder *notify.Recorder
}

// Run executes a scenario against a fresh host and participant connected
// over the loopback transport.
//
// Node data lives in a temporary directory that is removed afterwards. Both
// nodes share a step clock and sequence id generators, so two runs of the
// same scenario produce identical traces.
//
// Parameters:
//   - ctx: bounds every node operation the steps perform
//   - scenario: a parsed scenario (see LoadScenario)
//
// Returns error only if the scenario could not be set up. Failed step
// expectations are reported in Result.Steps and Result.Passed.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "coop-harness-")
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := open(ctx, scenario, dir)
	if err != nil {
		return nil, err
	}
	defer h.close()

	if err := h.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		sr := h.execute(ctx, step)
		sr.Index = i
		sr.Do = step.Do
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkStep(step, sr) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Do, msg))
		}
	}

	result.Trace = h.recorder.Calls()
	for _, msg := range h.evaluate(ctx, scenario.Assertions, result.Trace) {
		result.AddError(msg)
	}
	return result, nil
}

func open(ctx context.Context, scenario *Scenario, dir string) (*Harness, error) {
	registry := notify.NewRegistry()
	n, err := notify.New(notify.KindLoopback, notify.Options{Registry: registry})
	if err != nil {
		return nil, err
	}
	rec := notify.NewRecorder(n)
	clock := testutil.NewStepClock(testutil.DefaultStart, time.Second)

	node := func(name, addr string) (*coop.Node, error) {
		return coop.Open(ctx, coop.Config{
			DataDir:    dir + "/" + name,
			Name:       name,
			Addresses:  []string{addr},
			Notifier:   rec,
			BcryptCost: bcrypt.MinCost,
			IDs:        testutil.NewSequenceGenerator(name),
			Now:        clock.Now,
		})
	}
	host, err := node("host", HostAddr)
	if err != nil {
		return nil, err
	}
	part, err := node("participant", ParticipantAddr)
	if err != nil {
		host.Close()
		return nil, err
	}
	registry.RegisterHost(HostAddr, host.Host())
	registry.RegisterParticipant(ParticipantAddr, part.Participant())

	return &Harness{scenario: scenario, host: host, part: part, registry: registry, recorder: rec}, nil
}

func (h *Harness) close() {
	h.part.Close()
	h.host.Close()
}

// setup creates the database, its tables and an accepted contract.
func (h *Harness) setup(ctx context.Context) error {
	s := h.scenario
	host := h.host.Host()
	if err := host.CreateDatabase(ctx, s.Database); err != nil {
		return err
	}
	for _, t := range s.Tables {
		schema, err := model.ParseTableSchema(t.Name, t.Columns)
		if err != nil {
			return err
		}
		policy, err := model.ParseLogicalStoragePolicy(t.Policy)
		if err != nil {
			return err
		}
		if err := host.CreateTable(ctx, s.Database, schema); err != nil {
			return err
		}
		if err := host.SetPolicy(ctx, s.Database, t.Name, policy); err != nil {
			return err
		}
	}
	if err := host.AddParticipant(ctx, s.Database, participantAlias, []string{ParticipantAddr}); err != nil {
		return err
	}

	rdb, err := model.ParseRemoteDeleteBehavior(s.RemoteDelete)
	if err != nil {
		return err
	}
	c, err := host.GenerateContract(ctx, s.Database, participantAlias, s.Description, rdb)
	if err != nil {
		return err
	}
	sent, err := host.SendContract(ctx, c.ContractID)
	if err != nil {
		return err
	}
	if !sent {
		return fmt.Errorf("contract %s not delivered", c.ContractID)
	}
	res, err := h.part.Participant().AcceptContract(ctx, c.ContractID)
	if err != nil {
		return err
	}
	if !res.Succeeded() {
		return fmt.Errorf("contract %s not accepted: %s", c.ContractID, res.Message)
	}
	return nil
}

type behaviorSetter func(ctx context.Context, p *coop.Participant, db, table, value string) error

var behaviorSetters = map[string]behaviorSetter{
	"updates_from_host": func(ctx context.Context, p *coop.Participant, db, table, value string) error {
		b, err := model.ParseUpdatesFromHostBehavior(value)
		if err != nil {
			return err
		}
		return p.ChangeUpdatesFromHost(ctx, db, table, b)
	},
	"deletes_from_host": func(ctx context.Context, p *coop.Participant, db, table, value string) error {
		b, err := model.ParseDeletesFromHostBehavior(value)
		if err != nil {
			return err
		}
		return p.ChangeDeletesFromHost(ctx, db, table, b)
	},
	"updates_to_host": func(ctx context.Context, p *coop.Participant, db, table, value string) error {
		b, err := model.ParseUpdatesToHostBehavior(value)
		if err != nil {
			return err
		}
		return p.ChangeUpdatesToHost(ctx, db, table, b)
	},
	"deletes_to_host": func(ctx context.Context, p *coop.Participant, db, table, value string) error {
		b, err := model.ParseDeletesToHostBehavior(value)
		if err != nil {
			return err
		}
		return p.ChangeDeletesToHost(ctx, db, table, b)
	},
}

// execute runs one step. Errors are captured in the StepResult.
func (h *Harness) execute(ctx context.Context, step Step) StepResult {
	var sr StepResult
	db := h.scenario.Database
	fail := func(err error) StepResult {
		sr.Error = string(model.CodeOf(err))
		if sr.Error == "" {
			sr.Error = err.Error()
		}
		return sr
	}

	switch step.Do {
	case StepHostExec:
		res, err := h.host.Host().ExecuteStatement(ctx, db, step.SQL)
		if err != nil {
			return fail(err)
		}
		sr.Rows = len(res.Rows)
		for i, p := range res.Pushes {
			if p.Error != "" {
				sr.Failed++
			}
			if i == 0 && p.Result.Status != model.PartialDataUnknown {
				sr.Status = p.Result.Status.String()
			}
		}
	case StepParticipantExec:
		res, err := h.part.Participant().ExecuteStatement(ctx, db, step.SQL)
		if err != nil {
			return fail(err)
		}
		sr.Rows = len(res.Rows)
		sr.Failed = res.Report.Failed
	case StepSetBehavior:
		for _, key := range sortedKeys(step.Behaviors) {
			if err := behaviorSetters[key](ctx, h.part.Participant(), db, step.Table, step.Behaviors[key]); err != nil {
				return fail(err)
			}
		}
	case StepSetRemoteDelete:
		b, err := model.ParseRemoteDeleteBehavior(step.Value)
		if err != nil {
			return fail(err)
		}
		if err := h.host.Host().ChangeRemoteDeleteBehavior(ctx, db, participantAlias, b); err != nil {
			return fail(err)
		}
	case StepApprove:
		res, report, err := h.part.Participant().ApprovePending(ctx, db, step.Table, step.RowID)
		if err != nil {
			return fail(err)
		}
		sr.Status = res.Status.String()
		sr.Rows = len(res.Rows)
		sr.Failed = report.Failed
	case StepReject:
		res, err := h.part.Participant().RejectPending(ctx, db, step.Table, step.RowID)
		if err != nil {
			return fail(err)
		}
		sr.Status = res.Status.String()
	case StepNodeDown, StepNodeUp:
		addr := HostAddr
		if step.Node == NodeParticipant {
			addr = ParticipantAddr
		}
		h.registry.SetDown(addr, step.Do == StepNodeDown)
	}
	return sr
}

func checkStep(step Step, sr StepResult) []string {
	e := step.Expect
	if e == nil {
		e = &StepExpect{}
	}
	var errs []string
	if sr.Error != e.Error {
		if e.Error == "" {
			errs = append(errs, fmt.Sprintf("unexpected error %s", sr.Error))
		} else {
			errs = append(errs, fmt.Sprintf("expected error %s, got %q", e.Error, sr.Error))
		}
		return errs
	}
	if e.Status != "" {
		want, _ := model.ParsePartialDataStatus(e.Status)
		if sr.Status != want.String() {
			errs = append(errs, fmt.Sprintf("expected status %s, got %q", want, sr.Status))
		}
	}
	if e.Rows != nil && sr.Rows != *e.Rows {
		errs = append(errs, fmt.Sprintf("expected %d rows, got %d", *e.Rows, sr.Rows))
	}
	if e.Failed != nil && sr.Failed != *e.Failed {
		errs = append(errs, fmt.Sprintf("expected %d failed calls, got %d", *e.Failed, sr.Failed))
	}
	return errs
}
