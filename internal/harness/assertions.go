package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/dynamoRando/rcd-sub004/internal/coop"
	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
)

// evaluate checks every assertion and returns one message per failure.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion, trace []notify.Call) []string {
	var errs []string
	for i, a := range assertions {
		if err := h.evaluateOne(ctx, a, trace); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func (h *Harness) evaluateOne(ctx context.Context, a Assertion, trace []notify.Call) error {
	switch a.Type {
	case AssertRow:
		return h.assertRow(ctx, a)
	case AssertPending:
		return h.assertPending(ctx, a)
	case AssertMetadata:
		return h.assertMetadata(ctx, a)
	case AssertHistoryCount:
		entries, err := h.part.History(ctx, h.scenario.Database, a.Table)
		if err != nil {
			return err
		}
		if len(entries) != a.Count {
			return fmt.Errorf("expected %d history entries for %s, got %d", a.Count, a.Table, len(entries))
		}
		return nil
	case AssertCallCount:
		return assertCallCount(trace, a.Call, a.Count)
	case AssertCallOrder:
		return assertCallOrder(trace, a.Calls)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) node(name string) *coop.Node {
	if name == NodeHost {
		return h.host
	}
	return h.part
}

func (h *Harness) assertRow(ctx context.Context, a Assertion) error {
	row, ok, err := h.node(a.Node).ReadRow(ctx, h.scenario.Database, a.Table, a.RowID)
	if err != nil {
		return err
	}
	if a.Absent {
		if ok {
			return fmt.Errorf("row %s/%d exists", a.Table, a.RowID)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("row %s/%d not found", a.Table, a.RowID)
	}
	for _, col := range sortedKeys(a.Expect) {
		got, found := row.Get(col)
		if !found {
			return fmt.Errorf("row %s/%d has no column %s", a.Table, a.RowID, col)
		}
		if !matchValue(got, a.Expect[col]) {
			return fmt.Errorf("row %s/%d column %s: expected %v, got %s", a.Table, a.RowID, col, a.Expect[col], got)
		}
	}
	return nil
}

// assertPending checks the most recent pending action recorded for the row.
func (h *Harness) assertPending(ctx context.Context, a Assertion) error {
	actions, err := h.part.Participant().PendingActions(ctx, h.scenario.Database, model.PartialDataUnknown)
	if err != nil {
		return err
	}
	want, _ := model.ParsePartialDataStatus(a.Status)
	var latest *model.PendingAction
	for i := range actions {
		if actions[i].RowID == a.RowID && actions[i].Table == a.Table {
			latest = &actions[i]
		}
	}
	if latest == nil {
		return fmt.Errorf("no pending action for %s/%d", a.Table, a.RowID)
	}
	if latest.Status != want {
		return fmt.Errorf("pending action for %s/%d is %s, expected %s", a.Table, a.RowID, latest.Status, want)
	}
	return nil
}

func (h *Harness) assertMetadata(ctx context.Context, a Assertion) error {
	node := h.node(a.Node)
	participantID := ""
	if a.Ref {
		node = h.host
		participantID = h.part.Self().ID
	}
	md, ok, err := h.entry(ctx, node, a.Table, a.RowID, participantID)
	if err != nil {
		return err
	}
	if a.Absent {
		if ok {
			return fmt.Errorf("metadata for %s/%d exists", a.Table, a.RowID)
		}
		return nil
	}
	if !ok {
		return fmt.Errorf("no metadata for %s/%d", a.Table, a.RowID)
	}
	if a.Deleted != nil && md.IsDeleted != *a.Deleted {
		return fmt.Errorf("metadata for %s/%d: deleted=%t, expected %t", a.Table, a.RowID, md.IsDeleted, *a.Deleted)
	}
	if a.HashMatches {
		own, ok, err := h.entry(ctx, h.part, a.Table, a.RowID, "")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("participant holds no metadata for %s/%d", a.Table, a.RowID)
		}
		if md.Hash != own.Hash {
			return fmt.Errorf("metadata for %s/%d: hash %d does not match participant hash %d", a.Table, a.RowID, md.Hash, own.Hash)
		}
	}
	return nil
}

func (h *Harness) entry(ctx context.Context, node *coop.Node, table string, rowID int64, participantID string) (model.RowMetadata, bool, error) {
	mds, err := node.Metadata(ctx, h.scenario.Database, table)
	if err != nil {
		return model.RowMetadata{}, false, err
	}
	for _, md := range mds {
		if md.RowID == rowID && md.ParticipantID == participantID {
			return md, true, nil
		}
	}
	return model.RowMetadata{}, false, nil
}

func assertCallCount(trace []notify.Call, call string, count int) error {
	n := 0
	for _, c := range trace {
		if c.Name == call {
			n++
		}
	}
	if n != count {
		return fmt.Errorf("expected %d %s calls, got %d", count, call, n)
	}
	return nil
}

// assertCallOrder checks calls appear in trace in the given relative order.
func assertCallOrder(trace []notify.Call, calls []string) error {
	next := 0
	for _, c := range trace {
		if next < len(calls) && c.Name == calls[next] {
			next++
		}
	}
	if next < len(calls) {
		return fmt.Errorf("call %s not found in order (matched %d of %d)", calls[next], next, len(calls))
	}
	return nil
}

// matchValue compares a stored value with a YAML scalar.
func matchValue(v model.Value, want any) bool {
	switch w := want.(type) {
	case nil:
		return v.IsNull()
	case int:
		return v.Kind == model.KindInteger && v.Int == int64(w)
	case int64:
		return v.Kind == model.KindInteger && v.Int == w
	case float64:
		switch v.Kind {
		case model.KindReal:
			return v.Real == w
		case model.KindInteger:
			return float64(v.Int) == w
		}
		return false
	case string:
		return v.Kind == model.KindText && v.Text == w
	case bool:
		b := int64(0)
		if w {
			b = 1
		}
		return v.Kind == model.KindInteger && v.Int == b
	default:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
