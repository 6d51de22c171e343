package hashstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dynamoRando/rcd-sub004/internal/model"
)

func employee(id int64, name string) []model.Value {
	return []model.Value{model.Int(id), model.Text(name), model.Real(52000.5), model.Null()}
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := ComputeHash(employee(999, "Alice"))
	b := ComputeHash(employee(999, "Alice"))
	assert.Equal(t, a, b)
	assert.NotZero(t, a)
}

func TestComputeHash_IndependentOfCallOrder(t *testing.T) {
	rows := [][]model.Value{employee(1, "a"), employee(2, "b"), employee(3, "c")}

	forward := make([]uint64, len(rows))
	for i, r := range rows {
		forward[i] = ComputeHash(r)
	}

	backward := make([]uint64, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		backward[i] = ComputeHash(rows[i])
	}
	assert.Equal(t, forward, backward)

	var wg sync.WaitGroup
	concurrent := make([]uint64, len(rows))
	for i := range rows {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			concurrent[i] = ComputeHash(rows[i])
		}(i)
	}
	wg.Wait()
	assert.Equal(t, forward, concurrent)
}

func TestComputeHash_SensitiveToEveryColumn(t *testing.T) {
	base := employee(999, "Alice")
	h := ComputeHash(base)

	for i := range base {
		changed := append([]model.Value(nil), base...)
		switch changed[i].Kind {
		case model.KindNull:
			changed[i] = model.Text("")
		case model.KindText:
			changed[i] = model.Text(changed[i].Text + "x")
		case model.KindInteger:
			changed[i] = model.Int(changed[i].Int + 1)
		case model.KindReal:
			changed[i] = model.Real(changed[i].Real + 1)
		}
		assert.NotEqual(t, h, ComputeHash(changed), "column %d change not detected", i)
	}
}

func TestComputeHash_OrderSensitive(t *testing.T) {
	ab := ComputeHash([]model.Value{model.Text("a"), model.Text("b")})
	ba := ComputeHash([]model.Value{model.Text("b"), model.Text("a")})
	assert.NotEqual(t, ab, ba)
}

func TestComputeHash_LengthPrefixed(t *testing.T) {
	a := ComputeHash([]model.Value{model.Text("ab"), model.Text("c")})
	b := ComputeHash([]model.Value{model.Text("a"), model.Text("bc")})
	assert.NotEqual(t, a, b)
}

func TestComputeHash_KindTagged(t *testing.T) {
	assert.NotEqual(t,
		ComputeHash([]model.Value{model.Int(1)}),
		ComputeHash([]model.Value{model.Text("1")}))
	assert.NotEqual(t,
		ComputeHash([]model.Value{model.Null()}),
		ComputeHash([]model.Value{model.Text("")}))
}

func TestComputeHash_NFC(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	assert.Equal(t,
		ComputeHash([]model.Value{model.Text(composed)}),
		ComputeHash([]model.Value{model.Text(decomposed)}))
}

func TestTombstoneHash(t *testing.T) {
	assert.Equal(t, TombstoneHash(42), TombstoneHash(42))
	assert.NotEqual(t, TombstoneHash(42), TombstoneHash(43))
	assert.NotEqual(t, TombstoneHash(42), ComputeHash([]model.Value{model.Int(42)}))
}

func TestIsReservedName(t *testing.T) {
	assert.True(t, IsReservedName("COOP_CONTRACTS"))
	assert.True(t, IsReservedName("employee_coop_metadata"))
	assert.True(t, IsReservedName("EMPLOYEE_COOP_HISTORY"))
	assert.True(t, IsReservedName("sqlite_sequence"))
	assert.False(t, IsReservedName("EMPLOYEE"))
	assert.False(t, IsReservedName("COOPERATIVE"))
	assert.Equal(t, "EMPLOYEE_COOP_METADATA", MetadataTableName("EMPLOYEE"))
}
