package assign

import (
	"context"
	"testing"
)

// memRepo is an in-memory Repository for engine tests.
type memRepo struct {
	pools      map[int][]string
	affinities map[string]string
	cursors    map[int]string
}

func newMemRepo() *memRepo {
	return &memRepo{
		pools:      make(map[int][]string),
		affinities: make(map[string]string),
		cursors:    make(map[int]string),
	}
}

func (m *memRepo) Pool(_ context.Context, _ string, code int) ([]string, error) {
	return m.pools[code], nil
}

func (m *memRepo) Affinity(_ context.Context, _ , key string, code int) (string, error) {
	return m.affinities[affKey(key, code)], nil
}

func (m *memRepo) SaveAffinity(_ context.Context, _, key string, code int, operatorID string) error {
	m.affinities[affKey(key, code)] = operatorID
	return nil
}

func (m *memRepo) Cursor(_ context.Context, _ string, code int) (string, error) {
	return m.cursors[code], nil
}

func (m *memRepo) SaveCursor(_ context.Context, _ string, code int, operatorID string) error {
	m.cursors[code] = operatorID
	return nil
}

func affKey(key string, code int) string { return key + "|" + string(rune('0'+code)) }

func assign(t *testing.T, e *Engine, client string, code int) Result {
	t.Helper()
	res, err := e.Assign(context.Background(), "shift-1", client, code)
	if err != nil {
		t.Fatalf("Assign(%q, %d): %v", client, code, err)
	}
	return res
}

func TestAssignEmptyPool(t *testing.T) {
	repo := newMemRepo()
	e := NewEngine(repo)

	res := assign(t, e, "Super Uno", 3)
	if res.Reason != ReasonNoPool {
		t.Fatalf("reason = %s, want NO_POOL", res.Reason)
	}
	if res.OperatorID != "" {
		t.Errorf("operator = %q, want empty", res.OperatorID)
	}
	if len(repo.affinities) != 0 {
		t.Error("NO_POOL must not create an affinity")
	}
}

func TestAssignRoundRobinThenAffinity(t *testing.T) {
	repo := newMemRepo()
	repo.pools[1] = []string{"O1", "O2"}
	e := NewEngine(repo)

	// First client takes the first pool element and becomes sticky.
	if res := assign(t, e, "Super Uno", 1); res.OperatorID != "O1" || res.Reason != ReasonRoundRobin {
		t.Fatalf("first = %+v, want O1/ROUND_ROBIN", res)
	}
	// Second distinct client advances the cursor.
	if res := assign(t, e, "Super Dos", 1); res.OperatorID != "O2" || res.Reason != ReasonRoundRobin {
		t.Fatalf("second = %+v, want O2/ROUND_ROBIN", res)
	}
	// Third distinct client wraps.
	if res := assign(t, e, "Super Tres", 1); res.OperatorID != "O1" || res.Reason != ReasonRoundRobin {
		t.Fatalf("third = %+v, want O1/ROUND_ROBIN (wrap)", res)
	}
	if repo.cursors[1] != "O1" {
		t.Errorf("cursor after wrap = %q, want O1", repo.cursors[1])
	}

	// Repeat client resolves by affinity and leaves the cursor alone.
	if res := assign(t, e, "Super Uno", 1); res.OperatorID != "O1" || res.Reason != ReasonAffinity {
		t.Fatalf("repeat = %+v, want O1/AFFINITY", res)
	}
	if repo.cursors[1] != "O1" {
		t.Errorf("affinity hit moved the cursor to %q", repo.cursors[1])
	}
}

func TestAssignAffinityKeyIsNormalized(t *testing.T) {
	repo := newMemRepo()
	repo.pools[1] = []string{"O1", "O2"}
	e := NewEngine(repo)

	first := assign(t, e, "Súper Uno, S.L.", 1)
	again := assign(t, e, "super uno sl", 1)
	if first.AffinityKey != "SUPER UNO SL" {
		t.Fatalf("affinity key = %q", first.AffinityKey)
	}
	if again.OperatorID != first.OperatorID || again.Reason != ReasonAffinity {
		t.Fatalf("normalized repeat = %+v, want affinity to %s", again, first.OperatorID)
	}
}

func TestAssignPoolRemovalRebinds(t *testing.T) {
	repo := newMemRepo()
	repo.pools[2] = []string{"O1", "O2", "O3"}
	e := NewEngine(repo)

	if res := assign(t, e, "Bar Norte", 2); res.OperatorID != "O1" {
		t.Fatalf("initial = %+v", res)
	}

	// O1 leaves the pool: the stale affinity falls through to round-robin.
	repo.pools[2] = []string{"O2", "O3"}
	res := assign(t, e, "Bar Norte", 2)
	if res.Reason != ReasonRoundRobin {
		t.Fatalf("after pool removal reason = %s, want ROUND_ROBIN", res.Reason)
	}
	if res.OperatorID != "O2" {
		t.Fatalf("rebind = %q, want O2 (next after vanished O1)", res.OperatorID)
	}

	// And the new binding is sticky.
	if res := assign(t, e, "Bar Norte", 2); res.OperatorID != "O2" || res.Reason != ReasonAffinity {
		t.Fatalf("rebound repeat = %+v", res)
	}
}

func TestAssignCursorVanishedOperator(t *testing.T) {
	repo := newMemRepo()
	repo.pools[1] = []string{"O2", "O3"}
	repo.cursors[1] = "O9" // not in pool
	e := NewEngine(repo)

	if res := assign(t, e, "Cliente X", 1); res.OperatorID != "O2" {
		t.Fatalf("vanished cursor pick = %q, want first pool element", res.OperatorID)
	}
}

func TestAssignDeterministicReplay(t *testing.T) {
	inputs := []struct {
		client string
		code   int
	}{
		{"Super Uno", 1}, {"Super Dos", 1}, {"Super Uno", 1},
		{"Pescados Mar", 2}, {"Super Tres", 1}, {"Pescados Mar", 2},
	}

	run := func() []string {
		repo := newMemRepo()
		repo.pools[1] = []string{"O1", "O2"}
		repo.pools[2] = []string{"O3"}
		e := NewEngine(repo)
		var got []string
		for _, in := range inputs {
			res := assign(t, e, in.client, in.code)
			got = append(got, res.OperatorID+"/"+string(res.Reason))
		}
		return got
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay diverged at %d: %s vs %s", i, first[i], second[i])
		}
	}
}
