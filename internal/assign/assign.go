package assign

import (
	"context"
	"fmt"

	"github.com/delsur/comandero/internal/textnorm"
)

// Reason records how an assignment was decided.
type Reason string

const (
	// ReasonAffinity: the client already had a sticky binding in this shift.
	ReasonAffinity Reason = "AFFINITY"
	// ReasonRoundRobin: a fresh pick from the pool; the binding is now sticky.
	ReasonRoundRobin Reason = "ROUND_ROBIN"
	// ReasonNoPool: no operator is qualified for the code in this shift.
	ReasonNoPool Reason = "NO_POOL"
)

// Result is the outcome of one assignment. OperatorID is empty iff Reason is
// ReasonNoPool.
type Result struct {
	OperatorID  string
	AffinityKey string
	Reason      Reason
}

// Repository is the state the engine reads and writes. Implementations must
// keep Pool ordering stable (operator id ascending) and must serialize
// Cursor reads against concurrent assignments on the same (shift, code).
type Repository interface {
	// Pool returns the operator ids enabled for the code in the shift,
	// ordered by id ascending.
	Pool(ctx context.Context, shiftID string, code int) ([]string, error)

	// Affinity returns the sticky operator for the key, or "" when unbound.
	Affinity(ctx context.Context, shiftID, key string, code int) (string, error)

	// SaveAffinity binds (or re-binds) the key to the operator.
	SaveAffinity(ctx context.Context, shiftID, key string, code int, operatorID string) error

	// Cursor returns the last round-robin pick for the code, or "" when the
	// cursor is unset. The row stays locked until the enclosing transaction
	// ends.
	Cursor(ctx context.Context, shiftID string, code int) (string, error)

	// SaveCursor records the new last pick.
	SaveCursor(ctx context.Context, shiftID string, code int, operatorID string) error
}

// Engine resolves operator assignments against one Repository.
type Engine struct {
	repo Repository
}

// NewEngine creates an assignment engine backed by the given repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// Assign resolves the operator for one order line.
//
// The affinity only wins while its operator is still in the pool; a stale
// binding falls through to round-robin and is overwritten by the new pick.
func (e *Engine) Assign(ctx context.Context, shiftID, clientNameRaw string, code int) (Result, error) {
	key := textnorm.Norm(clientNameRaw)

	pool, err := e.repo.Pool(ctx, shiftID, code)
	if err != nil {
		return Result{}, fmt.Errorf("load pool: %w", err)
	}
	if len(pool) == 0 {
		return Result{AffinityKey: key, Reason: ReasonNoPool}, nil
	}

	bound, err := e.repo.Affinity(ctx, shiftID, key, code)
	if err != nil {
		return Result{}, fmt.Errorf("load affinity: %w", err)
	}
	if bound != "" && contains(pool, bound) {
		return Result{OperatorID: bound, AffinityKey: key, Reason: ReasonAffinity}, nil
	}

	last, err := e.repo.Cursor(ctx, shiftID, code)
	if err != nil {
		return Result{}, fmt.Errorf("load cursor: %w", err)
	}
	next := nextAfter(pool, last)

	if err := e.repo.SaveCursor(ctx, shiftID, code, next); err != nil {
		return Result{}, fmt.Errorf("save cursor: %w", err)
	}
	if err := e.repo.SaveAffinity(ctx, shiftID, key, code, next); err != nil {
		return Result{}, fmt.Errorf("save affinity: %w", err)
	}
	return Result{OperatorID: next, AffinityKey: key, Reason: ReasonRoundRobin}, nil
}

// nextAfter picks the pool element immediately after last, wrapping to the
// first. A nil or vanished last yields the first pool element.
func nextAfter(pool []string, last string) string {
	if last == "" {
		return pool[0]
	}
	for i, op := range pool {
		if op == last {
			return pool[(i+1)%len(pool)]
		}
	}
	return pool[0]
}

func contains(pool []string, op string) bool {
	for _, p := range pool {
		if p == op {
			return true
		}
	}
	return false
}
