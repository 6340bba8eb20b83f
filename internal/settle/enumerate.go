package settle

import (
	"context"
	"sync/atomic"
)

// ctxCheckEvery is how many search nodes pass between context checks.
const ctxCheckEvery = 256

// DefaultMaxNodes is the node budget callers use when none is configured.
const DefaultMaxNodes = 200_000

// Enumerator lazily walks every plan reachable by trying each legal
// debt/credit pairing at each step. Plans are produced depth-first on
// demand; stopping early never computes the rest of the tree.
//
//	e, _ := settle.Enumerate(balances)
//	for e.Next() {
//		use(e.Plan())
//	}
//	if err := e.Err(); err != nil { ... }
type Enumerator struct {
	root     state
	prefix   Plan
	stack    []frame
	plan     Plan
	err      error
	distinct bool
	seen     map[string]struct{}
	budget   *nodeBudget
	ctx      context.Context
	visited  int
}

type frame struct {
	st      state
	plan    Plan
	next    int
	entered bool
}

// nodeBudget counts search nodes, possibly across several enumerators.
type nodeBudget struct {
	limit int64
	used  atomic.Int64
}

func newNodeBudget(limit int) *nodeBudget {
	if limit <= 0 {
		return nil
	}
	return &nodeBudget{limit: int64(limit)}
}

func (b *nodeBudget) take() bool {
	return b == nil || b.used.Add(1) <= b.limit
}

// EnumOption configures an Enumerator.
type EnumOption func(*Enumerator)

// Distinct skips plans whose instructions are a reordering of a plan that
// was already produced. Two search nodes that emitted the same multiset of
// instructions have the same remaining balances, so only the first one is
// expanded; the search keeps one key per expanded node in memory.
func Distinct() EnumOption {
	return func(e *Enumerator) { e.distinct = true }
}

// MaxNodes bounds the search nodes visited between Resets. When the bound
// is hit the enumeration stops with ErrSearchLimit. n <= 0 means no bound.
func MaxNodes(n int) EnumOption {
	return func(e *Enumerator) { e.budget = newNodeBudget(n) }
}

// Enumerate starts an enumeration over a snapshot of balances.
func Enumerate(balances []Balance, opts ...EnumOption) (*Enumerator, error) {
	if err := CheckConservation(balances); err != nil {
		return nil, err
	}
	e := &Enumerator{root: newState(balances)}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset()
	return e, nil
}

func newEnumerator(ctx context.Context, root state, prefix Plan, distinct bool, budget *nodeBudget) *Enumerator {
	e := &Enumerator{root: root, prefix: prefix, distinct: distinct, ctx: ctx}
	e.Reset()
	// Set after Reset: a shared budget belongs to the caller.
	e.budget = budget
	return e
}

// Reset restarts the enumeration from the first plan.
func (e *Enumerator) Reset() {
	plan := make(Plan, len(e.prefix))
	copy(plan, e.prefix)
	e.stack = []frame{{st: e.root, plan: plan}}
	e.plan = nil
	e.err = nil
	e.visited = 0
	if e.distinct {
		e.seen = make(map[string]struct{})
	}
	if e.budget != nil {
		e.budget.used.Store(0)
	}
}

// Next advances to the next plan. It returns false when the search space is
// exhausted or an error occurred.
func (e *Enumerator) Next() bool {
	for len(e.stack) > 0 {
		top := len(e.stack) - 1
		f := &e.stack[top]
		if !f.entered {
			if !e.enter(f) {
				e.stack = e.stack[:top]
				continue
			}
			if e.err != nil {
				e.fail(e.err)
				return false
			}
		}
		if f.st.done() {
			e.plan = f.plan
			e.stack = e.stack[:top]
			return true
		}
		if err := f.st.check(); err != nil {
			e.fail(err)
			return false
		}
		if f.next >= f.st.choices() {
			e.stack = e.stack[:top]
			continue
		}
		i, j := f.st.pair(f.next)
		f.next++
		child, in := f.st.step(i, j)
		plan := make(Plan, len(f.plan), len(f.plan)+1)
		copy(plan, f.plan)
		e.stack = append(e.stack, frame{st: child, plan: append(plan, in)})
	}
	e.plan = nil
	return false
}

// enter visits a node for the first time. It reports false when the node
// repeats one already expanded; a budget or context failure is left in e.err.
func (e *Enumerator) enter(f *frame) bool {
	f.entered = true
	if e.distinct {
		k := f.plan.key()
		if _, dup := e.seen[k]; dup {
			return false
		}
		e.seen[k] = struct{}{}
	}
	e.visited++
	if !e.budget.take() {
		e.err = ErrSearchLimit
		return true
	}
	if e.ctx != nil && e.visited%ctxCheckEvery == 0 {
		if err := e.ctx.Err(); err != nil {
			e.err = err
		}
	}
	return true
}

func (e *Enumerator) fail(err error) {
	e.err = err
	e.stack = nil
	e.plan = nil
}

// Plan returns the plan found by the last successful Next.
func (e *Enumerator) Plan() Plan { return e.plan }

// Err returns the error that stopped the enumeration, if any.
func (e *Enumerator) Err() error { return e.err }

// Collect gathers up to limit plans; limit <= 0 means all of them. Plans
// found before an error are returned with it.
func (e *Enumerator) Collect(limit int) ([]Plan, error) {
	var plans []Plan
	for (limit <= 0 || len(plans) < limit) && e.Next() {
		plans = append(plans, e.Plan())
	}
	return plans, e.Err()
}

// Each calls fn for every remaining plan until fn returns false, the
// context is done or the search is exhausted. The context is also checked
// while the search walks nodes that yield no plan.
func (e *Enumerator) Each(ctx context.Context, fn func(Plan) bool) error {
	prev := e.ctx
	e.ctx = ctx
	defer func() { e.ctx = prev }()
	for e.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(e.Plan()) {
			return nil
		}
	}
	return e.Err()
}
