package settle

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ParallelOptions tunes EnumerateParallel.
type ParallelOptions struct {
	// Workers bounds the number of branches searched at once. Values < 1
	// mean one worker.
	Workers int
	// Limit caps the number of plans returned; <= 0 means every plan.
	Limit int
	// Distinct drops reorderings of plans already returned.
	Distinct bool
	// MaxNodes bounds the search nodes visited by all branches together;
	// <= 0 means no bound. Reaching it returns the plans found so far with
	// ErrSearchLimit, and which plans those are depends on scheduling.
	MaxNodes int
}

// EnumerateParallel searches each first pairing in its own goroutine. Every
// branch owns a copy of the working state; results are merged in pairing
// order once all branches finish, so the output matches the sequential
// enumeration when Distinct is off.
func EnumerateParallel(ctx context.Context, balances []Balance, opts ParallelOptions) ([]Plan, error) {
	if err := CheckConservation(balances); err != nil {
		return nil, err
	}
	root := newState(balances)
	if root.done() {
		return []Plan{{}}, nil
	}
	if err := root.check(); err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	// A branch cannot tell which of its plans another branch already
	// produced, so with Distinct a branch runs until it is exhausted or the
	// shared node budget is spent.
	branchLimit := opts.Limit
	if opts.Distinct {
		branchLimit = 0
	}
	budget := newNodeBudget(opts.MaxNodes)
	var truncated atomic.Bool

	branches := make([][]Plan, root.choices())
	for k := range branches {
		k := k
		i, j := root.pair(k)
		child, in := root.step(i, j)
		g.Go(func() error {
			e := newEnumerator(ctx, child, Plan{in}, opts.Distinct, budget)
			var out []Plan
			for branchLimit <= 0 || len(out) < branchLimit {
				if err := ctx.Err(); err != nil {
					return err
				}
				if !e.Next() {
					break
				}
				out = append(out, e.Plan())
			}
			branches[k] = out
			if err := e.Err(); err != nil {
				if !errors.Is(err, ErrSearchLimit) {
					return err
				}
				truncated.Store(true)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var limitErr error
	if truncated.Load() {
		limitErr = ErrSearchLimit
	}
	var plans []Plan
	seen := make(map[string]struct{})
	for _, branch := range branches {
		for _, p := range branch {
			if opts.Limit > 0 && len(plans) >= opts.Limit {
				return plans, limitErr
			}
			if opts.Distinct {
				k := p.key()
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
			}
			plans = append(plans, p)
		}
	}
	return plans, limitErr
}
