// Package settle turns shared-expense records into pay-to instructions.
//
// A batch of Spent and Gave records is aggregated into a Ledger, transfers
// are folded into each participant's total, totals are classified against
// the fair share into debts and credits, and debts are matched against
// credits until both are exhausted. All arithmetic is exact, so debts and
// credits always cancel to zero.
package settle

import (
	"fmt"
)

// Report is the derived state of one batch up to, but not including, the
// settlement search.
type Report struct {
	Participants []string  `json:"participants"`
	TotalCost    Amount    `json:"total_cost"`
	Expected     Amount    `json:"expected"`
	Spent        Totals    `json:"spent"`
	Adjusted     Totals    `json:"adjusted"`
	Net          Totals    `json:"net"`
	Balances     []Balance `json:"balances"`
}

// Analyze builds the ledger for a batch and classifies every participant.
func Analyze(batch []Record) (*Report, error) {
	l, err := NewLedger(batch)
	if err != nil {
		return nil, err
	}
	expected, err := l.ExpectedContribution()
	if err != nil {
		return nil, err
	}
	spent := l.ExpenditureTotals()
	adjusted, err := Reconcile(l.Transfers(), spent)
	if err != nil {
		return nil, err
	}
	if sum := adjusted.Sum(); !sum.Equal(l.TotalCost()) {
		return nil, fmt.Errorf("%w: adjusted totals sum to %s, total cost is %s", ErrInconsistentBalances, sum, l.TotalCost())
	}
	balances := Balances(adjusted, expected)
	if err := CheckConservation(balances); err != nil {
		return nil, err
	}
	return &Report{
		Participants: l.Participants(),
		TotalCost:    l.TotalCost(),
		Expected:     expected,
		Spent:        spent,
		Adjusted:     adjusted,
		Net:          NetPositions(adjusted, expected),
		Balances:     balances,
	}, nil
}

// Solve returns one plan for the batch, pairing first-available.
func Solve(batch []Record) (Plan, error) {
	return SolveWith(batch, FirstAvailable)
}

// SolveWith returns one plan for the batch using the given strategy.
func SolveWith(batch []Record, strategy Strategy) (Plan, error) {
	r, err := Analyze(batch)
	if err != nil {
		return nil, err
	}
	return Settle(r.Balances, strategy)
}

// SolveAll returns a lazy enumeration of every plan for the batch. Each
// call starts an independent enumeration.
func SolveAll(batch []Record, opts ...EnumOption) (*Enumerator, error) {
	r, err := Analyze(batch)
	if err != nil {
		return nil, err
	}
	return Enumerate(r.Balances, opts...)
}
