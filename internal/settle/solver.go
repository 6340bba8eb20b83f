package settle

import (
	"fmt"
	"sort"
	"strings"
)

// Instruction tells Payer to pay Amount to Payee.
type Instruction struct {
	Payer  string `json:"payer"`
	Amount Amount `json:"amount"`
	Payee  string `json:"payee"`
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s pays %s to %s", in.Payer, in.Amount, in.Payee)
}

// Plan is an ordered list of instructions that settles every balance.
type Plan []Instruction

// Total is the sum of all instruction amounts.
func (p Plan) Total() Amount {
	total := Zero
	for _, in := range p {
		total = total.Add(in.Amount)
	}
	return total
}

// Splits counts instructions beyond the first for each payer, i.e. how often
// a debt was paid in parts.
func (p Plan) Splits() int {
	payers := make(map[string]struct{}, len(p))
	for _, in := range p {
		payers[in.Payer] = struct{}{}
	}
	return len(p) - len(payers)
}

// key identifies the plan's instruction multiset regardless of order.
func (p Plan) key() string {
	parts := make([]string, len(p))
	for i, in := range p {
		parts[i] = in.Payer + "\x00" + in.Payee + "\x00" + in.Amount.Rat().String()
	}
	sort.Strings(parts)
	return strings.Join(parts, "\x01")
}

// Strategy picks the pairing used when a single plan is requested.
type Strategy int

const (
	// FirstAvailable always pairs the first outstanding debt with the first
	// outstanding credit, in participant order.
	FirstAvailable Strategy = iota
	// LargestFirst orders both sides by amount, largest first, then pairs
	// first-available.
	LargestFirst
)

func (s Strategy) String() string {
	switch s {
	case FirstAvailable:
		return "first"
	case LargestFirst:
		return "largest"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy accepts the names produced by Strategy.String.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "first":
		return FirstAvailable, nil
	case "largest":
		return LargestFirst, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

type entry struct {
	who string
	amt Amount
}

// state is the working multiset. Transitions never modify a state in place,
// so a state can be shared between search branches.
type state struct {
	debts   []entry
	credits []entry
}

func newState(balances []Balance) state {
	var s state
	for _, b := range balances {
		e := entry{who: b.Participant, amt: b.Amount}
		if b.Role == Debt {
			s.debts = append(s.debts, e)
		} else {
			s.credits = append(s.credits, e)
		}
	}
	return s
}

func (s state) done() bool { return len(s.debts) == 0 && len(s.credits) == 0 }

func (s state) check() error {
	if len(s.debts) == 0 && len(s.credits) > 0 {
		return fmt.Errorf("%w: %d credits left without debts", ErrInconsistentBalances, len(s.credits))
	}
	if len(s.credits) == 0 && len(s.debts) > 0 {
		return fmt.Errorf("%w: %d debts left without credits", ErrInconsistentBalances, len(s.debts))
	}
	return nil
}

func (s state) choices() int { return len(s.debts) * len(s.credits) }

// pair maps a choice index to a (debt, credit) pair, debts outermost.
func (s state) pair(k int) (int, int) { return k / len(s.credits), k % len(s.credits) }

// step settles debt i against credit j.
func (s state) step(i, j int) (state, Instruction) {
	d, c := s.debts[i], s.credits[j]
	switch d.amt.Cmp(c.amt) {
	case 0:
		return state{debts: without(s.debts, i), credits: without(s.credits, j)},
			Instruction{Payer: d.who, Amount: d.amt, Payee: c.who}
	case 1:
		return state{debts: replaced(s.debts, i, d.amt.Sub(c.amt)), credits: without(s.credits, j)},
			Instruction{Payer: d.who, Amount: c.amt, Payee: c.who}
	default:
		return state{debts: without(s.debts, i), credits: replaced(s.credits, j, c.amt.Sub(d.amt))},
			Instruction{Payer: d.who, Amount: d.amt, Payee: c.who}
	}
}

func without(es []entry, i int) []entry {
	out := make([]entry, 0, len(es)-1)
	out = append(out, es[:i]...)
	return append(out, es[i+1:]...)
}

func replaced(es []entry, i int, amt Amount) []entry {
	out := make([]entry, len(es))
	copy(out, es)
	out[i].amt = amt
	return out
}

func largestFirst(es []entry) []entry {
	out := make([]entry, len(es))
	copy(out, es)
	sort.SliceStable(out, func(a, b int) bool { return out[a].amt.Cmp(out[b].amt) > 0 })
	return out
}

// Settle produces one plan for the given balances.
func Settle(balances []Balance, strategy Strategy) (Plan, error) {
	if err := CheckConservation(balances); err != nil {
		return nil, err
	}
	s := newState(balances)
	if strategy == LargestFirst {
		s = state{debts: largestFirst(s.debts), credits: largestFirst(s.credits)}
	}
	plan := make(Plan, 0, len(balances))
	for !s.done() {
		if err := s.check(); err != nil {
			return nil, err
		}
		var in Instruction
		s, in = s.step(0, 0)
		plan = append(plan, in)
	}
	return plan, nil
}

// NetTransfers returns, per participant, the amount paid minus the amount
// received under the plan, in order of first appearance.
func NetTransfers(plan Plan) Totals {
	var out Totals
	index := make(map[string]int)
	add := func(who string, amt Amount) {
		i, ok := index[who]
		if !ok {
			i = len(out)
			index[who] = i
			out = append(out, Position{Participant: who})
		}
		out[i].Amount = out[i].Amount.Add(amt)
	}
	for _, in := range plan {
		add(in.Payer, in.Amount)
		add(in.Payee, in.Amount.Neg())
	}
	return out
}

// Verify checks that the plan exactly settles the balances within the
// step bound of debts + credits - 1.
func Verify(plan Plan, balances []Balance) error {
	want := make(map[string]Amount, len(balances))
	for _, b := range balances {
		amt := b.Amount
		if b.Role == Credit {
			amt = amt.Neg()
		}
		want[b.Participant] = amt
	}
	if len(balances) == 0 {
		if len(plan) != 0 {
			return fmt.Errorf("%w: %d instructions for settled balances", ErrInvalidPlan, len(plan))
		}
		return nil
	}
	if bound := len(balances) - 1; len(plan) > bound {
		return fmt.Errorf("%w: %d instructions exceed bound %d", ErrInvalidPlan, len(plan), bound)
	}
	for i, in := range plan {
		if in.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: instruction %d has non-positive amount %s", ErrInvalidPlan, i+1, in.Amount)
		}
		if in.Payer == in.Payee {
			return fmt.Errorf("%w: instruction %d pays %s to themself", ErrInvalidPlan, i+1, in.Payer)
		}
	}
	got := NetTransfers(plan)
	for _, p := range got {
		if _, ok := want[p.Participant]; !ok {
			return fmt.Errorf("%w: %s has no balance", ErrInvalidPlan, p.Participant)
		}
	}
	for who, amt := range want {
		paid, _ := got.Get(who)
		if !paid.Equal(amt) {
			return fmt.Errorf("%w: %s nets %s, want %s", ErrInvalidPlan, who, paid, amt)
		}
	}
	return nil
}

// Compare orders plans by instruction count, then by number of splits.
func Compare(a, b Plan) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	sa, sb := a.Splits(), b.Splits()
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// Shortest returns the best plan under Compare; ties keep the earlier one.
func Shortest(plans []Plan) (Plan, bool) {
	if len(plans) == 0 {
		return nil, false
	}
	best := plans[0]
	for _, p := range plans[1:] {
		if Compare(p, best) < 0 {
			best = p
		}
	}
	return best, true
}

// SortPlans orders plans by Compare, keeping enumeration order for ties.
func SortPlans(plans []Plan) {
	sort.SliceStable(plans, func(i, j int) bool { return Compare(plans[i], plans[j]) < 0 })
}
