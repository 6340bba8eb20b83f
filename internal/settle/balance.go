package settle

import "fmt"

// Position is a participant paired with an amount.
type Position struct {
	Participant string `json:"participant"`
	Amount      Amount `json:"amount"`
}

// Totals is an ordered participant → amount listing.
type Totals []Position

// Get returns the amount recorded for a participant.
func (t Totals) Get(participant string) (Amount, bool) {
	for _, p := range t {
		if p.Participant == participant {
			return p.Amount, true
		}
	}
	return Zero, false
}

// Sum adds every amount of the listing.
func (t Totals) Sum() Amount {
	total := Zero
	for _, p := range t {
		total = total.Add(p.Amount)
	}
	return total
}

// Role says which side of a settlement a participant is on.
type Role int

const (
	Debt Role = iota + 1
	Credit
)

func (r Role) String() string {
	switch r {
	case Debt:
		return "debt"
	case Credit:
		return "credit"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Balance is one classified position: a Debt owes Amount, a Credit is owed it.
// Amount is always positive.
type Balance struct {
	Role        Role   `json:"role"`
	Participant string `json:"participant"`
	Amount      Amount `json:"amount"`
}

// Reconcile folds transfers into expenditure totals. A giver is credited as
// if they had spent the amount; the receiver's total drops by the same
// amount. The input listing is not modified.
func Reconcile(transfers []Transfer, totals Totals) (Totals, error) {
	adjusted := make(Totals, len(totals))
	copy(adjusted, totals)
	index := make(map[string]int, len(adjusted))
	for i, p := range adjusted {
		index[p.Participant] = i
	}
	for _, tr := range transfers {
		gi, ok := index[tr.Giver]
		if !ok {
			return nil, fmt.Errorf("%w: giver %s", ErrUnknownParticipant, tr.Giver)
		}
		ri, ok := index[tr.Receiver]
		if !ok {
			return nil, fmt.Errorf("%w: receiver %s", ErrUnknownParticipant, tr.Receiver)
		}
		adjusted[gi].Amount = adjusted[gi].Amount.Add(tr.Amount)
		adjusted[ri].Amount = adjusted[ri].Amount.Sub(tr.Amount)
	}
	return adjusted, nil
}

// NetPositions returns adjusted total minus expected contribution for every
// participant, settled ones included.
func NetPositions(adjusted Totals, expected Amount) Totals {
	out := make(Totals, 0, len(adjusted))
	for _, p := range adjusted {
		out = append(out, Position{Participant: p.Participant, Amount: p.Amount.Sub(expected)})
	}
	return out
}

// Balances classifies adjusted totals against the expected contribution.
// Settled participants are omitted. Order follows the adjusted listing.
func Balances(adjusted Totals, expected Amount) []Balance {
	var out []Balance
	for _, p := range adjusted {
		switch diff := p.Amount.Sub(expected); diff.Sign() {
		case 1:
			out = append(out, Balance{Role: Credit, Participant: p.Participant, Amount: diff})
		case -1:
			out = append(out, Balance{Role: Debt, Participant: p.Participant, Amount: diff.Neg()})
		}
	}
	return out
}

// CheckConservation verifies that debts and credits cancel exactly.
func CheckConservation(balances []Balance) error {
	debts, credits := Zero, Zero
	for _, b := range balances {
		if b.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: non-positive %s for %s", ErrInconsistentBalances, b.Role, b.Participant)
		}
		switch b.Role {
		case Debt:
			debts = debts.Add(b.Amount)
		case Credit:
			credits = credits.Add(b.Amount)
		default:
			return fmt.Errorf("%w: unknown role for %s", ErrInconsistentBalances, b.Participant)
		}
	}
	if !debts.Equal(credits) {
		return fmt.Errorf("%w: debts %s, credits %s", ErrInconsistentBalances, debts, credits)
	}
	return nil
}
