package settle

import "fmt"

// Ledger holds the facts of one solve request and answers aggregate
// queries. It is read-only after NewLedger returns.
type Ledger struct {
	participants []string
	spent        map[string]Amount
	transfers    []Transfer
	total        Amount
}

// NewLedger validates a batch and aggregates it. Participants are kept in
// order of first appearance so that every derived listing is deterministic.
func NewLedger(batch []Record) (*Ledger, error) {
	if err := Validate(batch); err != nil {
		return nil, err
	}
	l := &Ledger{spent: make(map[string]Amount)}
	for _, r := range batch {
		amt := NewAmount(r.Amount)
		switch r.Kind {
		case KindSpent:
			l.add(r.Participant)
			l.spent[r.Participant] = l.spent[r.Participant].Add(amt)
			l.total = l.total.Add(amt)
		case KindGave:
			l.add(r.Participant)
			l.add(r.Receiver)
			l.transfers = append(l.transfers, Transfer{Giver: r.Participant, Amount: amt, Receiver: r.Receiver})
		}
	}
	return l, nil
}

func (l *Ledger) add(name string) {
	if _, ok := l.spent[name]; ok {
		return
	}
	l.spent[name] = Zero
	l.participants = append(l.participants, name)
}

// TotalSpent sums the expenditures of one participant.
func (l *Ledger) TotalSpent(person string) (Amount, error) {
	amt, ok := l.spent[person]
	if !ok {
		return Zero, fmt.Errorf("%w: %s", ErrUnknownParticipant, person)
	}
	return amt, nil
}

// TotalCost sums every expenditure. Transfers are not costs.
func (l *Ledger) TotalCost() Amount { return l.total }

// Participants returns everyone named in the batch, in first-seen order.
func (l *Ledger) Participants() []string {
	out := make([]string, len(l.participants))
	copy(out, l.participants)
	return out
}

// Transfers returns the recorded transfers in batch order.
func (l *Ledger) Transfers() []Transfer {
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}

// ExpectedContribution is the fair share: total cost over participant count.
func (l *Ledger) ExpectedContribution() (Amount, error) {
	if len(l.participants) == 0 {
		return Zero, ErrNoParticipants
	}
	return l.total.DivInt(len(l.participants)), nil
}

// ExpenditureTotals returns every participant's TotalSpent in order.
func (l *Ledger) ExpenditureTotals() Totals {
	out := make(Totals, 0, len(l.participants))
	for _, p := range l.participants {
		out = append(out, Position{Participant: p, Amount: l.spent[p]})
	}
	return out
}
