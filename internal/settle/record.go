package settle

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind tags a batch record.
type Kind int

const (
	KindSpent Kind = iota + 1
	KindGave
)

func (k Kind) String() string {
	switch k {
	case KindSpent:
		return "spent"
	case KindGave:
		return "gave"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Record is one input fact. For KindSpent only Participant and Amount are
// used; for KindGave Participant is the giver and Receiver the recipient.
type Record struct {
	Kind        Kind
	Participant string
	Amount      decimal.Decimal
	Receiver    string
}

// Spent builds an expenditure record.
func Spent(participant string, amount decimal.Decimal) Record {
	return Record{Kind: KindSpent, Participant: participant, Amount: amount}
}

// Gave builds a transfer record.
func Gave(giver string, amount decimal.Decimal, receiver string) Record {
	return Record{Kind: KindGave, Participant: giver, Amount: amount, Receiver: receiver}
}

func (r Record) String() string {
	if r.Kind == KindGave {
		return fmt.Sprintf("%s gave %s to %s", r.Participant, r.Amount, r.Receiver)
	}
	return fmt.Sprintf("%s spent %s", r.Participant, r.Amount)
}

// Validate checks a single record.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Participant) == "" {
		return fmt.Errorf("%w: blank name", ErrInvalidParticipant)
	}
	switch r.Kind {
	case KindSpent:
		if r.Amount.IsNegative() {
			return fmt.Errorf("%w: %s spent %s", ErrInvalidAmount, r.Participant, r.Amount)
		}
	case KindGave:
		if strings.TrimSpace(r.Receiver) == "" {
			return fmt.Errorf("%w: blank receiver", ErrInvalidParticipant)
		}
		if !r.Amount.IsPositive() {
			return fmt.Errorf("%w: %s gave %s", ErrInvalidAmount, r.Participant, r.Amount)
		}
		if r.Participant == r.Receiver {
			return fmt.Errorf("%w: %s gave to themself", ErrInvalidAmount, r.Participant)
		}
	default:
		return fmt.Errorf("unsupported record kind %v", r.Kind)
	}
	return nil
}

// Validate checks every record of a batch and returns the first failure
// wrapped in a *RecordError.
func Validate(batch []Record) error {
	for i, r := range batch {
		if err := r.Validate(); err != nil {
			return &RecordError{Index: i, Err: err}
		}
	}
	return nil
}

// Transfer is a validated peer-to-peer payment.
type Transfer struct {
	Giver    string
	Amount   Amount
	Receiver string
}
