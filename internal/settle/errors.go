package settle

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParticipants is returned when a batch names nobody, so the
	// expected contribution is undefined.
	ErrNoParticipants = errors.New("no participants")
	// ErrUnknownParticipant is returned when a record or query references
	// someone outside the ledger's participant set.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrInconsistentBalances signals that debts and credits no longer
	// cancel. It is an internal-consistency failure, not an input error.
	ErrInconsistentBalances = errors.New("inconsistent balances")
	// ErrInvalidAmount rejects negative spending, non-positive transfers
	// and transfers to oneself.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidParticipant rejects records with a blank name.
	ErrInvalidParticipant = errors.New("invalid participant")
	// ErrInvalidPlan is returned by Verify.
	ErrInvalidPlan = errors.New("invalid plan")
	// ErrSearchLimit stops an enumeration that visited its node budget.
	// Plans found before the limit are returned alongside it.
	ErrSearchLimit = errors.New("search limit reached")
)

// RecordError reports which record of a batch was rejected.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index+1, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsInternal reports whether err is an internal-consistency failure rather
// than a problem with the caller's input.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInconsistentBalances)
}
