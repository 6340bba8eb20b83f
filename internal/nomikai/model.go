package nomikai

import "github.com/susu3304/warikan/internal/settle"

type Session struct {
	ChannelID string
	EventID   int64 // 0 when the session is not persisted
	Active    bool
	Entries   []Entry
	Tasks     []SettlementTask
}

// Entry is one recorded fact plus who typed it.
type Entry struct {
	Record   settle.Record
	Memo     string
	AuthorID string
}

type SettlementTask struct {
	PayerID   string
	PayeeID   string
	Amount    settle.Amount
	Completed bool
}

type SettleResult struct {
	Plan    settle.Plan
	Tasks   []SettlementTask
	Summary string
}

type PlansResult struct {
	Plans []settle.Plan
	// Truncated is set when the search stopped at its node budget.
	Truncated bool
	Summary   string
}

func (s *Session) records() []settle.Record {
	out := make([]settle.Record, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Record
	}
	return out
}

func (s *Session) hasMember(userID string) bool {
	for _, e := range s.Entries {
		if e.Record.Participant == userID || e.Record.Receiver == userID {
			return true
		}
	}
	return false
}
