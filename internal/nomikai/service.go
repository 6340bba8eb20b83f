package nomikai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/render"
	"github.com/susu3304/warikan/internal/settle"
)

var (
	ErrNoSession       = errors.New("セッションが開始されていません")
	ErrSessionNotFound = errors.New("セッションが存在しません")
	ErrSessionActive   = errors.New("既に開始されています")
	ErrFewMembers      = errors.New("参加者が2人以上必要です")
	ErrNoStore         = errors.New("永続化ストアが設定されていません")
	ErrPlanTimeout     = errors.New("精算案の探索が時間内に終わりませんでした")
)

// planSearchLimit bounds how many distinct plans Plans ranks.
const planSearchLimit = 5000


// Store persists sessions. *db.DB satisfies it.
type Store interface {
	CreateEvent(ctx context.Context, guildID int64, channelID, organizerID string) (int64, error)
	ActiveEventByChannel(ctx context.Context, channelID string) (*db.Event, error)
	CloseEvent(ctx context.Context, eventID int64) error
	AddRecord(ctx context.Context, eventID int64, rec settle.Record, memo, recordedBy string) (int64, error)
	Records(ctx context.Context, eventID int64) ([]db.RecordRow, error)
	SetSettlementTasks(ctx context.Context, eventID int64, tasks []db.SettlementTaskRow) error
	ListPendingSettlementTasks(ctx context.Context, eventID int64) ([]db.SettlementTaskRow, error)
	CompleteTask(ctx context.Context, eventID int64, a, b string) (bool, error)
	UpsertReminder(ctx context.Context, eventID int64, enabled bool, intervalMinutes int, nextDueAt *time.Time) error
}

type Options struct {
	Store            Store // nil keeps sessions in memory only
	Strategy         settle.Strategy
	Format           render.Formatter
	MaxPlans         int
	Workers          int
	SearchNodes      int // node budget of Plans; 0 uses the default
	ReminderInterval int // minutes; 0 disables reminders
}

type Service struct {
	mu       sync.Mutex
	sessions map[string]*Session
	store    Store
	strategy settle.Strategy
	format   render.Formatter
	maxPlans int
	workers  int
	nodes    int
	interval int
}

func NewService(opts Options) *Service {
	s := &Service{
		sessions: make(map[string]*Session),
		store:    opts.Store,
		strategy: opts.Strategy,
		format:   opts.Format,
		maxPlans: opts.MaxPlans,
		workers:  opts.Workers,
		nodes:    opts.SearchNodes,
		interval: opts.ReminderInterval,
	}
	if s.strategy == 0 {
		s.strategy = settle.FirstAvailable
	}
	if s.maxPlans < 1 {
		s.maxPlans = 20
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.nodes < 1 {
		s.nodes = settle.DefaultMaxNodes
	}
	s.format.Mention = true
	return s
}

// StartSession opens a session for the channel. With a store, the active
// event of the channel is resumed and its records are restored; the number
// of restored records is returned.
func (s *Service) StartSession(ctx context.Context, guildID int64, channelID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok && sess.Active {
		return 0, ErrSessionActive
	}
	sess := &Session{ChannelID: channelID, Active: true}
	if s.store != nil {
		ev, err := s.store.ActiveEventByChannel(ctx, channelID)
		if err != nil {
			return 0, fmt.Errorf("イベントの取得に失敗しました: %w", err)
		}
		if ev != nil {
			if err := s.restore(ctx, sess, ev.ID); err != nil {
				return 0, err
			}
		} else {
			id, err := s.store.CreateEvent(ctx, guildID, channelID, userID)
			if err != nil {
				return 0, fmt.Errorf("イベントの作成に失敗しました: %w", err)
			}
			sess.EventID = id
		}
	}
	s.sessions[channelID] = sess
	return len(sess.Entries), nil
}

func (s *Service) restore(ctx context.Context, sess *Session, eventID int64) error {
	sess.EventID = eventID
	rows, err := s.store.Records(ctx, eventID)
	if err != nil {
		return fmt.Errorf("記録の復元に失敗しました: %w", err)
	}
	for _, r := range rows {
		sess.Entries = append(sess.Entries, Entry{Record: r.Record, Memo: r.Memo, AuthorID: r.RecordedBy})
	}
	tasks, err := s.store.ListPendingSettlementTasks(ctx, eventID)
	if err != nil {
		return fmt.Errorf("支払タスクの復元に失敗しました: %w", err)
	}
	for _, t := range tasks {
		sess.Tasks = append(sess.Tasks, SettlementTask{PayerID: t.PayerID, PayeeID: t.PayeeID, Amount: settle.NewAmount(t.Amount)})
	}
	return nil
}

func (s *Service) StopSession(ctx context.Context, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[channelID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.store != nil && sess.EventID != 0 {
		if err := s.store.CloseEvent(ctx, sess.EventID); err != nil {
			return fmt.Errorf("イベントの終了に失敗しました: %w", err)
		}
	}
	delete(s.sessions, channelID)
	return nil
}

func (s *Service) active(channelID string) (*Session, error) {
	sess, ok := s.sessions[channelID]
	if !ok || !sess.Active {
		return nil, ErrNoSession
	}
	return sess, nil
}

// add validates and appends an entry, persisting it first when a store is set.
func (s *Service) add(ctx context.Context, sess *Session, e Entry) error {
	if err := e.Record.Validate(); err != nil {
		return fmt.Errorf("記録できません: %w", err)
	}
	if s.store != nil && sess.EventID != 0 {
		if _, err := s.store.AddRecord(ctx, sess.EventID, e.Record, e.Memo, e.AuthorID); err != nil {
			return fmt.Errorf("記録の保存に失敗しました: %w", err)
		}
	}
	sess.Entries = append(sess.Entries, e)
	return nil
}

// Join registers a member who shares the cost. It records a zero spend so
// that a member who never paid still counts towards the fair share.
func (s *Service) Join(ctx context.Context, channelID, userID, authorID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return false, err
	}
	if sess.hasMember(userID) {
		return false, nil
	}
	if err := s.add(ctx, sess, Entry{Record: settle.Spent(userID, decimal.Zero), AuthorID: authorID}); err != nil {
		return false, err
	}
	return true, nil
}

// AddSpent records an expenditure. Returns true when the payer was not a
// member yet.
func (s *Service) AddSpent(ctx context.Context, channelID, userID string, amount decimal.Decimal, memo, authorID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return false, err
	}
	joined := !sess.hasMember(userID)
	if err := s.add(ctx, sess, Entry{Record: settle.Spent(userID, amount), Memo: memo, AuthorID: authorID}); err != nil {
		return false, err
	}
	return joined, nil
}

// AddGave records a direct transfer between two members. Returns the IDs
// that joined because of it.
func (s *Service) AddGave(ctx context.Context, channelID, giverID, receiverID string, amount decimal.Decimal, memo, authorID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return nil, err
	}
	var joined []string
	for _, id := range []string{giverID, receiverID} {
		if !sess.hasMember(id) {
			joined = append(joined, id)
		}
	}
	if err := s.add(ctx, sess, Entry{Record: settle.Gave(giverID, amount, receiverID), Memo: memo, AuthorID: authorID}); err != nil {
		return nil, err
	}
	return joined, nil
}

func (s *Service) Status(channelID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return ErrNoSession.Error(), nil
	}
	if len(sess.Entries) == 0 {
		return "参加者がいません", nil
	}
	r, err := settle.Analyze(sess.records())
	if err != nil {
		return "", err
	}
	f := s.format
	var b strings.Builder
	fmt.Fprintf(&b, "総支出: %s\n", f.Amount(r.TotalCost))
	fmt.Fprintf(&b, "一人あたり: %s (%d名)\n", f.Amount(r.Expected), len(r.Participants))
	for _, p := range r.Net {
		spent, _ := r.Spent.Get(p.Participant)
		net := f.Amount(p.Amount)
		if p.Amount.Sign() > 0 {
			net = "+" + net
		}
		fmt.Fprintf(&b, "%s paid=%s balance=%s\n", f.Name(p.Participant), f.Amount(spent), net)
	}
	var open int
	for _, t := range sess.Tasks {
		if !t.Completed {
			open++
		}
	}
	if open > 0 {
		fmt.Fprintf(&b, "未完了の支払タスク: %d 件\n", open)
	}
	return b.String(), nil
}

// Members returns the participant user IDs in order of first appearance.
func (s *Service) Members(channelID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return nil, err
	}
	l, err := settle.NewLedger(sess.records())
	if err != nil {
		return nil, err
	}
	return l.Participants(), nil
}

func (s *Service) analyze(sess *Session) (*settle.Report, error) {
	r, err := settle.Analyze(sess.records())
	if err != nil {
		if errors.Is(err, settle.ErrNoParticipants) {
			return nil, ErrFewMembers
		}
		return nil, err
	}
	if len(r.Participants) < 2 {
		return nil, ErrFewMembers
	}
	return r, nil
}

// Settle computes one plan with the configured strategy and stores it as
// the session's payment tasks.
func (s *Service) Settle(ctx context.Context, channelID string) (*SettleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return nil, err
	}
	r, err := s.analyze(sess)
	if err != nil {
		return nil, err
	}
	plan, err := settle.Settle(r.Balances, s.strategy)
	if err != nil {
		return nil, err
	}

	tasks := make([]SettlementTask, 0, len(plan))
	rows := make([]db.SettlementTaskRow, 0, len(plan))
	for _, in := range plan {
		tasks = append(tasks, SettlementTask{PayerID: in.Payer, PayeeID: in.Payee, Amount: in.Amount})
		rows = append(rows, db.SettlementTaskRow{PayerID: in.Payer, PayeeID: in.Payee, Amount: storeDecimal(in.Amount)})
	}
	if s.store != nil && sess.EventID != 0 {
		if err := s.store.SetSettlementTasks(ctx, sess.EventID, rows); err != nil {
			return nil, fmt.Errorf("支払タスクの保存に失敗しました: %w", err)
		}
		if s.interval > 0 && len(rows) > 0 {
			next := time.Now().Add(time.Duration(s.interval) * time.Minute)
			if err := s.store.UpsertReminder(ctx, sess.EventID, true, s.interval, &next); err != nil {
				return nil, fmt.Errorf("リマインダーの設定に失敗しました: %w", err)
			}
		}
	}
	sess.Tasks = tasks

	var b strings.Builder
	if len(plan) == 0 {
		b.WriteString("精算は不要です")
	} else {
		b.WriteString("支払タスク:\n")
		for _, in := range plan {
			fmt.Fprintf(&b, "%s\n", s.format.Instruction(in))
		}
	}
	return &SettleResult{Plan: plan, Tasks: tasks, Summary: b.String()}, nil
}

// Plans lists alternative settlement plans, shortest first. limit <= 0 or
// above the configured maximum is clamped to the maximum.
func (s *Service) Plans(ctx context.Context, channelID string, limit int) (*PlansResult, error) {
	s.mu.Lock()
	sess, err := s.active(channelID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	r, err := s.analyze(sess)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > s.maxPlans {
		limit = s.maxPlans
	}
	plans, err := settle.EnumerateParallel(ctx, r.Balances, settle.ParallelOptions{
		Workers:  s.workers,
		Limit:    planSearchLimit,
		Distinct: true,
		MaxNodes: s.nodes,
	})
	truncated := errors.Is(err, settle.ErrSearchLimit)
	switch {
	case truncated:
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ErrPlanTimeout
	case err != nil:
		return nil, err
	}
	settle.SortPlans(plans)
	if len(plans) > limit {
		plans = plans[:limit]
	}

	var b strings.Builder
	if len(plans) == 1 && len(plans[0]) == 0 {
		b.WriteString("精算は不要です")
		return &PlansResult{Plans: plans, Summary: b.String()}, nil
	}
	fmt.Fprintf(&b, "精算案 (%d件):\n", len(plans))
	if truncated {
		b.WriteString("※参加者が多いため、探索できた範囲の案のみ表示しています\n")
	}
	for i, p := range plans {
		fmt.Fprintf(&b, "案%d (%d回):\n", i+1, len(p))
		for _, in := range p {
			fmt.Fprintf(&b, "  %s\n", s.format.Instruction(in))
		}
	}
	return &PlansResult{Plans: plans, Truncated: truncated, Summary: b.String()}, nil
}

func (s *Service) CompleteTask(ctx context.Context, channelID, actorID, otherID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.active(channelID)
	if err != nil {
		return ErrNoSession.Error(), nil
	}
	for idx := range sess.Tasks {
		t := &sess.Tasks[idx]
		if t.Completed {
			continue
		}
		if (t.PayerID == actorID && t.PayeeID == otherID) || (t.PayerID == otherID && t.PayeeID == actorID) {
			if s.store != nil && sess.EventID != 0 {
				if _, err := s.store.CompleteTask(ctx, sess.EventID, actorID, otherID); err != nil {
					return "", fmt.Errorf("完了の保存に失敗しました: %w", err)
				}
			}
			t.Completed = true
			return fmt.Sprintf("完了しました: <@%s> ↔ <@%s> %s", t.PayerID, t.PayeeID, s.format.Amount(t.Amount)), nil
		}
	}
	return "対象のタスクが見つかりません", nil
}

// ReminderMessageByEventID builds the reminder text for a stored event. An
// empty string means nothing is pending.
func (s *Service) ReminderMessageByEventID(ctx context.Context, eventID int64) (string, error) {
	if s.store == nil {
		return "", ErrNoStore
	}
	tasks, err := s.store.ListPendingSettlementTasks(ctx, eventID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("未完了の支払タスクがあります:\n")
	for _, t := range tasks {
		in := settle.Instruction{Payer: t.PayerID, Amount: settle.NewAmount(t.Amount), Payee: t.PayeeID}
		fmt.Fprintf(&b, "%s\n", s.format.Instruction(in))
	}
	b.WriteString("支払ったら `/warikan done` で完了にしてください")
	return b.String(), nil
}

// storeDecimal converts an exact amount for NUMERIC storage. Amounts
// without a finite decimal expansion are kept to eight places.
func storeDecimal(a settle.Amount) decimal.Decimal {
	if a.Exact() {
		if d, err := decimal.NewFromString(a.String()); err == nil {
			return d
		}
	}
	return a.Decimal(8)
}
