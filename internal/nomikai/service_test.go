package nomikai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/render"
	"github.com/susu3304/warikan/internal/settle"
)

type memTask struct {
	db.SettlementTaskRow
	done bool
}

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	events    map[int64]*db.Event
	records   map[int64][]db.RecordRow
	tasks     map[int64][]memTask
	reminders map[int64]int
	failAdd   bool
}

func newMemStore() *memStore {
	return &memStore{
		events:    make(map[int64]*db.Event),
		records:   make(map[int64][]db.RecordRow),
		tasks:     make(map[int64][]memTask),
		reminders: make(map[int64]int),
	}
}

func (m *memStore) CreateEvent(_ context.Context, guildID int64, channelID, organizerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.events[m.nextID] = &db.Event{ID: m.nextID, GuildID: guildID, ChannelID: channelID, OrganizerID: organizerID, Status: "active"}
	return m.nextID, nil
}

func (m *memStore) ActiveEventByChannel(_ context.Context, channelID string) (*db.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.ChannelID == channelID && ev.Status == "active" {
			cp := *ev
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) CloseEvent(_ context.Context, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return errors.New("event not found")
	}
	ev.Status = "closed"
	return nil
}

func (m *memStore) AddRecord(_ context.Context, eventID int64, rec settle.Record, memo, recordedBy string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAdd {
		return 0, errors.New("connection refused")
	}
	id := int64(len(m.records[eventID]) + 1)
	m.records[eventID] = append(m.records[eventID], db.RecordRow{ID: id, EventID: eventID, Record: rec, Memo: memo, RecordedBy: recordedBy})
	return id, nil
}

func (m *memStore) Records(_ context.Context, eventID int64) ([]db.RecordRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]db.RecordRow(nil), m.records[eventID]...), nil
}

func (m *memStore) SetSettlementTasks(_ context.Context, eventID int64, tasks []db.SettlementTaskRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[eventID] = nil
	for _, t := range tasks {
		m.tasks[eventID] = append(m.tasks[eventID], memTask{SettlementTaskRow: t})
	}
	return nil
}

func (m *memStore) ListPendingSettlementTasks(_ context.Context, eventID int64) ([]db.SettlementTaskRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.SettlementTaskRow
	for _, t := range m.tasks[eventID] {
		if !t.done {
			out = append(out, t.SettlementTaskRow)
		}
	}
	return out, nil
}

func (m *memStore) CompleteTask(_ context.Context, eventID int64, a, b string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks[eventID] {
		t := &m.tasks[eventID][i]
		if t.done {
			continue
		}
		if (t.PayerID == a && t.PayeeID == b) || (t.PayerID == b && t.PayeeID == a) {
			t.done = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpsertReminder(_ context.Context, eventID int64, _ bool, intervalMinutes int, _ *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders[eventID] = intervalMinutes
	return nil
}

func yen(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestService(store Store) *Service {
	return NewService(Options{
		Store:            store,
		Format:           render.Formatter{Symbol: "円"},
		MaxPlans:         5,
		Workers:          2,
		ReminderInterval: 60,
	})
}

// seed: 111 paid 300 for three people.
func seed(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.StartSession(ctx, 1, "ch", "111")
	require.NoError(t, err)
	joined, err := svc.AddSpent(ctx, "ch", "111", yen(300), "dinner", "111")
	require.NoError(t, err)
	assert.True(t, joined)
	for _, id := range []string{"222", "333"} {
		joined, err := svc.Join(ctx, "ch", id, "111")
		require.NoError(t, err)
		assert.True(t, joined)
	}
}

func TestServiceSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	_, err := svc.Join(ctx, "ch", "111", "111")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, svc.StopSession(ctx, "ch"), ErrSessionNotFound)

	_, err = svc.StartSession(ctx, 1, "ch", "111")
	require.NoError(t, err)
	_, err = svc.StartSession(ctx, 1, "ch", "111")
	assert.ErrorIs(t, err, ErrSessionActive)

	require.NoError(t, svc.StopSession(ctx, "ch"))
	_, err = svc.Members("ch")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestServiceJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	seed(t, svc)

	joined, err := svc.Join(ctx, "ch", "222", "222")
	require.NoError(t, err)
	assert.False(t, joined)

	ids, err := svc.Members("ch")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222", "333"}, ids)
}

func TestServiceRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	seed(t, svc)

	_, err := svc.AddSpent(ctx, "ch", "222", yen(-10), "", "222")
	assert.ErrorIs(t, err, settle.ErrInvalidAmount)

	_, err = svc.AddGave(ctx, "ch", "222", "222", yen(10), "", "222")
	assert.ErrorIs(t, err, settle.ErrInvalidAmount)

	ids, err := svc.Members("ch")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestServiceSettle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	seed(t, svc)

	res, err := svc.Settle(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, "支払タスク:\n<@222> → <@111>: 100 円\n<@333> → <@111>: 100 円\n", res.Summary)
	require.Len(t, res.Tasks, 2)
	assert.True(t, res.Tasks[0].Amount.Equal(settle.AmountFromInt(100)))

	msg, err := svc.CompleteTask(ctx, "ch", "111", "222")
	require.NoError(t, err)
	assert.Equal(t, "完了しました: <@222> ↔ <@111> 100 円", msg)

	msg, err = svc.CompleteTask(ctx, "ch", "111", "222")
	require.NoError(t, err)
	assert.Equal(t, "対象のタスクが見つかりません", msg)

	status, err := svc.Status("ch")
	require.NoError(t, err)
	assert.Contains(t, status, "未完了の支払タスク: 1 件")
}

func TestServiceSettleNeedsTwoMembers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	_, err := svc.StartSession(ctx, 1, "ch", "111")
	require.NoError(t, err)

	_, err = svc.Settle(ctx, "ch")
	assert.ErrorIs(t, err, ErrFewMembers)

	_, err = svc.AddSpent(ctx, "ch", "111", yen(100), "", "111")
	require.NoError(t, err)
	_, err = svc.Settle(ctx, "ch")
	assert.ErrorIs(t, err, ErrFewMembers)
}

func TestServiceSettleWithTransfer(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	seed(t, svc)

	joined, err := svc.AddGave(ctx, "ch", "222", "111", yen(100), "立替分", "222")
	require.NoError(t, err)
	assert.Empty(t, joined)

	res, err := svc.Settle(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, "支払タスク:\n<@333> → <@111>: 100 円\n", res.Summary)
}

func TestServiceSettleNothingToDo(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	_, err := svc.StartSession(ctx, 1, "ch", "111")
	require.NoError(t, err)
	for _, id := range []string{"111", "222"} {
		_, err := svc.AddSpent(ctx, "ch", id, yen(500), "", id)
		require.NoError(t, err)
	}

	res, err := svc.Settle(ctx, "ch")
	require.NoError(t, err)
	assert.Empty(t, res.Tasks)
	assert.Equal(t, "精算は不要です", res.Summary)

	plans, err := svc.Plans(ctx, "ch", 0)
	require.NoError(t, err)
	assert.Equal(t, "精算は不要です", plans.Summary)
}

func TestServiceStatus(t *testing.T) {
	svc := newTestService(nil)
	seed(t, svc)

	status, err := svc.Status("ch")
	require.NoError(t, err)
	assert.Contains(t, status, "総支出: 300 円\n")
	assert.Contains(t, status, "一人あたり: 100 円 (3名)\n")
	assert.Contains(t, status, "<@111> paid=300 円 balance=+200 円\n")
	assert.Contains(t, status, "<@222> paid=0 円 balance=-100 円\n")

	msg, err := svc.Status("other")
	require.NoError(t, err)
	assert.Equal(t, ErrNoSession.Error(), msg)
}

func TestServicePlans(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	seed(t, svc)

	res, err := svc.Plans(ctx, "ch", 10)
	require.NoError(t, err)
	require.Len(t, res.Plans, 1)
	assert.Equal(t, "精算案 (1件):\n案1 (2回):\n  <@222> → <@111>: 100 円\n  <@333> → <@111>: 100 円\n", res.Summary)
}

func TestServicePlansShortestFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)
	_, err := svc.StartSession(ctx, 1, "ch", "a")
	require.NoError(t, err)
	// fair share 100: a +50, b +50, c -50, d -50
	for id, amt := range map[string]int64{"a": 150, "b": 150, "c": 50, "d": 50} {
		_, err := svc.AddSpent(ctx, "ch", id, yen(amt), "", id)
		require.NoError(t, err)
	}

	res, err := svc.Plans(ctx, "ch", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Plans)
	assert.LessOrEqual(t, len(res.Plans), 5)
	for i := 1; i < len(res.Plans); i++ {
		assert.LessOrEqual(t, len(res.Plans[i-1]), len(res.Plans[i]))
	}
	assert.Len(t, res.Plans[0], 2)
}

func TestServicePlansOneCreditorManyDebtors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc := newTestService(nil)
	_, err := svc.StartSession(ctx, 1, "ch", "payer")
	require.NoError(t, err)
	_, err = svc.AddSpent(ctx, "ch", "payer", yen(10000), "", "payer")
	require.NoError(t, err)
	for k := 0; k < 12; k++ {
		_, err := svc.Join(ctx, "ch", fmt.Sprintf("m%d", k), "payer")
		require.NoError(t, err)
	}

	start := time.Now()
	res, err := svc.Plans(ctx, "ch", 5)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, res.Plans, 1)
	assert.Len(t, res.Plans[0], 12)
	assert.False(t, res.Truncated)
}

func TestServicePlansTimeout(t *testing.T) {
	svc := newTestService(nil)
	seed(t, svc)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := svc.Plans(ctx, "ch", 5)
	assert.ErrorIs(t, err, ErrPlanTimeout)
}

func TestServicePersistence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	seed(t, svc)

	_, err := svc.Settle(ctx, "ch")
	require.NoError(t, err)
	assert.Equal(t, 60, store.reminders[1])
	require.Len(t, store.tasks[1], 2)
	assert.True(t, store.tasks[1][0].Amount.Equal(yen(100)))

	msg, err := svc.ReminderMessageByEventID(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, msg, "<@222> → <@111>: 100 円\n")
	assert.Contains(t, msg, "<@333> → <@111>: 100 円\n")

	// a restarted service resumes the stored event
	restarted := newTestService(store)
	n, err := restarted.StartSession(ctx, 1, "ch", "111")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	ids, err := restarted.Members("ch")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "222", "333"}, ids)

	done, err := restarted.CompleteTask(ctx, "ch", "333", "111")
	require.NoError(t, err)
	assert.Contains(t, done, "完了しました")
	pending, err := store.ListPendingSettlementTasks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, restarted.StopSession(ctx, "ch"))
	assert.Equal(t, "closed", store.events[1].Status)
}

func TestServiceStoreFailureKeepsMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	seed(t, svc)

	store.failAdd = true
	_, err := svc.AddSpent(ctx, "ch", "222", yen(50), "", "222")
	require.Error(t, err)

	status, err := svc.Status("ch")
	require.NoError(t, err)
	assert.Contains(t, status, "総支出: 300 円\n")
}

func TestReminderMessageWithoutStore(t *testing.T) {
	svc := newTestService(nil)
	_, err := svc.ReminderMessageByEventID(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestStoreDecimal(t *testing.T) {
	assert.Equal(t, "12.5", storeDecimal(settle.AmountFromInt(25).DivInt(2)).String())
	assert.Equal(t, "33.33333333", storeDecimal(settle.AmountFromInt(100).DivInt(3)).String())
}
