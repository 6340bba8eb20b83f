package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/settle"
)

type Event struct {
	ID          int64
	GuildID     int64
	ChannelID   string
	OrganizerID string
	Status      string
}

// RecordRow is a stored batch record.
type RecordRow struct {
	ID         int64
	EventID    int64
	Record     settle.Record
	Memo       string
	RecordedBy string
}

type SettlementTaskRow struct {
	PayerID string
	PayeeID string
	Amount  decimal.Decimal
}

// CreateEvent creates a new active event for a channel.
func (db *DB) CreateEvent(ctx context.Context, guildID int64, channelID, organizerID string) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO settle_events (guild_id, channel_id, organizer_id, status)
         VALUES ($1, $2, $3, 'active')
         RETURNING id`,
		guildID, channelID, organizerID,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CloseEvent sets the event status to closed.
func (db *DB) CloseEvent(ctx context.Context, eventID int64) error {
	ct, err := db.pool.Exec(ctx, `UPDATE settle_events SET status = 'closed', closed_at = CURRENT_TIMESTAMP WHERE id = $1`, eventID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("event not found")
	}
	return nil
}

// ActiveEventByChannel returns the active event for the given channel, or nil if there is none.
func (db *DB) ActiveEventByChannel(ctx context.Context, channelID string) (*Event, error) {
	row := db.pool.QueryRow(ctx, `SELECT id, guild_id, channel_id, organizer_id, status FROM settle_events WHERE channel_id = $1 AND status = 'active' LIMIT 1`, channelID)
	var ev Event
	if err := row.Scan(&ev.ID, &ev.GuildID, &ev.ChannelID, &ev.OrganizerID, &ev.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ev, nil
}

// AddRecord appends a spent/gave record to an event.
func (db *DB) AddRecord(ctx context.Context, eventID int64, rec settle.Record, memo, recordedBy string) (int64, error) {
	var receiver *string
	if rec.Kind == settle.KindGave {
		receiver = &rec.Receiver
	}
	var id int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO settle_records (event_id, kind, participant_id, amount, receiver_id, memo, recorded_by)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING id`,
		eventID, rec.Kind.String(), rec.Participant, rec.Amount.String(), receiver, memo, recordedBy,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Records returns the records of an event in insertion order.
func (db *DB) Records(ctx context.Context, eventID int64) ([]RecordRow, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, event_id, kind, participant_id, amount::text, COALESCE(receiver_id, ''), COALESCE(memo, ''), COALESCE(recorded_by, '')
		 FROM settle_records WHERE event_id = $1 ORDER BY id`,
		eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var (
			r      RecordRow
			kind   string
			amount string
		)
		if err := rows.Scan(&r.ID, &r.EventID, &kind, &r.Record.Participant, &amount, &r.Record.Receiver, &r.Memo, &r.RecordedBy); err != nil {
			return nil, err
		}
		switch kind {
		case "spent":
			r.Record.Kind = settle.KindSpent
		case "gave":
			r.Record.Kind = settle.KindGave
		default:
			return nil, fmt.Errorf("record %d: unknown kind %q", r.ID, kind)
		}
		if r.Record.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("record %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetSettlementTasks replaces tasks for an event.
func (db *DB) SetSettlementTasks(ctx context.Context, eventID int64, tasks []SettlementTaskRow) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM settle_tasks WHERE event_id = $1`, eventID); err != nil {
		return err
	}
	for _, t := range tasks {
		if !t.Amount.IsPositive() || t.PayerID == "" || t.PayeeID == "" {
			continue
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO settle_tasks (event_id, payer_id, payee_id, amount, completed)
             VALUES ($1, $2, $3, $4, FALSE)`,
			eventID, t.PayerID, t.PayeeID, t.Amount.String(),
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListPendingSettlementTasks returns unsettled tasks for an event.
func (db *DB) ListPendingSettlementTasks(ctx context.Context, eventID int64) ([]SettlementTaskRow, error) {
	return db.queryTaskRows(ctx,
		`SELECT payer_id, payee_id, amount::text
		 FROM settle_tasks
		 WHERE event_id = $1 AND completed = FALSE
		 ORDER BY payer_id, payee_id`,
		eventID,
	)
}

// ListSettlementPaymentsSum returns total settlement payments per payer/payee pair for an event.
func (db *DB) ListSettlementPaymentsSum(ctx context.Context, eventID int64) ([]SettlementTaskRow, error) {
	return db.queryTaskRows(ctx,
		`SELECT payer_id, payee_id, COALESCE(SUM(amount), 0)::text
		 FROM settle_task_payments
		 WHERE event_id = $1
		 GROUP BY payer_id, payee_id
		 ORDER BY payer_id, payee_id`,
		eventID,
	)
}

func (db *DB) queryTaskRows(ctx context.Context, sql string, args ...any) ([]SettlementTaskRow, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SettlementTaskRow
	for rows.Next() {
		var (
			t      SettlementTaskRow
			amount string
		)
		if err := rows.Scan(&t.PayerID, &t.PayeeID, &amount); err != nil {
			return nil, err
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pendingTask struct {
	ID     int64
	Amount decimal.Decimal
}

// scanPending reads (id, amount::text) rows and closes them.
func scanPending(rows pgx.Rows) ([]pendingTask, error) {
	defer rows.Close()

	var tasks []pendingTask
	for rows.Next() {
		var (
			p   pendingTask
			raw string
		)
		if err := rows.Scan(&p.ID, &raw); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		p.Amount = amount
		tasks = append(tasks, p)
	}
	return tasks, rows.Err()
}

// RecordSettlementPayment logs a settlement payment and reduces outstanding tasks (payer -> payee),
// oldest first. Returns the remaining unsettled amount for the pair after applying the payment.
func (db *DB) RecordSettlementPayment(ctx context.Context, eventID int64, payerID, payeeID string, amount decimal.Decimal, memo, recordedBy string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT id, amount::text
		 FROM settle_tasks
		 WHERE event_id = $1 AND completed = FALSE AND payer_id = $2 AND payee_id = $3
		 ORDER BY id FOR UPDATE`,
		eventID, payerID, payeeID,
	)
	if err != nil {
		return decimal.Zero, err
	}
	tasks, err := scanPending(rows)
	if err != nil {
		return decimal.Zero, err
	}

	remainingPayment := amount
	for _, t := range tasks {
		if !remainingPayment.IsPositive() {
			break
		}
		if remainingPayment.GreaterThanOrEqual(t.Amount) {
			remainingPayment = remainingPayment.Sub(t.Amount)
			if _, err := tx.Exec(ctx,
				`UPDATE settle_tasks
				 SET completed = TRUE, completed_at = COALESCE(completed_at, CURRENT_TIMESTAMP)
				 WHERE id = $1`,
				t.ID,
			); err != nil {
				return decimal.Zero, err
			}
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE settle_tasks SET amount = $2 WHERE id = $1`,
			t.ID, t.Amount.Sub(remainingPayment).String(),
		); err != nil {
			return decimal.Zero, err
		}
		remainingPayment = decimal.Zero
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO settle_task_payments (event_id, payer_id, payee_id, amount, memo, recorded_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		eventID, payerID, payeeID, amount.String(), memo, recordedBy,
	); err != nil {
		return decimal.Zero, err
	}

	var remaining string
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)::text
		 FROM settle_tasks
		 WHERE event_id = $1 AND completed = FALSE AND payer_id = $2 AND payee_id = $3`,
		eventID, payerID, payeeID,
	).Scan(&remaining); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromString(remaining)
}

// CompleteTask marks the oldest open task between two users (either direction) as done.
func (db *DB) CompleteTask(ctx context.Context, eventID int64, a, b string) (bool, error) {
	ct, err := db.pool.Exec(ctx,
		`UPDATE settle_tasks SET completed = TRUE, completed_at = CURRENT_TIMESTAMP
		 WHERE id = (
			SELECT id FROM settle_tasks
			WHERE event_id = $1 AND completed = FALSE
			  AND ((payer_id = $2 AND payee_id = $3) OR (payer_id = $3 AND payee_id = $2))
			ORDER BY id LIMIT 1
		 )`,
		eventID, a, b,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
