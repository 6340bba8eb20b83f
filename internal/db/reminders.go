package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ReminderDue is an active event whose unpaid tasks should be posted again.
type ReminderDue struct {
	EventID         int64
	ChannelID       string
	IntervalMinutes int
}

// UpsertReminder enables or disables reminders for an event. A nil nextDueAt
// keeps the current schedule.
func (db *DB) UpsertReminder(ctx context.Context, eventID int64, enabled bool, intervalMinutes int, nextDueAt *time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO settle_reminders (event_id, enabled, interval_minutes, next_due_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO UPDATE SET
		   enabled = EXCLUDED.enabled,
		   interval_minutes = EXCLUDED.interval_minutes,
		   next_due_at = COALESCE(EXCLUDED.next_due_at, settle_reminders.next_due_at)`,
		eventID, enabled, intervalMinutes, nextDueAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reminder for event %d: %w", eventID, err)
	}
	return nil
}

// DueReminders lists active events with open tasks whose reminder is due at now.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]ReminderDue, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT r.event_id, e.channel_id, r.interval_minutes
		 FROM settle_reminders r
		 JOIN settle_events e ON e.id = r.event_id AND e.status = 'active'
		 WHERE r.enabled
		   AND (r.next_due_at IS NULL OR r.next_due_at <= $1)
		   AND EXISTS (SELECT 1 FROM settle_tasks t WHERE t.event_id = r.event_id AND NOT t.completed)
		 ORDER BY r.next_due_at NULLS FIRST, r.event_id`,
		now,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[ReminderDue])
}

// MarkReminderSent records a delivery and schedules the next one.
func (db *DB) MarkReminderSent(ctx context.Context, eventID int64, sentAt, nextDue time.Time) error {
	return db.reschedule(ctx, eventID, nextDue, &sentAt)
}

// DelayReminder pushes the next attempt back after a failed delivery.
func (db *DB) DelayReminder(ctx context.Context, eventID int64, nextDue time.Time) error {
	return db.reschedule(ctx, eventID, nextDue, nil)
}

func (db *DB) reschedule(ctx context.Context, eventID int64, nextDue time.Time, sentAt *time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE settle_reminders
		 SET next_due_at = $2, last_sent_at = COALESCE($3, last_sent_at)
		 WHERE event_id = $1`,
		eventID, nextDue, sentAt,
	)
	return err
}
