package bot

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/db"
)

const (
	reminderFooter   = "\n\n※このメッセージは自動投稿です"
	reminderBackoff  = 2 * time.Minute
	sendTimeout      = 12 * time.Second
	sendAttempts     = 2
	defaultTickEvery = time.Minute
)

type reminderSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type reminderStore interface {
	DueReminders(ctx context.Context, now time.Time) ([]db.ReminderDue, error)
	MarkReminderSent(ctx context.Context, eventID int64, sentAt time.Time, nextDue time.Time) error
	DelayReminder(ctx context.Context, eventID int64, nextDue time.Time) error
}

type reminderMessages interface {
	ReminderMessageByEventID(ctx context.Context, eventID int64) (string, error)
}

// reminderWorker posts the unpaid settlement tasks of each event to its
// channel once per configured interval.
type reminderWorker struct {
	store    reminderStore
	messages reminderMessages
	session  reminderSession
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func newReminderWorker(session reminderSession, store reminderStore, messages reminderMessages) *reminderWorker {
	return &reminderWorker{
		store:    store,
		messages: messages,
		session:  session,
		interval: defaultTickEvery,
	}
}

func (w *reminderWorker) start() {
	if w == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx)
}

// stop blocks until the current tick has finished.
func (w *reminderWorker) stop() {
	if w == nil || w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *reminderWorker) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			w.tickAt(ctx, now)
		case <-ctx.Done():
			return
		}
	}
}

func (w *reminderWorker) tickAt(ctx context.Context, now time.Time) {
	due, err := w.store.DueReminders(ctx, now)
	if err != nil {
		log.Printf("reminder: failed to load due reminders: %v", err)
		return
	}
	for _, r := range due {
		if ctx.Err() != nil {
			return
		}
		w.remind(ctx, now, r)
	}
}

func (w *reminderWorker) remind(ctx context.Context, now time.Time, r db.ReminderDue) {
	msg, err := w.messages.ReminderMessageByEventID(ctx, r.EventID)
	if err != nil {
		log.Printf("reminder: failed to build message for event %d: %v", r.EventID, err)
		return
	}
	if msg == "" {
		// Every task is done; the reminder stays due until the event closes.
		return
	}

	if err := w.send(ctx, r.ChannelID, msg+reminderFooter); err != nil {
		log.Printf("reminder: failed to send to channel %s: %v", r.ChannelID, err)
		if derr := w.store.DelayReminder(ctx, r.EventID, now.Add(retryDelay(r.IntervalMinutes))); derr != nil {
			log.Printf("reminder: failed to delay event %d: %v", r.EventID, derr)
		}
		return
	}

	next := now.Add(time.Duration(r.IntervalMinutes) * time.Minute)
	if err := w.store.MarkReminderSent(ctx, r.EventID, now, next); err != nil {
		log.Printf("reminder: failed to mark event %d sent: %v", r.EventID, err)
	}
}

// retryDelay never waits longer than the reminder's own interval.
func retryDelay(intervalMinutes int) time.Duration {
	if intervalMinutes > 0 {
		return min(reminderBackoff, time.Duration(intervalMinutes)*time.Minute)
	}
	return reminderBackoff
}

func (w *reminderWorker) send(ctx context.Context, channelID, content string) error {
	var err error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err = w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil || !isTemporaryOrTimeout(err) {
			return err
		}
		if attempt == sendAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(300+rand.Intn(500)) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isTemporaryOrTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}
