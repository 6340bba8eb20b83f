package bot

import (
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/nomikai"
	"github.com/susu3304/warikan/internal/render"
	"github.com/susu3304/warikan/internal/settle"
)

type Bot struct {
	session  *discordgo.Session
	db       *db.DB
	nomikai  *nomikai.Service
	format   render.Formatter
	strategy settle.Strategy
	reminder *reminderWorker
}

type Options struct {
	Format   render.Formatter
	Strategy settle.Strategy
	// ReminderTick is how often due reminders are checked.
	ReminderTick time.Duration
}

func New(token string, database *db.DB, svc *nomikai.Service, opts Options) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:  session,
		db:       database,
		nomikai:  svc,
		format:   opts.Format,
		strategy: opts.Strategy,
	}
	if database != nil {
		bot.reminder = newReminderWorker(session, database, svc)
		if opts.ReminderTick > 0 {
			bot.reminder.interval = opts.ReminderTick
		}
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.reminder.start()
	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.reminder.stop()
	return b.session.Close()
}
