package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/susu3304/warikan/internal/api"
	"github.com/susu3304/warikan/internal/bot"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/nomikai"
	"github.com/susu3304/warikan/internal/render"
	"github.com/susu3304/warikan/internal/settle"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
	log.Println("Shut down cleanly")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	format := render.Formatter{Symbol: cfg.CurrencySymbol, Places: cfg.CurrencyPlaces}
	svc := nomikai.NewService(nomikai.Options{
		Store:            database,
		Strategy:         settle.FirstAvailable,
		Format:           format,
		MaxPlans:         cfg.MaxPlans,
		SearchNodes:      cfg.SearchNodes,
		Workers:          cfg.SolveWorkers,
		ReminderInterval: cfg.ReminderInterval,
	})

	discordBot, err := bot.New(cfg.DiscordToken, database, svc, bot.Options{
		Format:   format,
		Strategy: settle.FirstAvailable,
	})
	if err != nil {
		return err
	}
	if err := discordBot.Start(); err != nil {
		return err
	}
	defer func() {
		if err := discordBot.Stop(); err != nil {
			log.Printf("Failed to close discord session: %v", err)
		}
	}()

	// The API stops with the process; a listen failure does not stop the bot.
	if err := api.New(cfg, database).Serve(ctx); err != nil {
		log.Printf("API server error: %v", err)
		<-ctx.Done()
	}
	log.Println("Shutting down...")
	return nil
}
