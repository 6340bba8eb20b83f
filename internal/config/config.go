package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/susu3304/warikan/internal/settle"
)

type Config struct {
	// Discord Bot
	DiscordToken string

	// Discord OAuth2
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Database
	DatabaseURL string

	// Web Server
	WebBind      string
	WebUIBaseURL string

	// Session
	JWTSecret string

	// Settlement
	CurrencySymbol   string
	CurrencyPlaces   int32
	MaxPlans         int
	SearchNodes      int
	SolveWorkers     int
	ReminderInterval int // minutes
}

// Load reads the configuration from the environment, after applying a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		WebBind:             getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		DiscordClientID:     os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURI:  getEnvDefault("DISCORD_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		JWTSecret:           getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		CurrencySymbol:      getEnvDefault("CURRENCY_SYMBOL", "円"),
	}
	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)

	var places int
	ints := []struct {
		key      string
		dst      *int
		def, min int
	}{
		{"CURRENCY_PLACES", &places, 0, 0},
		{"MAX_PLANS", &cfg.MaxPlans, 20, 1},
		{"MAX_SEARCH_NODES", &cfg.SearchNodes, settle.DefaultMaxNodes, 1000},
		{"SOLVE_WORKERS", &cfg.SolveWorkers, 4, 1},
		{"REMINDER_INTERVAL_MINUTES", &cfg.ReminderInterval, 60, 1},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		if n < v.min {
			return nil, fmt.Errorf("invalid %s: must be at least %d", v.key, v.min)
		}
		*v.dst = n
	}
	if places > 8 {
		return nil, fmt.Errorf("invalid CURRENCY_PLACES: %d is out of range 0-8", places)
	}
	cfg.CurrencyPlaces = int32(places)

	for _, req := range []struct{ key, value string }{
		{"DISCORD_TOKEN", cfg.DiscordToken},
		{"DATABASE_URL", cfg.DatabaseURL},
		{"DISCORD_CLIENT_ID", cfg.DiscordClientID},
		{"DISCORD_CLIENT_SECRET", cfg.DiscordClientSecret},
	} {
		if req.value == "" {
			return nil, fmt.Errorf("%s is required", req.key)
		}
	}
	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, value)
	}
	return n, nil
}

func extractBaseURL(redirectURI string) string {
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
