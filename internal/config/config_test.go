package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DATABASE_URL", "postgres://localhost/warikan")
	t.Setenv("DISCORD_CLIENT_ID", "client")
	t.Setenv("DISCORD_CLIENT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_REDIRECT_URI", "")
	t.Setenv("CURRENCY_SYMBOL", "")
	t.Setenv("CURRENCY_PLACES", "")
	t.Setenv("MAX_PLANS", "")
	t.Setenv("MAX_SEARCH_NODES", "")
	t.Setenv("SOLVE_WORKERS", "")
	t.Setenv("REMINDER_INTERVAL_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.WebBind)
	assert.Equal(t, "http://localhost:3000", cfg.WebUIBaseURL)
	assert.Equal(t, "円", cfg.CurrencySymbol)
	assert.Equal(t, int32(0), cfg.CurrencyPlaces)
	assert.Equal(t, 20, cfg.MaxPlans)
	assert.Equal(t, 200000, cfg.SearchNodes)
	assert.Equal(t, 4, cfg.SolveWorkers)
	assert.Equal(t, 60, cfg.ReminderInterval)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DISCORD_REDIRECT_URI", "https://warikan.example.com/api/auth/callback")
	t.Setenv("CURRENCY_SYMBOL", "$")
	t.Setenv("CURRENCY_PLACES", "2")
	t.Setenv("MAX_PLANS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://warikan.example.com", cfg.WebUIBaseURL)
	assert.Equal(t, "$", cfg.CurrencySymbol)
	assert.Equal(t, int32(2), cfg.CurrencyPlaces)
	assert.Equal(t, 5, cfg.MaxPlans)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"missing token", "DISCORD_TOKEN", "", "DISCORD_TOKEN is required"},
		{"missing database", "DATABASE_URL", "", "DATABASE_URL is required"},
		{"bad places", "CURRENCY_PLACES", "two", "invalid CURRENCY_PLACES"},
		{"places out of range", "CURRENCY_PLACES", "12", "out of range"},
		{"bad max plans", "MAX_PLANS", "0", "invalid MAX_PLANS"},
		{"tiny search budget", "MAX_SEARCH_NODES", "10", "invalid MAX_SEARCH_NODES"},
		{"bad workers", "SOLVE_WORKERS", "many", "invalid SOLVE_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtractBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3000", extractBaseURL("not a url"))
	assert.Equal(t, "https://a.example:8443", extractBaseURL("https://a.example:8443/cb?x=1"))
}
