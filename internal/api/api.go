package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
	"golang.org/x/oauth2"
)

// Store is the persistence the event endpoints need. *db.DB satisfies it.
type Store interface {
	ActiveEventByChannel(ctx context.Context, channelID string) (*db.Event, error)
	ListPendingSettlementTasks(ctx context.Context, eventID int64) ([]db.SettlementTaskRow, error)
	ListSettlementPaymentsSum(ctx context.Context, eventID int64) ([]db.SettlementTaskRow, error)
	RecordSettlementPayment(ctx context.Context, eventID int64, payerID, payeeID string, amount decimal.Decimal, memo, recordedBy string) (decimal.Decimal, error)
}

type API struct {
	router      *mux.Router
	store       Store
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte
	discordAPI  string
}

func New(cfg *config.Config, store Store) *API {
	api := &API{
		router:     mux.NewRouter(),
		store:      store,
		config:     cfg,
		jwtSecret:  []byte(cfg.JWTSecret),
		discordAPI: "https://discord.com/api",
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(requestIDMiddleware)

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// Public endpoints
	a.router.HandleFunc("/api/settle", a.handleSettle).Methods("POST")
	a.router.HandleFunc("/api/settle/plans", a.handlePlans).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/events/{channel_id}/tasks", a.handleListTasks).Methods("GET")
	protected.HandleFunc("/events/{channel_id}/payments", a.handleListPayments).Methods("GET")
	protected.HandleFunc("/events/{channel_id}/payments", a.handleRecordPayment).Methods("POST")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// Note: When AllowedOrigins is "*", AllowCredentials must be false
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests.
func (a *API) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("API server listening on http://%s", a.config.WebBind)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type ctxKey int

const (
	claimsKey ctxKey = iota
	requestIDKey
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware tags every request with an ID, reusing the caller's
// X-Request-ID when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		log.Printf("[%s] %s %s (%s)", id, r.Method, r.URL.Path, time.Since(start))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
