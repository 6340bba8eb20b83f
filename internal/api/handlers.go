package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/susu3304/warikan/internal/db"
	"github.com/susu3304/warikan/internal/parser"
	"github.com/susu3304/warikan/internal/settle"
)

type recordJSON struct {
	Kind   string          `json:"kind"`
	Who    string          `json:"who"`
	Amount decimal.Decimal `json:"amount"`
	To     string          `json:"to,omitempty"`
}

// settleRequest carries a batch either as structured records or as text
// lines ("Alice spent 500").
type settleRequest struct {
	Records  []recordJSON `json:"records"`
	Text     string       `json:"text"`
	Strategy string       `json:"strategy"`
}

func (req settleRequest) batch() ([]settle.Record, error) {
	if req.Text != "" {
		return parser.Parse(strings.NewReader(req.Text))
	}
	batch := make([]settle.Record, 0, len(req.Records))
	for idx, rec := range req.Records {
		switch strings.ToLower(rec.Kind) {
		case "spent":
			batch = append(batch, settle.Spent(rec.Who, rec.Amount))
		case "gave":
			batch = append(batch, settle.Gave(rec.Who, rec.Amount, rec.To))
		default:
			return nil, fmt.Errorf("record %d: unknown kind %q", idx+1, rec.Kind)
		}
	}
	return batch, nil
}

type settleResponse struct {
	RequestID string           `json:"request_id"`
	TotalCost settle.Amount    `json:"total_cost"`
	Expected  settle.Amount    `json:"expected"`
	Balances  []settle.Balance `json:"balances"`
	Plan      settle.Plan      `json:"plan"`
}

type plansResponse struct {
	RequestID string        `json:"request_id"`
	Plans     []settle.Plan `json:"plans"`
	Count     int           `json:"count"`
	Truncated bool          `json:"truncated,omitempty"`
}

const planTimeout = 5 * time.Second

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// settleError maps solver errors: internal-consistency failures are server
// errors, everything else is the caller's input.
func settleError(w http.ResponseWriter, r *http.Request, err error) {
	if settle.IsInternal(err) {
		log.Printf("[%s] settle: %v", requestID(r.Context()), err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func decodeSettleRequest(w http.ResponseWriter, r *http.Request) (*settle.Report, settleRequest, bool) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, req, false
	}
	batch, err := req.batch()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, req, false
	}
	report, err := settle.Analyze(batch)
	if err != nil {
		settleError(w, r, err)
		return nil, req, false
	}
	return report, req, true
}

// Public handlers
func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	report, req, ok := decodeSettleRequest(w, r)
	if !ok {
		return
	}
	strategy, err := settle.ParseStrategy(req.Strategy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	plan, err := settle.Settle(report.Balances, strategy)
	if err != nil {
		settleError(w, r, err)
		return
	}
	if plan == nil {
		plan = settle.Plan{}
	}

	writeJSON(w, http.StatusOK, settleResponse{
		RequestID: requestID(r.Context()),
		TotalCost: report.TotalCost,
		Expected:  report.Expected,
		Balances:  report.Balances,
		Plan:      plan,
	})
}

func (a *API) handlePlans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := a.config.MaxPlans
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < limit {
			limit = n
		}
	}
	distinct := q.Get("distinct") == "true"

	report, _, ok := decodeSettleRequest(w, r)
	if !ok {
		return
	}

	nodes := a.config.SearchNodes
	if nodes < 1 {
		nodes = settle.DefaultMaxNodes
	}
	ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
	defer cancel()

	var plans []settle.Plan
	var err error
	if q.Get("parallel") == "true" {
		plans, err = settle.EnumerateParallel(ctx, report.Balances, settle.ParallelOptions{
			Workers:  a.config.SolveWorkers,
			Limit:    limit,
			Distinct: distinct,
			MaxNodes: nodes,
		})
	} else {
		opts := []settle.EnumOption{settle.MaxNodes(nodes)}
		if distinct {
			opts = append(opts, settle.Distinct())
		}
		var e *settle.Enumerator
		e, err = settle.Enumerate(report.Balances, opts...)
		if err == nil {
			err = e.Each(ctx, func(p settle.Plan) bool {
				plans = append(plans, p)
				return len(plans) < limit
			})
		}
	}
	truncated := errors.Is(err, settle.ErrSearchLimit)
	switch {
	case truncated:
		log.Printf("[%s] plans: search stopped after %d nodes with %d plans", requestID(r.Context()), nodes, len(plans))
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "plan search timed out", http.StatusServiceUnavailable)
		return
	case err != nil:
		settleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, plansResponse{
		RequestID: requestID(r.Context()),
		Plans:     plans,
		Count:     len(plans),
		Truncated: truncated,
	})
}

// Protected handlers

// activeEvent resolves the channel's active event and checks the caller can see its guild.
func (a *API) activeEvent(w http.ResponseWriter, r *http.Request) (*db.Event, *Claims, bool) {
	if a.store == nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return nil, nil, false
	}
	claims := claimsFrom(r.Context())
	channelID := mux.Vars(r)["channel_id"]

	ev, err := a.store.ActiveEventByChannel(r.Context(), channelID)
	if err != nil {
		log.Printf("[%s] failed to load event for channel %s: %v", requestID(r.Context()), channelID, err)
		http.Error(w, "failed to load event", http.StatusInternalServerError)
		return nil, nil, false
	}
	if ev == nil {
		http.Error(w, "no active event", http.StatusNotFound)
		return nil, nil, false
	}
	if !a.userHasGuildAccess(r.Context(), claims.AccessToken, ev.GuildID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, nil, false
	}
	return ev, claims, true
}

type taskJSON struct {
	PayerID string          `json:"payer_id"`
	PayeeID string          `json:"payee_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func taskRows(rows []db.SettlementTaskRow) []taskJSON {
	out := make([]taskJSON, 0, len(rows))
	for _, t := range rows {
		out = append(out, taskJSON{PayerID: t.PayerID, PayeeID: t.PayeeID, Amount: t.Amount})
	}
	return out
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ev, _, ok := a.activeEvent(w, r)
	if !ok {
		return
	}
	rows, err := a.store.ListPendingSettlementTasks(r.Context(), ev.ID)
	if err != nil {
		http.Error(w, "failed to list tasks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, taskRows(rows))
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	ev, _, ok := a.activeEvent(w, r)
	if !ok {
		return
	}
	rows, err := a.store.ListSettlementPaymentsSum(r.Context(), ev.ID)
	if err != nil {
		http.Error(w, "failed to list payments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, taskRows(rows))
}

type paymentRequest struct {
	PayerID string          `json:"payer_id"`
	PayeeID string          `json:"payee_id"`
	Amount  decimal.Decimal `json:"amount"`
	Memo    string          `json:"memo"`
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	ev, claims, ok := a.activeEvent(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PayerID == "" {
		req.PayerID = claims.UserID
	}
	if req.PayeeID == "" || req.PayeeID == req.PayerID {
		http.Error(w, "invalid payee_id", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	remaining, err := a.store.RecordSettlementPayment(r.Context(), ev.ID, req.PayerID, req.PayeeID, req.Amount, req.Memo, claims.UserID)
	if err != nil {
		log.Printf("[%s] failed to record payment: %v", requestID(r.Context()), err)
		http.Error(w, "failed to record payment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"request_id": requestID(r.Context()),
		"remaining":  remaining,
	})
}
