package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/db"
)

const scenarioText = `Dexter spent 5300
Angel spent 2700
Angel spent 2200
Debra spent 800
Debra spent 1700
Harry spent 1900
Dexter gave 2000 to Harry
Angel gave 3200 to Debra
`

type payment struct {
	eventID        int64
	payer, payee   string
	amount         decimal.Decimal
	memo, recorder string
}

type fakeStore struct {
	events   map[string]*db.Event
	tasks    []db.SettlementTaskRow
	payments []payment
}

func (f *fakeStore) ActiveEventByChannel(_ context.Context, channelID string) (*db.Event, error) {
	return f.events[channelID], nil
}

func (f *fakeStore) ListPendingSettlementTasks(context.Context, int64) ([]db.SettlementTaskRow, error) {
	return f.tasks, nil
}

func (f *fakeStore) ListSettlementPaymentsSum(context.Context, int64) ([]db.SettlementTaskRow, error) {
	var out []db.SettlementTaskRow
	for _, p := range f.payments {
		out = append(out, db.SettlementTaskRow{PayerID: p.payer, PayeeID: p.payee, Amount: p.amount})
	}
	return out, nil
}

func (f *fakeStore) RecordSettlementPayment(_ context.Context, eventID int64, payerID, payeeID string, amount decimal.Decimal, memo, recordedBy string) (decimal.Decimal, error) {
	f.payments = append(f.payments, payment{eventID, payerID, payeeID, amount, memo, recordedBy})
	return decimal.NewFromInt(50), nil
}

func newTestAPI(t *testing.T, store Store) *API {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", MaxPlans: 20, SolveWorkers: 2, WebBind: "127.0.0.1:0"}
	return New(cfg, store)
}

func do(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type settleBody struct {
	RequestID string `json:"request_id"`
	TotalCost string `json:"total_cost"`
	Expected  string `json:"expected"`
	Balances  []struct {
		Role        string `json:"role"`
		Participant string `json:"participant"`
		Amount      string `json:"amount"`
	} `json:"balances"`
	Plan []struct {
		Payer  string `json:"payer"`
		Amount string `json:"amount"`
		Payee  string `json:"payee"`
	} `json:"plan"`
}

func TestHandleSettleText(t *testing.T) {
	api := newTestAPI(t, nil)
	body, _ := json.Marshal(map[string]string{"text": scenarioText})

	w := do(t, api.Handler(), "POST", "/api/settle", string(body), map[string]string{requestIDHeader: "req-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))

	var resp settleBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "14600", resp.TotalCost)
	assert.Equal(t, "3650", resp.Expected)

	require.Len(t, resp.Balances, 4)
	assert.Equal(t, "credit", resp.Balances[0].Role)
	assert.Equal(t, "Dexter", resp.Balances[0].Participant)
	assert.Equal(t, "debt", resp.Balances[2].Role)
	assert.Equal(t, "4350", resp.Balances[2].Amount)

	var lines []string
	for _, in := range resp.Plan {
		lines = append(lines, in.Payer+">"+in.Payee+":"+in.Amount)
	}
	assert.Equal(t, []string{"Debra>Dexter:3650", "Debra>Angel:700", "Harry>Angel:3750"}, lines)
}

func TestHandleSettleRecords(t *testing.T) {
	api := newTestAPI(t, nil)
	body := `{
		"strategy": "largest",
		"records": [
			{"kind": "spent", "who": "Alice", "amount": "100"},
			{"kind": "spent", "who": "Bob", "amount": 0},
			{"kind": "spent", "who": "Carol", "amount": "0"}
		]
	}`

	w := do(t, api.Handler(), "POST", "/api/settle", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var resp settleBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "100/3", resp.Expected)
	require.Len(t, resp.Plan, 2)
	assert.Equal(t, "100/3", resp.Plan[0].Amount)
}

func TestHandleSettleNothingOwed(t *testing.T) {
	api := newTestAPI(t, nil)
	body := `{"records": [{"kind": "spent", "who": "Alice", "amount": "10"}, {"kind": "spent", "who": "Bob", "amount": "10"}]}`

	w := do(t, api.Handler(), "POST", "/api/settle", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"plan":[]`)
}

func TestHandleSettleBadInput(t *testing.T) {
	api := newTestAPI(t, nil)
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid request body"},
		{"unknown kind", `{"records": [{"kind": "borrowed", "who": "A", "amount": "1"}]}`, "unknown kind"},
		{"negative spend", `{"records": [{"kind": "spent", "who": "A", "amount": "-1"}]}`, "invalid amount"},
		{"self transfer", `{"records": [{"kind": "gave", "who": "A", "amount": "1", "to": "A"}]}`, "invalid amount"},
		{"empty batch", `{"records": []}`, "no participants"},
		{"bad text", `{"text": "Alice bought 5"}`, "line 1"},
		{"bad strategy", `{"strategy": "random", "text": "A spent 1"}`, "unknown strategy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, api.Handler(), "POST", "/api/settle", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.want)
		})
	}
}

func TestHandlePlans(t *testing.T) {
	api := newTestAPI(t, nil)
	body, _ := json.Marshal(map[string]string{"text": scenarioText})

	decode := func(w *httptest.ResponseRecorder) (int, []json.RawMessage) {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp struct {
			Plans []json.RawMessage `json:"plans"`
			Count int               `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp.Count, resp.Plans
	}

	count, plans := decode(do(t, api.Handler(), "POST", "/api/settle/plans", string(body), nil))
	assert.Equal(t, 8, count)
	assert.Len(t, plans, 8)

	count, _ = decode(do(t, api.Handler(), "POST", "/api/settle/plans?limit=3", string(body), nil))
	assert.Equal(t, 3, count)

	count, _ = decode(do(t, api.Handler(), "POST", "/api/settle/plans?distinct=true&parallel=true", string(body), nil))
	assert.Equal(t, 2, count)

	sequential := do(t, api.Handler(), "POST", "/api/settle/plans", string(body), nil)
	parallel := do(t, api.Handler(), "POST", "/api/settle/plans?parallel=true", string(body), nil)
	_, seqPlans := decode(sequential)
	_, parPlans := decode(parallel)
	assert.Equal(t, seqPlans, parPlans)

	w := do(t, api.Handler(), "POST", "/api/settle/plans?limit=0", string(body), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePlansCappedByConfig(t *testing.T) {
	api := newTestAPI(t, nil)
	api.config.MaxPlans = 2
	body, _ := json.Marshal(map[string]string{"text": scenarioText})

	w := do(t, api.Handler(), "POST", "/api/settle/plans?limit=50", string(body), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)
}

type plansSummary struct {
	Count     int  `json:"count"`
	Truncated bool `json:"truncated"`
}

// oneCreditorText: payer covered everything for itself and n others.
func oneCreditorText(n int) string {
	var b strings.Builder
	b.WriteString("payer spent 10000\n")
	for k := 0; k < n; k++ {
		fmt.Fprintf(&b, "m%d spent 0\n", k)
	}
	return b.String()
}

func TestHandlePlansDistinctOneCreditor(t *testing.T) {
	api := newTestAPI(t, nil)
	body, _ := json.Marshal(map[string]string{"text": oneCreditorText(11)})

	for _, target := range []string{
		"/api/settle/plans?limit=2&distinct=true",
		"/api/settle/plans?limit=2&distinct=true&parallel=true",
	} {
		start := time.Now()
		w := do(t, api.Handler(), "POST", target, string(body), nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Less(t, time.Since(start), 2*time.Second, target)
		var resp plansSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count, target)
		assert.False(t, resp.Truncated, target)
	}
}

func TestHandlePlansSearchLimit(t *testing.T) {
	api := newTestAPI(t, nil)
	api.config.SearchNodes = 1000
	body, _ := json.Marshal(map[string]string{"text": oneCreditorText(11)})

	w := do(t, api.Handler(), "POST", "/api/settle/plans?distinct=true", string(body), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp plansSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Truncated)
	assert.Equal(t, 1, resp.Count)
}

// discordStub serves the guild list for the bearer token "access".
func discordStub(t *testing.T, guildID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/users/@me/guilds":
			json.NewEncoder(w).Encode([]DiscordGuild{{ID: guildID, Name: "nomikai"}})
		case "/users/@me":
			json.NewEncoder(w).Encode(DiscordUser{ID: "111", Username: "alice"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func authHeader(t *testing.T, api *API) map[string]string {
	t.Helper()
	token, err := api.issueToken(&DiscordUser{ID: "111", Username: "alice"}, "access")
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t, &fakeStore{})

	w := do(t, api.Handler(), "GET", "/api/events/c1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, api.Handler(), "GET", "/api/events/c1/tasks", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, api.Handler(), "GET", "/api/events/c1/tasks", "", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEventRoutes(t *testing.T) {
	store := &fakeStore{
		events: map[string]*db.Event{
			"c1": {ID: 7, GuildID: 42, ChannelID: "c1", Status: "active"},
			"c2": {ID: 8, GuildID: 99, ChannelID: "c2", Status: "active"},
		},
		tasks: []db.SettlementTaskRow{{PayerID: "222", PayeeID: "111", Amount: decimal.NewFromInt(150)}},
	}
	api := newTestAPI(t, store)
	api.discordAPI = discordStub(t, "42").URL
	auth := authHeader(t, api)

	w := do(t, api.Handler(), "GET", "/api/events/c1/tasks", "", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"payer_id":"222","payee_id":"111","amount":"150"}]`, w.Body.String())

	w = do(t, api.Handler(), "GET", "/api/events/c2/tasks", "", auth)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, api.Handler(), "GET", "/api/events/none/tasks", "", auth)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, api.Handler(), "POST", "/api/events/c1/payments", `{"payer_id":"222","payee_id":"111","amount":"100","memo":"paypay"}`, auth)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"remaining":"50"`)
	require.Len(t, store.payments, 1)
	assert.Equal(t, payment{7, "222", "111", decimal.NewFromInt(100), "paypay", "111"}, store.payments[0])

	w = do(t, api.Handler(), "POST", "/api/events/c1/payments", `{"payee_id":"222","amount":"0"}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, api.Handler(), "POST", "/api/events/c1/payments", `{"payee_id":"111","amount":"5"}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, api.Handler(), "GET", "/api/events/c1/payments", "", auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"payer_id":"222","payee_id":"111","amount":"100"}]`, w.Body.String())
}

func TestEventRoutesWithoutStore(t *testing.T) {
	api := newTestAPI(t, nil)
	w := do(t, api.Handler(), "GET", "/api/events/c1/tasks", "", authHeader(t, api))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t, nil)
	api.oauthConfig.ClientID = "client"

	w := do(t, api.Handler(), "GET", "/api/auth/login", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["state"], 32)
	assert.Contains(t, resp["auth_url"], "client_id=client")
	assert.Contains(t, resp["auth_url"], "state="+resp["state"])

	w = do(t, api.Handler(), "GET", "/api/auth/callback", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDiscordUser(t *testing.T) {
	api := newTestAPI(t, nil)
	api.discordAPI = discordStub(t, "42").URL

	user, err := api.getDiscordUser(context.Background(), "access")
	require.NoError(t, err)
	assert.Equal(t, "alice", getUsername(user))

	_, err = api.getDiscordUser(context.Background(), "wrong")
	assert.Error(t, err)
}
