package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htlc-relayer/internal/api"
	"htlc-relayer/internal/domain"
	"htlc-relayer/internal/monitor"
	"htlc-relayer/internal/notify"
	"htlc-relayer/internal/storage/memory"
	"htlc-relayer/internal/swap"
)

const secret = "5b1e0c7f2a9d4e8b6c3f1a0d9e8c7b6a5f4e3d2c1b0a99887766554433221100"

var now = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	srv   *httptest.Server
	coord *swap.Coordinator
	hub   *notify.Hub
}

type fixedStatus monitor.Status

func (s fixedStatus) Status() monitor.Status { return monitor.Status(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	n := 0
	coord, err := swap.New(swap.Options{
		Store: memory.NewSwapStore(),
		Now:   func() time.Time { return now },
		NewID: func() string {
			n++
			return fmt.Sprintf("swap-%d", n)
		},
	})
	require.NoError(t, err)

	hub := notify.NewHub(nil, nil)
	t.Cleanup(hub.Close)

	server, err := api.New(api.Options{
		Swaps: coord,
		Monitor: fixedStatus{
			Running:     true,
			Cursors:     map[string]domain.Cursor{"evm": {ChainID: "evm", Height: 42}},
			EventCounts: map[string]int64{"OrderCreated": 3},
		},
		Stream: hub,
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, coord: coord, hub: hub}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *api.ErrorBody  `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func createBody(orderID string) map[string]any {
	return map[string]any{
		"orderId":      orderID,
		"maker":        "0xmaker",
		"makingAmount": "1.5",
		"takingAmount": 3000,
		"makingToken":  "ETH",
		"takingToken":  "SUI",
		"sourceChain":  "evm",
		"targetChain":  "sui",
		"secretHash":   swap.HashSHA3.Sum(secret),
		"timeLock":     3600,
	}
}

func (f *fixture) create(t *testing.T, orderID string) domain.Swap {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/v1/swaps", createBody(orderID))
	require.Equal(t, http.StatusCreated, code, "error: %+v", env.Error)

	var s domain.Swap
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

func TestNew_RequiresSwaps(t *testing.T) {
	_, err := api.New(api.Options{})
	assert.Error(t, err)
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)

	created := f.create(t, "order-1")
	assert.Equal(t, "swap-1", created.ID)
	assert.Equal(t, domain.SwapStatusPending, created.Status)
	assert.Equal(t, "3000", created.TakingAmount.String())

	code, env := f.do(t, http.MethodGet, "/api/v1/swaps/swap-1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = f.do(t, http.MethodGet, "/api/v1/swaps/order/order-1", nil)
	require.Equal(t, http.StatusOK, code)
	var s domain.Swap
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "swap-1", s.ID)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	f.create(t, "order-1")

	invalid := createBody("order-2")
	invalid["timeLock"] = 0

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"validation", http.MethodPost, "/api/v1/swaps", invalid, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", http.MethodPost, "/api/v1/swaps", "{", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", http.MethodPost, "/api/v1/swaps", `{"orderID":"x","extra":1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"duplicate", http.MethodPost, "/api/v1/swaps", createBody("order-1"), http.StatusConflict, "DUPLICATE_ORDER"},
		{"missing id", http.MethodGet, "/api/v1/swaps/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing order", http.MethodGet, "/api/v1/swaps/order/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"missing events", http.MethodGet, "/api/v1/swaps/nope/events", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown subresource", http.MethodGet, "/api/v1/swaps/swap-1/other", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown route", http.MethodGet, "/api/v2/swaps", nil, http.StatusNotFound, "NOT_FOUND"},
		{"bad filter", http.MethodGet, "/api/v1/swaps?status=lost", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad from", http.MethodGet, "/api/v1/swaps?from=yesterday", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad order", http.MethodGet, "/api/v1/swaps?order=up", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	f.create(t, "order-1")

	code, env := f.do(t, http.MethodPatch, "/api/v1/swaps/swap-1/status", map[string]any{
		"status":                "active",
		"taker":                 "0xtaker",
		"targetTransactionHash": "0xfill",
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)

	code, env = f.do(t, http.MethodPatch, "/api/v1/swaps/swap-1/status", map[string]any{
		"status": "completed",
		"secret": "wrong",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INVALID_SECRET", env.Error.Code)

	code, env = f.do(t, http.MethodPatch, "/api/v1/swaps/swap-1/status", map[string]any{
		"status": "completed",
		"secret": secret,
	})
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	var s domain.Swap
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, domain.SwapStatusCompleted, s.Status)

	code, env = f.do(t, http.MethodPatch, "/api/v1/swaps/swap-1/status", map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ILLEGAL_TRANSITION", env.Error.Code)

	code, env = f.do(t, http.MethodGet, "/api/v1/swaps/swap-1/events", nil)
	require.Equal(t, http.StatusOK, code)
	var events []domain.SwapEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	assert.Len(t, events, 3, "created, filled, completed")
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		f.create(t, fmt.Sprintf("order-%d", i))
	}
	_, err := f.coord.UpdateSwapStatus(context.Background(), "order-2", swap.StatusUpdate{
		Status: domain.SwapStatusActive,
		Taker:  "0xtaker",
	})
	require.NoError(t, err)

	code, env := f.do(t, http.MethodGet, "/api/v1/swaps?status=pending&limit=1&sortBy=created_at&order=asc", nil)
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	var page struct {
		Swaps []domain.Swap `json:"swaps"`
		Total int64         `json:"total"`
		Limit int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 1, page.Limit)
	require.Len(t, page.Swaps, 1)

	from := now.Add(-time.Minute).Format(time.RFC3339)
	code, env = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/swaps?from=%s&to=%d&taker=0xtaker", from, now.UnixMilli()), nil)
	require.Equal(t, http.StatusOK, code, "error: %+v", env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)

	code, env = f.do(t, http.MethodGet, "/api/v1/swaps/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats swap.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[domain.SwapStatusPending])
	assert.Equal(t, int64(1), stats.ByStatus[domain.SwapStatusActive])
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.create(t, "order-1")

	code, _ := f.do(t, http.MethodDelete, "/api/v1/swaps/swap-1", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env := f.do(t, http.MethodDelete, "/api/v1/swaps/swap-1", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestMonitorStatus(t *testing.T) {
	f := newFixture(t)
	f.create(t, "order-1")

	code, env := f.do(t, http.MethodGet, "/api/v1/monitor/status", nil)
	require.Equal(t, http.StatusOK, code)

	var st api.MonitorStatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Running)
	assert.Equal(t, uint64(42), st.Cursors["evm"].Height)
	assert.Equal(t, int64(3), st.EventCounts["OrderCreated"])
	assert.Zero(t, st.ExpiredSwaps, "timelock has not passed")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.hub.Deliver(context.Background(), notify.Notification{
		Kind:  notify.KindSwapCreated,
		Chain: "evm",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var n map[string]any
	require.NoError(t, json.Unmarshal(msg, &n))
	assert.Equal(t, string(notify.KindSwapCreated), n["type"])
	assert.Equal(t, "evm", n["chain"])
}
