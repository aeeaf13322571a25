package webserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/marigold-hq/marigold/internal/broadcast"
	"github.com/marigold-hq/marigold/internal/dashboard"
	"github.com/marigold-hq/marigold/internal/db"
	"github.com/marigold-hq/marigold/internal/state"
	"github.com/marigold-hq/marigold/internal/webserver"
)

type failingRefresher struct{ calls int }

func (f *failingRefresher) RefreshWorkers(ctx context.Context) error {
	f.calls++
	return errors.New("broker unreachable")
}

type testEnv struct {
	srv *webserver.Server
	st  *state.State
	bc  *broadcast.Server
	ref *failingRefresher
}

func newTestEnv(t *testing.T, cfg webserver.Config) *testEnv {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateAccount("alice", string(hash)); err != nil {
		t.Fatal(err)
	}

	st := state.New()
	bc := broadcast.New(func() []byte { return dashboard.UpdatePayload(st) },
		10*time.Millisecond, nil)
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth = webserver.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}
	}
	ref := &failingRefresher{}
	return &testEnv{
		srv: webserver.New(st, bc, store, ref, cfg, nil),
		st:  st,
		bc:  bc,
		ref: ref,
	}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := webserver.IssueAccessToken("test-secret", "alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func seedWorker(st *state.State) {
	st.Apply(state.Event{Type: state.EventWorkerOnline, Hostname: "w1", Timestamp: 100})
	for i := 0; i < 5; i++ {
		st.Apply(state.Event{Type: state.EventTaskStarted, Hostname: "w1"})
	}
	for i := 0; i < 3; i++ {
		st.Apply(state.Event{Type: state.EventTaskSucceeded, Hostname: "w1"})
	}
}

func TestDashboardRequiresAuth(t *testing.T) {
	env := newTestEnv(t, webserver.Config{AutoRefresh: true})
	req := httptest.NewRequest("GET", "/dashboard", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != 401 {
		t.Errorf("status = %d, want 401 without a token", w.Code)
	}
}

func TestDashboardJSON(t *testing.T) {
	env := newTestEnv(t, webserver.Config{AutoRefresh: true})
	seedWorker(env.st)

	req := httptest.NewRequest("GET", "/dashboard?json=true", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("data has %d entries, want 1", len(resp.Data))
	}
	if resp.Data[0]["hostname"] != "w1" || resp.Data[0]["status"] != true {
		t.Errorf("unexpected worker entry: %v", resp.Data[0])
	}
}

func TestDashboardHTML(t *testing.T) {
	env := newTestEnv(t, webserver.Config{AutoRefresh: true, BrokerURL: "nats://broker:4222"})
	seedWorker(env.st)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "w1") {
		t.Error("rendered page missing worker name")
	}
	if !strings.Contains(body, "nats://broker:4222") {
		t.Error("rendered page missing broker URI")
	}
	if !strings.Contains(body, "ws/dashboard") {
		t.Error("auto-refresh page should wire up the update socket")
	}
}

func TestDashboardHTMLWithoutAutoRefresh(t *testing.T) {
	env := newTestEnv(t, webserver.Config{AutoRefresh: false})
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if strings.Contains(w.Body.String(), "new WebSocket") {
		t.Error("page opens a socket although auto-refresh is disabled")
	}
}

func TestDashboardRefreshFailureIsTolerated(t *testing.T) {
	env := newTestEnv(t, webserver.Config{AutoRefresh: true})
	seedWorker(env.st)

	req := httptest.NewRequest("GET", "/dashboard?refresh=true&json=true", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	if env.ref.calls != 1 {
		t.Errorf("refresher called %d times, want 1", env.ref.calls)
	}
	if w.Code != 200 {
		t.Errorf("status = %d, want 200 despite refresh failure", w.Code)
	}
}

func TestDashboardPurgeApplied(t *testing.T) {
	env := newTestEnv(t, webserver.Config{
		AutoRefresh:  true,
		PurgeOffline: time.Minute,
	})
	// Dead long ago, no recent heartbeat.
	env.st.Apply(state.Event{Type: state.EventWorkerOnline, Hostname: "old", Timestamp: 100})
	env.st.Apply(state.Event{Type: state.EventWorkerOffline, Hostname: "old", Timestamp: 101})
	seedWorker(env.st)

	req := httptest.NewRequest("GET", "/dashboard?json=true", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t))
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	for _, info := range resp.Data {
		if info["hostname"] == "old" {
			t.Error("purged worker still present in response")
		}
	}
}
