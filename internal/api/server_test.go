package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/db"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/health"
	"github.com/iskrim46/ogurec/internal/relay"
)

type fakeSessions struct {
	sessions []relay.SessionInfo
	kicked   map[string]string
}

func (f *fakeSessions) Count() int                    { return len(f.sessions) }
func (f *fakeSessions) Sessions() []relay.SessionInfo { return f.sessions }

func (f *fakeSessions) Session(id string) (relay.SessionInfo, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return relay.SessionInfo{}, fmt.Errorf("%w: %s", relay.ErrSessionNotFound, id)
}

func (f *fakeSessions) Kick(id, reason string) error {
	if _, err := f.Session(id); err != nil {
		return err
	}
	if f.kicked == nil {
		f.kicked = map[string]string{}
	}
	f.kicked[id] = reason
	return nil
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Version == "" {
		deps.Version = "test"
	}
	return NewServer(config.APIConfig{RateLimitRPS: 0}, deps)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestPingAndHeaders(t *testing.T) {
	s := newTestServer(t, Deps{Version: "v9"})

	rec, body := do(t, s, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v9", body["version"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec, _ = do(t, s, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMonitorPage(t *testing.T) {
	rec, _ := do(t, newTestServer(t, Deps{}), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/events/ws")
}

func TestStatus(t *testing.T) {
	s := newTestServer(t, Deps{Sessions: &fakeSessions{sessions: []relay.SessionInfo{{ID: "a"}}}})

	rec, body := do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["sessions"])
	assert.Equal(t, "Terraria279", body["protocol_version"])
	assert.Equal(t, false, body["journal"])
	assert.Contains(t, body, "system")
}

type fakeHealth struct{ st health.Status }

func (f fakeHealth) Status() health.Status { return f.st }

func TestHealth(t *testing.T) {
	rec, _ := do(t, newTestServer(t, Deps{}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	up := fakeHealth{health.Status{Upstream: "10.0.0.1:7777", Reachable: true, CheckedAt: time.Now()}}
	rec, body := do(t, newTestServer(t, Deps{Health: up}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["reachable"])

	// not checked yet
	rec, _ = do(t, newTestServer(t, Deps{Health: fakeHealth{}}), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := fakeHealth{health.Status{Upstream: "10.0.0.1:7777", CheckedAt: time.Now(), Failures: 2, Error: "refused"}}
	s := newTestServer(t, Deps{Health: down})
	rec, body = do(t, s, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, float64(2), body["consecutive_failures"])

	_, body = do(t, s, http.MethodGet, "/api/status", "")
	assert.Contains(t, body, "upstream")
}

func TestPackets(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec, body := do(t, s, http.MethodGet, "/api/packets", "")
	require.Equal(t, http.StatusOK, rec.Code)

	packets := body["packets"].([]interface{})
	found := false
	for _, p := range packets {
		m := p.(map[string]interface{})
		if m["id"] == float64(117) {
			found = true
			assert.Equal(t, "DamagePlayer", m["name"])
			assert.Equal(t, false, m["compressed"])
		}
	}
	assert.True(t, found)
	assert.Len(t, body["modules"], 11)
}

func TestSessionsRoutes(t *testing.T) {
	src := &fakeSessions{sessions: []relay.SessionInfo{{ID: "abc", ClientAddr: "1.1.1.1:1"}}}
	s := newTestServer(t, Deps{Sessions: src})

	rec, body := do(t, s, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])

	rec, body = do(t, s, http.MethodGet, "/api/sessions/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.1.1.1:1", body["client_addr"])

	rec, _ = do(t, s, http.MethodGet, "/api/sessions/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/sessions/abc/kick", `{"reason":"bye"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bye", src.kicked["abc"])

	rec, _ = do(t, s, http.MethodPost, "/api/sessions/abc/kick", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultKickReason, src.kicked["abc"])

	rec, _ = do(t, s, http.MethodPost, "/api/sessions/zzz/kick", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/sessions/abc/kick", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionsWithoutSource(t *testing.T) {
	s := newTestServer(t, Deps{})

	rec, body := do(t, s, http.MethodGet, "/api/sessions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["total"])
}

func TestJournalRoutes(t *testing.T) {
	ctx := context.Background()

	rec, _ := do(t, newTestServer(t, Deps{}), http.MethodGet, "/api/journal", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	j, err := db.OpenJournal(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordIntercept(ctx, time.Now(), events.DamagePayload{
			SessionID: "s", Target: uint8(i), OriginalDamage: 1, NewDamage: 100,
		}))
	}
	require.NoError(t, j.RecordSessionOpened(ctx, time.Now(), events.SessionPayload{SessionID: "s"}))

	s := newTestServer(t, Deps{Journal: j})

	rec, body := do(t, s, http.MethodGet, "/api/journal?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["total"])
	intercepts := body["intercepts"].([]interface{})
	require.Len(t, intercepts, 2)
	assert.Equal(t, float64(2), intercepts[0].(map[string]interface{})["target"])

	rec, _ = do(t, s, http.MethodGet, "/api/journal?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/api/journal/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["sessions"], 1)
}

func TestConfigRoute(t *testing.T) {
	rec, _ := do(t, newTestServer(t, Deps{}), http.MethodGet, "/api/config", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	cfg := config.DefaultConfig()
	cfg.MQTT.ClientID = "hidden"
	rec, body := do(t, newTestServer(t, Deps{Config: cfg}), http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	relayCfg := body["relay"].(map[string]interface{})
	assert.Equal(t, config.DefaultListenAddr, relayCfg["listen_addr"])
	assert.NotContains(t, body["mqtt"], "client_id")
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	relay.NewMetrics(reg)
	s := newTestServer(t, Deps{Gatherer: reg})

	rec, _ := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ogurec_sessions_active")

	rec, _ = do(t, newTestServer(t, Deps{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	assert.True(t, NewRateLimiter(0).Allow("x"))
}

func TestRateLimitMiddleware(t *testing.T) {
	s := NewServer(config.APIConfig{RateLimitRPS: 1}, Deps{})

	codes := make([]int, 3)
	for i := range codes {
		rec, _ := do(t, s, http.MethodGet, "/api/ping", "")
		codes[i] = rec.Code
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestEventStream(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Stop()

	s := newTestServer(t, Deps{Bus: bus})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.stream.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.stream.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.Emit(context.Background(), events.New(events.EventClientSlotAssigned, "test",
		events.SlotPayload{SessionID: "s1", Slot: 4}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type    string `json:"type"`
		Payload struct {
			SessionID string `json:"session_id"`
			Slot      uint8  `json:"slot"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "client_slot_assigned", got.Type)
	assert.Equal(t, "s1", got.Payload.SessionID)
	assert.Equal(t, uint8(4), got.Payload.Slot)

	conn.Close()
	assert.Eventually(t, func() bool { return s.stream.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://ok.example"})

	req := httptest.NewRequest(http.MethodGet, "http://relay.local/api/events/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://ok.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://relay.local")
	assert.True(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
