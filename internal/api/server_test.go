package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/natsfixture/internal/events"
	"github.com/nerrad567/natsfixture/internal/history"
	"github.com/nerrad567/natsfixture/internal/infrastructure/config"
	"github.com/nerrad567/natsfixture/internal/infrastructure/logging"
	"github.com/nerrad567/natsfixture/internal/supervisor"
)

const testSecret = "test-secret"

type fakeFixture struct {
	mu       sync.Mutex
	name     string
	port     int
	running  bool
	startErr error
	starts   int
	stops    int
}

func (f *fakeFixture) Name() string { return f.name }

func (f *fakeFixture) Stats() supervisor.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := supervisor.StateStopped
	if f.running {
		state = supervisor.StateRunning
	}
	return supervisor.Stats{Name: f.name, State: state, Running: f.running, Port: f.port}
}

func (f *fakeFixture) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeFixture) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeFixture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

type fakeHistory struct {
	mu     sync.Mutex
	filter history.Filter
	err    error
}

func (h *fakeHistory) lastFilter() history.Filter {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filter
}

func (h *fakeHistory) Record(context.Context, *events.Event) error { return nil }

func (h *fakeHistory) List(_ context.Context, f history.Filter) (*history.ListResult, error) {
	h.mu.Lock()
	h.filter = f
	h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return &history.ListResult{
		Events: []events.Event{{Instance: "nats", Type: events.TypeStarted}},
		Total:  1,
		Limit:  f.Limit,
		Offset: f.Offset,
	}, nil
}

func (h *fakeHistory) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}

func newTestServer(t *testing.T, mutate func(*Deps)) (*Server, *httptest.Server) {
	t.Helper()
	deps := Deps{
		Config:  config.Default().API,
		Logger:  testLogger(),
		Version: "test",
		Fixtures: []Fixture{
			&fakeFixture{name: "alpha", port: 4223},
			&fakeFixture{name: "beta", port: 4224, running: true},
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doRequest(t *testing.T, method, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	data, _ := io.ReadAll(resp.Body) //nolint:errcheck // test helper
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decoding %s: %v", data, err)
		}
	}
	return resp, body
}

func TestNew(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger error = nil, want error")
	}

	_, err := New(Deps{
		Logger:   testLogger(),
		Fixtures: []Fixture{&fakeFixture{name: "a"}, &fakeFixture{name: "a"}},
	})
	if err == nil {
		t.Error("New() with duplicate names error = nil, want error")
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v, want status ok and version test", body)
	}
	if body["instances"] != 2.0 || body["running"] != 1.0 {
		t.Errorf("instances/running = %v/%v, want 2/1", body["instances"], body["running"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestListInstances(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/instances", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	list, ok := body["instances"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("instances = %v, want 2 entries", body["instances"])
	}
	first, _ := list[0].(map[string]any) //nolint:errcheck // checked below
	if first["name"] != "alpha" || first["port"] != 4223.0 {
		t.Errorf("instances[0] = %v, want alpha on 4223", first)
	}
}

func TestGetInstance(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/instances/beta", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["state"] != "running" {
		t.Errorf("state = %v, want running", body["state"])
	}

	resp, body = doRequest(t, http.MethodGet, ts.URL+"/api/v1/instances/gamma", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown instance status = %d, want 404", resp.StatusCode)
	}
	if body["code"] != ErrCodeNotFound {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeNotFound)
	}
}

func TestStartStop_Unauthenticated(t *testing.T) {
	alpha := &fakeFixture{name: "alpha"}
	_, ts := newTestServer(t, func(d *Deps) { d.Fixtures = []Fixture{alpha} })

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/instances/alpha/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if body["running"] != true {
		t.Errorf("running = %v, want true", body["running"])
	}

	resp, body = doRequest(t, http.MethodPost, ts.URL+"/api/v1/instances/alpha/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if _, stops := alpha.counts(); body["running"] != false || stops != 1 {
		t.Errorf("running = %v, stops = %d, want false and 1", body["running"], stops)
	}
}

func TestStart_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"port in use", fmt.Errorf("%w: %w", supervisor.ErrStartFailed, supervisor.ErrPortInUse), http.StatusConflict},
		{"timeout", fmt.Errorf("%w: %w", supervisor.ErrStartFailed, supervisor.ErrStartupTimeout), http.StatusGatewayTimeout},
		{"other", fmt.Errorf("%w: boom", supervisor.ErrStartFailed), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFixture{name: "alpha", startErr: tt.err}
			_, ts := newTestServer(t, func(d *Deps) { d.Fixtures = []Fixture{f} })

			resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/v1/instances/alpha/start", "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if msg, _ := body["message"].(string); !strings.Contains(msg, tt.err.Error()) { //nolint:errcheck // zero value fails the check
				t.Errorf("message = %q, want it to contain %q", msg, tt.err.Error())
			}
		})
	}
}

func TestControlRoutesRequireToken(t *testing.T) {
	alpha := &fakeFixture{name: "alpha"}
	_, ts := newTestServer(t, func(d *Deps) {
		d.Config.JWTSecret = testSecret
		d.Fixtures = []Fixture{alpha}
	})
	url := ts.URL + "/api/v1/instances/alpha/start"

	resp, _ := doRequest(t, http.MethodPost, url, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}
	if got := resp.Header.Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q, want Bearer challenge", got)
	}

	wrong, err := IssueToken("other-secret", "ci", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	resp, _ = doRequest(t, http.MethodPost, url, wrong)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", resp.StatusCode)
	}
	if starts, _ := alpha.counts(); starts != 0 {
		t.Fatalf("starts = %d before a valid token, want 0", starts)
	}

	token, err := IssueToken(testSecret, "ci", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	resp, _ = doRequest(t, http.MethodPost, url, token)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp.StatusCode)
	}

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/api/v1/instances", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("read route status = %d, want 200 without token", resp.StatusCode)
	}
}

func TestParseToken(t *testing.T) {
	token, err := IssueToken(testSecret, "ci", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	subject, err := ParseToken(testSecret, token)
	if err != nil || subject != "ci" {
		t.Errorf("ParseToken() = %q, %v, want ci, nil", subject, err)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "ci",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  tokenIssuer,
		Subject: "ci",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	for name, tok := range map[string]string{
		"expired":   expired,
		"no expiry": noExpiry,
		"garbage":   "not.a.token",
		"tampered":  token + "x",
		"empty":     "",
		"unsigned":  "eyJhbGciOiJub25lIn0.eyJzdWIiOiJjaSJ9.",
	} {
		if _, err := ParseToken(testSecret, tok); err == nil {
			t.Errorf("ParseToken(%s) error = nil, want error", name)
		}
	}

	if _, err := IssueToken("", "ci", time.Minute); err == nil {
		t.Error("IssueToken() with empty secret error = nil, want error")
	}
	if _, err := IssueToken(testSecret, "ci", 0); err == nil {
		t.Error("IssueToken() with zero ttl error = nil, want error")
	}
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, ts := newTestServer(t, nil)
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history", "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})

	t.Run("filters", func(t *testing.T) {
		repo := &fakeHistory{}
		_, ts := newTestServer(t, func(d *Deps) { d.History = repo })

		url := ts.URL + "/api/v1/history?instance=nats&type=started&limit=5&offset=10&since=2026-10-01T00:00:00Z"
		resp, body := doRequest(t, http.MethodGet, url, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		if body["total"] != 1.0 {
			t.Errorf("total = %v, want 1", body["total"])
		}
		want := history.Filter{
			Instance: "nats",
			Type:     events.TypeStarted,
			Since:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
			Limit:    5,
			Offset:   10,
		}
		got := repo.lastFilter()
		if !got.Since.Equal(want.Since) {
			t.Errorf("Since = %v, want %v", got.Since, want.Since)
		}
		got.Since = want.Since
		if got != want {
			t.Errorf("filter = %+v, want %+v", got, want)
		}
	})

	t.Run("bad parameters", func(t *testing.T) {
		_, ts := newTestServer(t, func(d *Deps) { d.History = &fakeHistory{} })
		for _, q := range []string{"limit=abc", "offset=-1", "since=yesterday"} {
			resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history?"+q, "")
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
			}
		}
	})

	t.Run("repository error", func(t *testing.T) {
		_, ts := newTestServer(t, func(d *Deps) { d.History = &fakeHistory{err: fmt.Errorf("disk full")} })
		resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/v1/history", "")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", resp.StatusCode)
		}
	})
}

func TestSystem(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/v1/system", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	instances, _ := body["instances"].(map[string]any) //nolint:errcheck // checked below
	byState, _ := instances["by_state"].(map[string]any) //nolint:errcheck // checked below
	if instances["total"] != 2.0 || byState["running"] != 1.0 || byState["stopped"] != 1.0 {
		t.Errorf("instances = %v, want 2 total, 1 running, 1 stopped", instances)
	}
}

func TestMetricsRoute(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/metrics", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("without handler status = %d, want 404", resp.StatusCode)
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "natsfixture_up 1\n") //nolint:errcheck // test handler
	})
	_, ts = newTestServer(t, func(d *Deps) { d.Metrics = metrics })
	r, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer r.Body.Close()
	data, _ := io.ReadAll(r.Body) //nolint:errcheck // compared below
	if string(data) != "natsfixture_up 1\n" {
		t.Errorf("body = %q, want metrics output", data)
	}
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // read error reported below
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestWebSocket_EventStream(t *testing.T) {
	s, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{EventChannel(events.TypeStarted)}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if resp := readWS(t, conn); resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// Not subscribed to stopping; only the started event arrives.
	s.Hub().Publish(context.Background(), events.Event{Instance: "alpha", Type: events.TypeStopping}) //nolint:errcheck // always nil
	s.Hub().Publish(context.Background(), events.Event{Instance: "alpha", Type: events.TypeStarted, Port: 4223}) //nolint:errcheck // always nil

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != "fixture.started" {
		t.Fatalf("message = %+v, want fixture.started event", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["instance"] != "alpha" || payload["port"] != 4223.0 {
		t.Errorf("payload = %v, want alpha on 4223", payload)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatalf("WriteJSON(ping) error = %v", err)
	}
	if pong := readWS(t, conn); pong.Type != WSTypePong || pong.ID != "2" {
		t.Errorf("ping reply = %+v, want pong", pong)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "3"}); err != nil {
		t.Fatalf("WriteJSON(bogus) error = %v", err)
	}
	if reply := readWS(t, conn); reply.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v, want error", reply)
	}
}

func TestWebSocket_Wildcard(t *testing.T) {
	s, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, Payload: WSSubscribePayload{Channels: []string{ChannelAll}}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	readWS(t, conn)

	s.Hub().Publish(context.Background(), events.Event{Instance: "beta", Type: events.TypeExited}) //nolint:errcheck // always nil
	if msg := readWS(t, conn); msg.EventType != "fixture.exited" {
		t.Errorf("event = %q, want fixture.exited", msg.EventType)
	}
	if n := s.Hub().ClientCount(); n != 1 {
		t.Errorf("ClientCount() = %d, want 1", n)
	}
}

func TestWebSocket_Token(t *testing.T) {
	_, ts := newTestServer(t, func(d *Deps) { d.Config.JWTSecret = testSecret })

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	if err == nil {
		t.Fatal("Dial() without token succeeded, want error")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v, want 401", resp)
	}

	token, err := IssueToken(testSecret, "ci", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "?token="+token), nil)
	if err != nil {
		t.Fatalf("Dial() with token error = %v", err)
	}
	conn.Close()
}

func TestStartClose(t *testing.T) {
	cfg := config.Default().API
	cfg.Listen = "127.0.0.1:0"
	s, err := New(Deps{Config: cfg, Logger: testLogger()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
