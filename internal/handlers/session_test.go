package handlers

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/lingqian/internal/catalog"
	"github.com/bobmcallan/lingqian/internal/divination"
	"github.com/bobmcallan/lingqian/internal/session"
)

// testEnv wires a session manager to a manual scheduler so tests drive the
// ritual clock themselves.
type testEnv struct {
	catalog  *catalog.Catalog
	sched    *divination.ManualScheduler
	sessions *session.Manager
	resolver *SessionResolver
	handler  *SessionHandler
}

func newTestEnv(t *testing.T, thresholds divination.Thresholds) *testEnv {
	t.Helper()
	c, err := catalog.Embedded()
	if err != nil {
		t.Fatal(err)
	}
	sched := divination.NewManualScheduler()
	cfg := divination.Config{Timing: divination.DefaultTiming(), Thresholds: thresholds}
	factory := func() *divination.Machine {
		return divination.NewMachine(c, divination.NewSeededRNG(7), sched, cfg, nil)
	}
	sessions := session.NewManager(factory, session.Options{}, nil)
	t.Cleanup(sessions.Close)

	resolver := NewSessionResolver(sessions, false)
	return &testEnv{
		catalog:  c,
		sched:    sched,
		sessions: sessions,
		resolver: resolver,
		handler:  NewSessionHandler(nil, resolver),
	}
}

// alwaysAccept makes every throw a 聖筊.
var alwaysAccept = divination.Thresholds{Accept: 1, Laughing: 1}

// neverAccept makes every throw a 笑筊.
var neverAccept = divination.Thresholds{Accept: 1e-12, Laughing: 1}

func sessionCookie(s *session.Session) *http.Cookie {
	return &http.Cookie{Name: session.CookieName, Value: s.ID}
}

func (e *testEnv) do(t *testing.T, h http.HandlerFunc, method, path, body string, s *session.Session) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if s != nil {
		req.AddCookie(sessionCookie(s))
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) SnapshotResponse {
	t.Helper()
	var resp SnapshotResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal snapshot %q: %v", w.Body.String(), err)
	}
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal error %q: %v", w.Body.String(), err)
	}
	if body["status"] != "error" {
		t.Errorf("expected status error, got %q", body["status"])
	}
	return body["error"]
}

// finalize runs s through a full accepted ritual.
func (e *testEnv) finalize(t *testing.T, s *session.Session) SnapshotResponse {
	t.Helper()
	if w := e.do(t, e.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"mazu"}`, s); w.Code != http.StatusOK {
		t.Fatalf("select: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := e.do(t, e.handler.HandleDraw, "POST", "/api/session/draw", "", s); w.Code != http.StatusOK {
		t.Fatalf("draw: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	e.sched.Advance(10 * time.Second)
	if w := e.do(t, e.handler.HandleThrow, "POST", "/api/session/throw", "", s); w.Code != http.StatusOK {
		t.Fatalf("throw: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	e.sched.Advance(10 * time.Second)

	return decodeSnapshot(t, e.do(t, e.handler.HandleSession, "GET", "/api/session", "", s))
}

func TestSessionResolver_SetsCookieForNewSession(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)

	w := env.do(t, env.handler.HandleSession, "GET", "/api/session", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != session.CookieName || c.Value == "" {
		t.Errorf("unexpected cookie %+v", c)
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected HttpOnly SameSite=Lax cookie, got %+v", c)
	}
	if _, ok := env.sessions.Get(c.Value); !ok {
		t.Error("cookie does not name a live session")
	}

	resp := decodeSnapshot(t, w)
	if resp.SessionID != c.Value {
		t.Errorf("expected session id %s, got %s", c.Value, resp.SessionID)
	}
	if resp.Phase != divination.PhaseIdle || resp.CanDraw {
		t.Errorf("expected idle without deity, got %+v", resp)
	}
}

func TestSessionResolver_ReusesKnownSession(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	w := env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s)
	if len(w.Result().Cookies()) != 0 {
		t.Error("expected no cookie for a known session")
	}
	if resp := decodeSnapshot(t, w); resp.SessionID != s.ID {
		t.Errorf("expected session %s, got %s", s.ID, resp.SessionID)
	}
}

func TestSessionResolver_UnknownCookieStartsFreshSession(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)

	req := httptest.NewRequest("GET", "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "stale"})
	w := httptest.NewRecorder()
	env.handler.HandleSession(w, req)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == "stale" {
		t.Fatalf("expected a fresh session cookie, got %+v", cookies)
	}
}

func TestSessionResolver_SecureCookie(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	resolver := NewSessionResolver(env.sessions, true)

	w := httptest.NewRecorder()
	resolver.Resolve(w, httptest.NewRequest("GET", "/", nil))

	if c := w.Result().Cookies(); len(c) != 1 || !c[0].Secure {
		t.Errorf("expected a secure cookie, got %+v", c)
	}
}

func TestSessionHandler_End(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	w := env.do(t, env.handler.HandleEnd, "DELETE", "/api/session", "", s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if _, ok := env.sessions.Get(s.ID); ok {
		t.Error("expected session to be deleted")
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected an expired cookie, got %+v", cookies)
	}

	var body map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["ended"] != true {
		t.Errorf("expected ended=true, got %v", body["ended"])
	}

	w = env.do(t, env.handler.HandleEnd, "DELETE", "/api/session", "", nil)
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["ended"] != false {
		t.Errorf("expected ended=false without a session, got %v", body["ended"])
	}
}

func TestSessionHandler_SelectDeity(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	w := env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"guanyin"}`, s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := decodeSnapshot(t, w)
	if resp.DeityKey != "guanyin" || resp.DeityName != "觀世音菩薩" {
		t.Errorf("unexpected deity %s / %s", resp.DeityKey, resp.DeityName)
	}
	if !resp.CanDraw || resp.Busy {
		t.Errorf("expected drawable idle session, got %+v", resp)
	}
}

func TestSessionHandler_SelectDeityErrors(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"unknown deity", "POST", `{"key":"nobody"}`, http.StatusNotFound},
		{"missing key", "POST", `{}`, http.StatusBadRequest},
		{"blank key", "POST", `{"key":"  "}`, http.StatusBadRequest},
		{"malformed body", "POST", `{"key":`, http.StatusBadRequest},
		{"wrong method", "GET", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, env.handler.HandleSelectDeity, tt.method, "/api/session/deity", tt.body, s)
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	if w := env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"nobody"}`, s); decodeError(t, w) != MsgDeityNotFound {
		t.Errorf("expected %q", MsgDeityNotFound)
	}
}

func TestSessionHandler_DrawWithoutDeity(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	w := env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
	decodeError(t, w)
}

func TestSessionHandler_FullRitual(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"mazu"}`, s)

	w := env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)
	if resp := decodeSnapshot(t, w); resp.Phase != divination.PhaseShaking || !resp.Busy || resp.CanDraw {
		t.Fatalf("expected busy shaking, got %+v", resp)
	}

	// A second draw while the ritual runs is rejected and changes nothing.
	if w := env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for double draw, got %d", w.Code)
	}

	env.sched.Advance(10 * time.Second)
	resp := decodeSnapshot(t, env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s))
	if resp.Phase != divination.PhaseAwaitingConfirmation || resp.PendingTitle == "" {
		t.Fatalf("expected awaiting confirmation with pending title, got %+v", resp)
	}
	pending := resp.PendingTitle

	w = env.do(t, env.handler.HandleThrow, "POST", "/api/session/throw", "", s)
	if resp := decodeSnapshot(t, w); resp.Phase != divination.PhaseThrowing {
		t.Fatalf("expected throwing, got %s", resp.Phase)
	}

	env.sched.Advance(time.Second)
	resp = decodeSnapshot(t, env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s))
	if resp.Phase != divination.PhaseConfirmationResult || resp.OutcomeLabel != "聖筊" {
		t.Fatalf("expected 聖筊 confirmation result, got %s %q", resp.Phase, resp.OutcomeLabel)
	}

	env.sched.Advance(10 * time.Second)
	w = env.do(t, env.handler.HandleResult, "GET", "/api/session/result", "", s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var result ResultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Title != pending {
		t.Errorf("expected finalized %q to equal pending %q", result.Title, pending)
	}
	if result.LevelClass == "" || len(result.PoemLines) == 0 {
		t.Errorf("expected display fields, got %+v", result)
	}
	if want := "天上聖母媽祖靈籤_" + pending + ".png"; result.Filename != want {
		t.Errorf("expected filename %q, got %q", want, result.Filename)
	}
	if result.Saved {
		t.Error("expected unsaved result")
	}
}

func TestSessionHandler_PendingStickShowsTitleOnly(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()
	env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"mazu"}`, s)
	env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)

	// The shake lasts at most 3s and the rise 1.5s.
	steps := []struct {
		advance time.Duration
		phase   divination.Phase
	}{
		{3100 * time.Millisecond, divination.PhaseRising},
		{10 * time.Second, divination.PhaseAwaitingConfirmation},
	}
	for _, step := range steps {
		env.sched.Advance(step.advance)
		pending := s.Machine.Snapshot().Pending
		if pending == nil || pending.Poem == "" {
			t.Fatalf("expected a drawn stick with a poem in %s", step.phase)
		}

		w := env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s)
		body := w.Body.String()
		resp := decodeSnapshot(t, w)
		if resp.Phase != step.phase {
			t.Fatalf("expected %s, got %s", step.phase, resp.Phase)
		}
		if resp.PendingTitle != pending.Title {
			t.Errorf("expected pending title %q, got %q", pending.Title, resp.PendingTitle)
		}
		firstLine := strings.SplitN(strings.TrimSpace(pending.Poem), "\n", 2)[0]
		for _, hidden := range []string{`"poem"`, `"explain"`, `"finalized"`, firstLine} {
			if strings.Contains(body, hidden) {
				t.Errorf("%s snapshot leaks %q before acceptance: %s", step.phase, hidden, body)
			}
		}
	}
}

func TestSessionHandler_RejectedThrowReturnsToIdle(t *testing.T) {
	env := newTestEnv(t, neverAccept)
	s := env.sessions.Create()

	env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"guandi"}`, s)
	env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)
	env.sched.Advance(10 * time.Second)
	env.do(t, env.handler.HandleThrow, "POST", "/api/session/throw", "", s)
	env.sched.Advance(time.Second)

	resp := decodeSnapshot(t, env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s))
	if resp.OutcomeLabel != "笑筊" {
		t.Errorf("expected 笑筊, got %q", resp.OutcomeLabel)
	}

	env.sched.Advance(10 * time.Second)
	resp = decodeSnapshot(t, env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s))
	if resp.Phase != divination.PhaseIdle || resp.PendingTitle != "" || resp.Result != nil {
		t.Errorf("expected idle without entries, got %+v", resp)
	}
	if !resp.CanDraw {
		t.Error("expected a new draw to be allowed")
	}

	if w := env.do(t, env.handler.HandleResult, "GET", "/api/session/result", "", s); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 without result, got %d", w.Code)
	}
}

func TestSessionHandler_DismissKeepsDeity(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()
	env.finalize(t, s)

	w := env.do(t, env.handler.HandleDismiss, "POST", "/api/session/dismiss", "", s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeSnapshot(t, w)
	if resp.Phase != divination.PhaseIdle || resp.DeityKey != "mazu" || resp.Result != nil {
		t.Errorf("unexpected snapshot after dismiss: %+v", resp)
	}

	if w := env.do(t, env.handler.HandleDismiss, "POST", "/api/session/dismiss", "", s); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for second dismiss, got %d", w.Code)
	}

	// Drawing again from the same deity starts a new attempt.
	w = env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for draw after dismiss, got %d", w.Code)
	}
	if got := decodeSnapshot(t, w); got.Phase != divination.PhaseShaking {
		t.Errorf("expected shaking after draw, got %s", got.Phase)
	}
}

func TestSessionHandler_ResetMidRitual(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"mazu"}`, s)
	env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)

	w := env.do(t, env.handler.HandleReset, "POST", "/api/session/reset", "", s)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decodeSnapshot(t, w)
	if resp.Phase != divination.PhaseIdle || resp.DeityKey != "" {
		t.Errorf("expected cleared idle session, got %+v", resp)
	}

	// The cancelled shake must not resurrect the ritual.
	env.sched.Advance(time.Minute)
	resp = decodeSnapshot(t, env.do(t, env.handler.HandleSession, "GET", "/api/session", "", s))
	if resp.Phase != divination.PhaseIdle || resp.PendingTitle != "" {
		t.Errorf("stale timer changed state: %+v", resp)
	}
}

func TestSessionHandler_TriggersRequirePOST(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	handlers := map[string]http.HandlerFunc{
		"draw":    env.handler.HandleDraw,
		"throw":   env.handler.HandleThrow,
		"dismiss": env.handler.HandleDismiss,
		"reset":   env.handler.HandleReset,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			if w := env.do(t, h, "GET", "/api/session/"+name, "", nil); w.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected status 405, got %d", w.Code)
			}
		})
	}
}

// readEvent reads one SSE message, skipping keepalive comments.
func readEvent(t *testing.T, r *bufio.Reader) (string, eventPayload) {
	t.Helper()
	var name string
	var payload eventPayload
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
				t.Fatalf("failed to unmarshal event data: %v", err)
			}
		case line == "" && name != "":
			return name, payload
		}
	}
}

func TestSessionHandler_Events(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()
	env.do(t, env.handler.HandleSelectDeity, "POST", "/api/session/deity", `{"key":"mazu"}`, s)

	srv := httptest.NewServer(http.HandlerFunc(env.handler.HandleEvents))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(t.Context(), "GET", srv.URL, nil)
	req.AddCookie(sessionCookie(s))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer res.Body.Close()

	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}

	reader := bufio.NewReader(res.Body)
	name, first := readEvent(t, reader)
	if name != "phase" || first.Snapshot == nil || first.Snapshot.Phase != divination.PhaseIdle {
		t.Fatalf("expected initial idle snapshot, got %s %+v", name, first)
	}

	// The stream subscribes before writing the initial snapshot.
	if s.Broker.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", s.Broker.Subscribers())
	}

	env.do(t, env.handler.HandleDraw, "POST", "/api/session/draw", "", s)
	env.sched.Advance(10 * time.Second)
	env.do(t, env.handler.HandleThrow, "POST", "/api/session/throw", "", s)
	env.sched.Advance(10 * time.Second)

	want := []divination.Phase{
		divination.PhaseShaking,
		divination.PhaseRising,
		divination.PhaseAwaitingConfirmation,
		divination.PhaseThrowing,
		divination.PhaseConfirmationResult,
		divination.PhaseFinalized,
	}
	for _, p := range want {
		name, ev := readEvent(t, reader)
		if name != "phase" || ev.Snapshot == nil || ev.Snapshot.Phase != p {
			t.Fatalf("expected phase %s, got %s %+v", p, name, ev.Snapshot)
		}
	}

	name, ev := readEvent(t, reader)
	if name != "result" || ev.Snapshot == nil || ev.Snapshot.Result == nil {
		t.Fatalf("expected result event, got %s %+v", name, ev)
	}
	if ev.Snapshot.Result.Filename == "" {
		t.Error("expected result filename")
	}
}

func TestSessionHandler_EventsEndWhenSessionCloses(t *testing.T) {
	env := newTestEnv(t, alwaysAccept)
	s := env.sessions.Create()

	srv := httptest.NewServer(http.HandlerFunc(env.handler.HandleEvents))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(t.Context(), "GET", srv.URL, nil)
	req.AddCookie(sessionCookie(s))
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer res.Body.Close()

	reader := bufio.NewReader(res.Body)
	readEvent(t, reader)

	env.sessions.Delete(s.ID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream stayed open after the session was deleted")
	}
}
