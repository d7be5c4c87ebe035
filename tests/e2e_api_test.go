package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polytopelabs/hyperpuzzle-simulator/catalog"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/api"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/logging"
	"github.com/polytopelabs/hyperpuzzle-simulator/internal/observability"
	"github.com/polytopelabs/hyperpuzzle-simulator/model"
)

// apiTestEnv runs the full serving stack over a loopback listener: the
// standard catalog, a dedicated metrics registry, and the API server
// mounted the same way cmd/view-server mounts it.
type apiTestEnv struct {
	cat        *catalog.Catalog
	srv        *api.Server
	ts         *httptest.Server
	apiMetrics *observability.APICollector
	engine     *observability.EngineCollector
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()

	cat := catalog.New()
	if err := catalog.RegisterStandard(cat); err != nil {
		t.Fatalf("RegisterStandard: %v", err)
	}

	registry := prometheus.NewRegistry()
	apiMetrics, err := observability.NewAPICollector(registry)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	engine, err := observability.NewEngineCollector(registry)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	srv := api.NewServer(cat,
		api.WithLogger(logging.Noop()),
		api.WithMetrics(apiMetrics),
		api.WithEngineMetrics(engine),
		api.WithConfig(api.Config{FrameInterval: 5 * time.Millisecond}),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/", srv.Routes())
	mux.Handle("/metrics", apiMetrics.Handler())

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &apiTestEnv{
		cat:        cat,
		srv:        srv,
		ts:         ts,
		apiMetrics: apiMetrics,
		engine:     engine,
	}
}

func (env *apiTestEnv) doJSON(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal %s %s body: %v", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, env.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s = %d, want %d: %s", method, path, resp.StatusCode, wantStatus, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
}

func (env *apiTestEnv) createSession(t *testing.T, puzzle string) api.SessionInfo {
	t.Helper()
	var info api.SessionInfo
	env.doJSON(t, http.MethodPost, "/v1/sessions",
		api.CreateSessionRequest{Puzzle: puzzle}, http.StatusCreated, &info)
	if info.ID == "" {
		t.Fatalf("created session has no id")
	}
	return info
}

func (env *apiTestEnv) scrapeMetrics(t *testing.T) string {
	t.Helper()
	resp, err := env.ts.Client().Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics = %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read /metrics: %v", err)
	}
	return string(raw)
}

// metricValue finds name in a Prometheus text exposition and returns its
// value. name may include a full label set, e.g.
// `twists_total{outcome="applied",puzzle="3^3"}`.
func metricValue(t *testing.T, metrics, name string) float64 {
	t.Helper()
	for _, line := range strings.Split(metrics, "\n") {
		if strings.HasPrefix(line, "#") || !strings.HasPrefix(line, name) {
			continue
		}
		rest := line[len(name):]
		if rest == "" || (rest[0] != ' ' && rest[0] != '{') {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
		if err != nil {
			t.Fatalf("parse metric line %q: %v", line, err)
		}
		return v
	}
	t.Fatalf("metric %s not found in scrape", name)
	return 0
}

// reversedNotation parses a move sequence and formats the sequence that
// undoes it: each twist's registered reverse, in reverse order.
func reversedNotation(t *testing.T, def *model.PuzzleDefinition, notation string) string {
	t.Helper()
	twists, err := model.ParseTwists(def, notation)
	if err != nil {
		t.Fatalf("ParseTwists(%q): %v", notation, err)
	}
	reversed := make([]model.LayeredTwist, 0, len(twists))
	for i := len(twists) - 1; i >= 0; i-- {
		reversed = append(reversed, twists[i].Reversed(def))
	}
	return model.FormatTwists(def, reversed)
}

func (env *apiTestEnv) dialStream(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/sessions/" + sessionID + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// streamEnvelope mirrors the server-to-client stream message.
type streamEnvelope struct {
	Type     string           `json:"type"`
	Session  *api.SessionInfo `json:"session"`
	Frame    *streamFrame     `json:"frame"`
	Error    string           `json:"error"`
	Blocking []int            `json:"blocking_pieces"`
	Strength float64          `json:"strength"`
}

type streamFrame struct {
	Transforms [][][]float64 `json:"transforms"`
	Animating  bool          `json:"animating"`
}

// awaitEnvelope reads stream messages until one of the wanted type
// arrives, skipping interleaved animation frames.
func awaitEnvelope(t *testing.T, conn *websocket.Conn, typ string) streamEnvelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	for i := 0; i < 500; i++ {
		var msg streamEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("reading stream while waiting for %q: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %q envelope after 500 stream messages", typ)
	return streamEnvelope{}
}

// TestEndToEndSolveFlow drives a complete solve over REST: scramble a
// 3^3, apply the reversed scramble, and walk the solved state through
// undo and redo. Reversing the applied scramble re-solves the puzzle no
// matter which twists the seed produced.
func TestEndToEndSolveFlow(t *testing.T) {
	env := newAPITestEnv(t)

	info := env.createSession(t, "3^3")
	if info.Started || info.Solved || info.TwistCount != 0 || info.HasUndo || info.HasRedo {
		t.Fatalf("fresh session lifecycle = %+v", info)
	}

	def, err := env.cat.Get("3^3")
	if err != nil {
		t.Fatalf("catalog.Get: %v", err)
	}

	pinned := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	var scr api.ScrambleResponse
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+info.ID+"/scramble", api.ScrambleRequest{
		Type:  "partial",
		Count: 3,
		Time:  &pinned,
		Seed:  "e2e-solve",
	}, http.StatusOK, &scr)

	if scr.Params.Type != "partial" || scr.Params.Count != 3 {
		t.Fatalf("scramble params = %+v", scr.Params)
	}
	if scr.Params.Seed != "e2e-solve" || !scr.Params.Time.Equal(pinned) {
		t.Fatalf("scramble did not keep the pinned time and seed: %+v", scr.Params)
	}
	if scr.Twists != 3 {
		t.Fatalf("scramble applied %d twists, want 3", scr.Twists)
	}
	if got := len(strings.Fields(scr.Notation)); got != 3 {
		t.Fatalf("scramble notation %q has %d moves, want 3", scr.Notation, got)
	}
	if scr.Session.Started || scr.Session.Solved {
		t.Fatalf("scramble must not start or solve the session: %+v", scr.Session)
	}
	if scr.Session.HasUndo {
		t.Fatalf("the scramble is an undo barrier, HasUndo must be false")
	}
	if scr.Session.Scramble != scr.Notation {
		t.Fatalf("session scramble %q does not match response notation %q",
			scr.Session.Scramble, scr.Notation)
	}

	solution := reversedNotation(t, def, scr.Notation)
	var solved api.SessionInfo
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+info.ID+"/twists",
		api.TwistRequest{Twists: solution}, http.StatusOK, &solved)
	if !solved.Started || !solved.Solved {
		t.Fatalf("after reversing the scramble: started=%v solved=%v", solved.Started, solved.Solved)
	}
	if solved.TwistCount != 3 {
		t.Fatalf("twist count = %d, want 3", solved.TwistCount)
	}

	stored, err := env.srv.Store().Get(info.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if !stored.Session.Solved() || !stored.Session.State().IsSolved() {
		t.Fatalf("server-side session disagrees with the API about being solved")
	}

	var afterUndo api.SessionInfo
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+info.ID+"/undo", nil, http.StatusOK, &afterUndo)
	if afterUndo.Solved {
		t.Fatalf("undo should step back out of the solved state")
	}
	if afterUndo.TwistCount != 0 {
		t.Fatalf("twist count after undoing the solution batch = %d, want 0", afterUndo.TwistCount)
	}
	if !afterUndo.HasRedo {
		t.Fatalf("undo should leave a redoable action")
	}
	var st api.StateResponse
	env.doJSON(t, http.MethodGet, "/v1/sessions/"+info.ID+"/state", nil, http.StatusOK, &st)
	if st.Solved {
		t.Fatalf("piece state should be unsolved after undo")
	}

	var afterRedo api.SessionInfo
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+info.ID+"/redo", nil, http.StatusOK, &afterRedo)
	if !afterRedo.Solved || afterRedo.TwistCount != 3 {
		t.Fatalf("redo should restore the solve: %+v", afterRedo)
	}

	metrics := env.scrapeMetrics(t)
	if v := metricValue(t, metrics, `twists_total{outcome="applied",puzzle="3^3"}`); v < 3 {
		t.Errorf("applied twists_total = %v, want >= 3", v)
	}
	if v := metricValue(t, metrics, "scrambles_total"); v != 1 {
		t.Errorf("scrambles_total = %v, want 1", v)
	}
	if v := metricValue(t, metrics, "solves_total"); v < 1 {
		t.Errorf("solves_total = %v, want >= 1", v)
	}
	if v := metricValue(t, metrics, "active_sessions"); v != 1 {
		t.Errorf("active_sessions = %v, want 1", v)
	}
	if v := metricValue(t, metrics, `api_requests_total{code="200",method="POST",route="/v1/sessions/{id}/twists"}`); v < 1 {
		t.Errorf("api_requests_total for the twists route = %v, want >= 1", v)
	}
	if v := metricValue(t, metrics, "transform_cache_entries"); v < 1 {
		t.Errorf("transform_cache_entries = %v, want >= 1", v)
	}
}

// TestEndToEndStreamFlow mixes WebSocket commands with REST reads
// against the same session: both transports must observe the same
// lifecycle.
func TestEndToEndStreamFlow(t *testing.T) {
	env := newAPITestEnv(t)

	info := env.createSession(t, "3^3")
	def, err := env.cat.Get("3^3")
	if err != nil {
		t.Fatalf("catalog.Get: %v", err)
	}

	conn := env.dialStream(t, info.ID)

	greeting := awaitEnvelope(t, conn, "state")
	if greeting.Session == nil || greeting.Session.ID != info.ID {
		t.Fatalf("greeting = %+v", greeting)
	}
	if greeting.Session.TwistCount != 0 {
		t.Fatalf("fresh stream session reports twist count %d", greeting.Session.TwistCount)
	}

	// The greeting proves the handler is past its connect accounting.
	metrics := env.scrapeMetrics(t)
	if v := metricValue(t, metrics, "stream_clients"); v != 1 {
		t.Errorf("stream_clients = %v, want 1 while connected", v)
	}

	if err := conn.WriteJSON(map[string]string{"op": "twists", "twists": "R U"}); err != nil {
		t.Fatalf("write twists command: %v", err)
	}
	state := awaitEnvelope(t, conn, "state")
	if state.Session.TwistCount != 2 {
		t.Fatalf("twist count over stream = %d, want 2", state.Session.TwistCount)
	}

	frame := awaitEnvelope(t, conn, "frame")
	if len(frame.Frame.Transforms) != len(def.Pieces) {
		t.Fatalf("frame carries %d transforms, want %d", len(frame.Frame.Transforms), len(def.Pieces))
	}

	var rest api.SessionInfo
	env.doJSON(t, http.MethodGet, "/v1/sessions/"+info.ID, nil, http.StatusOK, &rest)
	if rest.TwistCount != 2 {
		t.Fatalf("REST twist count = %d, want 2 after stream twists", rest.TwistCount)
	}

	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(map[string]string{"op": "undo"}); err != nil {
			t.Fatalf("write undo command: %v", err)
		}
		resp := awaitEnvelope(t, conn, "state")
		if resp.Session == nil {
			t.Fatalf("undo %d returned no session state", i+1)
		}
	}

	var st api.StateResponse
	env.doJSON(t, http.MethodGet, "/v1/sessions/"+info.ID+"/state", nil, http.StatusOK, &st)
	if !st.Solved {
		t.Fatalf("undoing both stream twists should restore the solved state")
	}
}

// TestEndToEndReplayFlow records a solve on one session and replays it
// into a fresh one. The recording embeds the scramble parameters, so the
// replayed session reproduces the same scramble and reaches the same
// solved state.
func TestEndToEndReplayFlow(t *testing.T) {
	env := newAPITestEnv(t)

	src := env.createSession(t, "2^3")
	def, err := env.cat.Get("2^3")
	if err != nil {
		t.Fatalf("catalog.Get: %v", err)
	}

	pinned := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	var scr api.ScrambleResponse
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+src.ID+"/scramble", api.ScrambleRequest{
		Type:  "partial",
		Count: 2,
		Time:  &pinned,
		Seed:  "e2e-replay",
	}, http.StatusOK, &scr)

	var solved api.SessionInfo
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+src.ID+"/twists",
		api.TwistRequest{Twists: reversedNotation(t, def, scr.Notation)}, http.StatusOK, &solved)
	if !solved.Solved {
		t.Fatalf("source session did not solve: %+v", solved)
	}

	var rec api.RecordingDTO
	env.doJSON(t, http.MethodGet, "/v1/sessions/"+src.ID+"/recording", nil, http.StatusOK, &rec)
	if rec.Puzzle != "2^3" {
		t.Fatalf("recording puzzle = %q, want 2^3", rec.Puzzle)
	}
	if rec.Scramble == nil {
		t.Fatalf("recording should embed the scramble parameters")
	}
	if len(rec.Events) == 0 {
		t.Fatalf("recording has no events")
	}
	if rec.Events[0].Kind != "scramble" {
		t.Fatalf("first recorded event = %q, want scramble", rec.Events[0].Kind)
	}

	dst := env.createSession(t, "2^3")
	var rep api.ReplayResponse
	env.doJSON(t, http.MethodPost, "/v1/sessions/"+dst.ID+"/replay", rec, http.StatusOK, &rep)
	if rep.Events != len(rec.Events) {
		t.Fatalf("replay reported %d events, want %d", rep.Events, len(rec.Events))
	}
	if !rep.Session.Solved {
		t.Fatalf("replayed session is not solved: %+v", rep.Session)
	}
	if rep.Session.TwistCount != solved.TwistCount {
		t.Fatalf("replayed twist count = %d, want %d", rep.Session.TwistCount, solved.TwistCount)
	}

	stored, err := env.srv.Store().Get(dst.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if !stored.Session.State().IsSolved() {
		t.Fatalf("replayed piece state is not solved")
	}
}
