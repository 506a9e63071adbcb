package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denisenanni/portfolio/internal/config"
	"github.com/denisenanni/portfolio/internal/content"
	"github.com/denisenanni/portfolio/internal/pipeline"
	"github.com/denisenanni/portfolio/internal/store"
	"github.com/denisenanni/portfolio/internal/timeutil"
)

var epoch = time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *store.Store
	clock *timeutil.ManualClock
	cfg   *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Port:               "8080",
		GinMode:            "test",
		LogLevel:           "info",
		LogFormat:          "console",
		ContactBackend:     "none",
		AdminUsername:      "admin",
		AdminPassword:      "s3cret",
		RateLimitBackend:   "off",
		RateLimitPerMinute: 5,
		RateLimitBurst:     3,
		TrackVisitors:      true,
		VisitorRetention:   365 * 24 * time.Hour,
		CleanupSchedule:    "@daily",
		Timing:             pipeline.DefaultTiming(),
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config, *Deps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	site, err := content.Default()
	require.NoError(t, err)

	cfg := testConfig()
	clock := timeutil.NewManualClock(epoch)
	deps := Deps{Config: cfg, Site: site, Store: st, Clock: clock}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	srv, err := New(deps)
	require.NoError(t, err)
	return &testEnv{srv: srv, store: st, clock: clock, cfg: cfg}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func TestIndexPage(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Denise Nanni")
	assert.Contains(t, body, `href="#contact"`)
	assert.Contains(t, body, "05.")
	assert.Contains(t, body, "COVID Stats App")
	assert.Contains(t, body, `hx-get="/behind-the-scenes"`)
	assert.Contains(t, body, `hx-post="/contact"`)
	assert.Contains(t, body, "2026")
}

func TestBehindTheScenesFragment(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/behind-the-scenes")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "CI/CD Pipeline")
	assert.Contains(t, body, "actions/deploy-pages@v4")
	assert.Contains(t, body, `<svg xmlns="http://www.w3.org/2000/svg"`)
	assert.Contains(t, body, "<animateMotion")
	assert.Contains(t, body, "Upload Artifact")
	assert.NotContains(t, body, "<!DOCTYPE html>")
	assert.NotContains(t, body, `data-live="1"`)

	assert.Contains(t, env.get("/behind-the-scenes?live=1").Body.String(), `data-live="1"`)
}

func TestPipelineSVG(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/pipeline.svg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `repeatCount="indefinite"`)

	static := env.get("/pipeline.svg?static=1").Body.String()
	assert.NotContains(t, static, "<animate")
	assert.Contains(t, static, `transform="translate(220,100)"`)

	circle := env.get("/pipeline.svg?layout=circle&static=1").Body.String()
	assert.Contains(t, circle, `transform="translate(400,100)"`)

	assert.Equal(t, http.StatusBadRequest, env.get("/pipeline.svg?layout=hex").Code)
}

func TestPipelineTimeline(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get("/pipeline/timeline")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp timelineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "square", resp.Layout)
	assert.Equal(t, "0 0 800 600", resp.ViewBox)
	assert.Equal(t, 7500.0, resp.CycleMS)
	assert.Len(t, resp.Stages, 8)
	assert.Len(t, resp.Connections, 7)
	require.NotEmpty(t, resp.Ops)
	assert.Equal(t, timelineOp{AtMS: 0, Kind: "reset", Index: -1}, resp.Ops[0])

	var lastStage timelineOp
	for _, op := range resp.Ops {
		if op.Kind == "show-stage" {
			lastStage = op
		}
	}
	assert.Equal(t, timelineOp{AtMS: 7000, Kind: "show-stage", Index: 7}, lastStage)

	assert.Equal(t, http.StatusBadRequest, env.get("/pipeline/timeline?layout=hex").Code)
}

type sseEvent struct {
	name string
	data pipeline.Event
}

func readEvents(body io.Reader) <-chan sseEvent {
	ch := make(chan sseEvent, 1024)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(body)
		var name string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				var e pipeline.Event
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &e) == nil {
					ch <- sseEvent{name: name, data: e}
				}
			}
		}
	}()
	return ch
}

func waitFor(t *testing.T, ch <-chan sseEvent, match func(sseEvent) bool) sseEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "stream ended early")
			if match(e) {
				return e
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPipelineStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/pipeline/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(resp.Body)

	first := waitFor(t, events, func(sseEvent) bool { return true })
	assert.Equal(t, "reset", first.name)
	assert.Equal(t, -1, first.data.Index)

	stage0 := waitFor(t, events, func(e sseEvent) bool { return e.name == "show-stage" })
	assert.Equal(t, 0, stage0.data.Index)

	// Nothing further happens until simulated time moves.
	env.clock.Advance(time.Second)
	stage1 := waitFor(t, events, func(e sseEvent) bool { return e.name == "show-stage" })
	assert.Equal(t, 1, stage1.data.Index)

	move := waitFor(t, events, func(e sseEvent) bool { return e.name == "move-indicator" && e.data.Index == 1 })
	start := env.srv.diagrams["square"].diagram.Connections()[1].Path.PointAt(0)
	assert.InDelta(t, start.X, move.data.X, 1e-9)
	assert.InDelta(t, start.Y, move.data.Y, 1e-9)

	require.NotZero(t, env.clock.Pending())
	cancel()
	require.Eventually(t, func() bool { return env.clock.Pending() == 0 }, 5*time.Second, 5*time.Millisecond,
		"animation timers outlived the request")
}

func TestPipelineStreamEndsOnShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/pipeline/stream?layout=circle")
	require.NoError(t, err)
	defer resp.Body.Close()
	events := readEvents(resp.Body)
	waitFor(t, events, func(e sseEvent) bool { return e.name == "reset" })

	env.srv.closeStreams()
	env.srv.closeStreams()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				assert.Zero(t, env.clock.Pending())
				return
			}
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}

func TestPipelineStreamUnknownLayout(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusBadRequest, env.get("/pipeline/stream?layout=hex").Code)
	assert.Zero(t, env.clock.Pending())
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	require.NoError(t, env.store.Close())
	assert.Equal(t, http.StatusServiceUnavailable, env.get("/healthz").Code)
}

func TestPrivacyPage(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/privacy")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "365 days")
	assert.Contains(t, rec.Body.String(), "info@devdenise.com")
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get("/static/pipeline.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource")
}

func TestVisitorTracking(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	env.do(req)

	dnt := httptest.NewRequest(http.MethodGet, "/", nil)
	dnt.Header.Set("DNT", "1")
	env.do(dnt)

	env.get("/privacy")
	env.get("/healthz")
	env.get("/static/site.css")
	env.get("/admin/login")
	env.get("/pipeline.svg?layout=hex")

	visitors, err := env.store.RecentVisitors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, visitors, 1)
	assert.Equal(t, "/", visitors[0].Path)
	assert.Equal(t, "test-agent", visitors[0].UserAgent)
	assert.Equal(t, epoch, visitors[0].VisitedAt)
	assert.Len(t, visitors[0].HashedIP, 16)
	assert.NotContains(t, visitors[0].HashedIP, "192.0.2")
}

func TestVisitorTrackingDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, _ *Deps) { c.TrackVisitors = false })
	env.get("/")

	visitors, err := env.store.RecentVisitors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, visitors)
}

func TestCleanupVisitors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.store.RecordVisit(ctx, store.Visitor{HashedIP: "old", Path: "/", VisitedAt: epoch.AddDate(-2, 0, 0)}))
	require.NoError(t, env.store.RecordVisit(ctx, store.Visitor{HashedIP: "new", Path: "/", VisitedAt: epoch}))

	n, err := env.srv.CleanupVisitors(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	c, err := env.srv.ScheduleCleanup()
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	env.cfg.CleanupSchedule = "whenever"
	_, err = env.srv.ScheduleCleanup()
	assert.Error(t, err)
}

func TestNewFallsBackWhenLayoutDoesNotFit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config, d *Deps) {
		site := *d.Site
		site.Pipeline.Layout = "circle"
		site.Pipeline.Steps = d.Site.Pipeline.Steps[:5]
		d.Site = &site
	})

	assert.Equal(t, http.StatusOK, env.get("/pipeline.svg").Code)
	assert.Equal(t, http.StatusBadRequest, env.get("/pipeline.svg?layout=square").Code)
}

func TestNewRejectsUnusableDefaultLayout(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	defer st.Close()
	site, err := content.Default()
	require.NoError(t, err)
	site.Pipeline.Steps = site.Pipeline.Steps[:3]

	_, err = New(Deps{Config: testConfig(), Site: site, Store: st})
	assert.ErrorIs(t, err, pipeline.ErrLayoutSize)

	_, err = New(Deps{Config: testConfig()})
	assert.Error(t, err)
}

func TestVisitorHashSaltIsStableAcrossServers(t *testing.T) {
	const salt = "shared-salt-0123456789"
	hashFor := func(salt string) string {
		env := newTestEnv(t, func(c *config.Config, _ *Deps) { c.VisitorHashSalt = salt })
		env.get("/")
		visitors, err := env.store.RecentVisitors(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, visitors, 1)
		return visitors[0].HashedIP
	}

	first, second := hashFor(salt), hashFor(salt)
	assert.Equal(t, first, second)
	assert.Equal(t, store.HashIP("192.0.2.1", salt), first)

	assert.NotEqual(t, hashFor(""), hashFor(""))
}
