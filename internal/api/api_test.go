package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BTreeMap/LaunchPipe/internal/metrics"
	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/session"
	"github.com/BTreeMap/LaunchPipe/internal/snapshot"
	"github.com/BTreeMap/LaunchPipe/internal/testutil"
)

func populated(t *testing.T) *snapshot.Store {
	t.Helper()
	snap := snapshot.New()
	base := time.Now().Add(48 * time.Hour)
	ok := snap.CompareAndSwap(0, []models.LaunchRecord{
		testutil.Launch("a", "SpaceX", models.LaunchStatusGo, base),
		testutil.Launch("b", "Rocket Lab", models.LaunchStatusTBD, base.Add(time.Hour)),
		testutil.Launch("c", "SpaceX", models.LaunchStatusGo, base.Add(2*time.Hour)),
	})
	if !ok {
		t.Fatal("seed swap failed")
	}
	return snap
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode body %q: %v", rr.Body.String(), err)
	}
}

func TestHealthHandler(t *testing.T) {
	t.Run("not polled", func(t *testing.T) {
		s := NewServer(snapshot.New())
		rr := get(t, s.Handler(), "/healthz")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		var body map[string]any
		decode(t, rr, &body)
		if body["status"] != "degraded" {
			t.Errorf("expected degraded, got %v", body["status"])
		}
	})

	t.Run("fresh", func(t *testing.T) {
		eng := session.NewEngine(testutil.NewMockSurface())
		s := NewServer(populated(t), WithEngine(eng))
		rr := get(t, s.Handler(), "/healthz")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var body map[string]any
		decode(t, rr, &body)
		if body["status"] != "healthy" || body["launches"] != float64(3) {
			t.Errorf("unexpected body %v", body)
		}
		if _, ok := body["sessions"]; !ok {
			t.Error("expected session count")
		}
	})

	t.Run("stale", func(t *testing.T) {
		later := func() time.Time { return time.Now().Add(2 * time.Hour) }
		s := NewServer(populated(t), WithStaleAfter(time.Hour), WithClock(later))
		rr := get(t, s.Handler(), "/healthz")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		s := NewServer(populated(t))
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/healthz", nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rr.Code)
		}
		if rr.Header().Get("Allow") != http.MethodGet {
			t.Errorf("missing Allow header")
		}
	})
}

type launchesBody struct {
	Status string                `json:"status"`
	Result []models.LaunchRecord `json:"result"`
}

type launchBody struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Result  models.LaunchRecord `json:"result"`
}

func TestLaunchesHandler(t *testing.T) {
	s := NewServer(populated(t))

	var all launchesBody
	decode(t, get(t, s.Handler(), "/launches"), &all)
	if len(all.Result) != 3 || all.Result[0].SourceID != "a" {
		t.Fatalf("unexpected launches %+v", all.Result)
	}

	var spacex launchesBody
	decode(t, get(t, s.Handler(), "/launches?provider=spacex"), &spacex)
	if len(spacex.Result) != 2 {
		t.Fatalf("expected 2 SpaceX launches, got %d", len(spacex.Result))
	}
	for _, l := range spacex.Result {
		if l.Provider != "SpaceX" {
			t.Errorf("filter leaked %q", l.Provider)
		}
	}

	// The filter works on a copy.
	if s.snap.Len() != 3 {
		t.Errorf("snapshot modified by filter")
	}
}

func TestLaunchesHandlerEmptySnapshot(t *testing.T) {
	s := NewServer(snapshot.New())
	rr := get(t, s.Handler(), "/launches")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"result":[]`) {
		t.Errorf("expected empty array, got %s", rr.Body.String())
	}
}

func TestLaunchHandler(t *testing.T) {
	s := NewServer(populated(t))

	var byOrdinal launchBody
	rr := get(t, s.Handler(), "/launches/1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	decode(t, rr, &byOrdinal)
	if byOrdinal.Result.SourceID != "b" {
		t.Errorf("expected launch b, got %q", byOrdinal.Result.SourceID)
	}

	var byID launchBody
	decode(t, get(t, s.Handler(), "/launches/c"), &byID)
	if byID.Result.SourceID != "c" {
		t.Errorf("expected launch c, got %q", byID.Result.SourceID)
	}

	for _, path := range []string{"/launches/9", "/launches/-1", "/launches/missing"} {
		if rr := get(t, s.Handler(), path); rr.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rr.Code)
		}
	}
	if rr := get(t, s.Handler(), "/launches/"); rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty reference, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	m.Launches(3)

	s := NewServer(populated(t), WithGatherer(reg))
	rr := get(t, s.Handler(), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "launchpipe_snapshot_launches 3") {
		t.Errorf("metrics output missing gauge:\n%s", rr.Body.String())
	}
}

func TestWriteJSONFallsBackOnEncodeError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"bad": make(chan int)})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if rr.Body.String() != string(internalErrorBody) {
		t.Errorf("expected fallback body, got %s", rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("unexpected content type %q", got)
	}
}

func TestWriteFailureEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	writeFailure(rr, http.StatusNotFound, "no such launch")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Status != models.APIStatusError || resp.Message != "no such launch" {
		t.Errorf("unexpected envelope %+v", resp)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Error("snapshot responses must not be cacheable")
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	s := NewServer(populated(t), WithAddr(addr))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never came up: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
