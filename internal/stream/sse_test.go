package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kilodelta8/StarTrack/internal/device"
	"github.com/kilodelta8/StarTrack/internal/tle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// trackingDevice is a fake tracker that always reports an in-progress track.
func trackingDevice(t *testing.T) *device.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"TRACKING","epoch_time":1700000000,"az":182.4,"el":45.1}`)
	}))
	t.Cleanup(ts.Close)
	return device.NewClient(ts.URL, 0, 0)
}

// offlineDevice is a tracker endpoint that refuses connections.
func offlineDevice(t *testing.T) *device.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()
	return device.NewClient(ts.URL, 0, 0)
}

func loadedStore(t *testing.T) *tle.Store {
	t.Helper()
	el, err := tle.Parse(issLine1, issLine2)
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now().Add(-30*time.Minute), []tle.OrbitalElements{*el}))
	return store
}

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

// runStream calls HandleStatus with a bounded context and returns the raw
// SSE body once the handler exits.
func runStream(t *testing.T, h *Handler, timeout time.Duration) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/v1/stream/status", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	h.HandleStatus(w, req)
	return w, w.Body.String()
}

// dataMessages parses every "data:" line in an SSE body.
func dataMessages(t *testing.T, body string) []map[string]any {
	t.Helper()
	var msgs []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Fatalf("invalid JSON in SSE data line %q: %v", line, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestStatusStreamFormat(t *testing.T) {
	h := NewHandler(trackingDevice(t), loadedStore(t), Config{
		MaxConcurrentPerIP: 10,
		PollInterval:       100 * time.Millisecond,
		KeepaliveInterval:  5 * time.Second,
	}, testLogger())

	w, body := runStream(t, h, 600*time.Millisecond)

	resp := w.Result()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}

	msgs := dataMessages(t, body)
	if len(msgs) < 2 {
		t.Fatalf("got %d messages, want metadata plus at least one status", len(msgs))
	}

	meta := msgs[0]
	if meta["type"] != "metadata" {
		t.Fatalf("first message type = %v, want metadata", meta["type"])
	}
	if meta["poll_interval_ms"] != float64(100) {
		t.Errorf("poll_interval_ms = %v, want 100", meta["poll_interval_ms"])
	}
	if _, ok := meta["dataset_epoch"]; !ok {
		t.Error("metadata missing dataset_epoch")
	}
	if _, ok := meta["device"]; !ok {
		t.Error("metadata missing device")
	}

	status := msgs[1]
	if status["type"] != "device_status" {
		t.Fatalf("second message type = %v, want device_status", status["type"])
	}
	if status["online"] != true {
		t.Errorf("online = %v, want true", status["online"])
	}
	if status["status"] != "TRACKING" {
		t.Errorf("status = %v, want TRACKING", status["status"])
	}
	if status["az"] != 182.4 || status["el"] != 45.1 {
		t.Errorf("pointing = %v/%v, want 182.4/45.1", status["az"], status["el"])
	}

	// Verify SSE framing: every non-empty line is data, retry, or comment.
	for _, line := range strings.Split(body, "\n") {
		if line == "" || line == ":" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

func TestStatusStreamOfflineDevice(t *testing.T) {
	h := NewHandler(offlineDevice(t), tle.NewStore(), Config{
		PollInterval:      100 * time.Millisecond,
		KeepaliveInterval: 5 * time.Second,
	}, testLogger())

	_, body := runStream(t, h, 400*time.Millisecond)

	msgs := dataMessages(t, body)
	if len(msgs) < 2 {
		t.Fatalf("got %d messages, want metadata plus at least one status", len(msgs))
	}

	meta := msgs[0]
	if _, ok := meta["dataset_epoch"]; ok {
		t.Error("metadata carries dataset_epoch despite empty store")
	}

	status := msgs[1]
	if status["online"] != false {
		t.Errorf("online = %v, want false for offline device", status["online"])
	}
	if status["error"] != "device offline" {
		t.Errorf("error = %v, want device offline", status["error"])
	}
	if _, ok := status["az"]; ok {
		t.Error("offline status carries az")
	}
}

func TestStatusStreamKeepalive(t *testing.T) {
	h := NewHandler(trackingDevice(t), tle.NewStore(), Config{
		PollInterval:      10 * time.Second, // only the immediate first poll
		KeepaliveInterval: 50 * time.Millisecond,
	}, testLogger())

	_, body := runStream(t, h, 300*time.Millisecond)

	keepalives := 0
	for _, line := range strings.Split(body, "\n") {
		if line == ":" {
			keepalives++
		}
	}
	if keepalives < 2 {
		t.Errorf("got %d keepalive comments, want at least 2", keepalives)
	}
}

func TestConnLimiterPerIP(t *testing.T) {
	limiter := newConnLimiter(3)

	for i := 0; i < 3; i++ {
		if !limiter.reserve("10.0.0.1") {
			t.Fatalf("reserve %d should succeed", i+1)
		}
	}

	if limiter.reserve("10.0.0.1") {
		t.Error("reserve beyond limit should fail")
	}

	if !limiter.reserve("10.0.0.2") {
		t.Error("different IP should not be limited")
	}

	limiter.free("10.0.0.1")
	if !limiter.reserve("10.0.0.1") {
		t.Error("reserve after free should succeed")
	}

	if c := limiter.activeFor("10.0.0.1"); c != 3 {
		t.Errorf("activeFor = %d, want 3", c)
	}
	if c := limiter.activeFor("10.0.0.2"); c != 1 {
		t.Errorf("activeFor = %d, want 1", c)
	}
}

func TestConnLimiterConcurrent(t *testing.T) {
	limiter := newConnLimiter(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.reserve("10.0.0.1") {
				defer limiter.free("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.activeFor("10.0.0.1"); c != 0 {
		t.Errorf("activeFor after all freed = %d, want 0", c)
	}
}

// TestOverLimitResponse verifies the 429 response when the per-IP
// limit is exceeded.
func TestOverLimitResponse(t *testing.T) {
	h := NewHandler(trackingDevice(t), tle.NewStore(), Config{
		MaxConcurrentPerIP: 1,
		PollInterval:       50 * time.Millisecond,
		KeepaliveInterval:  30 * time.Second,
	}, testLogger())

	// Hold the first connection open.
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/status", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		h.HandleStatus(w, req)
	}()

	<-ready

	// Second connection from the same IP should get 429.
	req := httptest.NewRequest("GET", "/api/v1/stream/status", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	h.HandleStatus(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}
