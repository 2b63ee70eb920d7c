package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devsly/devsly-go/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(snapshots ...store.JobSnapshot) (*Server, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	for _, s := range snapshots {
		ms.Update(s)
	}
	return NewServer(ms, "127.0.0.1:0", testLogger()), ms
}

func parseSSEEvents(body string) []store.JobSnapshot {
	var results []store.JobSnapshot
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			var snapshot store.JobSnapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snapshot); err == nil {
				results = append(results, snapshot)
			}
		}
	}
	return results
}

// --- REST routes ---

func TestHandleJobs(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv, _ := newTestServer(
		store.JobSnapshot{ID: "t-2", Name: "Checkout", State: "running", StartedAt: base.Add(time.Second)},
		store.JobSnapshot{ID: "t-1", Name: "Homepage", State: "completed", StartedAt: base},
	)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var jobs []store.JobSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "t-1" || jobs[1].ID != "t-2" {
		t.Errorf("jobs = %+v, want t-1 then t-2", jobs)
	}
}

func TestHandleJob(t *testing.T) {
	srv, _ := newTestServer(store.JobSnapshot{ID: "t-1", Name: "Homepage", State: "running", Progress: 33})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/t-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var job store.JobSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Name != "Homepage" || job.Progress != 33 {
		t.Errorf("job = %+v", job)
	}
}

func TestHandleJob_NotFound(t *testing.T) {
	srv, _ := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "job not found") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// --- SSE ---

func TestHandleSSE_BasicFlow(t *testing.T) {
	srv, _ := newTestServer(
		store.JobSnapshot{ID: "t-1", Name: "API-1", State: "running"},
		store.JobSnapshot{ID: "t-2", Name: "API-2", State: "queued"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %s", len(events), rec.Body.String())
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	srv, ms := newTestServer()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	ms.Update(store.JobSnapshot{ID: "t-9", Name: "NewJob", State: "running"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if !strings.Contains(rec.Body.String(), "NewJob") {
		t.Errorf("response should contain streamed update NewJob, got: %s", rec.Body.String())
	}
}

func TestHandleSSE_Headers(t *testing.T) {
	srv, _ := newTestServer()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}
	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
}

func (n *nonFlushWriter) Header() http.Header         { return n.header }
func (n *nonFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (n *nonFlushWriter) WriteHeader(statusCode int)  { n.statusCode = statusCode }

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv, _ := newTestServer()

	w := &nonFlushWriter{header: make(http.Header)}
	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv, _ := newTestServer()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	srv, _ := newTestServer(store.JobSnapshot{ID: "t-1", State: "running"})

	serverCtx, serverCancel := context.WithCancel(context.Background())

	numClients := 10
	var wg sync.WaitGroup
	started := make(chan struct{})
	var startedCount atomic.Int32

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			if startedCount.Add(1) == int32(numClients) {
				close(started)
			}
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("clients did not start in time")
	}
	time.Sleep(100 * time.Millisecond)

	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

// --- Start / shutdown with a real listener ---

func TestStart_ServesAndShutsDown(t *testing.T) {
	srv, ms := newTestServer(store.JobSnapshot{ID: "t-1", Name: "Live", State: "running"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	base := "http://" + srv.Addr().String()

	resp, err := http.Get(base + "/api/jobs/t-1")
	if err != nil {
		t.Fatalf("GET job: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	// open an SSE stream and check it closes on shutdown
	sseResp, err := http.Get(base + "/api/sse")
	if err != nil {
		t.Fatalf("GET sse: %v", err)
	}
	defer func() { _ = sseResp.Body.Close() }()

	readDone := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(sseResp.Body)
		readDone <- string(data)
	}()

	time.Sleep(50 * time.Millisecond)
	ms.Update(store.JobSnapshot{ID: "t-1", Name: "Live", State: "completed", Progress: 100})
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case body := <-readDone:
		events := parseSSEEvents(body)
		if len(events) < 2 {
			t.Fatalf("got %d events, want initial plus update: %s", len(events), body)
		}
		if last := events[len(events)-1]; last.State != "completed" {
			t.Errorf("last event state = %q, want completed", last.State)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}

	select {
	case <-srv.Done():
	case <-time.After(6 * time.Second):
		t.Fatal("server did not finish shutdown")
	}
}

func TestStart_AddressInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	srv := NewServer(store.NewMemoryStore(), ln.Addr().String(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied address should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidAddress_ReturnsError(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), "127.0.0.1:-1", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid address should return error")
	}
}

func TestAddr_BeforeStart(t *testing.T) {
	srv, _ := newTestServer()
	if srv.Addr() != nil {
		t.Errorf("Addr() = %v, want nil before Start", srv.Addr())
	}
}
