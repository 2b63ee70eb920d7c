// Package mockapi is an in-memory stand-in for the Devsly HTTP API.
//
// It implements the load-testing and network-tools endpoints closely enough
// for SDK and CLI tests, and for local experiments via the example mock
// server. Load tests advance one step per status request and reach their
// final state after a configurable number of polls.
package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// APIPrefix is the path prefix the real API serves under.
const APIPrefix = "/api/v1"

// Server is an http.Handler that fakes the Devsly API.
type Server struct {
	apiKey     string
	steps      int
	finalState string

	mu          sync.Mutex
	tests       map[string]*loadTest
	statusCalls map[string]int
	resultCalls map[string]int
	lastStart   map[string]any

	router chi.Router
}

type loadTest struct {
	id       string
	state    string
	progress float64
	polls    int
	users    int
}

// Option configures a [Server].
type Option func(*Server)

// WithSteps sets how many status requests report "running" before the test
// reaches its final state. Defaults to 2.
func WithSteps(n int) Option {
	return func(s *Server) {
		if n >= 0 {
			s.steps = n
		}
	}
}

// WithFinalState sets the state tests end in. Defaults to "completed".
func WithFinalState(state string) Option {
	return func(s *Server) {
		s.finalState = state
	}
}

// New creates a mock API that accepts only apiKey.
func New(apiKey string, opts ...Option) *Server {
	s := &Server{
		apiKey:      apiKey,
		steps:       2,
		finalState:  "completed",
		tests:       make(map[string]*loadTest),
		statusCalls: make(map[string]int),
		resultCalls: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/load-testing/start", s.handleStart)
		r.Get("/load-testing/status/{id}", s.handleStatus)
		r.Post("/load-testing/stop/{id}", s.handleStop)
		r.Get("/load-testing/results/{id}", s.handleResults)

		r.Get("/network/whois", s.handleWhois)
		r.Get("/network/dns-lookup", s.handleDNSLookup)
		r.Get("/network/ip-info", s.handleIPInfo)
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddTest registers a test directly, bypassing the start endpoint.
func (s *Server) AddTest(id, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[id] = &loadTest{id: id, state: state, users: 10}
}

// StatusCalls returns how many status requests were made for id.
func (s *Server) StatusCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls[id]
}

// ResultCalls returns how many results requests were made for id.
func (s *Server) ResultCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultCalls[id]
}

// LastStartRequest returns the decoded body of the most recent start request.
func (s *Server) LastStartRequest() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStart
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target, _ := body["target_url"].(string)
	if target == "" {
		writeError(w, http.StatusUnprocessableEntity, "target_url is required")
		return
	}
	users := 10
	if n, ok := body["concurrent_users"].(float64); ok {
		users = int(n)
	}

	t := &loadTest{id: uuid.NewString(), state: "running", users: users}

	s.mu.Lock()
	s.tests[t.id] = t
	s.lastStart = body
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"test_id": t.id,
		"status":  t.state,
		"message": "Load test started",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	t, ok := s.tests[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	s.statusCalls[id]++
	if t.state == "running" {
		t.polls++
		if t.polls > s.steps {
			t.state = s.finalState
			t.progress = 100
		} else {
			t.progress = float64(t.polls*100) / float64(s.steps+1)
		}
	}
	resp := map[string]any{
		"test_id":  t.id,
		"status":   t.state,
		"progress": t.progress,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	t, ok := s.tests[id]
	if ok && t.state == "running" {
		t.state = "stopped"
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Test stopped",
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	t, ok := s.tests[id]
	if ok {
		s.resultCalls[id]++
	}
	var snapshot loadTest
	if ok {
		snapshot = *t
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "test not found")
		return
	}

	if snapshot.state == "failed" {
		writeJSON(w, http.StatusOK, map[string]any{
			"test_id": snapshot.id,
			"status":  snapshot.state,
			"error":   "target unreachable",
		})
		return
	}

	total := snapshot.users * 100
	failed := snapshot.users * 2
	writeJSON(w, http.StatusOK, map[string]any{
		"test_id":             snapshot.id,
		"status":              snapshot.state,
		"total_requests":      total,
		"successful_requests": total - failed,
		"failed_requests":     failed,
		"avg_response_time":   123.4,
		"requests_per_second": 33.3,
		"percentiles": map[string]float64{
			"p50": 98,
			"p90": 180,
			"p95": 240,
			"p99": 410,
		},
	})
}

func (s *Server) handleWhois(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"domain":          domain,
		"registrar":       "MarkMonitor Inc.",
		"creation_date":   "1997-09-15",
		"expiration_date": "2028-09-14",
		"name_servers":    []string{"ns1." + domain, "ns2." + domain},
	})
}

func (s *Server) handleDNSLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	domain := q.Get("domain")
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	recordType := strings.ToUpper(q.Get("type"))
	if recordType == "" {
		recordType = "A"
	}

	var records []any
	switch recordType {
	case "A":
		records = []any{"140.82.112.3"}
	case "AAAA":
		records = []any{"2606:50c0:8000::154"}
	case "MX":
		records = []any{
			map[string]any{"priority": 5, "exchange": "gmail-smtp-in.l.google.com"},
			map[string]any{"priority": 10, "exchange": "alt1.gmail-smtp-in.l.google.com"},
		}
	case "NS":
		records = []any{"ns1." + domain, "ns2." + domain}
	case "TXT":
		records = []any{"v=spf1 -all"}
	case "CNAME":
		records = []any{"alias." + domain}
	case "SOA":
		records = []any{map[string]any{"mname": "ns1." + domain, "serial": 2024010101}}
	default:
		writeError(w, http.StatusBadRequest, "unsupported record type")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"domain":  domain,
		"type":    recordType,
		"records": records,
	})
}

func (s *Server) handleIPInfo(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		ip = "203.0.113.7"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ip":        ip,
		"country":   "United States",
		"city":      "Mountain View",
		"region":    "California",
		"isp":       "Google LLC",
		"org":       "Google Public DNS",
		"timezone":  "America/Los_Angeles",
		"latitude":  37.386,
		"longitude": -122.0838,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
