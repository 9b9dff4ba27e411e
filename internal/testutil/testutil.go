// Package testutil provides common test utilities and helpers for MoodMatch tests.
//
// The centrepiece is StubBackend, an httptest server that speaks the backend contract
// and counts calls per endpoint so tests can assert that an endpoint was never reached.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Backend endpoint paths, duplicated here so testutil does not depend on the client under test.
const (
	AnalyzePath   = "/api/mood/analyze"
	FindMatchPath = "/api/find-match"
	HealthPath    = "/health"
)

// Reply is a canned response for one endpoint.
type Reply struct {
	Status int
	Body   any           // marshaled as JSON unless it is a string, which is written raw
	Delay  time.Duration // applied before answering; aborted when the client goes away
}

// StubBackend is a fake MoodMatch backend.
type StubBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	replies  map[string]Reply
	requests map[string][]map[string]any

	analyzeCalls atomic.Int32
	matchCalls   atomic.Int32
	healthCalls  atomic.Int32
}

// NewStubBackend starts a stub backend that is closed when the test ends.
// Unconfigured endpoints answer 404.
func NewStubBackend(t *testing.T) *StubBackend {
	t.Helper()
	b := &StubBackend{
		replies:  make(map[string]Reply),
		requests: make(map[string][]map[string]any),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(AnalyzePath, b.handle(AnalyzePath, &b.analyzeCalls))
	mux.HandleFunc(FindMatchPath, b.handle(FindMatchPath, &b.matchCalls))
	mux.HandleFunc(HealthPath, b.handle(HealthPath, &b.healthCalls))
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the base URL of the stub.
func (b *StubBackend) URL() string {
	return b.Server.URL
}

// OnAnalyze configures the analysis reply.
func (b *StubBackend) OnAnalyze(r Reply) *StubBackend { return b.set(AnalyzePath, r) }

// OnFindMatch configures the match reply.
func (b *StubBackend) OnFindMatch(r Reply) *StubBackend { return b.set(FindMatchPath, r) }

// OnHealth configures the health reply.
func (b *StubBackend) OnHealth(r Reply) *StubBackend { return b.set(HealthPath, r) }

func (b *StubBackend) set(path string, r Reply) *StubBackend {
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	b.mu.Lock()
	b.replies[path] = r
	b.mu.Unlock()
	return b
}

// AnalyzeCalls is the number of requests the analysis endpoint received.
func (b *StubBackend) AnalyzeCalls() int { return int(b.analyzeCalls.Load()) }

// MatchCalls is the number of requests the match endpoint received.
func (b *StubBackend) MatchCalls() int { return int(b.matchCalls.Load()) }

// HealthCalls is the number of requests the health endpoint received.
func (b *StubBackend) HealthCalls() int { return int(b.healthCalls.Load()) }

// Requests returns the decoded JSON bodies received on path, in arrival order.
func (b *StubBackend) Requests(path string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.requests[path]))
	copy(out, b.requests[path])
	return out
}

func (b *StubBackend) handle(path string, counter *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counter.Add(1)

		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				var body map[string]any
				if err := json.Unmarshal(data, &body); err == nil {
					b.mu.Lock()
					b.requests[path] = append(b.requests[path], body)
					b.mu.Unlock()
				}
			}
		}

		b.mu.Lock()
		reply, ok := b.replies[path]
		b.mu.Unlock()
		if !ok {
			writeJSONResponse(w, http.StatusNotFound, map[string]string{"detail": "not configured"})
			return
		}

		if reply.Delay > 0 {
			select {
			case <-time.After(reply.Delay):
			case <-r.Context().Done():
				return
			}
		}

		if raw, isRaw := reply.Body.(string); isRaw {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(reply.Status)
			_, _ = io.WriteString(w, raw)
			return
		}
		writeJSONResponse(w, reply.Status, reply.Body)
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response any) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("testutil.writeJSONResponse: failed to marshal JSON response", "error", err)
		data = []byte(fmt.Sprintf(`{"detail":%q}`, err.Error()))
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(data); writeErr != nil {
		slog.Error("testutil.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}
