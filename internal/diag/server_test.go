package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/scosock/internal/link"
	"github.com/danmuck/scosock/internal/sco"
	"github.com/danmuck/scosock/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

var (
	hostA = sco.MustParseAddr("00:1B:DC:0F:00:01")
	hostB = sco.MustParseAddr("00:1B:DC:0F:00:02")
)

type stubSockets struct{}

func (stubSockets) Snapshot() []sco.SocketInfo {
	return []sco.SocketInfo{{ID: 1, Local: hostA, State: "LISTEN"}}
}

func (stubSockets) Stats() sco.Stats {
	return sco.Stats{Allocated: 1, Live: 1}
}

type dropCall struct {
	a, peer sco.Addr
	reason  sco.Reason
}

type stubLinks struct {
	drops []dropCall
}

func (l *stubLinks) Adapters() []link.AdapterInfo {
	return []link.AdapterInfo{{Addr: hostA, MTU: 60}, {Addr: hostB, MTU: 60}}
}

func (l *stubLinks) Links() int { return 0 }

func (l *stubLinks) Drop(a, peer sco.Addr, reason sco.Reason) error {
	if peer != hostB {
		return link.ErrNoLink
	}
	l.drops = append(l.drops, dropCall{a: a, peer: peer, reason: reason})
	return nil
}

func newTestServer(t *testing.T) (*Server, *stubLinks) {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	links := &stubLinks{}
	return New("scod-test", ":0", nil, stubSockets{}, links), links
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/health", "/ready"} {
		rec := serve(t, s, http.MethodGet, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", path, err)
		}
		if body["daemon"] != "scod-test" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
}

func TestReadyWithoutSources(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s := New("bare", ":0", nil, nil, nil)
	if rec := serve(t, s, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/sockets"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSocketsListing(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, http.MethodGet, "/sockets")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Sockets []sco.SocketInfo `json:"sockets"`
		Stats   sco.Stats        `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Sockets) != 1 || body.Sockets[0].Local != hostA || body.Sockets[0].State != "LISTEN" {
		t.Fatalf("unexpected sockets %+v", body.Sockets)
	}
	if body.Stats.Live != 1 {
		t.Fatalf("unexpected stats %+v", body.Stats)
	}
}

func TestAdaptersListing(t *testing.T) {
	s, _ := newTestServer(t)
	rec := serve(t, s, http.MethodGet, "/adapters")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Adapters []link.AdapterInfo `json:"adapters"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Adapters) != 2 || body.Adapters[1].Addr != hostB {
		t.Fatalf("unexpected adapters %+v", body.Adapters)
	}
}

func TestDropRoute(t *testing.T) {
	s, links := newTestServer(t)
	rec := serve(t, s, http.MethodPost, "/adapters/"+hostA.String()+"/drop/"+hostB.String()+"?reason=0x15")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(links.drops) != 1 || links.drops[0].reason != sco.ReasonRemotePowerOff {
		t.Fatalf("unexpected drops %+v", links.drops)
	}

	if rec := serve(t, s, http.MethodPost, "/adapters/"+hostB.String()+"/drop/"+hostA.String()); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing link, got %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodPost, "/adapters/nope/drop/"+hostB.String()); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad addr, got %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodPost, "/adapters/"+hostA.String()+"/drop/"+hostB.String()+"?reason=300"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad reason, got %d", rec.Code)
	}
}
