package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/interview"
	"github.com/harishrahangdale/hirecorrecto-interview-platform-sub001/internal/media"
)

type fakeRunner struct {
	sess    interview.Session
	initErr error
	ended   int32
	runDone chan struct{}
}

func (f *fakeRunner) Initialize(ctx context.Context, templateID string) (interview.Session, error) {
	if f.initErr != nil {
		return interview.Session{}, f.initErr
	}
	return f.sess, nil
}

func (f *fakeRunner) Run(ctx context.Context) error {
	if f.runDone != nil {
		<-f.runDone
	}
	return nil
}

func (f *fakeRunner) End() {
	if atomic.AddInt32(&f.ended, 1) == 1 && f.runDone != nil {
		close(f.runDone)
	}
}

func (f *fakeRunner) Session() interview.Session { return f.sess }

func attachMedia(t *testing.T, baseURL, interviewID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/interviews/" + interviewID + "/media"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("media dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitTrue(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestServer_Healthz(t *testing.T) {
	srv := New(func(string, string, *media.Gateway) Runner { return &fakeRunner{} })
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestLaunch_WithoutMediaConflicts(t *testing.T) {
	srv := New(func(string, string, *media.Gateway) Runner { return &fakeRunner{} })
	r := httptest.NewRequest(http.MethodPost, "/interviews/ci-1/sessions",
		strings.NewReader(`{"candidateId":"cand-1","templateId":"tmpl-1"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestLaunch_StatusAndEndLifecycle(t *testing.T) {
	runner := &fakeRunner{
		sess:    interview.Session{ID: "s-1", Status: interview.StatusReady, Conversation: interview.StateIdle},
		runDone: make(chan struct{}),
	}
	srv := New(func(interviewID, candidateID string, gw *media.Gateway) Runner {
		if interviewID != "ci-1" || candidateID != "cand-1" || gw == nil {
			t.Errorf("factory args: %s %s %v", interviewID, candidateID, gw)
		}
		return runner
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	attachMedia(t, ts.URL, "ci-1")
	waitTrue(t, time.Second, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.gateways["ci-1"] != nil
	})

	resp, err := http.Post(ts.URL+"/interviews/ci-1/sessions", "application/json",
		strings.NewReader(`{"candidateId":"cand-1","templateId":"tmpl-1"}`))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.SessionID != "s-1" || body.Status != interview.StatusReady {
		t.Fatalf("body = %+v", body)
	}

	st, err := http.Get(ts.URL + "/sessions/s-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st.Body.Close()
	if st.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", st.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/s-1", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", del.StatusCode)
	}
	waitTrue(t, time.Second, func() bool { return atomic.LoadInt32(&runner.ended) == 1 })

	// Once the run goroutine exits the registry entry is pruned.
	waitTrue(t, time.Second, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.sessions["s-1"] == nil
	})
}

func TestStatus_UnknownSession(t *testing.T) {
	srv := New(func(string, string, *media.Gateway) Runner { return &fakeRunner{} })
	r := httptest.NewRequest(http.MethodGet, "/sessions/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLaunch_InitializationFailure(t *testing.T) {
	runner := &fakeRunner{initErr: &interview.InitializationError{Cause: context.DeadlineExceeded}}
	srv := New(func(string, string, *media.Gateway) Runner { return runner })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	attachMedia(t, ts.URL, "ci-2")
	waitTrue(t, time.Second, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.gateways["ci-2"] != nil
	})

	resp, err := http.Post(ts.URL+"/interviews/ci-2/sessions", "application/json",
		strings.NewReader(`{"candidateId":"cand-1","templateId":"tmpl-1"}`))
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}
