package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"webterm/internal/protocol"
	"webterm/internal/testing/fakes/fakeclock"
)

type recordingPanel struct {
	mu      sync.Mutex
	current string
	shown   []string
	clears  int
}

func (p *recordingPanel) ShowError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = message
	p.shown = append(p.shown, message)
}

func (p *recordingPanel) ClearError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = ""
	p.clears++
}

func (p *recordingPanel) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// newLoginServer accepts the password "secret". Any other password gets a 401
// with the given message (or no body when message is empty).
func newLoginServer(t *testing.T, message string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req protocol.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Password == "secret" {
			json.NewEncoder(w).Encode(protocol.LoginResponse{Success: true})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		if message != "" {
			json.NewEncoder(w).Encode(protocol.LoginResponse{Message: message})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGate(endpoint string, panel Panel, clock *fakeclock.Clock, unlocks *int32) *Gate {
	return NewGate(Options{
		Endpoint: endpoint,
		Clock:    clock,
		Panel:    panel,
		OnUnlock: func() { atomic.AddInt32(unlocks, 1) },
	})
}

func TestGate_EmptyCredentialMakesNoRequest(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	panel := &recordingPanel{}
	gate := newTestGate(srv.URL, panel, fakeclock.New(time.Unix(0, 0)), &unlocks)

	err := gate.Submit(context.Background(), "")
	if !errors.Is(err, ErrEmptyCredential) {
		t.Fatalf("expected ErrEmptyCredential, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("expected no network request, got %d", hits)
	}
	if gate.Authenticated() {
		t.Error("gate must stay unauthenticated")
	}
	if panel.Current() != msgEmptyCredential {
		t.Errorf("expected empty-credential message on panel, got %q", panel.Current())
	}
}

func TestGate_SuccessUnlocksOnce(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)

	if err := gate.Submit(context.Background(), "secret"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !gate.Authenticated() {
		t.Fatal("expected authenticated")
	}

	if err := gate.Submit(context.Background(), "secret"); err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	if got := atomic.LoadInt32(&unlocks); got != 1 {
		t.Errorf("expected OnUnlock exactly once, got %d", got)
	}
}

func TestGate_RejectedUsesEndpointMessage(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "Wrong password, try again", &hits)
	panel := &recordingPanel{}
	gate := newTestGate(srv.URL, panel, fakeclock.New(time.Unix(0, 0)), &unlocks)

	err := gate.Submit(context.Background(), "guess")
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if authErr.Kind != KindRejected {
		t.Errorf("expected KindRejected, got %v", authErr.Kind)
	}
	if authErr.Message != "Wrong password, try again" {
		t.Errorf("unexpected message %q", authErr.Message)
	}
	if gate.Authenticated() {
		t.Error("gate must stay unauthenticated")
	}
	if unlocks != 0 {
		t.Error("OnUnlock must not run on failure")
	}
}

func TestGate_RejectedDefaultMessage(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)

	err := gate.Submit(context.Background(), "guess")
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if authErr.Message != msgRejected {
		t.Errorf("expected default message, got %q", authErr.Message)
	}
}

func TestGate_UnreachableEndpoint(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	endpoint := srv.URL
	srv.Close()

	gate := newTestGate(endpoint, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)

	err := gate.Submit(context.Background(), "secret")
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if authErr.Kind != KindConnectivity {
		t.Errorf("expected KindConnectivity, got %v", authErr.Kind)
	}
	if authErr.Unwrap() == nil {
		t.Error("expected underlying transport error")
	}
}

func TestGate_ErrorClearsAfterThreeSeconds(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	panel := &recordingPanel{}
	clock := fakeclock.New(time.Unix(0, 0))
	gate := newTestGate(srv.URL, panel, clock, &unlocks)

	gate.Submit(context.Background(), "guess")
	if panel.Current() == "" {
		t.Fatal("expected error displayed")
	}

	clock.Advance(ErrorDisplayDuration - time.Millisecond)
	if panel.Current() == "" {
		t.Fatal("error cleared too early")
	}

	clock.Advance(time.Millisecond)
	if panel.Current() != "" {
		t.Errorf("expected error cleared after 3s, got %q", panel.Current())
	}
}

func TestGate_NewFailureRestartsWindow(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	panel := &recordingPanel{}
	clock := fakeclock.New(time.Unix(0, 0))
	gate := newTestGate(srv.URL, panel, clock, &unlocks)

	gate.Submit(context.Background(), "")
	clock.Advance(2 * time.Second)
	gate.Submit(context.Background(), "guess")

	clock.Advance(2 * time.Second)
	if panel.Current() != msgRejected {
		t.Fatalf("second error cleared early, got %q", panel.Current())
	}

	clock.Advance(time.Second)
	if panel.Current() != "" {
		t.Errorf("expected cleared, got %q", panel.Current())
	}
	if panel.clears != 1 {
		t.Errorf("expected exactly one clear, got %d", panel.clears)
	}
}

func TestGate_DefaultClockClearsErrors(t *testing.T) {
	panel := &recordingPanel{}
	g := NewGate(Options{Endpoint: "http://127.0.0.1:1/api/login", Panel: panel})
	if g.clock == nil {
		t.Fatal("expected a real clock when none is given")
	}

	g.fail(&Error{Kind: KindRejected, Message: "Invalid password"})
	if panel.Current() != "Invalid password" {
		t.Errorf("expected the error shown, got %q", panel.Current())
	}
	if g.errTimer == nil {
		t.Fatal("expected the error to be scheduled for clearing")
	}
	g.errTimer.Stop()
}

func TestError_Is(t *testing.T) {
	err := &Error{Kind: KindEmptyCredential, Message: "other text"}
	if !errors.Is(err, ErrEmptyCredential) {
		t.Error("expected kind-based match")
	}
	if errors.Is(&Error{Kind: KindRejected}, ErrEmptyCredential) {
		t.Error("different kinds must not match")
	}
}
