package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"webterm/internal/protocol"
	"webterm/internal/testing/fakebackend"
)

const testSession = "session_abc123def"

func startAdapter(t *testing.T, url string, reconnect time.Duration) *Adapter {
	t.Helper()
	a := New(Options{URL: url, ReconnectInterval: reconnect, HandshakeTimeout: 2 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return a
}

func nextEvent(t *testing.T, a *Adapter) Event {
	t.Helper()
	select {
	case ev, ok := <-a.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectType(t *testing.T, ev Event, want EventType) {
	t.Helper()
	if ev.Type != want {
		t.Fatalf("expected %s event, got %s (%+v)", want, ev.Type, ev)
	}
}

func TestAdapter_ExecuteRoundTrip(t *testing.T) {
	b := fakebackend.Start(t, fakebackend.Options{Scripts: map[string]fakebackend.Script{
		"ls": {Output: []string{"Documents\n"}},
	}})
	a := startAdapter(t, b.WebSocketURL(), 0)

	expectType(t, nextEvent(t, a), EventConnected)

	if err := a.Execute("ls", testSession); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev := nextEvent(t, a)
	expectType(t, ev, EventOutput)
	if ev.Data != "$ ls\n" || ev.SessionID != testSession {
		t.Errorf("unexpected echo event: %+v", ev)
	}
	ev = nextEvent(t, a)
	expectType(t, ev, EventOutput)
	if ev.Data != "Documents\n" {
		t.Errorf("expected Documents output, got %q", ev.Data)
	}
	ev = nextEvent(t, a)
	expectType(t, ev, EventCompleted)
	if ev.ReturnCode != 0 || ev.SessionID != testSession {
		t.Errorf("unexpected completion: %+v", ev)
	}

	msgs := b.WaitReceived(1, time.Second)
	if len(msgs) != 1 || msgs[0].Type != protocol.TypeCommandExecute {
		t.Errorf("expected backend to record one execute, got %v", msgs)
	}
}

func TestAdapter_CancelHeldCommand(t *testing.T) {
	b := fakebackend.Start(t, fakebackend.Options{Scripts: map[string]fakebackend.Script{
		"tail -f log": {Hold: true},
	}})
	a := startAdapter(t, b.WebSocketURL(), 0)
	expectType(t, nextEvent(t, a), EventConnected)

	a.Execute("tail -f log", testSession)
	expectType(t, nextEvent(t, a), EventOutput)

	if err := a.Cancel(testSession); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ev := nextEvent(t, a)
	expectType(t, ev, EventOutput)
	if ev.Data != "\n^C\n" {
		t.Errorf("expected ^C output, got %q", ev.Data)
	}
	expectType(t, nextEvent(t, a), EventCompleted)
}

func TestAdapter_CancelWithoutProcess(t *testing.T) {
	b := fakebackend.Start(t, fakebackend.Options{})
	a := startAdapter(t, b.WebSocketURL(), 0)
	expectType(t, nextEvent(t, a), EventConnected)

	a.Cancel(testSession)
	ev := nextEvent(t, a)
	expectType(t, ev, EventError)
	if ev.Message != fakebackend.ErrNoActiveProcess {
		t.Errorf("expected %q, got %q", fakebackend.ErrNoActiveProcess, ev.Message)
	}
}

func TestAdapter_DropsInvalidFrames(t *testing.T) {
	b := fakebackend.Start(t, fakebackend.Options{})
	a := startAdapter(t, b.WebSocketURL(), 0)
	expectType(t, nextEvent(t, a), EventConnected)

	// Unknown type and a session event without sessionId.
	b.Broadcast("bogus.type", map[string]string{"x": "y"})
	b.Broadcast(protocol.TypeTerminalOutput, map[string]string{"data": "orphan"})
	b.Broadcast(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{SessionID: testSession, Data: "ok"})

	ev := nextEvent(t, a)
	expectType(t, ev, EventOutput)
	if ev.Data != "ok" {
		t.Errorf("expected only the valid frame, got %+v", ev)
	}
}

func TestAdapter_ConnectionErrorReportedOncePerStreak(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	a := startAdapter(t, url, 20*time.Millisecond)

	ev := nextEvent(t, a)
	expectType(t, ev, EventConnectionError)
	var dialErr *DialError
	if !errors.As(ev.Err, &dialErr) {
		t.Errorf("expected *DialError, got %T", ev.Err)
	}

	select {
	case ev := <-a.Events():
		t.Errorf("expected no further events while failing, got %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestAdapter_ReconnectsAfterDisconnect(t *testing.T) {
	b := fakebackend.Start(t, fakebackend.Options{})
	a := startAdapter(t, b.WebSocketURL(), 20*time.Millisecond)
	expectType(t, nextEvent(t, a), EventConnected)

	b.DropClients()
	expectType(t, nextEvent(t, a), EventDisconnected)
	expectType(t, nextEvent(t, a), EventConnected)
}

func TestAdapter_SendWhileDisconnected(t *testing.T) {
	a := New(Options{URL: "ws://127.0.0.1:1/ws"})
	if err := a.Execute("ls", testSession); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := a.Cancel(testSession); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if a.Connected() {
		t.Error("expected adapter to report disconnected")
	}
}

func TestAdapter_RunWithoutReconnectReturns(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	a := New(Options{URL: url})
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	expectType(t, nextEvent(t, a), EventConnectionError)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	if _, ok := <-a.Events(); ok {
		t.Error("expected events channel closed")
	}
}

func TestEvent_SessionScoped(t *testing.T) {
	tests := []struct {
		typ  EventType
		want bool
	}{
		{EventConnected, false},
		{EventDisconnected, false},
		{EventConnectionError, false},
		{EventOutput, true},
		{EventCompleted, true},
		{EventError, true},
	}
	for _, tt := range tests {
		if got := (Event{Type: tt.typ}).SessionScoped(); got != tt.want {
			t.Errorf("%s: SessionScoped() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
