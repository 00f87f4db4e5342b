package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"webterm/internal/testing/fakes/fakeclock"
)

type scriptedPrompter struct {
	answers []string
	calls   int
}

var errGaveUp = errors.New("user gave up")

func (p *scriptedPrompter) Prompt(context.Context) (string, error) {
	if p.calls >= len(p.answers) {
		return "", errGaveUp
	}
	answer := p.answers[p.calls]
	p.calls++
	return answer, nil
}

type memoryStore struct {
	secrets map[string]string
	deletes int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{secrets: make(map[string]string)}
}

func (s *memoryStore) Get(account string) (string, error) { return s.secrets[account], nil }

func (s *memoryStore) Set(account, credential string) error {
	s.secrets[account] = credential
	return nil
}

func (s *memoryStore) Delete(account string) error {
	s.deletes++
	delete(s.secrets, account)
	return nil
}

func TestLogin_PromptsUntilAccepted(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)
	prompter := &scriptedPrompter{answers: []string{"", "guess", "secret"}}

	login := &Login{Gate: gate, Prompter: prompter}
	if err := login.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if prompter.calls != 3 {
		t.Errorf("expected 3 prompts, got %d", prompter.calls)
	}
	// The empty answer never reached the server.
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
	if !gate.Authenticated() {
		t.Error("expected authenticated")
	}
}

func TestLogin_PrompterFailureStops(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)

	login := &Login{Gate: gate, Prompter: &scriptedPrompter{answers: []string{"guess"}}}
	if err := login.Run(context.Background()); !errors.Is(err, errGaveUp) {
		t.Fatalf("expected prompter error, got %v", err)
	}
	if gate.Authenticated() {
		t.Error("expected unauthenticated")
	}
}

func TestLogin_PresetSkipsPrompt(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)
	prompter := &scriptedPrompter{}

	login := &Login{Gate: gate, Prompter: prompter, Preset: "secret"}
	if err := login.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if prompter.calls != 0 {
		t.Errorf("expected no prompt, got %d", prompter.calls)
	}
}

func TestLogin_StoredCredentialReusedAndForgottenWhenRejected(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)

	store := newMemoryStore()
	store.secrets[srv.URL] = "secret"
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)
	prompter := &scriptedPrompter{}

	login := &Login{Gate: gate, Prompter: prompter, Store: store, Account: srv.URL}
	if err := login.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if prompter.calls != 0 {
		t.Errorf("expected stored credential to skip prompt, got %d prompts", prompter.calls)
	}

	store.secrets[srv.URL] = "stale"
	gate = newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)
	login = &Login{Gate: gate, Prompter: &scriptedPrompter{answers: []string{"secret"}}, Store: store, Account: srv.URL, Remember: true}
	if err := login.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.deletes != 1 {
		t.Errorf("expected rejected credential deleted, got %d deletes", store.deletes)
	}
	if store.secrets[srv.URL] != "secret" {
		t.Errorf("expected accepted credential remembered, got %q", store.secrets[srv.URL])
	}
}

func TestLogin_NotRememberedByDefault(t *testing.T) {
	var hits, unlocks int32
	srv := newLoginServer(t, "", &hits)
	store := newMemoryStore()
	gate := newTestGate(srv.URL, &recordingPanel{}, fakeclock.New(time.Unix(0, 0)), &unlocks)

	login := &Login{Gate: gate, Prompter: &scriptedPrompter{answers: []string{"secret"}}, Store: store, Account: srv.URL}
	if err := login.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := store.secrets[srv.URL]; ok {
		t.Error("credential stored without Remember")
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()

	got, err := store.Get("https://term.example.com/api/login")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty store, got %q", got)
	}

	if err := store.Set("https://term.example.com/api/login", "secret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err = store.Get("https://term.example.com/api/login")
	if err != nil || got != "secret" {
		t.Fatalf("Get = %q, %v; want secret", got, err)
	}

	if err := store.Delete("https://term.example.com/api/login"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("https://term.example.com/api/login"); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
}

func TestFormPanel_ErrorState(t *testing.T) {
	p := NewFormPanel("Password")
	_, changed := p.snapshot()

	p.ShowError("Invalid password.")
	if p.Error() != "Invalid password." {
		t.Errorf("unexpected error %q", p.Error())
	}
	select {
	case <-changed:
	default:
		t.Error("expected change notification")
	}

	p.ClearError()
	if p.Error() != "" {
		t.Errorf("expected cleared error, got %q", p.Error())
	}
}
