package session

import (
	"errors"
	"testing"

	"webterm/internal/adapters/realrand"
	"webterm/internal/testing/fakes/fakerand"
)

func TestNewID_Shape(t *testing.T) {
	id, err := NewID(realrand.New())
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}
	if !ValidID(id) {
		t.Errorf("unexpected id shape: %q", id)
	}
}

func TestNewID_DeterministicWithFakeRandom(t *testing.T) {
	r := fakerand.NewSequential()
	first, err := NewID(r)
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}

	r.Reset()
	second, err := NewID(r)
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}

	if first != second {
		t.Errorf("expected identical ids from identical randomness, got %q and %q", first, second)
	}
}

func TestNewID_ZeroPadded(t *testing.T) {
	id, err := NewID(fakerand.New([]byte{0}))
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}
	if !ValidID(id) {
		t.Errorf("expected padded id, got %q", id)
	}
}

func TestNewID_DistinctForRealRandom(t *testing.T) {
	seen := make(map[string]bool)
	r := realrand.New()
	for i := 0; i < 100; i++ {
		id, err := NewID(r)
		if err != nil {
			t.Fatalf("NewID failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestNewID_ReaderError(t *testing.T) {
	if _, err := NewID(failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"session_abc123xyz", true},
		{"session_000000000", true},
		{"session_ABC123xyz", false},
		{"session_abc", false},
		{"abc123xyz", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
