package chat

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSession() *Session {
	return NewSession("test", NewOutbox(io.Discard, 0))
}

// TestValidateName covers the accepted and rejected name formats.
func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "alice", false},
		{"max length", strings.Repeat("a", MaxNameLength), false},
		{"multibyte counts characters", strings.Repeat("é", MaxNameLength), false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"too long", strings.Repeat("a", MaxNameLength+1), true},
		{"command marker", `\afk`, true},
		{"private marker", "@bob", true},
		{"inner space", "al ice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNameInvalid) {
				t.Errorf("expected ErrNameInvalid, got %v", err)
			}
		})
	}
}

// TestRegistryTryRegister verifies uniqueness and release of names.
func TestRegistryTryRegister(t *testing.T) {
	r := NewRegistry(time.Now())
	alice := newTestSession()
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := r.TryRegister(alice, "alice", at); err != nil {
		t.Fatalf("TryRegister() error = %v", err)
	}
	if alice.Name() != "alice" || !alice.Joined().Equal(at) {
		t.Errorf("session not populated: name %q joined %v", alice.Name(), alice.Joined())
	}

	impostor := newTestSession()
	if err := r.TryRegister(impostor, "alice", at); !errors.Is(err, ErrNameTaken) {
		t.Errorf("duplicate TryRegister() error = %v, want ErrNameTaken", err)
	}
	if err := r.TryRegister(impostor, "", at); !errors.Is(err, ErrNameInvalid) {
		t.Errorf("empty TryRegister() error = %v, want ErrNameInvalid", err)
	}
	if impostor.Name() != "" {
		t.Errorf("rejected session got name %q", impostor.Name())
	}

	if !r.Unregister(alice) {
		t.Fatal("Unregister() = false for registered session")
	}
	if r.Unregister(alice) {
		t.Error("second Unregister() = true")
	}
	if r.Unregister(impostor) {
		t.Error("Unregister() = true for session that never negotiated")
	}
	if err := r.TryRegister(impostor, "alice", at); err != nil {
		t.Errorf("name not released after Unregister: %v", err)
	}
}

// TestRegistryConcurrentClaims races many sessions for one name.
func TestRegistryConcurrentClaims(t *testing.T) {
	r := NewRegistry(time.Now())
	const contenders = 64

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.TryRegister(newTestSession(), "bob", time.Now()) == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("%d sessions claimed the same name, want exactly 1", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

// TestRegistrySetAFK checks the previous-value contract of SetAFK.
func TestRegistrySetAFK(t *testing.T) {
	r := NewRegistry(time.Now())
	bob := newTestSession()

	if _, ok := r.SetAFK(bob, true); ok {
		t.Error("SetAFK() ok for unregistered session")
	}
	if err := r.TryRegister(bob, "bob", time.Now()); err != nil {
		t.Fatal(err)
	}
	if r.IsAFK("bob") {
		t.Error("new session starts away")
	}

	steps := []struct {
		afk      bool
		previous bool
	}{
		{true, false},
		{true, true},
		{false, true},
		{false, false},
	}
	for i, step := range steps {
		previous, ok := r.SetAFK(bob, step.afk)
		if !ok || previous != step.previous {
			t.Errorf("step %d: SetAFK(%v) = (%v, %v), want (%v, true)", i, step.afk, previous, ok, step.previous)
		}
		if r.IsAFK("bob") != step.afk {
			t.Errorf("step %d: IsAFK() = %v", i, !step.afk)
		}
	}
	if r.IsAFK("nobody") {
		t.Error("unknown name reported away")
	}
}

// TestRegistrySnapshotOrder checks that snapshots follow join order.
func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry(time.Now())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"carol", "alice", "bob"} {
		if err := r.TryRegister(newTestSession(), name, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	got := strings.Join(r.Names(), ",")
	if got != "carol,alice,bob" {
		t.Errorf("Names() = %s, want carol,alice,bob", got)
	}
}
