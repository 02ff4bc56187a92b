package events

import "testing"

func TestRegisterUnregisterLifecycle(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	if got := hub.ActiveConnections("gs_abc"); got != 0 {
		t.Fatalf("expected 0 connections, got %d", got)
	}

	first := hub.Register("gs_abc", nil)
	second := hub.Register("gs_abc", nil)
	if first == second {
		t.Fatalf("expected distinct connection ids, got %d twice", first)
	}
	if got := hub.ActiveConnections("gs_abc"); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	hub.Unregister("gs_abc", first)
	if got := hub.ActiveConnections("gs_abc"); got != 1 {
		t.Fatalf("expected 1 connection, got %d", got)
	}

	hub.Unregister("gs_abc", second)
	if got := hub.ActiveConnections("gs_abc"); got != 0 {
		t.Fatalf("expected 0 connections, got %d", got)
	}
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	hub.Unregister("gs_abc", 42)
	if got := hub.ActiveConnections("gs_abc"); got != 0 {
		t.Fatalf("expected 0 connections, got %d", got)
	}
}

func TestPublishWithoutConnections(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	// Must not panic or block when nobody is listening.
	hub.Publish("gs_abc", Event{Type: TypeSessionUpdated, Payload: map[string]string{"id": "sess-1"}})
}

func TestConnectionIDsAreGlobal(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	a := hub.Register("gs_a", nil)
	b := hub.Register("gs_b", nil)
	if a == b {
		t.Fatalf("expected ids unique across users, got %d twice", a)
	}
	if hub.ActiveConnections("gs_a") != 1 || hub.ActiveConnections("gs_b") != 1 {
		t.Fatal("expected one connection per user")
	}
}
