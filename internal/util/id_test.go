package util

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDUsesPrefix(t *testing.T) {
	id := NewID("usr")
	if !strings.HasPrefix(id, "usr_") {
		t.Fatalf("expected usr_ prefix, got %q", id)
	}
	if id == NewID("usr") {
		t.Fatal("two ids must not collide")
	}
}

func TestMessageIDsSortByCreationTime(t *testing.T) {
	earlier := NewMessageID(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	later := NewMessageID(time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC))
	if !(earlier < later) {
		t.Fatalf("ids must order lexicographically by time: %q vs %q", earlier, later)
	}
}
