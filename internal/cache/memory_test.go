package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mkutlay/feedsync/internal/feed"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	want := feed.Validators{ETag: `"abc"`, LastModified: "Mon, 24 Aug 2026 10:00:00 GMT"}

	if err := m.SetValidators(ctx, "https://example.com/feed", want, 0); err != nil {
		t.Fatalf("set validators: %v", err)
	}
	got, err := m.GetValidators(ctx, "https://example.com/feed")
	if err != nil {
		t.Fatalf("get validators: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	// Unknown URL yields empty validators, not an error
	got, err = m.GetValidators(ctx, "https://example.com/other")
	if err != nil || got != (feed.Validators{}) {
		t.Errorf("expected empty validators, got %+v, %v", got, err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.SetValidators(ctx, "u", feed.Validators{ETag: "x"}, time.Nanosecond); err != nil {
		t.Fatalf("set validators: %v", err)
	}
	time.Sleep(time.Millisecond)

	got, err := m.GetValidators(ctx, "u")
	if err != nil || got != (feed.Validators{}) {
		t.Errorf("expected expired entry to read empty, got %+v, %v", got, err)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.SetValidators(ctx, "u", feed.Validators{ETag: "x"}, 0); err != nil {
		t.Fatalf("set validators: %v", err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got, _ := m.GetValidators(ctx, "u")
	if got != (feed.Validators{}) {
		t.Errorf("expected cleared store, got %+v", got)
	}
}
