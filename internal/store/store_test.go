package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkutlay/feedsync/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "feedsync.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func announcement(id string, published time.Time) models.Announcement {
	return models.Announcement{
		ID:          id,
		Title:       "title " + id,
		Summary:     "summary " + id,
		Link:        "https://example.com/" + id,
		PublishedAt: published,
		FetchedAt:   time.Now(),
	}
}

func TestMigrationsApplied(t *testing.T) {
	db := openTestDB(t)
	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("expected schema version %d, got %d", len(migrations), v)
	}
}

func TestReopenKeepsRowsAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	s := NewAnnouncementStore(db)
	if err := s.UpsertBatch(ctx, []models.Announcement{announcement("a1", time.Now())}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetRead(ctx, "a1", true); err != nil {
		t.Fatalf("set read: %v", err)
	}
	db.Close()

	// Re-running migrations on an existing database must not lose
	// rows or local flags.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer db.Close()
	items, err := NewAnnouncementStore(db).All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(items) != 1 || !items[0].IsRead {
		t.Errorf("expected 1 read item after reopen, got %+v", items)
	}
}

func TestUpsertConflictPreservesFlags(t *testing.T) {
	db := openTestDB(t)
	s := NewAnnouncementStore(db)
	ctx := context.Background()

	first := announcement("a1", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	if err := s.UpsertBatch(ctx, []models.Announcement{first}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetRead(ctx, "a1", true); err != nil {
		t.Fatalf("set read: %v", err)
	}

	// A later sync writes new source fields. The reconciler may even
	// carry a stale flag value; the commit must not touch the column.
	updated := first
	updated.Title = "updated"
	updated.IsRead = false
	updated.FetchedAt = first.FetchedAt.Add(time.Hour)
	if err := s.UpsertBatch(ctx, []models.Announcement{updated}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	items, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if items[0].Title != "updated" {
		t.Errorf("source field not updated: %q", items[0].Title)
	}
	if !items[0].IsRead {
		t.Error("read flag reset by sync commit")
	}
	if items[0].ReadAt.IsZero() {
		t.Error("read_at reset by sync commit")
	}
}

func TestFetchedAtMonotonic(t *testing.T) {
	db := openTestDB(t)
	s := NewAnnouncementStore(db)
	ctx := context.Background()

	later := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	item := announcement("a1", later)
	item.FetchedAt = later
	if err := s.UpsertBatch(ctx, []models.Announcement{item}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	item.FetchedAt = later.Add(-time.Hour)
	if err := s.UpsertBatch(ctx, []models.Announcement{item}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	items, _ := s.All(ctx)
	if !items[0].FetchedAt.Equal(later) {
		t.Errorf("fetched_at went backwards: %v", items[0].FetchedAt)
	}

	if err := s.TouchAll(ctx, later.Add(time.Hour)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	items, _ = s.All(ctx)
	if !items[0].FetchedAt.Equal(later.Add(time.Hour)) {
		t.Errorf("touch did not advance fetched_at: %v", items[0].FetchedAt)
	}
}

func TestQueryFilters(t *testing.T) {
	db := openTestDB(t)
	s := NewAnnouncementStore(db)
	ctx := context.Background()

	t1 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	a := announcement("a1", t1)
	a.Category = "maintenance"
	b := announcement("a2", t2)
	b.Category = "release"
	if err := s.UpsertBatch(ctx, []models.Announcement{a, b}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetRead(ctx, "a1", true); err != nil {
		t.Fatalf("set read: %v", err)
	}

	all, _ := s.All(ctx)
	if len(all) != 2 || all[0].ID != "a2" {
		t.Errorf("expected published_at desc order, got %+v", all)
	}
	unread, _ := s.Unread(ctx)
	if len(unread) != 1 || unread[0].ID != "a2" {
		t.Errorf("unexpected unread set: %+v", unread)
	}
	read, _ := s.ReadOnly(ctx)
	if len(read) != 1 || read[0].ID != "a1" {
		t.Errorf("unexpected read set: %+v", read)
	}
	byCat, _ := s.ByCategory(ctx, "release")
	if len(byCat) != 1 || byCat[0].ID != "a2" {
		t.Errorf("unexpected category set: %+v", byCat)
	}
	ranged, _ := s.PublishedBetween(ctx, t2, time.Time{})
	if len(ranged) != 1 || ranged[0].ID != "a2" {
		t.Errorf("unexpected range set: %+v", ranged)
	}
	n, _ := s.UnreadCount(ctx)
	if n != 1 {
		t.Errorf("expected unread count 1, got %d", n)
	}
}

func TestSetReadUnknownID(t *testing.T) {
	db := openTestDB(t)
	s := NewAnnouncementStore(db)
	if err := s.SetRead(context.Background(), "nope", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBlogPostFavoritesAndImages(t *testing.T) {
	db := openTestDB(t)
	s := NewBlogPostStore(db)
	ctx := context.Background()

	post := models.BlogPost{
		ID:               "p1",
		Title:            "post",
		FeaturedImageURL: "https://example.com/hero.jpg",
		ImageURLs:        []string{"https://example.com/hero.jpg", "https://example.com/b.jpg"},
		PublishedAt:      time.Now(),
		FetchedAt:        time.Now(),
	}
	if err := s.UpsertBatch(ctx, []models.BlogPost{post}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SetFavorite(ctx, "p1", true); err != nil {
		t.Fatalf("set favorite: %v", err)
	}

	favs, err := s.Favorites(ctx)
	if err != nil {
		t.Fatalf("favorites: %v", err)
	}
	if len(favs) != 1 || !favs[0].IsFavorite {
		t.Fatalf("unexpected favorites: %+v", favs)
	}
	if len(favs[0].ImageURLs) != 2 {
		t.Errorf("image urls not round-tripped: %v", favs[0].ImageURLs)
	}

	// Favorite flag survives a re-sync, same as read
	post.Title = "updated"
	post.IsFavorite = false
	if err := s.UpsertBatch(ctx, []models.BlogPost{post}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	favs, _ = s.Favorites(ctx)
	if len(favs) != 1 || favs[0].Title != "updated" {
		t.Errorf("favorite flag lost or source fields stale: %+v", favs)
	}
}

func TestSubscribeEmitsOnCommit(t *testing.T) {
	db := openTestDB(t)
	s := NewAnnouncementStore(db)
	ctx := context.Background()

	ch, cancel := s.Subscribe()
	defer cancel()

	if err := s.UpsertBatch(ctx, []models.Announcement{announcement("a1", time.Now())}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snap := waitSnapshot(t, ch)
	if len(snap) != 1 || snap[0].IsRead {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	if err := s.SetRead(ctx, "a1", true); err != nil {
		t.Fatalf("set read: %v", err)
	}
	snap = waitSnapshot(t, ch)
	if len(snap) != 1 || !snap[0].IsRead {
		t.Fatalf("expected read flag in snapshot: %+v", snap)
	}
}

func TestSubscribeCoalescesToLatest(t *testing.T) {
	db := openTestDB(t)
	s := NewAnnouncementStore(db)
	ctx := context.Background()

	ch, cancel := s.Subscribe()
	defer cancel()

	// Two commits without the subscriber draining: the second
	// snapshot replaces the first.
	for i, id := range []string{"a1", "a2"} {
		if err := s.UpsertBatch(ctx, []models.Announcement{announcement(id, time.Now().Add(time.Duration(i)*time.Minute))}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	snap := waitSnapshot(t, ch)
	if len(snap) != 2 {
		t.Errorf("expected latest snapshot with 2 items, got %d", len(snap))
	}
}

func waitSnapshot(t *testing.T, ch <-chan []models.Item) []models.Item {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
