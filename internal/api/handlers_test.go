package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mkutlay/feedsync/internal/cache"
	"github.com/mkutlay/feedsync/internal/config"
	"github.com/mkutlay/feedsync/internal/middleware"
	"github.com/mkutlay/feedsync/internal/models"
	"github.com/mkutlay/feedsync/internal/repo"
	"github.com/mkutlay/feedsync/internal/store"
	"github.com/mkutlay/feedsync/internal/syncer"
)

type stubTask struct {
	typ models.ContentType
}

func (s stubTask) ContentType() models.ContentType      { return s.typ }
func (s stubTask) Run(ctx context.Context) (int, error) { return 0, nil }

func newTestApp(t *testing.T) (*fiber.App, *store.AnnouncementStore, *store.BlogPostStore) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "feedsync.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ann := store.NewAnnouncementStore(db)
	posts := store.NewBlogPostStore(db)
	feed := repo.New(ann, posts)

	sched := syncer.NewScheduler(time.Hour, nil)
	sched.Register(stubTask{typ: models.TypeAnnouncement})
	sched.Register(stubTask{typ: models.TypeBlogPost})

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	SetupRoutes(app, NewHandlers(feed, sched, cache.NewMemoryStore()), &config.Config{AdminAPIKey: "secret"})
	return app, ann, posts
}

func seed(t *testing.T, ann *store.AnnouncementStore, posts *store.BlogPostStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	err := ann.UpsertBatch(ctx, []models.Announcement{
		{ID: "a1", Title: "maintenance window", PublishedAt: now.Add(-2 * time.Hour), FetchedAt: now},
	})
	if err != nil {
		t.Fatalf("seed announcements: %v", err)
	}
	err = posts.UpsertBatch(ctx, []models.BlogPost{
		{ID: "p1", Title: "release notes", PublishedAt: now.Add(-time.Hour), FetchedAt: now},
	})
	if err != nil {
		t.Fatalf("seed posts: %v", err)
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeItems(t *testing.T, resp *http.Response) []models.Item {
	t.Helper()
	var body struct {
		Total int           `json:"total"`
		Items []models.Item `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body.Items
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, "GET", "/api/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestGetFeedMergesTypesNewestFirst(t *testing.T) {
	app, ann, posts := newTestApp(t)
	seed(t, ann, posts)

	resp := doJSON(t, app, "GET", "/api/v1/feed", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	items := decodeItems(t, resp)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Type != models.TypeBlogPost || items[1].Type != models.TypeAnnouncement {
		t.Errorf("unexpected merge order: %+v", items)
	}
}

func TestSetReadRemovesFromUnreadFeed(t *testing.T) {
	app, ann, posts := newTestApp(t)
	seed(t, ann, posts)

	resp := doJSON(t, app, "POST", "/api/v1/items/blog_post/p1/read", `{"value": true}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	items := decodeItems(t, doJSON(t, app, "GET", "/api/v1/feed", "", nil))
	if len(items) != 1 || items[0].ID != "a1" {
		t.Errorf("expected only the unread announcement, got %+v", items)
	}
}

func TestSetReadUnknownItem(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, "POST", "/api/v1/items/announcement/missing/read", `{"value": true}`, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSetReadUnknownType(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, "POST", "/api/v1/items/podcast/x/read", `{"value": true}`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSetReadMissingValue(t *testing.T) {
	app, ann, posts := newTestApp(t)
	seed(t, ann, posts)
	resp := doJSON(t, app, "POST", "/api/v1/items/announcement/a1/read", `{}`, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for missing value, got %d", resp.StatusCode)
	}
}

func TestFavoriteAnnouncementRejected(t *testing.T) {
	app, ann, posts := newTestApp(t)
	seed(t, ann, posts)
	resp := doJSON(t, app, "POST", "/api/v1/items/announcement/a1/favorite", `{"value": true}`, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", resp.StatusCode)
	}
}

func TestFavoriteBlogPostListing(t *testing.T) {
	app, ann, posts := newTestApp(t)
	seed(t, ann, posts)

	resp := doJSON(t, app, "POST", "/api/v1/items/blog_post/p1/favorite", `{"value": true}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	items := decodeItems(t, doJSON(t, app, "GET", "/api/v1/posts?favorites=true", "", nil))
	if len(items) != 1 || !items[0].IsFavorite {
		t.Errorf("expected one favorite post, got %+v", items)
	}
}

func TestUnknownBucketRejected(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, "GET", "/api/v1/announcements?bucket=someday", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAdminSyncRequiresKey(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, "POST", "/api/v1/admin/sync", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "POST", "/api/v1/admin/sync", "", map[string]string{"X-API-Key": "wrong"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 with wrong key, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "POST", "/api/v1/admin/sync", "", map[string]string{"X-API-Key": "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with admin key, got %d", resp.StatusCode)
	}
}

func TestAdminClearCache(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, "POST", "/api/v1/admin/cache/clear", "", map[string]string{"X-API-Key": "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSyncStatusListsBothTypes(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, "GET", "/api/v1/sync/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var statuses map[models.ContentType]syncer.Status
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		t.Fatalf("decode statuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Errorf("expected both content types, got %+v", statuses)
	}
	if statuses[models.TypeAnnouncement].State != syncer.StateIdle {
		t.Errorf("expected idle before start, got %+v", statuses[models.TypeAnnouncement])
	}
}

func TestUnknownEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doJSON(t, app, "GET", "/api/v1/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
