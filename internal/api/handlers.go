package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/mkutlay/feedsync/internal/cache"
	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/middleware"
	"github.com/mkutlay/feedsync/internal/models"
	"github.com/mkutlay/feedsync/internal/repo"
	"github.com/mkutlay/feedsync/internal/store"
	"github.com/mkutlay/feedsync/internal/syncer"
	"github.com/valyala/fasthttp"
)

type Handlers struct {
	feed      *repo.Feed
	scheduler *syncer.Scheduler
	cache     cache.Store
}

func NewHandlers(feed *repo.Feed, scheduler *syncer.Scheduler, validatorCache cache.Store) *Handlers {
	return &Handlers{feed: feed, scheduler: scheduler, cache: validatorCache}
}

// flagRequest is the body of the read/favorite toggle endpoints. Value
// is a pointer so an explicit false passes validation.
type flagRequest struct {
	Value *bool `json:"value" validate:"required"`
}

// HealthCheck handles GET /api/v1/health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
	})
}

// GetFeed handles GET /api/v1/feed: the merged latest-unread carousel.
func (h *Handlers) GetFeed(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 5)
	items, err := h.feed.LatestUnread(c.Context(), limit)
	if err != nil {
		logger.Get().Error().Err(err).Msg("Error building unified feed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build feed",
		})
	}
	return c.JSON(fiber.Map{
		"total": len(items),
		"items": items,
	})
}

// GetAnnouncements handles GET /api/v1/announcements
func (h *Handlers) GetAnnouncements(c *fiber.Ctx) error {
	return h.listByType(c, models.TypeAnnouncement)
}

// GetBlogPosts handles GET /api/v1/posts
func (h *Handlers) GetBlogPosts(c *fiber.Ctx) error {
	return h.listByType(c, models.TypeBlogPost)
}

func (h *Handlers) listByType(c *fiber.Ctx, typ models.ContentType) error {
	filter, ok := filterFromQuery(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown bucket",
		})
	}

	items, err := h.feed.All(c.Context(), typ, filter)
	if err != nil {
		if errors.Is(err, repo.ErrUnsupportedFlag) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "Favorites are not supported for this content type",
			})
		}
		logger.Get().Error().Err(err).Str("content_type", string(typ)).Msg("Error listing items")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list items",
		})
	}
	return c.JSON(fiber.Map{
		"total": len(items),
		"items": items,
	})
}

func filterFromQuery(c *fiber.Ctx) (repo.Filter, bool) {
	bucket := repo.Bucket(c.Query("bucket"))
	switch bucket {
	case repo.BucketAny, repo.BucketToday, repo.BucketYesterday, repo.BucketThisWeek, repo.BucketOlder:
	default:
		return repo.Filter{}, false
	}
	return repo.Filter{
		Bucket:        bucket,
		Category:      c.Query("category"),
		UnreadOnly:    c.QueryBool("unread", false),
		FavoritesOnly: c.QueryBool("favorites", false),
	}, true
}

// SetRead handles POST /api/v1/items/:type/:id/read
func (h *Handlers) SetRead(c *fiber.Ctx) error {
	var req flagRequest
	if !middleware.ParseAndValidate(c, &req) {
		return nil
	}
	ref := models.ItemRef{Type: models.ContentType(c.Params("type")), ID: c.Params("id")}
	if err := h.feed.MarkRead(c.Context(), ref, *req.Value); err != nil {
		return writeFlagError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// SetFavorite handles POST /api/v1/items/:type/:id/favorite
func (h *Handlers) SetFavorite(c *fiber.Ctx) error {
	var req flagRequest
	if !middleware.ParseAndValidate(c, &req) {
		return nil
	}
	ref := models.ItemRef{Type: models.ContentType(c.Params("type")), ID: c.Params("id")}
	if err := h.feed.ToggleFavorite(c.Context(), ref, *req.Value); err != nil {
		return writeFlagError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func writeFlagError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Item not found",
		})
	case errors.Is(err, repo.ErrUnknownType):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown content type",
		})
	case errors.Is(err, repo.ErrUnsupportedFlag):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Flag not supported for this content type",
		})
	default:
		logger.Get().Error().Err(err).Msg("Error toggling item flag")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update item",
		})
	}
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handlers) SyncStatus(c *fiber.Ctx) error {
	return c.JSON(h.scheduler.Statuses())
}

// TriggerSync handles POST /api/v1/admin/sync. Without a type query it
// triggers every content type.
func (h *Handlers) TriggerSync(c *fiber.Ctx) error {
	if typ := models.ContentType(c.Query("type")); typ != "" {
		if !typ.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown content type",
			})
		}
		h.scheduler.TriggerNow(typ)
		return c.JSON(fiber.Map{"status": "triggered", "type": typ})
	}

	h.scheduler.TriggerNow(models.TypeAnnouncement)
	h.scheduler.TriggerNow(models.TypeBlogPost)
	return c.JSON(fiber.Map{"status": "triggered"})
}

// ClearCache handles POST /api/v1/admin/cache/clear: drops all cached
// feed validators, forcing the next sync pass to fetch unconditionally.
func (h *Handlers) ClearCache(c *fiber.Ctx) error {
	if err := h.cache.Clear(c.Context()); err != nil {
		logger.Get().Error().Err(err).Msg("Error clearing validator cache")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear cache",
		})
	}
	return c.JSON(fiber.Map{"status": "cleared"})
}

// StreamFeed handles GET /api/v1/feed/stream: a server-sent-events
// stream of the merged latest-unread list, re-emitted on every store
// commit.
func (h *Handlers) StreamFeed(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 5)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	feed := h.feed
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		watch := feed.WatchLatestUnread(ctx, limit)

		// Initial snapshot so the client renders without waiting for
		// the first commit.
		if snap, err := feed.LatestUnread(ctx, limit); err == nil {
			if writeEvent(w, snap) != nil {
				return
			}
		}
		for items := range watch {
			if writeEvent(w, items) != nil {
				return
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, items []models.Item) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	// Flush failure means the client disconnected.
	return w.Flush()
}
