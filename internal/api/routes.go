package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mkutlay/feedsync/internal/config"
	"github.com/mkutlay/feedsync/internal/middleware"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, h *Handlers, cfg *config.Config) {
	// Middleware
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	// API group with versioning
	api := app.Group("/api/v1")

	// Health check endpoint
	api.Get("/health", h.HealthCheck)

	// Unified feed
	api.Get("/feed", h.GetFeed)
	api.Get("/feed/stream", h.StreamFeed)

	// Per-type listings
	api.Get("/announcements", h.GetAnnouncements)
	api.Get("/posts", h.GetBlogPosts)

	// Flag toggles
	items := api.Group("/items")
	{
		items.Post("/:type/:id/read", h.SetRead)
		items.Post("/:type/:id/favorite", h.SetFavorite)
	}

	// Sync introspection and control
	api.Get("/sync/status", h.SyncStatus)

	admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminAPIKey))
	{
		admin.Post("/sync", h.TriggerSync)
		admin.Post("/cache/clear", h.ClearCache)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
