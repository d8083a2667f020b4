// Package notify turns a sync pass's unread delta into at most one
// aggregated notification, behind a runtime permission gate.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
)

// PermissionFunc answers whether notification delivery is currently
// granted. Queried before every dispatch; a denial is a policy
// decision, not a failure.
type PermissionFunc func(ctx context.Context) bool

// Dispatcher delivers one aggregated notification per completed sync
// pass with a positive unread delta. Delivery goes to an ntfy-style
// webhook with a dedicated topic per content type.
type Dispatcher struct {
	client     *resty.Client
	baseURL    string
	permission PermissionFunc
}

func NewDispatcher(baseURL string, permission PermissionFunc) *Dispatcher {
	return &Dispatcher{
		client:     resty.New().SetTimeout(10 * time.Second),
		baseURL:    baseURL,
		permission: permission,
	}
}

// Dispatch implements syncer.Dispatcher. A zero delta is a no-op. A
// denied permission is silently skipped. Delivery failures are logged,
// never surfaced: background sync stays invisible to the user.
func (d *Dispatcher) Dispatch(ctx context.Context, typ models.ContentType, newUnread int) {
	log := logger.Get()
	if newUnread == 0 {
		return
	}
	if d.permission != nil && !d.permission(ctx) {
		log.Debug().
			Str("content_type", string(typ)).
			Int("new_unread", newUnread).
			Msg("Notification permission not granted, skipping dispatch")
		return
	}
	if d.baseURL == "" {
		log.Debug().Msg("No notification endpoint configured, skipping dispatch")
		return
	}

	title, body := message(typ, newUnread)
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("X-Title", title).
		SetBody(body).
		Post(d.baseURL + "/" + topic(typ))
	if err != nil {
		log.Warn().
			Err(err).
			Str("content_type", string(typ)).
			Msg("Notification delivery failed")
		return
	}
	if resp.StatusCode() != http.StatusOK {
		log.Warn().
			Int("status", resp.StatusCode()).
			Str("content_type", string(typ)).
			Msg("Notification endpoint rejected delivery")
		return
	}

	log.Info().
		Str("content_type", string(typ)).
		Int("new_unread", newUnread).
		Msg("Notification dispatched")
}

// topic is the per-content-type notification channel.
func topic(typ models.ContentType) string {
	if typ == models.TypeBlogPost {
		return "blog-posts"
	}
	return "announcements"
}

// message builds one aggregated summary, never one message per item.
func message(typ models.ContentType, count int) (title, body string) {
	family := "announcement"
	if typ == models.TypeBlogPost {
		family = "blog post"
	}
	if count == 1 {
		title = fmt.Sprintf("1 new %s", family)
		body = fmt.Sprintf("A new %s is waiting for you.", family)
		return title, body
	}
	title = fmt.Sprintf("%d new %ss", count, family)
	body = fmt.Sprintf("%d new %ss arrived since your last visit.", count, family)
	return title, body
}
