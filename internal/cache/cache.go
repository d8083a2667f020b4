// Package cache remembers per-URL fetch validators (ETag,
// Last-Modified) between sync passes so the fetcher can issue
// conditional GETs. The cache is best-effort: losing an entry only
// costs a full re-download.
package cache

import (
	"context"
	"time"

	"github.com/mkutlay/feedsync/internal/feed"
)

// Store is the validator cache interface.
type Store interface {
	GetValidators(ctx context.Context, url string) (feed.Validators, error)
	SetValidators(ctx context.Context, url string, v feed.Validators, ttl time.Duration) error
	Clear(ctx context.Context) error
	Close() error
}
