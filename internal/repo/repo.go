// Package repo composes the per-type content stores into one ordered,
// filterable, reactive feed consumed by the presentation layer.
package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
	"github.com/mkutlay/feedsync/internal/store"
)

// ErrUnsupportedFlag is returned when a flag toggle is routed to a
// content type that does not carry that flag (favorites exist only on
// blog posts).
var ErrUnsupportedFlag = errors.New("flag not supported for content type")

// ErrUnknownType is returned for an item ref with an unknown type tag.
var ErrUnknownType = errors.New("unknown content type")

// Bucket groups items by publish recency for the UI's section headers.
type Bucket string

const (
	BucketAny       Bucket = ""
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketThisWeek  Bucket = "this_week"
	BucketOlder     Bucket = "older"
)

// Filter narrows a per-type listing. All predicates are evaluated by
// the store's query layer, not in process.
type Filter struct {
	Bucket        Bucket
	Category      string
	UnreadOnly    bool
	FavoritesOnly bool
}

// Feed merges the announcement and blog-post stores into the unified
// reactive feed.
type Feed struct {
	announcements *store.AnnouncementStore
	posts         *store.BlogPostStore
	now           func() time.Time
}

func New(announcements *store.AnnouncementStore, posts *store.BlogPostStore) *Feed {
	return &Feed{
		announcements: announcements,
		posts:         posts,
		now:           time.Now,
	}
}

// LatestUnread merges both stores' unread items, sorts by published_at
// descending and truncates to limit. An empty result is an empty
// slice: the home carousel hides entirely rather than showing a stale
// card.
func (f *Feed) LatestUnread(ctx context.Context, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 5
	}

	ann, err := f.announcements.Unread(ctx)
	if err != nil {
		return nil, fmt.Errorf("unread announcements: %w", err)
	}
	posts, err := f.posts.Unread(ctx)
	if err != nil {
		return nil, fmt.Errorf("unread blog posts: %w", err)
	}

	merged := make([]models.Item, 0, len(ann)+len(posts))
	for _, a := range ann {
		merged = append(merged, a.Item())
	}
	for _, p := range posts {
		merged = append(merged, p.Item())
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// WatchLatestUnread re-emits the merged unread list whenever either
// underlying store commits a mutation. The channel closes when ctx is
// cancelled. Each store's writes are serialized internally, so
// concurrent updates from both stores are safe to combine here.
func (f *Feed) WatchLatestUnread(ctx context.Context, limit int) <-chan []models.Item {
	out := make(chan []models.Item, 1)

	annCh, cancelAnn := f.announcements.Subscribe()
	postCh, cancelPosts := f.posts.Subscribe()

	go func() {
		defer close(out)
		defer cancelAnn()
		defer cancelPosts()

		for {
			select {
			case <-ctx.Done():
				return
			case <-annCh:
			case <-postCh:
			}

			items, err := f.LatestUnread(ctx, limit)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Get().Error().Err(err).Msg("Failed to rebuild unified feed snapshot")
				continue
			}
			// Coalesce to the latest snapshot, never block.
			select {
			case out <- items:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- items:
				default:
				}
			}
		}
	}()
	return out
}

// Announcements lists announcements with the given filter.
func (f *Feed) Announcements(ctx context.Context, filter Filter) ([]models.Item, error) {
	if filter.FavoritesOnly {
		return nil, ErrUnsupportedFlag
	}
	var (
		items []models.Announcement
		err   error
	)
	switch {
	case filter.UnreadOnly:
		items, err = f.announcements.Unread(ctx)
	case filter.Category != "":
		items, err = f.announcements.ByCategory(ctx, filter.Category)
	case filter.Bucket != BucketAny:
		from, to := f.bucketRange(filter.Bucket)
		items, err = f.announcements.PublishedBetween(ctx, from, to)
	default:
		items, err = f.announcements.All(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.Item())
	}
	return out, nil
}

// BlogPosts lists blog posts with the given filter.
func (f *Feed) BlogPosts(ctx context.Context, filter Filter) ([]models.Item, error) {
	var (
		items []models.BlogPost
		err   error
	)
	switch {
	case filter.FavoritesOnly:
		items, err = f.posts.Favorites(ctx)
	case filter.UnreadOnly:
		items, err = f.posts.Unread(ctx)
	case filter.Category != "":
		items, err = f.posts.ByCategory(ctx, filter.Category)
	case filter.Bucket != BucketAny:
		from, to := f.bucketRange(filter.Bucket)
		items, err = f.posts.PublishedBetween(ctx, from, to)
	default:
		items, err = f.posts.All(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.Item())
	}
	return out, nil
}

// All lists one content type with the given filter.
func (f *Feed) All(ctx context.Context, typ models.ContentType, filter Filter) ([]models.Item, error) {
	switch typ {
	case models.TypeAnnouncement:
		return f.Announcements(ctx, filter)
	case models.TypeBlogPost:
		return f.BlogPosts(ctx, filter)
	default:
		return nil, ErrUnknownType
	}
}

// MarkRead routes the read toggle to the matching store by the type
// discriminator in the ref.
func (f *Feed) MarkRead(ctx context.Context, ref models.ItemRef, value bool) error {
	switch ref.Type {
	case models.TypeAnnouncement:
		return f.announcements.SetRead(ctx, ref.ID, value)
	case models.TypeBlogPost:
		return f.posts.SetRead(ctx, ref.ID, value)
	default:
		return ErrUnknownType
	}
}

// ToggleFavorite routes the favorite toggle. Only blog posts carry the
// favorite flag.
func (f *Feed) ToggleFavorite(ctx context.Context, ref models.ItemRef, value bool) error {
	switch ref.Type {
	case models.TypeBlogPost:
		return f.posts.SetFavorite(ctx, ref.ID, value)
	case models.TypeAnnouncement:
		return ErrUnsupportedFlag
	default:
		return ErrUnknownType
	}
}

// UnreadCount sums the unread counts of both stores.
func (f *Feed) UnreadCount(ctx context.Context) (int, error) {
	a, err := f.announcements.UnreadCount(ctx)
	if err != nil {
		return 0, err
	}
	b, err := f.posts.UnreadCount(ctx)
	if err != nil {
		return 0, err
	}
	return a + b, nil
}

// bucketRange maps a bucket to a half-open [from, to) publish-time
// window, relative to local midnight.
func (f *Feed) bucketRange(b Bucket) (time.Time, time.Time) {
	now := f.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch b {
	case BucketToday:
		return midnight, time.Time{}
	case BucketYesterday:
		return midnight.AddDate(0, 0, -1), midnight
	case BucketThisWeek:
		return midnight.AddDate(0, 0, -7), midnight.AddDate(0, 0, -1)
	case BucketOlder:
		return time.Time{}, midnight.AddDate(0, 0, -7)
	default:
		return time.Time{}, time.Time{}
	}
}
