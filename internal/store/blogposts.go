package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
)

const blogPostCols = `id, title, summary, link, author_name, category, featured_image_url, image_urls, published_at, fetched_at, is_read, is_favorite, read_at`

// BlogPostStore is the content store for the blog feed. It carries the
// favorite flag the announcement store lacks.
type BlogPostStore struct {
	db *DB
	bc *broadcaster
}

func NewBlogPostStore(db *DB) *BlogPostStore {
	return &BlogPostStore{db: db, bc: newBroadcaster()}
}

// UpsertBatch commits a reconcile pass in a single transaction. On
// conflict only source fields and fetched_at are written; is_read,
// is_favorite and read_at columns are never touched.
func (s *BlogPostStore) UpsertBatch(ctx context.Context, items []models.BlogPost) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO blog_posts (id, title, summary, link, author_name, category, featured_image_url, image_urls, published_at, fetched_at, is_read, is_favorite, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			link = excluded.link,
			author_name = excluded.author_name,
			category = excluded.category,
			featured_image_url = excluded.featured_image_url,
			image_urls = excluded.image_urls,
			published_at = excluded.published_at,
			fetched_at = MAX(fetched_at, excluded.fetched_at)`)
	if err != nil {
		return persistErr("prepare upsert", err)
	}
	defer stmt.Close()

	for _, it := range items {
		images, err := json.Marshal(nonNil(it.ImageURLs))
		if err != nil {
			return persistErr("encode image urls", err)
		}
		if _, err := stmt.ExecContext(ctx, it.ID, it.Title, it.Summary, it.Link, it.AuthorName, it.Category,
			it.FeaturedImageURL, string(images), toMillis(it.PublishedAt), toMillis(it.FetchedAt),
			boolToInt(it.IsRead), boolToInt(it.IsFavorite)); err != nil {
			return persistErr("upsert blog post", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit upsert", err)
	}
	s.publish(ctx)
	return nil
}

// TouchAll bumps fetched_at on every row (conditional-GET 304 path).
func (s *BlogPostStore) TouchAll(ctx context.Context, t time.Time) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE blog_posts SET fetched_at = MAX(fetched_at, ?)`, toMillis(t))
	if err != nil {
		return persistErr("touch blog posts", err)
	}
	s.publish(ctx)
	return nil
}

// SetRead sets the read flag for one post.
func (s *BlogPostStore) SetRead(ctx context.Context, id string, value bool) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE blog_posts SET is_read = ?, read_at = ? WHERE id = ?`,
		boolToInt(value), toNullMillis(readStamp(value)), id)
	if err != nil {
		return persistErr("set read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.publish(ctx)
	return nil
}

// SetFavorite sets the favorite flag for one post.
func (s *BlogPostStore) SetFavorite(ctx context.Context, id string, value bool) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE blog_posts SET is_favorite = ? WHERE id = ?`, boolToInt(value), id)
	if err != nil {
		return persistErr("set favorite", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.publish(ctx)
	return nil
}

// All returns every post ordered by published_at desc.
func (s *BlogPostStore) All(ctx context.Context) ([]models.BlogPost, error) {
	return s.query(ctx, ``)
}

// Unread returns unread posts ordered by published_at desc.
func (s *BlogPostStore) Unread(ctx context.Context) ([]models.BlogPost, error) {
	return s.query(ctx, `WHERE is_read = 0`)
}

// ReadOnly returns read posts ordered by published_at desc.
func (s *BlogPostStore) ReadOnly(ctx context.Context) ([]models.BlogPost, error) {
	return s.query(ctx, `WHERE is_read = 1`)
}

// Favorites returns favorited posts ordered by published_at desc.
func (s *BlogPostStore) Favorites(ctx context.Context) ([]models.BlogPost, error) {
	return s.query(ctx, `WHERE is_favorite = 1`)
}

// ByCategory filters at the query layer, not in process.
func (s *BlogPostStore) ByCategory(ctx context.Context, category string) ([]models.BlogPost, error) {
	return s.query(ctx, `WHERE category = ?`, category)
}

// PublishedBetween returns posts with from <= published_at < to.
func (s *BlogPostStore) PublishedBetween(ctx context.Context, from, to time.Time) ([]models.BlogPost, error) {
	cond, args := betweenCond(from, to)
	return s.query(ctx, cond, args...)
}

// Existing returns the current item set keyed by id, as reconciler input.
func (s *BlogPostStore) Existing(ctx context.Context) (map[string]models.BlogPost, error) {
	items, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]models.BlogPost, len(items))
	for _, it := range items {
		existing[it.ID] = it
	}
	return existing, nil
}

// UnreadCount returns the number of unread posts.
func (s *BlogPostStore) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM blog_posts WHERE is_read = 0`).Scan(&n)
	if err != nil {
		return 0, persistErr("unread count", err)
	}
	return n, nil
}

// Subscribe returns a channel receiving the latest full snapshot after
// every committed mutation, in commit order.
func (s *BlogPostStore) Subscribe() (<-chan []models.Item, func()) {
	return s.bc.Subscribe()
}

func (s *BlogPostStore) query(ctx context.Context, cond string, args ...any) ([]models.BlogPost, error) {
	q := `SELECT ` + blogPostCols + ` FROM blog_posts ` + cond + ` ORDER BY published_at DESC`
	rows, err := s.db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("query blog posts", err)
	}
	defer rows.Close()

	var items []models.BlogPost
	for rows.Next() {
		var b models.BlogPost
		var images string
		var published, fetched int64
		var isRead, isFavorite int
		var readAt sql.NullInt64
		if err := rows.Scan(&b.ID, &b.Title, &b.Summary, &b.Link, &b.AuthorName, &b.Category,
			&b.FeaturedImageURL, &images, &published, &fetched, &isRead, &isFavorite, &readAt); err != nil {
			return nil, persistErr("scan blog post", err)
		}
		if err := json.Unmarshal([]byte(images), &b.ImageURLs); err != nil {
			return nil, persistErr("decode image urls", err)
		}
		b.PublishedAt = fromMillis(published)
		b.FetchedAt = fromMillis(fetched)
		b.IsRead = isRead != 0
		b.IsFavorite = isFavorite != 0
		b.ReadAt = fromNullMillis(readAt)
		items = append(items, b)
	}
	return items, rows.Err()
}

func (s *BlogPostStore) publish(ctx context.Context) {
	items, err := s.All(ctx)
	if err != nil {
		logger.Get().Error().Err(err).Msg("Failed to build blog posts snapshot")
		return
	}
	snapshot := make([]models.Item, 0, len(items))
	for _, it := range items {
		snapshot = append(snapshot, it.Item())
	}
	s.bc.Publish(snapshot)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
