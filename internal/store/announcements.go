package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
)

const announcementCols = `id, title, summary, link, author_name, category, published_at, fetched_at, is_read, read_at`

// AnnouncementStore is the content store for the announcements feed.
type AnnouncementStore struct {
	db *DB
	bc *broadcaster
}

func NewAnnouncementStore(db *DB) *AnnouncementStore {
	return &AnnouncementStore{db: db, bc: newBroadcaster()}
}

// UpsertBatch commits a reconcile pass in a single transaction. On
// conflict only source fields and fetched_at are written; is_read and
// read_at are never touched, so a user toggle landing between the
// reconciler's read and this commit survives. fetched_at is kept
// monotonically non-decreasing.
func (s *AnnouncementStore) UpsertBatch(ctx context.Context, items []models.Announcement) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO announcements (id, title, summary, link, author_name, category, published_at, fetched_at, is_read, read_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			link = excluded.link,
			author_name = excluded.author_name,
			category = excluded.category,
			published_at = excluded.published_at,
			fetched_at = MAX(fetched_at, excluded.fetched_at)`)
	if err != nil {
		return persistErr("prepare upsert", err)
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.Title, it.Summary, it.Link, it.AuthorName, it.Category,
			toMillis(it.PublishedAt), toMillis(it.FetchedAt), boolToInt(it.IsRead)); err != nil {
			return persistErr("upsert announcement", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit upsert", err)
	}
	s.publish(ctx)
	return nil
}

// TouchAll bumps fetched_at on every row. Used when a conditional GET
// reports the upstream document unchanged.
func (s *AnnouncementStore) TouchAll(ctx context.Context, t time.Time) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE announcements SET fetched_at = MAX(fetched_at, ?)`, toMillis(t))
	if err != nil {
		return persistErr("touch announcements", err)
	}
	s.publish(ctx)
	return nil
}

// SetRead sets the read flag for one item. Surfaced to the caller on
// failure since this is a direct user action.
func (s *AnnouncementStore) SetRead(ctx context.Context, id string, value bool) error {
	res, err := s.db.conn.ExecContext(ctx,
		`UPDATE announcements SET is_read = ?, read_at = ? WHERE id = ?`,
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

// All returns every announcement ordered by published_at desc.
func (s *AnnouncementStore) All(ctx context.Context) ([]models.Announcement, error) {
	return s.query(ctx, ``)
}

// Unread returns unread announcements ordered by published_at desc.
func (s *AnnouncementStore) Unread(ctx context.Context) ([]models.Announcement, error) {
	return s.query(ctx, `WHERE is_read = 0`)
}

// ReadOnly returns read announcements ordered by published_at desc.
func (s *AnnouncementStore) ReadOnly(ctx context.Context) ([]models.Announcement, error) {
	return s.query(ctx, `WHERE is_read = 1`)
}

// ByCategory filters at the query layer, not in process.
func (s *AnnouncementStore) ByCategory(ctx context.Context, category string) ([]models.Announcement, error) {
	return s.query(ctx, `WHERE category = ?`, category)
}

// PublishedBetween returns announcements with from <= published_at < to.
// A zero bound is open-ended.
func (s *AnnouncementStore) PublishedBetween(ctx context.Context, from, to time.Time) ([]models.Announcement, error) {
	cond, args := betweenCond(from, to)
	return s.query(ctx, cond, args...)
}

// Existing returns the current item set keyed by id, as reconciler input.
func (s *AnnouncementStore) Existing(ctx context.Context) (map[string]models.Announcement, error) {
	items, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]models.Announcement, len(items))
	for _, it := range items {
		existing[it.ID] = it
	}
	return existing, nil
}

// UnreadCount returns the number of unread announcements.
func (s *AnnouncementStore) UnreadCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM announcements WHERE is_read = 0`).Scan(&n)
	if err != nil {
		return 0, persistErr("unread count", err)
	}
	return n, nil
}

// Subscribe returns a channel receiving the latest full snapshot after
// every committed mutation, in commit order.
func (s *AnnouncementStore) Subscribe() (<-chan []models.Item, func()) {
	return s.bc.Subscribe()
}

func (s *AnnouncementStore) query(ctx context.Context, cond string, args ...any) ([]models.Announcement, error) {
	q := `SELECT ` + announcementCols + ` FROM announcements ` + cond + ` ORDER BY published_at DESC`
	rows, err := s.db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr("query announcements", err)
	}
	defer rows.Close()

	var items []models.Announcement
	for rows.Next() {
		var a models.Announcement
		var published, fetched int64
		var isRead int
		var readAt sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Title, &a.Summary, &a.Link, &a.AuthorName, &a.Category,
			&published, &fetched, &isRead, &readAt); err != nil {
			return nil, persistErr("scan announcement", err)
		}
		a.PublishedAt = fromMillis(published)
		a.FetchedAt = fromMillis(fetched)
		a.IsRead = isRead != 0
		a.ReadAt = fromNullMillis(readAt)
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *AnnouncementStore) publish(ctx context.Context) {
	items, err := s.All(ctx)
	if err != nil {
		logger.Get().Error().Err(err).Msg("Failed to build announcements snapshot")
		return
	}
	snapshot := make([]models.Item, 0, len(items))
	for _, it := range items {
		snapshot = append(snapshot, it.Item())
	}
	s.bc.Publish(snapshot)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func readStamp(value bool) time.Time {
	if value {
		return time.Now()
	}
	return time.Time{}
}

func betweenCond(from, to time.Time) (string, []any) {
	switch {
	case from.IsZero() && to.IsZero():
		return ``, nil
	case from.IsZero():
		return `WHERE published_at < ?`, []any{toMillis(to)}
	case to.IsZero():
		return `WHERE published_at >= ?`, []any{toMillis(from)}
	default:
		return `WHERE published_at >= ? AND published_at < ?`, []any{toMillis(from), toMillis(to)}
	}
}
