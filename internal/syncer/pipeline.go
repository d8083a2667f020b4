package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/mkutlay/feedsync/internal/cache"
	"github.com/mkutlay/feedsync/internal/feed"
	"github.com/mkutlay/feedsync/internal/logger"
	"github.com/mkutlay/feedsync/internal/models"
)

// Task is one content type's sync pass, as the scheduler sees it.
type Task interface {
	ContentType() models.ContentType
	Run(ctx context.Context) (newUnread int, err error)
}

// fetcher and parser are the narrow seams the pipeline needs; the
// concrete implementations live in internal/feed.
type fetcher interface {
	Fetch(ctx context.Context, url string, v feed.Validators) (*feed.Document, error)
}

type parser interface {
	Parse(raw []byte) ([]models.ParsedItem, error)
}

// contentStore is the slice of the store a pipeline touches.
type contentStore[T models.Mergeable[T]] interface {
	Existing(ctx context.Context) (map[string]T, error)
	UpsertBatch(ctx context.Context, items []T) error
	TouchAll(ctx context.Context, t time.Time) error
}

// Pipeline runs Fetch → Parse → Reconcile → commit for one content
// type, short-circuiting on the first stage error. Reconciliation is
// pure and synchronous; the fetch and the commit are the only
// suspension points, and the commit is the atomicity boundary.
type Pipeline[T models.Mergeable[T]] struct {
	typ      models.ContentType
	url      string
	fetcher  fetcher
	parser   parser
	store    contentStore[T]
	cache    cache.Store
	cacheTTL time.Duration
	now      func() time.Time
}

func NewPipeline[T models.Mergeable[T]](typ models.ContentType, url string, f fetcher, p parser, s contentStore[T], c cache.Store, cacheTTL time.Duration) *Pipeline[T] {
	return &Pipeline[T]{
		typ:      typ,
		url:      url,
		fetcher:  f,
		parser:   p,
		store:    s,
		cache:    c,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (p *Pipeline[T]) ContentType() models.ContentType { return p.typ }

// Run executes one sync pass and returns the unread delta.
func (p *Pipeline[T]) Run(ctx context.Context) (int, error) {
	log := logger.Get()
	start := p.now()

	validators := p.loadValidators(ctx)

	doc, err := p.fetcher.Fetch(ctx, p.url, validators)
	if errors.Is(err, feed.ErrNotModified) {
		// Upstream unchanged: refresh fetched_at, no new items.
		if err := p.store.TouchAll(ctx, p.now()); err != nil {
			return 0, err
		}
		log.Debug().
			Str("content_type", string(p.typ)).
			Msg("Feed not modified, touched fetched_at")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	items, err := p.parser.Parse(doc.Body)
	if err != nil {
		return 0, err
	}

	existing, err := p.store.Existing(ctx)
	if err != nil {
		return 0, err
	}

	res := Reconcile(existing, items, p.now())

	// Cancellation before this point is a clean no-op; the commit
	// itself is atomic.
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := p.store.UpsertBatch(ctx, res.Upserts); err != nil {
		return 0, err
	}

	p.saveValidators(ctx, doc)

	log.Info().
		Str("content_type", string(p.typ)).
		Int("incoming", len(items)).
		Int("new_unread", res.NewUnread).
		Dur("duration", time.Since(start)).
		Msg("Sync pass committed")

	return res.NewUnread, nil
}

func (p *Pipeline[T]) loadValidators(ctx context.Context) feed.Validators {
	if p.cache == nil {
		return feed.Validators{}
	}
	v, err := p.cache.GetValidators(ctx, p.url)
	if err != nil {
		logger.Get().Warn().
			Err(err).
			Str("content_type", string(p.typ)).
			Msg("Validator cache read failed, fetching unconditionally")
		return feed.Validators{}
	}
	return v
}

func (p *Pipeline[T]) saveValidators(ctx context.Context, doc *feed.Document) {
	if p.cache == nil || (doc.ETag == "" && doc.LastModified == "") {
		return
	}
	v := feed.Validators{ETag: doc.ETag, LastModified: doc.LastModified}
	if err := p.cache.SetValidators(ctx, p.url, v, p.cacheTTL); err != nil {
		logger.Get().Warn().
			Err(err).
			Str("content_type", string(p.typ)).
			Msg("Validator cache write failed")
	}
}
