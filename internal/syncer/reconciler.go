// Package syncer contains the reconcile algorithm and the background
// scheduler that drives periodic sync passes per content type.
package syncer

import (
	"time"

	"github.com/mkutlay/feedsync/internal/models"
)

// Result is the output of one reconcile pass: the full upsert batch
// plus the count of newly introduced unread items (the unread delta).
type Result[T any] struct {
	Upserts   []T
	NewUnread int
}

// Reconcile merges newly parsed items into the existing item set. It
// is pure and generic over the mergeable capability, not over the
// concrete content types.
//
// Items absent from existing become fresh records with default (false)
// local flags and count toward the unread delta. Items already present
// get their source-derived fields replaced while is_read/is_favorite
// are carried forward unchanged. fetched_at is set to now either way.
// The store is additive-only: items missing from incoming are left
// untouched, never deleted.
func Reconcile[T models.Mergeable[T]](existing map[string]T, incoming []models.ParsedItem, now time.Time) Result[T] {
	res := Result[T]{Upserts: make([]T, 0, len(incoming))}
	for _, p := range incoming {
		if cur, ok := existing[p.ID]; ok {
			res.Upserts = append(res.Upserts, cur.WithSource(p, now))
			continue
		}
		var fresh T
		res.Upserts = append(res.Upserts, fresh.WithSource(p, now))
		res.NewUnread++
	}
	return res
}
