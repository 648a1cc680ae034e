// Package cache stores previously computed, filtered token sets keyed by
// request fingerprint. Entries are replaced wholesale, never mutated, and
// only leave the store through explicit invalidation.
package cache

import (
	"context"
	"time"

	"tokengallery/internal/domain"
)

// Entry is one cached computation: the full post-filter, pre-pagination
// token set plus build metadata. Page windows are recomputed per request.
type Entry struct {
	Tokens      []domain.UnifiedToken `json:"tokens"`
	SubjectID   string                `json:"subjectId"`
	FilterHash  string                `json:"filterHash"`
	TotalItems  int                   `json:"totalItems"`
	BuiltAt     time.Time             `json:"builtAt"`
	BuildTimeMs int64                 `json:"buildTimeMs"`
}

// Store is the cache contract. Implementations must be safe for concurrent
// use; writes are last-writer-wins per fingerprint.
type Store interface {
	// Lookup returns the entry under fp, or found=false on a miss.
	Lookup(ctx context.Context, fp Fingerprint) (entry *Entry, found bool, err error)

	// Write stores entry under fp, replacing any previous entry.
	Write(ctx context.Context, fp Fingerprint, entry *Entry) error

	// Invalidate removes every entry for subjectID built under the filter
	// configuration identified by filterHash (all page windows of one
	// filter config).
	Invalidate(ctx context.Context, subjectID, filterHash string) error

	// InvalidateAll removes every entry for subjectID regardless of filter
	// configuration.
	InvalidateAll(ctx context.Context, subjectID string) error
}
