package domain

import "errors"

var (
	// ErrNotFound is returned when a product or review does not exist.
	ErrNotFound = errors.New("not found")
	// ErrQueueUnavailable is returned when a moderation task cannot be
	// enqueued; the originating API call must fail loudly rather than leave
	// the review silently stuck in pending.
	ErrQueueUnavailable = errors.New("moderation queue unavailable")
)
