package domain

// Task is a queued reference to a review awaiting moderation. The body never
// carries review text; the worker always re-reads live state from the store.
type Task struct {
	// ID is the queue's delivery identifier, opaque to the worker.
	ID string
	// ReviewID references the review to moderate.
	ReviewID string
	// Attempts counts deliveries of this task, bumped on each requeue.
	Attempts int
}
