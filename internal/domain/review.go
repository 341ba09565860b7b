package domain

import "time"

// ReviewStatus is the moderation state of a review. Only published reviews
// are visible through public listings.
type ReviewStatus string

const (
	StatusPending   ReviewStatus = "pending"
	StatusPublished ReviewStatus = "published"
	StatusRejected  ReviewStatus = "rejected"
)

// Fixed rejection reasons written by the moderation worker. Toxicity wins
// when both classifier flags fire.
const (
	ReasonToxic = "rejected: toxic content"
	ReasonSpam  = "rejected: spam"
)

type Review struct {
	ID               string
	ProductID        string
	Author           *string
	Text             string
	Status           ReviewStatus
	ModerationReason *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Verdict is the two-flag outcome of the external classifier.
type Verdict struct {
	Toxic bool
	Spam  bool
}

// Outcome maps a verdict to the status and reason the worker persists.
func (v Verdict) Outcome() (ReviewStatus, *string) {
	if v.Toxic {
		r := ReasonToxic
		return StatusRejected, &r
	}
	if v.Spam {
		r := ReasonSpam
		return StatusRejected, &r
	}
	return StatusPublished, nil
}
