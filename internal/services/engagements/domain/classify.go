package domain

import "time"

// Bucket is the presentation grouping for one engagement.
type Bucket string

const (
	// BucketPending holds unanswered requests.
	BucketPending Bucket = "pending"
	// BucketUpcoming holds live engagements that have not started yet.
	BucketUpcoming Bucket = "upcoming"
	// BucketPast holds completed and overdue engagements.
	BucketPast Bucket = "past"
	// BucketHidden marks engagements excluded from display entirely.
	BucketHidden Bucket = "hidden"
)

// Classify maps an engagement and the current time into a display bucket.
// It is pure: the clock is an argument, never read internally.
func Classify(e Engagement, now time.Time) Bucket {
	switch e.Status {
	case StatusRequested:
		return BucketPending
	case StatusDeclined, StatusWithdrawn, StatusCancelled:
		return BucketHidden
	case StatusCompleted:
		return BucketPast
	}

	// Live statuses: Accepted, Scheduled, VerificationPending, InProgress.
	// An overdue, never-completed engagement falls back to Past rather than
	// being hidden.
	if e.Schedule == nil || e.Schedule.StartsAt == nil {
		return BucketUpcoming
	}
	if e.Schedule.StartsAt.Before(now) {
		return BucketPast
	}
	return BucketUpcoming
}
