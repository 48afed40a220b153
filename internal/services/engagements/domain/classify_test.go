package domain

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 13, 19, 0, 0, 0, time.UTC)
	before := now.Add(-2 * time.Hour)
	after := now.Add(2 * time.Hour)

	tests := []struct {
		name     string
		status   Status
		startsAt *time.Time
		want     Bucket
	}{
		{"requested is pending", StatusRequested, nil, BucketPending},
		{"declined is hidden", StatusDeclined, nil, BucketHidden},
		{"withdrawn is hidden", StatusWithdrawn, nil, BucketHidden},
		{"cancelled is hidden", StatusCancelled, &before, BucketHidden},
		{"completed is past", StatusCompleted, &after, BucketPast},
		{"accepted without schedule is upcoming", StatusAccepted, nil, BucketUpcoming},
		{"scheduled in the future is upcoming", StatusScheduled, &after, BucketUpcoming},
		{"scheduled in the past falls back to past", StatusScheduled, &before, BucketPast},
		{"verification pending overdue is past", StatusVerificationPending, &before, BucketPast},
		{"in progress future start is upcoming", StatusInProgress, &after, BucketUpcoming},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := Engagement{
				ID:          "eng-1",
				InitiatorID: "user-a",
				RecipientID: "user-b",
				Status:      tc.status,
			}
			if tc.startsAt != nil {
				e.Schedule = &Schedule{Day: "Friday", StartsAt: tc.startsAt}
			}
			if got := Classify(e, now); got != tc.want {
				t.Fatalf("classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyMovesAcrossStartBoundary(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 13, 19, 0, 0, 0, time.UTC)
	e := Engagement{
		ID:          "eng-1",
		InitiatorID: "user-a",
		RecipientID: "user-b",
		Status:      StatusScheduled,
		Schedule:    &Schedule{Day: "Friday", StartsAt: &start},
	}

	if got := Classify(e, start.Add(-time.Minute)); got != BucketUpcoming {
		t.Fatalf("before start: %s, want %s", got, BucketUpcoming)
	}
	// Start instant itself is not before now.
	if got := Classify(e, start); got != BucketUpcoming {
		t.Fatalf("at start: %s, want %s", got, BucketUpcoming)
	}
	if got := Classify(e, start.Add(time.Minute)); got != BucketPast {
		t.Fatalf("after start: %s, want %s", got, BucketPast)
	}
}
