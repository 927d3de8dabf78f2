package workqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

type QueueRepository interface {
	// GetActiveByClinicAndPool resolves the active queue for a pool.
	GetActiveByClinicAndPool(ctx context.Context, clinicID uuid.UUID, pool string) (*WorkQueue, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*WorkQueue, error)
	Create(ctx context.Context, q *WorkQueue) error
}

type ItemRepository interface {
	// Create inserts the item unless one already exists for its
	// (queue_id, message_id); created reports whether a row was written.
	Create(ctx context.Context, item *WorkQueueItem) (created bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*WorkQueueItem, error)
	GetByQueueAndMessage(ctx context.Context, queueID, messageID uuid.UUID) (*WorkQueueItem, error)
	// ListActiveByQueue returns pending/assigned/in_progress items ordered
	// urgency desc, created_at asc.
	ListActiveByQueue(ctx context.Context, queueID uuid.UUID, limit, offset int) ([]*WorkQueueItem, int, error)

	// Claim is a single conditional update against status='pending'.
	// Returns false when the row was not pending (lost the race).
	Claim(ctx context.Context, itemID, userID uuid.UUID, now time.Time) (bool, error)
	// Start, Complete and Defer are guarded by assigned_to = userID in the
	// update predicate; false means the guard did not hold.
	Start(ctx context.Context, itemID, userID uuid.UUID, firstViewedAt time.Time, minutesToFirstView int) (bool, error)
	Complete(ctx context.Context, itemID, userID uuid.UUID, completedAt time.Time, minutesToCompletion int) (bool, error)
	Defer(ctx context.Context, itemID, userID uuid.UUID, reason string) (bool, error)
	// Escalate has no ownership guard; any active item may be escalated.
	Escalate(ctx context.Context, itemID uuid.UUID, reason string) (bool, error)
}

type MetricsRepository interface {
	// Upsert increments the (user, date) row's total and activity bucket,
	// creating the row on first occurrence.
	Upsert(ctx context.Context, userID, clinicID uuid.UUID, date time.Time, minutes int, activityType string) error
	Get(ctx context.Context, userID uuid.UUID, date time.Time) (*AfterHoursMetric, error)
}
