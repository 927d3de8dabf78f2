package workqueue

import (
	"time"

	"github.com/google/uuid"
)

// Item statuses. Pending items are claimable; escalated items remain
// claimable too, so escalation is not a terminal state.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusEscalated  = "escalated"
)

// WorkQueue is a clinic-scoped pool of work (e.g. "clinical", "pharmacy").
type WorkQueue struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ClinicID  uuid.UUID `db:"clinic_id" json:"clinic_id"`
	PoolType  string    `db:"pool_type" json:"pool_type"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WorkQueueItem is one unit of triaged work. assigned_to is null unless the
// item is assigned or in progress; the (queue_id, message_id) pair is unique,
// which makes batch reprocessing idempotent.
type WorkQueueItem struct {
	ID                      uuid.UUID  `db:"id" json:"id"`
	QueueID                 uuid.UUID  `db:"queue_id" json:"queue_id"`
	ClinicID                uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	MessageID               uuid.UUID  `db:"message_id" json:"message_id"`
	Urgency                 string     `db:"urgency" json:"urgency"`
	Topic                   string     `db:"topic" json:"topic"`
	RequiresPhysicianReview bool       `db:"requires_physician_review" json:"requires_physician_review"`
	RedFlags                []string   `db:"red_flags" json:"red_flags,omitempty"`
	Status                  string     `db:"status" json:"status"`
	AssignedTo              *uuid.UUID `db:"assigned_to" json:"assigned_to,omitempty"`
	AssignedAt              *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	FirstViewedAt           *time.Time `db:"first_viewed_at" json:"first_viewed_at,omitempty"`
	CompletedAt             *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	DeferReason             *string    `db:"defer_reason" json:"defer_reason,omitempty"`
	EscalateReason          *string    `db:"escalate_reason" json:"escalate_reason,omitempty"`
	MinutesToFirstView      *int       `db:"minutes_to_first_view" json:"minutes_to_first_view,omitempty"`
	MinutesToCompletion     *int       `db:"minutes_to_completion" json:"minutes_to_completion,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// AfterHoursMetric accumulates one row per (user, date). The per-day
// counters only grow; nothing recomputes them retroactively.
type AfterHoursMetric struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	UserID            uuid.UUID      `db:"user_id" json:"user_id"`
	ClinicID          uuid.UUID      `db:"clinic_id" json:"clinic_id"`
	MetricDate        time.Time      `db:"metric_date" json:"metric_date"`
	TotalMinutes      int            `db:"total_minutes" json:"total_minutes"`
	MinutesByActivity map[string]int `db:"minutes_by_activity" json:"minutes_by_activity"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// wholeMinutes floors a duration to whole minutes, never negative.
func wholeMinutes(from, to time.Time) int {
	m := int(to.Sub(from).Minutes())
	if m < 0 {
		return 0
	}
	return m
}
