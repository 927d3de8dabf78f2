package triage

import (
	"time"

	"github.com/google/uuid"
)

// Urgency tiers assigned by the classifier, highest first.
const (
	UrgencyUrgent  = "urgent"
	UrgencyHigh    = "high"
	UrgencyRoutine = "routine"
	UrgencyLow     = "low"
)

// DefaultPool receives messages that match no routing rule.
const DefaultPool = "clinical"

// Batch statuses.
const (
	BatchPending   = "pending"
	BatchProcessed = "processed"
	BatchFailed    = "failed"
)

// ClinicMessage represents an inbound patient or staff communication.
// Immutable once created; routing decisions reference it by id.
type ClinicMessage struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ClinicID  uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	PatientID *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	Sender    string     `db:"sender" json:"sender"`
	Content   string     `db:"content" json:"content"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Classification is the structured verdict produced for a message. It is not
// persisted as authoritative beyond the routing decision; the relevant fields
// are copied onto the resulting work-queue item.
type Classification struct {
	Urgency                 string   `json:"urgency"`
	Topic                   string   `json:"topic"`
	RequiresPhysicianReview bool     `json:"requires_physician_review"`
	RedFlags                []string `json:"red_flags,omitempty"`
}

// RoutingRule is clinic-scoped, read-only routing configuration. Rules are
// evaluated highest priority first; the first match wins.
type RoutingRule struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	ClinicID             uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Priority             int       `db:"priority" json:"priority"`
	UrgencyFilter        *string   `db:"urgency_filter" json:"urgency_filter,omitempty"`
	Keywords             []string  `db:"keywords" json:"keywords,omitempty"`
	TargetPool           string    `db:"target_pool" json:"target_pool"`
	EnforceQuietHours    bool      `db:"enforce_quiet_hours" json:"enforce_quiet_hours"`
	QuietStart           *string   `db:"quiet_start" json:"quiet_start,omitempty"`
	QuietEnd             *string   `db:"quiet_end" json:"quiet_end,omitempty"`
	AutoResponseTemplate *string   `db:"auto_response_template" json:"auto_response_template,omitempty"`
	IsActive             bool      `db:"is_active" json:"is_active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// MessageBatch is a deferred group of message ids targeted at a future
// processing timestamp and a target pool.
type MessageBatch struct {
	ID                 uuid.UUID   `db:"id" json:"id"`
	ClinicID           uuid.UUID   `db:"clinic_id" json:"clinic_id"`
	TargetPool         string      `db:"target_pool" json:"target_pool"`
	MessageIDs         []uuid.UUID `db:"message_ids" json:"message_ids"`
	Status             string      `db:"status" json:"status"`
	ScheduledProcessAt time.Time   `db:"scheduled_process_at" json:"scheduled_process_at"`
	ProcessedAt        *time.Time  `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}
