package triage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches.
var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	Create(ctx context.Context, m *ClinicMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicMessage, error)
}

type RuleRepository interface {
	// ListActiveByClinic returns the clinic's active rules, priority desc.
	ListActiveByClinic(ctx context.Context, clinicID uuid.UUID) ([]*RoutingRule, error)
}

type BatchRepository interface {
	Create(ctx context.Context, b *MessageBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*MessageBatch, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}
