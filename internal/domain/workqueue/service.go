package workqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duniamed/duniamed-sub003/internal/platform/notification"
)

var (
	// ErrAlreadyClaimed signals a lost claim race. Expected outcome under
	// concurrency, not a failure.
	ErrAlreadyClaimed = errors.New("item already claimed")
	// ErrNotOwner signals the acting user does not hold the item.
	ErrNotOwner = errors.New("item not assigned to user")
	// ErrInvalidTransition signals the item is not in a state that allows
	// the requested operation.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// fallbackPool receives items when the requested pool has no active queue.
const fallbackPool = "clinical"

// Notifier sends templated staff alerts, best-effort.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

type Service struct {
	queues   QueueRepository
	items    ItemRepository
	metrics  MetricsRepository
	notifier Notifier
	logger   zerolog.Logger

	businessStart int // hour, inclusive
	businessEnd   int // hour, exclusive

	now func() time.Time
}

func NewService(
	queues QueueRepository,
	items ItemRepository,
	metrics MetricsRepository,
	notifier Notifier,
	logger zerolog.Logger,
	businessStart, businessEnd int,
) *Service {
	return &Service{
		queues:        queues,
		items:         items,
		metrics:       metrics,
		notifier:      notifier,
		logger:        logger,
		businessStart: businessStart,
		businessEnd:   businessEnd,
		now:           time.Now,
	}
}

// RouteToPool places a triaged message into the pool's active queue. When the
// pool has no active queue the item lands in the clinical fallback queue so a
// misconfigured rule can never drop a message. Idempotent per
// (queue, message): re-routing returns the existing item's id.
func (s *Service) RouteToPool(ctx context.Context, clinicID uuid.UUID, pool string, messageID uuid.UUID,
	urgency, topic string, requiresReview bool, redFlags []string) (uuid.UUID, error) {
	queue, err := s.queues.GetActiveByClinicAndPool(ctx, clinicID, pool)
	if errors.Is(err, ErrNotFound) && pool != fallbackPool {
		s.logger.Warn().
			Str("clinic_id", clinicID.String()).
			Str("pool", pool).
			Msg("no active queue for pool, using clinical fallback")
		queue, err = s.queues.GetActiveByClinicAndPool(ctx, clinicID, fallbackPool)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve queue for pool %s: %w", pool, err)
	}

	item := &WorkQueueItem{
		QueueID:                 queue.ID,
		ClinicID:                clinicID,
		MessageID:               messageID,
		Urgency:                 urgency,
		Topic:                   topic,
		RequiresPhysicianReview: requiresReview,
		RedFlags:                redFlags,
		Status:                  StatusPending,
	}
	created, err := s.items.Create(ctx, item)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create queue item: %w", err)
	}
	if !created {
		existing, err := s.items.GetByQueueAndMessage(ctx, queue.ID, messageID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("load existing queue item: %w", err)
		}
		return existing.ID, nil
	}

	if urgency == "urgent" {
		s.notifyUrgent(ctx, queue)
	}
	return item.ID, nil
}

func (s *Service) notifyUrgent(ctx context.Context, queue *WorkQueue) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"patient_name": "a patient",
		"queue_name":   queue.PoolType,
	}
	if _, err := s.notifier.SendFromTemplate(ctx, "urgent-message-alert", data, queue.PoolType+"-oncall"); err != nil {
		s.logger.Warn().Err(err).Str("queue_id", queue.ID.String()).Msg("urgent alert send failed")
	}
}

// Claim atomically takes ownership of a pending item. Exactly one of N
// concurrent claimants wins; the rest get ErrAlreadyClaimed.
func (s *Service) Claim(ctx context.Context, itemID, userID uuid.UUID) (*WorkQueueItem, error) {
	ok, err := s.items.Claim(ctx, itemID, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	if !ok {
		// Distinguish a missing item from a lost race.
		if _, err := s.items.GetByID(ctx, itemID); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrAlreadyClaimed
	}
	return s.items.GetByID(ctx, itemID)
}

// StartWork moves an assigned item to in_progress and records the floored
// minutes from creation to first view. Escalation is not terminal: the
// assignee of an escalated item keeps working it.
func (s *Service) StartWork(ctx context.Context, itemID, userID uuid.UUID) (*WorkQueueItem, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != StatusAssigned && item.Status != StatusEscalated {
		return nil, ErrInvalidTransition
	}

	firstViewedAt := s.now()
	ok, err := s.items.Start(ctx, itemID, userID, firstViewedAt, wholeMinutes(item.CreatedAt, firstViewedAt))
	if err != nil {
		return nil, fmt.Errorf("start item: %w", err)
	}
	if !ok {
		return nil, ErrNotOwner
	}
	return s.items.GetByID(ctx, itemID)
}

// Complete finishes the item and records the floored minutes from creation
// to completion.
func (s *Service) Complete(ctx context.Context, itemID, userID uuid.UUID) (*WorkQueueItem, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != StatusAssigned && item.Status != StatusInProgress && item.Status != StatusEscalated {
		return nil, ErrInvalidTransition
	}

	completedAt := s.now()
	ok, err := s.items.Complete(ctx, itemID, userID, completedAt, wholeMinutes(item.CreatedAt, completedAt))
	if err != nil {
		return nil, fmt.Errorf("complete item: %w", err)
	}
	if !ok {
		return nil, ErrNotOwner
	}
	return s.items.GetByID(ctx, itemID)
}

// Defer returns the item to pending, clearing the assignee and persisting
// the reason. The item re-enters its queue under the normal ordering.
func (s *Service) Defer(ctx context.Context, itemID, userID uuid.UUID, reason string) (*WorkQueueItem, error) {
	if reason == "" {
		return nil, fmt.Errorf("defer reason is required")
	}
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != StatusAssigned && item.Status != StatusInProgress && item.Status != StatusEscalated {
		return nil, ErrInvalidTransition
	}

	ok, err := s.items.Defer(ctx, itemID, userID, reason)
	if err != nil {
		return nil, fmt.Errorf("defer item: %w", err)
	}
	if !ok {
		return nil, ErrNotOwner
	}
	return s.items.GetByID(ctx, itemID)
}

// Escalate flags the item for physician review from any active state. The
// assignee, if any, is kept. An escalation alert goes out best-effort.
func (s *Service) Escalate(ctx context.Context, itemID uuid.UUID, userID uuid.UUID, reason string) (*WorkQueueItem, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status == StatusCompleted {
		return nil, ErrInvalidTransition
	}

	ok, err := s.items.Escalate(ctx, itemID, reason)
	if err != nil {
		return nil, fmt.Errorf("escalate item: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}

	updated, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	s.notifyEscalation(ctx, updated, userID, reason)
	return updated, nil
}

func (s *Service) notifyEscalation(ctx context.Context, item *WorkQueueItem, userID uuid.UUID, reason string) {
	if s.notifier == nil {
		return
	}
	data := map[string]string{
		"queue_name": item.QueueID.String(),
		"user_name":  userID.String(),
		"reason":     reason,
	}
	if _, err := s.notifier.SendFromTemplate(ctx, "item-escalated", data, "physician-oncall"); err != nil {
		s.logger.Warn().Err(err).Str("item_id", item.ID.String()).Msg("escalation alert send failed")
	}
}

// ListQueues returns a clinic's queues.
func (s *Service) ListQueues(ctx context.Context, clinicID uuid.UUID) ([]*WorkQueue, error) {
	return s.queues.ListByClinic(ctx, clinicID)
}

// ListItems returns the queue's active items, urgency desc then oldest first.
func (s *Service) ListItems(ctx context.Context, queueID uuid.UUID, limit, offset int) ([]*WorkQueueItem, int, error) {
	return s.items.ListActiveByQueue(ctx, queueID, limit, offset)
}

// GetItem returns a single item by id.
func (s *Service) GetItem(ctx context.Context, itemID uuid.UUID) (*WorkQueueItem, error) {
	return s.items.GetByID(ctx, itemID)
}

// TrackWork records after-hours effort. Calls inside the business window are
// silently ignored; outside it, the (user, day) row accumulates the minutes
// in total and in the activity bucket.
func (s *Service) TrackWork(ctx context.Context, userID, clinicID uuid.UUID, minutes int, activityType string) error {
	if minutes <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if activityType == "" {
		activityType = "inbox_triage"
	}

	now := s.now()
	hour := now.Hour()
	if hour >= s.businessStart && hour < s.businessEnd {
		return nil
	}

	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := s.metrics.Upsert(ctx, userID, clinicID, date, minutes, activityType); err != nil {
		return fmt.Errorf("record after-hours work: %w", err)
	}
	return nil
}

// GetMetrics returns the after-hours row for a user and day.
func (s *Service) GetMetrics(ctx context.Context, userID uuid.UUID, date time.Time) (*AfterHoursMetric, error) {
	return s.metrics.Get(ctx, userID, date)
}
