package triage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duniamed/duniamed-sub003/internal/platform/notification"
)

var (
	// ErrNoClinicAssociation indicates the caller supplied no clinic scope.
	ErrNoClinicAssociation = errors.New("no clinic association")
	// ErrBatchCreationFailed indicates the batch insert retry budget was
	// exhausted; the caller falls back to immediate routing.
	ErrBatchCreationFailed = errors.New("batch creation failed")
)

// batchRetryDelays is the backoff schedule for transient batch insert
// failures. Bounded: after the last attempt the scheduler falls back to
// immediate routing instead of retrying forever.
var batchRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}

// QueueRouter places a classified message into a pool's work queue. The
// implementation must be idempotent per (queue, message): routing the same
// message into the same pool twice yields the same item.
type QueueRouter interface {
	RouteToPool(ctx context.Context, clinicID uuid.UUID, pool string, messageID uuid.UUID,
		urgency, topic string, requiresReview bool, redFlags []string) (uuid.UUID, error)
}

// Notifier sends templated auto-responses. Delivery is best-effort from the
// triage engine's perspective.
type Notifier interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error)
}

// RoutingResult describes where a message ended up.
type RoutingResult struct {
	Batched     bool       `json:"batched"`
	Pool        string     `json:"pool"`
	QueueItemID *uuid.UUID `json:"queue_item_id,omitempty"`
	BatchID     *uuid.UUID `json:"batch_id,omitempty"`
	ProcessAt   *time.Time `json:"process_at,omitempty"`
	Fallback    bool       `json:"fallback,omitempty"`
}

type Service struct {
	messages   MessageRepository
	rules      RuleRepository
	batches    BatchRepository
	classifier Classifier
	router     QueueRouter
	notifier   Notifier
	logger     zerolog.Logger

	releaseHour int

	// Overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(
	messages MessageRepository,
	rules RuleRepository,
	batches BatchRepository,
	classifier Classifier,
	router QueueRouter,
	notifier Notifier,
	logger zerolog.Logger,
	releaseHour int,
) *Service {
	return &Service{
		messages:    messages,
		rules:       rules,
		batches:     batches,
		classifier:  classifier,
		router:      router,
		notifier:    notifier,
		logger:      logger,
		releaseHour: releaseHour,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ClassifyAndRoute runs the full triage pipeline for one inbound message:
// classify, select the clinic's routing rule, apply the quiet-hours gate, and
// either schedule a deferred batch or create an immediate work-queue item.
// A message is always routed somewhere, even under partial failure.
func (s *Service) ClassifyAndRoute(ctx context.Context, msg *ClinicMessage) (*Classification, *RoutingResult, error) {
	if msg.ClinicID == uuid.Nil {
		return nil, nil, ErrNoClinicAssociation
	}
	if msg.Content == "" {
		return nil, nil, fmt.Errorf("message content is required")
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}

	cls, err := s.classifier.Classify(ctx, msg.Content)
	if err != nil {
		// Never drop the message: under-triage with forced physician review.
		s.logger.Warn().Err(err).
			Str("message_id", msg.ID.String()).
			Msg("classification failed, applying safe default")
		cls = DefaultClassification()
	}

	rules, err := s.rules.ListActiveByClinic(ctx, msg.ClinicID)
	if err != nil {
		return nil, nil, fmt.Errorf("load routing rules: %w", err)
	}

	rule := SelectRule(rules, cls, msg.Content)
	pool := DefaultPool
	if rule != nil {
		pool = rule.TargetPool
	}

	now := s.now()
	if ShouldDefer(rule, cls, now) {
		if result, ok := s.deferToBatch(ctx, msg, rule, pool, now); ok {
			return cls, result, nil
		}
		// Retry budget exhausted: route immediately rather than lose work.
	}

	itemID, err := s.router.RouteToPool(ctx, msg.ClinicID, pool, msg.ID,
		cls.Urgency, cls.Topic, cls.RequiresPhysicianReview, cls.RedFlags)
	if err != nil {
		return nil, nil, fmt.Errorf("route to pool %s: %w", pool, err)
	}

	result := &RoutingResult{
		Pool:        pool,
		QueueItemID: &itemID,
	}
	// Mark fallback when quiet hours wanted a batch but we routed directly.
	result.Fallback = ShouldDefer(rule, cls, now)
	return cls, result, nil
}

// deferToBatch creates a quiet-hours batch with bounded retry. Returns
// (result, true) on success and (nil, false) when the retry budget is
// exhausted, in which case the caller routes immediately.
func (s *Service) deferToBatch(ctx context.Context, msg *ClinicMessage, rule *RoutingRule, pool string, now time.Time) (*RoutingResult, bool) {
	processAt := NextProcessTime(now, s.releaseHour)
	batch := &MessageBatch{
		ClinicID:           msg.ClinicID,
		TargetPool:         pool,
		MessageIDs:         []uuid.UUID{msg.ID},
		Status:             BatchPending,
		ScheduledProcessAt: processAt,
	}

	var lastErr error
	for attempt, delay := range batchRetryDelays {
		lastErr = s.batches.Create(ctx, batch)
		if lastErr == nil {
			s.sendAutoResponse(ctx, msg, rule, processAt)
			return &RoutingResult{
				Batched:   true,
				Pool:      pool,
				BatchID:   &batch.ID,
				ProcessAt: &processAt,
			}, true
		}
		s.logger.Warn().Err(lastErr).
			Int("attempt", attempt+1).
			Str("message_id", msg.ID.String()).
			Msg("batch insert failed")
		if attempt == len(batchRetryDelays)-1 {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			break
		}
	}

	s.logger.Error().Err(fmt.Errorf("%w: %v", ErrBatchCreationFailed, lastErr)).
		Str("message_id", msg.ID.String()).
		Msg("batch retry budget exhausted, falling back to immediate routing")
	if s.notifier != nil {
		data := map[string]string{"attempts": strconv.Itoa(len(batchRetryDelays))}
		if _, err := s.notifier.SendFromTemplate(ctx, "batch-failed", data, "clinic-ops"); err != nil {
			s.logger.Warn().Err(err).Msg("batch failure alert send failed")
		}
	}
	return nil, false
}

// sendAutoResponse enqueues the rule's auto-response template, if configured.
// Failures are logged and swallowed: auto-response delivery must never fail
// the routing operation.
func (s *Service) sendAutoResponse(ctx context.Context, msg *ClinicMessage, rule *RoutingRule, processAt time.Time) {
	if s.notifier == nil || rule == nil || rule.AutoResponseTemplate == nil {
		return
	}
	data := map[string]string{
		"patient_name": msg.Sender,
		"reopen_time":  processAt.Format("15:04"),
	}
	if _, err := s.notifier.SendFromTemplate(ctx, *rule.AutoResponseTemplate, data, msg.Sender); err != nil {
		s.logger.Warn().Err(err).
			Str("message_id", msg.ID.String()).
			Str("template", *rule.AutoResponseTemplate).
			Msg("auto-response send failed")
	}
}

// ProcessBatch routes every message in the batch into the target pool's work
// queue and marks the batch processed. Idempotent: reprocessing creates no
// duplicate items (the router deduplicates per queue+message), and an already
// processed batch is returned unchanged.
func (s *Service) ProcessBatch(ctx context.Context, batchID uuid.UUID) (*MessageBatch, int, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, 0, err
	}
	if batch.Status == BatchProcessed {
		return batch, 0, nil
	}

	// The original classification is not persisted with the batch; deferred
	// messages are non-urgent by construction, so items are created with the
	// safe default verdict.
	cls := DefaultClassification()

	routed := 0
	for _, messageID := range batch.MessageIDs {
		if _, err := s.router.RouteToPool(ctx, batch.ClinicID, batch.TargetPool, messageID,
			cls.Urgency, cls.Topic, cls.RequiresPhysicianReview, nil); err != nil {
			// Partial failure: mark the batch failed. A failed batch can
			// still be reprocessed; items already created deduplicate.
			if markErr := s.batches.MarkFailed(ctx, batchID); markErr != nil {
				s.logger.Error().Err(markErr).Str("batch_id", batchID.String()).Msg("mark batch failed")
			}
			return nil, routed, fmt.Errorf("route message %s: %w", messageID, err)
		}
		routed++
	}

	processedAt := s.now()
	if err := s.batches.MarkProcessed(ctx, batchID, processedAt); err != nil {
		return nil, routed, fmt.Errorf("mark batch processed: %w", err)
	}
	batch.Status = BatchProcessed
	batch.ProcessedAt = &processedAt
	return batch, routed, nil
}

// GetBatch returns a batch by id.
func (s *Service) GetBatch(ctx context.Context, id uuid.UUID) (*MessageBatch, error) {
	return s.batches.GetByID(ctx, id)
}

// ListRules returns a clinic's active routing rules, priority desc.
func (s *Service) ListRules(ctx context.Context, clinicID uuid.UUID) ([]*RoutingRule, error) {
	if clinicID == uuid.Nil {
		return nil, ErrNoClinicAssociation
	}
	return s.rules.ListActiveByClinic(ctx, clinicID)
}
