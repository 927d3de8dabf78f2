package workqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duniamed/duniamed-sub003/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func resolveConn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Queue Repository ===========

type queueRepoPG struct{ pool *pgxpool.Pool }

func NewQueueRepoPG(pool *pgxpool.Pool) QueueRepository {
	return &queueRepoPG{pool: pool}
}

const queueCols = `id, clinic_id, pool_type, is_active, created_at, updated_at`

func scanQueue(row pgx.Row) (*WorkQueue, error) {
	var q WorkQueue
	err := row.Scan(&q.ID, &q.ClinicID, &q.PoolType, &q.IsActive, &q.CreatedAt, &q.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *queueRepoPG) GetActiveByClinicAndPool(ctx context.Context, clinicID uuid.UUID, pool string) (*WorkQueue, error) {
	row := resolveConn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+queueCols+` FROM work_queue
		WHERE clinic_id = $1 AND pool_type = $2 AND is_active`,
		clinicID, pool)
	return scanQueue(row)
}

func (r *queueRepoPG) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*WorkQueue, error) {
	rows, err := resolveConn(ctx, r.pool).Query(ctx, `
		SELECT `+queueCols+` FROM work_queue
		WHERE clinic_id = $1 ORDER BY pool_type`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queues []*WorkQueue
	for rows.Next() {
		var q WorkQueue
		if err := rows.Scan(&q.ID, &q.ClinicID, &q.PoolType, &q.IsActive, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		queues = append(queues, &q)
	}
	return queues, rows.Err()
}

func (r *queueRepoPG) Create(ctx context.Context, q *WorkQueue) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return resolveConn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO work_queue (id, clinic_id, pool_type, is_active)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		q.ID, q.ClinicID, q.PoolType, q.IsActive).
		Scan(&q.CreatedAt, &q.UpdatedAt)
}

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

const itemCols = `id, queue_id, clinic_id, message_id, urgency, topic,
	requires_physician_review, red_flags, status, assigned_to, assigned_at,
	first_viewed_at, completed_at, defer_reason, escalate_reason,
	minutes_to_first_view, minutes_to_completion, created_at, updated_at`

func scanItem(row pgx.Row) (*WorkQueueItem, error) {
	var it WorkQueueItem
	err := row.Scan(&it.ID, &it.QueueID, &it.ClinicID, &it.MessageID, &it.Urgency,
		&it.Topic, &it.RequiresPhysicianReview, &it.RedFlags, &it.Status,
		&it.AssignedTo, &it.AssignedAt, &it.FirstViewedAt, &it.CompletedAt,
		&it.DeferReason, &it.EscalateReason, &it.MinutesToFirstView,
		&it.MinutesToCompletion, &it.CreatedAt, &it.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *itemRepoPG) Create(ctx context.Context, item *WorkQueueItem) (bool, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, `
		INSERT INTO work_queue_item
			(id, queue_id, clinic_id, message_id, urgency, topic,
			 requires_physician_review, red_flags, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (queue_id, message_id) DO NOTHING`,
		item.ID, item.QueueID, item.ClinicID, item.MessageID, item.Urgency,
		item.Topic, item.RequiresPhysicianReview, item.RedFlags, item.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*WorkQueueItem, error) {
	row := resolveConn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+itemCols+` FROM work_queue_item WHERE id = $1`, id)
	return scanItem(row)
}

func (r *itemRepoPG) GetByQueueAndMessage(ctx context.Context, queueID, messageID uuid.UUID) (*WorkQueueItem, error) {
	row := resolveConn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+itemCols+` FROM work_queue_item
		WHERE queue_id = $1 AND message_id = $2`, queueID, messageID)
	return scanItem(row)
}

func (r *itemRepoPG) ListActiveByQueue(ctx context.Context, queueID uuid.UUID, limit, offset int) ([]*WorkQueueItem, int, error) {
	conn := resolveConn(ctx, r.pool)

	var total int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM work_queue_item
		WHERE queue_id = $1 AND status IN ('pending','assigned','in_progress')`,
		queueID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT `+itemCols+` FROM work_queue_item
		WHERE queue_id = $1 AND status IN ('pending','assigned','in_progress')
		ORDER BY CASE urgency
			WHEN 'urgent' THEN 4 WHEN 'high' THEN 3
			WHEN 'routine' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
			created_at ASC
		LIMIT $2 OFFSET $3`,
		queueID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*WorkQueueItem
	for rows.Next() {
		var it WorkQueueItem
		if err := rows.Scan(&it.ID, &it.QueueID, &it.ClinicID, &it.MessageID,
			&it.Urgency, &it.Topic, &it.RequiresPhysicianReview, &it.RedFlags,
			&it.Status, &it.AssignedTo, &it.AssignedAt, &it.FirstViewedAt,
			&it.CompletedAt, &it.DeferReason, &it.EscalateReason,
			&it.MinutesToFirstView, &it.MinutesToCompletion, &it.CreatedAt,
			&it.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &it)
	}
	return items, total, rows.Err()
}

func (r *itemRepoPG) Claim(ctx context.Context, itemID, userID uuid.UUID, now time.Time) (bool, error) {
	// Compare-and-set on status: two concurrent claims cannot both match
	// status='pending', so exactly one of them updates the row.
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, `
		UPDATE work_queue_item
		SET status = 'assigned', assigned_to = $2, assigned_at = $3, updated_at = now()
		WHERE id = $1 AND (status = 'pending' OR (status = 'escalated' AND assigned_to IS NULL))`,
		itemID, userID, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *itemRepoPG) Start(ctx context.Context, itemID, userID uuid.UUID, firstViewedAt time.Time, minutesToFirstView int) (bool, error) {
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, `
		UPDATE work_queue_item
		SET status = 'in_progress', first_viewed_at = $3,
		    minutes_to_first_view = $4, updated_at = now()
		WHERE id = $1 AND assigned_to = $2 AND status IN ('assigned','escalated')`,
		itemID, userID, firstViewedAt, minutesToFirstView)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *itemRepoPG) Complete(ctx context.Context, itemID, userID uuid.UUID, completedAt time.Time, minutesToCompletion int) (bool, error) {
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, `
		UPDATE work_queue_item
		SET status = 'completed', completed_at = $3,
		    minutes_to_completion = $4, updated_at = now()
		WHERE id = $1 AND assigned_to = $2`,
		itemID, userID, completedAt, minutesToCompletion)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *itemRepoPG) Defer(ctx context.Context, itemID, userID uuid.UUID, reason string) (bool, error) {
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, `
		UPDATE work_queue_item
		SET status = 'pending', assigned_to = NULL, assigned_at = NULL,
		    defer_reason = $3, updated_at = now()
		WHERE id = $1 AND assigned_to = $2`,
		itemID, userID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *itemRepoPG) Escalate(ctx context.Context, itemID uuid.UUID, reason string) (bool, error) {
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, `
		UPDATE work_queue_item
		SET status = 'escalated', requires_physician_review = true,
		    escalate_reason = $2, updated_at = now()
		WHERE id = $1 AND status <> 'completed'`,
		itemID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// =========== Metrics Repository ===========

type metricsRepoPG struct{ pool *pgxpool.Pool }

func NewMetricsRepoPG(pool *pgxpool.Pool) MetricsRepository {
	return &metricsRepoPG{pool: pool}
}

func (r *metricsRepoPG) Upsert(ctx context.Context, userID, clinicID uuid.UUID, date time.Time, minutes int, activityType string) error {
	_, err := resolveConn(ctx, r.pool).Exec(ctx, `
		INSERT INTO after_hours_metric
			(id, user_id, clinic_id, metric_date, total_minutes, minutes_by_activity)
		VALUES ($1, $2, $3, $4, $5, jsonb_build_object($6::text, $5::int))
		ON CONFLICT (user_id, metric_date) DO UPDATE SET
			total_minutes = after_hours_metric.total_minutes + EXCLUDED.total_minutes,
			minutes_by_activity = jsonb_set(
				after_hours_metric.minutes_by_activity,
				ARRAY[$6::text],
				to_jsonb(COALESCE((after_hours_metric.minutes_by_activity ->> $6)::int, 0) + $5::int)),
			updated_at = now()`,
		uuid.New(), userID, clinicID, date, minutes, activityType)
	return err
}

func (r *metricsRepoPG) Get(ctx context.Context, userID uuid.UUID, date time.Time) (*AfterHoursMetric, error) {
	var m AfterHoursMetric
	err := resolveConn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, user_id, clinic_id, metric_date, total_minutes,
		       minutes_by_activity, updated_at
		FROM after_hours_metric
		WHERE user_id = $1 AND metric_date = $2`,
		userID, date).
		Scan(&m.ID, &m.UserID, &m.ClinicID, &m.MetricDate, &m.TotalMinutes,
			&m.MinutesByActivity, &m.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
