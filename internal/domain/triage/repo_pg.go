package triage

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

// =========== Message Repository ===========

type messageRepoPG struct{ pool *pgxpool.Pool }

func NewMessageRepoPG(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

func (r *messageRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *messageRepoPG) Create(ctx context.Context, m *ClinicMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinic_message (id, clinic_id, patient_id, sender, content)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.ClinicID, m.PatientID, m.Sender, m.Content)
	return err
}

func (r *messageRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicMessage, error) {
	var m ClinicMessage
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, clinic_id, patient_id, sender, content, created_at
		FROM clinic_message WHERE id = $1`, id).
		Scan(&m.ID, &m.ClinicID, &m.PatientID, &m.Sender, &m.Content, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// =========== Rule Repository ===========

type ruleRepoPG struct{ pool *pgxpool.Pool }

func NewRuleRepoPG(pool *pgxpool.Pool) RuleRepository {
	return &ruleRepoPG{pool: pool}
}

func (r *ruleRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const ruleCols = `id, clinic_id, priority, urgency_filter, keywords, target_pool,
	enforce_quiet_hours, quiet_start, quiet_end, auto_response_template,
	is_active, created_at, updated_at`

func (r *ruleRepoPG) ListActiveByClinic(ctx context.Context, clinicID uuid.UUID) ([]*RoutingRule, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+ruleCols+` FROM routing_rule
		WHERE clinic_id = $1 AND is_active
		ORDER BY priority DESC`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*RoutingRule
	for rows.Next() {
		var rule RoutingRule
		if err := rows.Scan(&rule.ID, &rule.ClinicID, &rule.Priority, &rule.UrgencyFilter,
			&rule.Keywords, &rule.TargetPool, &rule.EnforceQuietHours,
			&rule.QuietStart, &rule.QuietEnd, &rule.AutoResponseTemplate,
			&rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// =========== Batch Repository ===========

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository {
	return &batchRepoPG{pool: pool}
}

func (r *batchRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *batchRepoPG) Create(ctx context.Context, b *MessageBatch) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO message_batch (id, clinic_id, target_pool, message_ids, status, scheduled_process_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		b.ID, b.ClinicID, b.TargetPool, b.MessageIDs, b.Status, b.ScheduledProcessAt)
	return err
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MessageBatch, error) {
	var b MessageBatch
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, clinic_id, target_pool, message_ids, status, scheduled_process_at,
			processed_at, created_at, updated_at
		FROM message_batch WHERE id = $1`, id).
		Scan(&b.ID, &b.ClinicID, &b.TargetPool, &b.MessageIDs, &b.Status,
			&b.ScheduledProcessAt, &b.ProcessedAt, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepoPG) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE message_batch SET status = $2, processed_at = $3, updated_at = NOW()
		WHERE id = $1`, id, BatchProcessed, processedAt)
	return err
}

func (r *batchRepoPG) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE message_batch SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, BatchFailed)
	return err
}
