package memory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRecord mirrors one Turn appended to the Store, for external
// analytics. It is never read back by the Orchestrator or TBIC; the Store
// itself remains the sole source of truth for prompt assembly and history.
type AuditRecord struct {
	ID        string
	UserID    string
	SessionID string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// AuditSink accepts best-effort, fire-and-forget mirrors of Conversation
// Store appends.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord)
	Close()
}

// NoopAuditSink is used when no DATABASE_URL is configured.
type NoopAuditSink struct{}

func (NoopAuditSink) Record(context.Context, AuditRecord) {}
func (NoopAuditSink) Close()                              {}

// PostgresAuditSink mirrors turns into Postgres asynchronously. A failure
// to write is logged and otherwise ignored; it never blocks or fails the
// orchestration path.
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink connects and ensures the audit table exists.
func NewPostgresAuditSink(ctx context.Context, databaseURL string) (*PostgresAuditSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initAuditSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresAuditSink{pool: pool}, nil
}

func initAuditSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS turn_audit_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	if err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	_, err = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_turn_audit_user_created
		ON turn_audit_log (user_id, created_at);`)
	if err != nil {
		return fmt.Errorf("init audit index: %w", err)
	}
	return nil
}

// Record mirrors rec in a detached goroutine so callers are never blocked on
// the audit sink; the orchestration path must not depend on this succeeding.
func (s *PostgresAuditSink) Record(ctx context.Context, rec AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.pool.Exec(writeCtx,
			`INSERT INTO turn_audit_log (id, user_id, session_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID, rec.UserID, rec.SessionID, string(rec.Role), rec.Content, rec.CreatedAt,
		)
		if err != nil {
			log.Printf("turn audit sink: write failed for user %s: %v", rec.UserID, err)
		}
	}()
	_ = ctx
}

func (s *PostgresAuditSink) Close() {
	s.pool.Close()
}

// NewAuditSink returns a PostgresAuditSink when databaseURL is set, otherwise
// a no-op sink.
func NewAuditSink(ctx context.Context, databaseURL string) (AuditSink, error) {
	if databaseURL == "" {
		return NoopAuditSink{}, nil
	}
	return NewPostgresAuditSink(ctx, databaseURL)
}
