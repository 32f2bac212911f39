package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/entity"
)

const pgUniqueViolation = "23505"

const pgSchema = `
CREATE TABLE IF NOT EXISTS usage_accounts (
	user_id      UUID PRIMARY KEY,
	plan         TEXT NOT NULL,
	pages_used   INTEGER NOT NULL DEFAULT 0,
	pages_limit  INTEGER NOT NULL,
	invite_code  TEXT UNIQUE,
	invite_count INTEGER NOT NULL DEFAULT 0,
	invite_pages INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS documents (
	id              UUID PRIMARY KEY,
	user_id         UUID NOT NULL,
	source_type     TEXT NOT NULL,
	page_count      INTEGER NOT NULL,
	extracted_text  TEXT NOT NULL,
	structured_data JSONB,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_user_idx ON documents (user_id);
`

type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool and runs the idempotent schema setup.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "sheetsnap"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("successfully connected to database")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// HealthCheck pings the pool to catch DSN issues early.
func (s *PostgresStore) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ReadUsage(ctx context.Context, userID uuid.UUID) (*entity.UsageAccount, error) {
	var (
		acct entity.UsageAccount
		code *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, plan, pages_used, pages_limit, invite_code, invite_count, invite_pages
		 FROM usage_accounts WHERE user_id = $1`, userID).
		Scan(&acct.UserID, &acct.Plan, &acct.PagesUsed, &acct.PagesLimit, &code, &acct.InviteCount, &acct.InvitePages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: usage account %s", common.ErrNotFound, userID)
	}
	if err != nil {
		s.logger.Error("failed to read usage account", "user_id", userID, "error", err)
		return nil, err
	}
	if code != nil {
		acct.InviteCode = *code
	}
	return &acct, nil
}

func (s *PostgresStore) AtomicIncrementPages(ctx context.Context, userID uuid.UUID, delta, ceiling int) (bool, error) {
	ct, err := s.pool.Exec(ctx,
		`UPDATE usage_accounts SET pages_used = pages_used + $2
		 WHERE user_id = $1 AND pages_used + $2 <= $3`,
		userID, delta, ceiling)
	if err != nil {
		s.logger.Error("failed to increment pages", "user_id", userID, "delta", delta, "error", err)
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) AssignInviteCode(ctx context.Context, userID uuid.UUID, code string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE usage_accounts SET invite_code = $2
		 WHERE user_id = $1 AND invite_code IS NULL`,
		userID, code)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrCodeTaken
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		acct, rerr := s.ReadUsage(ctx, userID)
		if rerr != nil {
			return rerr
		}
		if acct.InviteCode != "" {
			return ErrAlreadyHasCode
		}
		return fmt.Errorf("%w: usage account %s", common.ErrNotFound, userID)
	}
	return nil
}

func (s *PostgresStore) AddInviteBonus(ctx context.Context, inviterID uuid.UUID, bonusPages int) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE usage_accounts
		 SET invite_pages = invite_pages + $2, invite_count = invite_count + 1
		 WHERE user_id = $1`,
		inviterID, bonusPages)
	if err != nil {
		s.logger.Error("failed to add invite bonus", "user_id", inviterID, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: usage account %s", common.ErrNotFound, inviterID)
	}
	return nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, acct *entity.UsageAccount) error {
	var code *string
	if acct.InviteCode != "" {
		code = &acct.InviteCode
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_accounts (user_id, plan, pages_used, pages_limit, invite_code, invite_count, invite_pages)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		acct.UserID, acct.Plan, acct.PagesUsed, acct.PagesLimit, code, acct.InviteCount, acct.InvitePages)
	return err
}

func (s *PostgresStore) SaveDocument(ctx context.Context, doc *entity.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, source_type, page_count, extracted_text, structured_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.UserID, doc.SourceType, doc.PageCount, doc.ExtractedText, []byte(doc.StructuredData), doc.CreatedAt)
	if err != nil {
		s.logger.Error("failed to save document", "document_id", doc.ID, "error", err)
	}
	return err
}

func (s *PostgresStore) GetDocument(ctx context.Context, id, userID uuid.UUID) (*entity.Document, error) {
	var doc entity.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, source_type, page_count, extracted_text, structured_data, created_at
		 FROM documents WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&doc.ID, &doc.UserID, &doc.SourceType, &doc.PageCount, &doc.ExtractedText, &doc.StructuredData, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, userID uuid.UUID) ([]*entity.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, source_type, page_count, extracted_text, structured_data, created_at
		 FROM documents WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Document
	for rows.Next() {
		var doc entity.Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.SourceType, &doc.PageCount,
			&doc.ExtractedText, &doc.StructuredData, &doc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &doc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id, userID uuid.UUID) error {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	return nil
}
