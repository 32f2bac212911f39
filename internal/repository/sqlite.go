package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_accounts (
	user_id      TEXT PRIMARY KEY,
	plan         TEXT NOT NULL,
	pages_used   INTEGER NOT NULL DEFAULT 0,
	pages_limit  INTEGER NOT NULL,
	invite_code  TEXT UNIQUE,
	invite_count INTEGER NOT NULL DEFAULT 0,
	invite_pages INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS documents (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	source_type     TEXT NOT NULL,
	page_count      INTEGER NOT NULL,
	extracted_text  TEXT NOT NULL,
	structured_data BLOB,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_user_idx ON documents (user_id);
`

// SQLiteStore implements Store over a single-file database for single-node
// deployments and the CLI. Connections are capped at one: SQLite serializes
// writers anyway, and in-memory databases are per-connection.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("opened sqlite store", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ReadUsage(ctx context.Context, userID uuid.UUID) (*entity.UsageAccount, error) {
	var (
		acct entity.UsageAccount
		id   string
		code sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, plan, pages_used, pages_limit, invite_code, invite_count, invite_pages
		 FROM usage_accounts WHERE user_id = ?`, userID.String()).
		Scan(&id, &acct.Plan, &acct.PagesUsed, &acct.PagesLimit, &code, &acct.InviteCount, &acct.InvitePages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: usage account %s", common.ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	acct.UserID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", id, err)
	}
	acct.InviteCode = code.String
	return &acct, nil
}

func (s *SQLiteStore) AtomicIncrementPages(ctx context.Context, userID uuid.UUID, delta, ceiling int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage_accounts SET pages_used = pages_used + ?
		 WHERE user_id = ? AND pages_used + ? <= ?`,
		delta, userID.String(), delta, ceiling)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) AssignInviteCode(ctx context.Context, userID uuid.UUID, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage_accounts SET invite_code = ?
		 WHERE user_id = ? AND invite_code IS NULL`,
		code, userID.String())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrCodeTaken
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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

func (s *SQLiteStore) AddInviteBonus(ctx context.Context, inviterID uuid.UUID, bonusPages int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage_accounts
		 SET invite_pages = invite_pages + ?, invite_count = invite_count + 1
		 WHERE user_id = ?`,
		bonusPages, inviterID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: usage account %s", common.ErrNotFound, inviterID)
	}
	return nil
}

func (s *SQLiteStore) CreateAccount(ctx context.Context, acct *entity.UsageAccount) error {
	var code any
	if acct.InviteCode != "" {
		code = acct.InviteCode
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_accounts (user_id, plan, pages_used, pages_limit, invite_code, invite_count, invite_pages)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acct.UserID.String(), acct.Plan, acct.PagesUsed, acct.PagesLimit, code, acct.InviteCount, acct.InvitePages)
	return err
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *entity.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, source_type, page_count, extracted_text, structured_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), doc.UserID.String(), doc.SourceType, doc.PageCount,
		doc.ExtractedText, []byte(doc.StructuredData), doc.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id, userID uuid.UUID) (*entity.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, source_type, page_count, extracted_text, structured_data, created_at
		 FROM documents WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	return doc, err
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, userID uuid.UUID) ([]*entity.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source_type, page_count, extracted_text, structured_data, created_at
		 FROM documents WHERE user_id = ? ORDER BY created_at DESC`, userID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s", common.ErrNotFound, id)
	}
	return nil
}

func scanDocument(scan func(dest ...any) error) (*entity.Document, error) {
	var (
		doc        entity.Document
		id, userID string
		createdAt  string
	)
	if err := scan(&id, &userID, &doc.SourceType, &doc.PageCount,
		&doc.ExtractedText, &doc.StructuredData, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if doc.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt document id %q: %w", id, err)
	}
	if doc.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("corrupt user id %q: %w", userID, err)
	}
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt timestamp %q: %w", createdAt, err)
	}
	return &doc, nil
}
