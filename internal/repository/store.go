package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/internal/entity"
)

var (
	// ErrCodeTaken reports an invite-code collision; callers regenerate.
	ErrCodeTaken = errors.New("invite code already taken")
	// ErrAlreadyHasCode enforces assign-once semantics: a code, once
	// assigned, is never reassigned or overwritten.
	ErrAlreadyHasCode = errors.New("account already has an invite code")
)

// UsageStore is the storage collaborator contract for quota accounting.
// AtomicIncrementPages is the one primitive the core requires to be atomic:
// the increment and the ceiling comparison must be a single linearizable
// operation per user.
type UsageStore interface {
	ReadUsage(ctx context.Context, userID uuid.UUID) (*entity.UsageAccount, error)

	// AtomicIncrementPages adds delta to pages_used iff the result stays at
	// or below ceiling. Returns false, without mutating, when it would not.
	AtomicIncrementPages(ctx context.Context, userID uuid.UUID, delta, ceiling int) (bool, error)

	// AssignInviteCode sets the account's invite code when none is present.
	// Fails with ErrAlreadyHasCode or ErrCodeTaken accordingly.
	AssignInviteCode(ctx context.Context, userID uuid.UUID, code string) error

	// AddInviteBonus increments invite_pages by bonusPages and invite_count
	// by one.
	AddInviteBonus(ctx context.Context, inviterID uuid.UUID, bonusPages int) error

	// CreateAccount registers a usage account. Account lifecycle is owned by
	// the identity collaborator; adapters expose this for seeding and tests.
	CreateAccount(ctx context.Context, acct *entity.UsageAccount) error
}

// DocumentStore persists pipeline output documents.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *entity.Document) error
	GetDocument(ctx context.Context, id, userID uuid.UUID) (*entity.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID) ([]*entity.Document, error)
	DeleteDocument(ctx context.Context, id, userID uuid.UUID) error
}

// Store is the full storage surface the daemon wires up.
type Store interface {
	UsageStore
	DocumentStore
}
