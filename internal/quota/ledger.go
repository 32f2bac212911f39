package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/internal/common"
	"github.com/sheetsnap/sheetsnap/internal/entity"
	"github.com/sheetsnap/sheetsnap/internal/repository"
)

// Ledger tracks and enforces the per-user page budget. All mutation goes
// through the storage layer's atomic conditional increment, so concurrent
// authorize+charge sequences on the same account serialize there and the
// invariant pagesUsed <= pagesLimit + invitePages can never be raced past.
type Ledger struct {
	store  repository.UsageStore
	logger *slog.Logger
}

func NewLedger(store repository.UsageStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// Authorize checks whether the account can afford estimatedPages. It is a
// cheap read-only gate executed before any expensive work; the binding
// decision is re-made at charge time.
func (l *Ledger) Authorize(ctx context.Context, userID uuid.UUID, estimatedPages int) error {
	if estimatedPages <= 0 {
		return fmt.Errorf("%w: estimated pages must be positive", common.ErrInvalidInput)
	}
	acct, err := l.store.ReadUsage(ctx, userID)
	if err != nil {
		return err
	}
	if acct.PagesUsed+estimatedPages > acct.Ceiling() {
		l.logger.Info("quota.authorize.denied",
			"user_id", userID,
			"estimated_pages", estimatedPages,
			"pages_used", acct.PagesUsed,
			"ceiling", acct.Ceiling(),
		)
		return fmt.Errorf("%w: need %d pages, %d remaining", common.ErrQuotaExceeded, estimatedPages, acct.Remaining())
	}
	return nil
}

// Charge permanently consumes actualPages. The ceiling is re-validated
// atomically at commit time rather than trusting the earlier authorization,
// so an underestimated page count or a concurrent upload from the same
// account cannot push pagesUsed past the allowance.
func (l *Ledger) Charge(ctx context.Context, userID uuid.UUID, actualPages int) error {
	if actualPages <= 0 {
		return fmt.Errorf("%w: actual pages must be positive", common.ErrInvalidInput)
	}
	acct, err := l.store.ReadUsage(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := l.store.AtomicIncrementPages(ctx, userID, actualPages, acct.Ceiling())
	if err != nil {
		return err
	}
	if !ok {
		l.logger.Warn("quota.charge.denied",
			"user_id", userID,
			"actual_pages", actualPages,
			"ceiling", acct.Ceiling(),
		)
		return fmt.Errorf("%w: ceiling reached while charging %d pages", common.ErrQuotaExceeded, actualPages)
	}
	l.logger.Info("quota.charge.ok", "user_id", userID, "pages", actualPages)
	return nil
}

// GrantInviteBonus credits the inviter when one of their codes is redeemed.
// Redemption idempotency is the referral collaborator's responsibility.
func (l *Ledger) GrantInviteBonus(ctx context.Context, inviterID uuid.UUID, bonusPages int) error {
	if bonusPages <= 0 {
		return fmt.Errorf("%w: bonus pages must be positive", common.ErrInvalidInput)
	}
	if err := l.store.AddInviteBonus(ctx, inviterID, bonusPages); err != nil {
		return err
	}
	l.logger.Info("quota.invite_bonus.granted", "inviter_id", inviterID, "bonus_pages", bonusPages)
	return nil
}

// HasCode reports whether the account has an invite code assigned.
func (l *Ledger) HasCode(ctx context.Context, userID uuid.UUID) (bool, error) {
	acct, err := l.store.ReadUsage(ctx, userID)
	if err != nil {
		return false, err
	}
	return acct.InviteCode != "", nil
}

// Usage exposes the current account snapshot for reporting surfaces.
func (l *Ledger) Usage(ctx context.Context, userID uuid.UUID) (*entity.UsageAccount, error) {
	return l.store.ReadUsage(ctx, userID)
}
