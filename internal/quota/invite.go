package quota

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/repository"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// unbiasedLimit is the largest multiple of len(codeCharset) that fits in a
// byte. Random bytes at or above it are redrawn so every charset character
// is equally likely.
const unbiasedLimit = 256 - 256%len(codeCharset)

// maxCodeAttempts bounds collision retries. With 26^6 possible codes the
// loop terminating early would indicate a broken random source, not a full
// namespace.
const maxCodeAttempts = 10

// codeChar maps a random byte onto the charset via rejection sampling.
// ok is false when the byte must be discarded.
func codeChar(b byte) (byte, bool) {
	if int(b) >= unbiasedLimit {
		return 0, false
	}
	return codeCharset[int(b)%len(codeCharset)], true
}

// NewInviteCode returns a random uppercase code of the configured length.
func NewInviteCode() (string, error) {
	out := make([]byte, 0, constants.InviteCodeLength)
	buf := make([]byte, constants.InviteCodeLength)
	for len(out) < constants.InviteCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		for _, b := range buf {
			c, ok := codeChar(b)
			if !ok {
				continue
			}
			out = append(out, c)
			if len(out) == constants.InviteCodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// EnsureInviteCode returns the account's invite code, assigning a fresh one
// exactly once. Codes are regenerated on collision until unique and are
// never overwritten after assignment.
func (l *Ledger) EnsureInviteCode(ctx context.Context, userID uuid.UUID) (string, error) {
	acct, err := l.store.ReadUsage(ctx, userID)
	if err != nil {
		return "", err
	}
	if acct.InviteCode != "" {
		return acct.InviteCode, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewInviteCode()
		if err != nil {
			return "", err
		}
		switch err := l.store.AssignInviteCode(ctx, userID, code); {
		case err == nil:
			l.logger.Info("quota.invite_code.assigned", "user_id", userID)
			return code, nil
		case errors.Is(err, repository.ErrCodeTaken):
			continue
		case errors.Is(err, repository.ErrAlreadyHasCode):
			// lost a race against another assigner; the stored code wins
			acct, rerr := l.store.ReadUsage(ctx, userID)
			if rerr != nil {
				return "", rerr
			}
			return acct.InviteCode, nil
		default:
			return "", err
		}
	}
	return "", fmt.Errorf("invite code assignment: %d collisions in a row", maxCodeAttempts)
}
