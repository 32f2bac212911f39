package quota

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/constants"
	"github.com/sheetsnap/sheetsnap/internal/entity"
)

func TestNewInviteCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := NewInviteCode()
		if err != nil {
			t.Fatalf("NewInviteCode() error = %v", err)
		}
		if len(code) != constants.InviteCodeLength {
			t.Fatalf("len(%q) = %d, want %d", code, len(code), constants.InviteCodeLength)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeCharset, r) {
				t.Fatalf("code %q contains %q outside charset", code, r)
			}
		}
		seen[code] = true
	}
	// 50 identical draws from a 26^6 space means the source is broken.
	if len(seen) < 2 {
		t.Fatalf("all generated codes identical: %v", seen)
	}
}

// Every charset character must be reachable from the same number of byte
// values; bytes past the rejection limit are discarded rather than wrapped.
func TestCodeCharUniform(t *testing.T) {
	counts := map[byte]int{}
	rejected := 0
	for b := 0; b < 256; b++ {
		c, ok := codeChar(byte(b))
		if !ok {
			rejected++
			continue
		}
		if !strings.ContainsRune(codeCharset, rune(c)) {
			t.Fatalf("codeChar(%d) = %q outside charset", b, c)
		}
		counts[c]++
	}
	if rejected != 256%len(codeCharset) {
		t.Fatalf("rejected %d byte values, want %d", rejected, 256%len(codeCharset))
	}
	per := unbiasedLimit / len(codeCharset)
	for c, n := range counts {
		if n != per {
			t.Fatalf("char %q reachable from %d byte values, want %d", c, n, per)
		}
	}
}

func TestEnsureInviteCodeAssignsOnce(t *testing.T) {
	ctx := context.Background()
	ledger, _, userID := newTestLedger(t, 10)

	has, err := ledger.HasCode(ctx, userID)
	if err != nil {
		t.Fatalf("HasCode() error = %v", err)
	}
	if has {
		t.Fatal("fresh account already has a code")
	}

	first, err := ledger.EnsureInviteCode(ctx, userID)
	if err != nil {
		t.Fatalf("EnsureInviteCode() error = %v", err)
	}
	second, err := ledger.EnsureInviteCode(ctx, userID)
	if err != nil {
		t.Fatalf("EnsureInviteCode() second call error = %v", err)
	}
	if first != second {
		t.Fatalf("code changed between calls: %q then %q", first, second)
	}

	has, err = ledger.HasCode(ctx, userID)
	if err != nil {
		t.Fatalf("HasCode() error = %v", err)
	}
	if !has {
		t.Fatal("HasCode() = false after assignment")
	}
}

func TestEnsureInviteCodeDistinctPerAccount(t *testing.T) {
	ctx := context.Background()
	ledger, store, userA := newTestLedger(t, 10)

	userB := uuid.New()
	err := store.CreateAccount(ctx, &entity.UsageAccount{
		UserID:     userB,
		Plan:       constants.PlanFree,
		PagesLimit: constants.FreePagesLimit,
	})
	if err != nil {
		t.Fatalf("CreateAccount(userB) error = %v", err)
	}

	codeA, err := ledger.EnsureInviteCode(ctx, userA)
	if err != nil {
		t.Fatalf("EnsureInviteCode(userA) error = %v", err)
	}
	codeB, err := ledger.EnsureInviteCode(ctx, userB)
	if err != nil {
		t.Fatalf("EnsureInviteCode(userB) error = %v", err)
	}
	if codeA == codeB {
		t.Fatalf("two accounts share invite code %q", codeA)
	}
}
