package entity

import (
	"github.com/google/uuid"

	"github.com/sheetsnap/sheetsnap/constants"
)

// UsageAccount is the per-user quota record. It is owned by the identity
// collaborator; the core only reads it and atomically increments PagesUsed.
type UsageAccount struct {
	UserID      uuid.UUID      `json:"user_id"`
	Plan        constants.Plan `json:"plan"`
	PagesUsed   int            `json:"pages_used"`
	PagesLimit  int            `json:"pages_limit"`
	InviteCode  string         `json:"invite_code,omitempty"`
	InviteCount int            `json:"invite_count"`
	InvitePages int            `json:"invite_pages"`
}

// Ceiling is the total page allowance: plan limit plus referral bonus.
func (a *UsageAccount) Ceiling() int {
	return a.PagesLimit + a.InvitePages
}

// Remaining reports how many pages the account may still process.
func (a *UsageAccount) Remaining() int {
	r := a.Ceiling() - a.PagesUsed
	if r < 0 {
		return 0
	}
	return r
}
