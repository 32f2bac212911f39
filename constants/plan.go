package constants

// Plan identifies a subscription tier. Page limits are per billing period
// and are only ever compared against, never decreased, by the quota ledger.
type Plan string

const (
	PlanFree    Plan = "FREE"
	PlanMonthly Plan = "MONTHLY"
	PlanYearly  Plan = "YEARLY"
)

// Default page limits per plan. Overridable via config.
const (
	FreePagesLimit    = 10
	MonthlyPagesLimit = 500
	YearlyPagesLimit  = 8000
)

// InviteBonusPages is granted to the inviter each time one of their codes
// is redeemed by a new account.
const InviteBonusPages = 5

// InviteCodeLength is the length of generated invite codes.
const InviteCodeLength = 6

// PagesLimit returns the base page allowance for a plan.
func PagesLimit(p Plan) int {
	switch p {
	case PlanMonthly:
		return MonthlyPagesLimit
	case PlanYearly:
		return YearlyPagesLimit
	default:
		return FreePagesLimit
	}
}

// ValidPlan reports whether p is a known subscription tier.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanMonthly, PlanYearly:
		return true
	}
	return false
}
