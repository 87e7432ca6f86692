package entitlements

import "time"

// Mobile receipt validation states as written by the in-app-purchase
// validation endpoint.
const (
	ValidationValid   = "valid"
	ValidationTest    = "test"
	ValidationInvalid = "invalid"
)

// MobileReceipt is one row of the in-app-purchase ledger. A user accumulates
// several rows over time; only the freshest active one matters.
type MobileReceipt struct {
	SubscriptionType string
	ExpiresAt        time.Time
	ValidationStatus string
	Active           bool
}

// ResolveMobile normalizes a user's receipt rows into one entitlement. Rows
// qualify when they are active, validated (test receipts count so sandbox
// purchases unlock the app), and unexpired at now. The row with the latest
// expiration wins; no qualifying row yields the none entitlement.
func ResolveMobile(receipts []MobileReceipt, now time.Time) Entitlement {
	best := None()
	for _, r := range receipts {
		if !r.Active {
			continue
		}
		if r.ValidationStatus != ValidationValid && r.ValidationStatus != ValidationTest {
			continue
		}
		if !r.ExpiresAt.After(now) {
			continue
		}
		if best.ExpiresAt != nil && !r.ExpiresAt.After(*best.ExpiresAt) {
			continue
		}
		exp := r.ExpiresAt
		best = Entitlement{
			Tier:      ParseTier(r.SubscriptionType),
			ExpiresAt: &exp,
			Source:    SourceMobile,
		}
	}
	return best.Normalize()
}
