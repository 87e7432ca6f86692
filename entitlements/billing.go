package entitlements

import "time"

// Recurring subscription statuses under which the customer still has access.
const (
	SubStatusActive   = "active"
	SubStatusTrialing = "trialing"
	SubStatusPastDue  = "past_due"
)

// BillingCharge is one row of the mirrored charge table. PriceID is the
// purchase-type tag carried in the charge metadata.
type BillingCharge struct {
	ID        string
	PriceID   string
	Succeeded bool
	Refunded  bool
	Disputed  bool
	CreatedAt time.Time
}

// BillingSubscription is one row of the mirrored subscription table.
type BillingSubscription struct {
	ID               string
	Status           string
	PriceIDs         []string
	CurrentPeriodEnd time.Time
	TrialEnd         *time.Time
}

// PlanCatalog maps the billing provider's price ids onto tiers.
type PlanCatalog struct {
	LifetimePriceID string
	MonthlyPriceID  string
	AnnualPriceID   string
}

// CancelIntent asks for a recurring subscription to be cancelled because a
// lifetime purchase supersedes it. Deciding the intent is pure; executing it
// is the caller's job and its failure never taints the read that produced it.
type CancelIntent struct {
	CustomerRef    string
	SubscriptionID string
}

// ResolveBilling normalizes the mirrored charge and subscription rows for one
// customer into an entitlement, plus at most one cancellation intent.
//
// A lifetime entitlement exists when the most recent succeeded charge tagged
// with the lifetime price is neither refunded nor disputed. Scanning only the
// most recent qualifying charge means a refund on an older charge cannot
// retroactively grant lifetime, and a refund on the lifetime charge itself
// revokes it.
//
// A recurring entitlement exists when a subscription in an access-granting
// status carries a monthly or annual line item. If both exist at once the
// recurring subscription is redundant and a CancelIntent naming it is
// returned alongside the lifetime entitlement.
func ResolveBilling(charges []BillingCharge, subs []BillingSubscription, catalog PlanCatalog, customerRef string, now time.Time) (Entitlement, *CancelIntent) {
	lifetime := latestLifetimeCharge(charges, catalog.LifetimePriceID)

	recurring, subID := recurringEntitlement(subs, catalog, now)

	if lifetime {
		var intent *CancelIntent
		if recurring.Active() {
			intent = &CancelIntent{CustomerRef: customerRef, SubscriptionID: subID}
		}
		return Entitlement{Tier: TierLifetime, Source: SourceBilling}, intent
	}
	return recurring, nil
}

func latestLifetimeCharge(charges []BillingCharge, lifetimePriceID string) bool {
	if lifetimePriceID == "" {
		return false
	}
	var latest *BillingCharge
	for i := range charges {
		c := &charges[i]
		if !c.Succeeded || c.PriceID != lifetimePriceID {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = c
		}
	}
	return latest != nil && !latest.Refunded && !latest.Disputed
}

func recurringEntitlement(subs []BillingSubscription, catalog PlanCatalog, now time.Time) (Entitlement, string) {
	for _, s := range subs {
		if s.Status != SubStatusActive && s.Status != SubStatusTrialing && s.Status != SubStatusPastDue {
			continue
		}
		tier := TierNone
		for _, priceID := range s.PriceIDs {
			switch priceID {
			case catalog.MonthlyPriceID:
				tier = TierMonthly
			case catalog.AnnualPriceID:
				tier = TierAnnual
			default:
				continue
			}
			break
		}
		if tier == TierNone {
			continue
		}
		ent := Entitlement{Tier: tier, Source: SourceBilling}
		if !s.CurrentPeriodEnd.IsZero() {
			end := s.CurrentPeriodEnd
			ent.ExpiresAt = &end
		}
		if s.TrialEnd != nil && s.TrialEnd.After(now) {
			trial := *s.TrialEnd
			ent.TrialExpiresAt = &trial
		}
		return ent, s.ID
	}
	return None(), ""
}
