package entitlements

import (
	"encoding/json"
	"time"
)

// Tier is an access level. Tiers are totally ordered; a higher value always
// wins when two sources disagree.
type Tier int

const (
	TierNone Tier = iota
	TierMonthly
	TierAnnual
	TierLifetime
)

func (t Tier) String() string {
	switch t {
	case TierMonthly:
		return "monthly"
	case TierAnnual:
		return "annual"
	case TierLifetime:
		return "lifetime"
	default:
		return "none"
	}
}

// Tiers travel as their string names on the wire and in the database.

func (t Tier) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *Tier) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = ParseTier(s)
	return nil
}

// ParseTier maps a stored tier string to a Tier. Unknown values map to
// TierNone rather than erroring; stores may carry legacy labels.
func ParseTier(s string) Tier {
	switch s {
	case "monthly":
		return TierMonthly
	case "annual":
		return TierAnnual
	case "lifetime":
		return TierLifetime
	default:
		return TierNone
	}
}

// Source identifies which authorization source produced an entitlement.
type Source string

const (
	SourceNone    Source = "none"
	SourceManual  Source = "manual"
	SourceMobile  Source = "mobile"
	SourceBilling Source = "billing"
)

// Entitlement is the normalized access value every source adapter produces.
//
// Invariants:
//   - Tier == TierNone implies ExpiresAt == nil.
//   - Source == SourceManual implies Tier == TierLifetime and ExpiresAt == nil.
type Entitlement struct {
	Tier           Tier       `json:"tier"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	Source         Source     `json:"source"`
}

// None is the zero entitlement a degraded or empty source reports.
func None() Entitlement {
	return Entitlement{Tier: TierNone, Source: SourceNone}
}

// ManualGrant is the entitlement a manual-grant hit always produces.
func ManualGrant() Entitlement {
	return Entitlement{Tier: TierLifetime, Source: SourceManual}
}

// Active reports whether the entitlement grants any access at all.
func (e Entitlement) Active() bool { return e.Tier != TierNone }

// InTrial reports whether the entitlement is inside a trial window at now.
func (e Entitlement) InTrial(now time.Time) bool {
	return e.TrialExpiresAt != nil && e.TrialExpiresAt.After(now)
}

// Normalize enforces the type invariants on a value assembled from raw store
// columns.
func (e Entitlement) Normalize() Entitlement {
	if e.Tier == TierNone {
		e.ExpiresAt = nil
		e.TrialExpiresAt = nil
		e.Source = SourceNone
	}
	if e.Source == SourceManual {
		e.Tier = TierLifetime
		e.ExpiresAt = nil
	}
	return e
}

// Equal compares two entitlements field by field. Expiration pointers compare
// by instant, not identity.
func (e Entitlement) Equal(o Entitlement) bool {
	return e.Tier == o.Tier &&
		e.Source == o.Source &&
		timePtrEqual(e.ExpiresAt, o.ExpiresAt) &&
		timePtrEqual(e.TrialExpiresAt, o.TrialExpiresAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
