package entitlements

// Resolve merges the mobile and billing entitlements under the tier total
// order. On a tie at the same non-none tier it prefers the later expiration;
// if only one side carries an expiration, that side wins. When neither does,
// billing wins the tie.
//
// Resolve is pure and is never reached when a manual grant short-circuits
// reconciliation.
func Resolve(mobile, billing Entitlement) Entitlement {
	switch {
	case mobile.Tier > billing.Tier:
		return mobile
	case billing.Tier > mobile.Tier:
		return billing
	case mobile.Tier == TierNone:
		return None()
	}

	// Same non-none tier: later expiration wins.
	switch {
	case mobile.ExpiresAt != nil && billing.ExpiresAt != nil:
		if mobile.ExpiresAt.After(*billing.ExpiresAt) {
			return mobile
		}
		return billing
	case mobile.ExpiresAt != nil:
		return mobile
	default:
		return billing
	}
}

// Guard applies the downgrade protection rule: a persisted lifetime tier is
// never replaced by none, because source mirrors lag and a lifetime grant is
// purchase-backed and non-expiring. Its removal must come from an explicit
// revocation reaching the sources, not from an empty or unreachable read.
//
// The returned bool reports whether the guard overrode the resolved value.
func Guard(previous, resolved Entitlement) (Entitlement, bool) {
	if resolved.Tier == TierNone && previous.Tier == TierLifetime {
		kept := Entitlement{
			Tier:   TierLifetime,
			Source: previous.Source,
		}
		return kept, true
	}
	return resolved, false
}
