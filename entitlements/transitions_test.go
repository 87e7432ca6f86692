package entitlements

import (
	"testing"
	"time"
)

func TestClassifyNoChangeNoNotification(t *testing.T) {
	now := time.Now()
	exp := now.Add(24 * time.Hour)
	prev := Entitlement{Tier: TierMonthly, ExpiresAt: &exp, Source: SourceBilling}
	next := Entitlement{Tier: TierMonthly, ExpiresAt: &exp, Source: SourceBilling}
	if _, _, ok := Classify(prev, next, now); ok {
		t.Error("expected no notification when tier is unchanged")
	}
}

func TestClassifyTemplates(t *testing.T) {
	now := time.Now()
	trial := now.Add(10 * 24 * time.Hour)
	cases := []struct {
		name string
		prev Entitlement
		next Entitlement
		want TemplateID
	}{
		{
			name: "monthly activation",
			prev: None(),
			next: Entitlement{Tier: TierMonthly, Source: SourceMobile},
			want: TemplateWelcomeMonthly,
		},
		{
			name: "annual activation",
			prev: None(),
			next: Entitlement{Tier: TierAnnual, Source: SourceBilling},
			want: TemplateWelcomeAnnual,
		},
		{
			name: "trial activation",
			prev: None(),
			next: Entitlement{Tier: TierAnnual, TrialExpiresAt: &trial, Source: SourceBilling},
			want: TemplateWelcomeTrial,
		},
		{
			name: "lifetime activation",
			prev: None(),
			next: Entitlement{Tier: TierLifetime, Source: SourceBilling},
			want: TemplateWelcomeLifetime,
		},
		{
			name: "upgrade to lifetime",
			prev: Entitlement{Tier: TierMonthly, Source: SourceBilling},
			next: Entitlement{Tier: TierLifetime, Source: SourceBilling},
			want: TemplateWelcomeLifetime,
		},
		{
			name: "lateral upgrade",
			prev: Entitlement{Tier: TierMonthly, Source: SourceBilling},
			next: Entitlement{Tier: TierAnnual, Source: SourceBilling},
			want: TemplatePlanUpgraded,
		},
		{
			name: "lateral downgrade",
			prev: Entitlement{Tier: TierAnnual, Source: SourceBilling},
			next: Entitlement{Tier: TierMonthly, Source: SourceBilling},
			want: TemplatePlanDowngraded,
		},
		{
			name: "expiration",
			prev: Entitlement{Tier: TierMonthly, Source: SourceMobile},
			next: None(),
			want: TemplateAccessEnded,
		},
		{
			name: "lifetime refunded down to recurring",
			prev: Entitlement{Tier: TierLifetime, Source: SourceBilling},
			next: Entitlement{Tier: TierMonthly, Source: SourceBilling},
			want: TemplatePlanDowngraded,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, id, ok := Classify(tc.prev, tc.next, now)
			if !ok {
				t.Fatalf("no template for %v -> %v", tc.prev.Tier, tc.next.Tier)
			}
			if id != tc.want {
				t.Errorf("got template %q, want %q", id, tc.want)
			}
			wantActivation := tc.prev.Tier == TierNone
			if tr.NewActivation != wantActivation {
				t.Errorf("got NewActivation=%v, want %v", tr.NewActivation, wantActivation)
			}
		})
	}
}

func TestClassifyActivationFlag(t *testing.T) {
	now := time.Now()
	_, _, ok := Classify(Entitlement{Tier: TierMonthly, Source: SourceBilling},
		Entitlement{Tier: TierAnnual, Source: SourceBilling}, now)
	if !ok {
		t.Fatal("expected a classification")
	}
}

func TestEveryReachableTierChangeHasTemplate(t *testing.T) {
	// Lifetime -> none is rewritten by the guard before classification, so it
	// is the only tier change allowed to miss the table.
	now := time.Now()
	tiers := []Tier{TierNone, TierMonthly, TierAnnual, TierLifetime}
	for _, from := range tiers {
		for _, to := range tiers {
			if from == to || (from == TierLifetime && to == TierNone) {
				continue
			}
			prev := Entitlement{Tier: from, Source: SourceBilling}.Normalize()
			next := Entitlement{Tier: to, Source: SourceBilling}.Normalize()
			if _, _, ok := Classify(prev, next, now); !ok {
				t.Errorf("no template for %v -> %v", from, to)
			}
		}
	}
}
