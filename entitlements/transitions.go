package entitlements

import "time"

// TemplateID names a notification subject/content variant. Rendering happens
// outside this module; the id plus structured data is the whole contract.
type TemplateID string

const (
	TemplateWelcomeMonthly  TemplateID = "welcome_monthly"
	TemplateWelcomeAnnual   TemplateID = "welcome_annual"
	TemplateWelcomeLifetime TemplateID = "welcome_lifetime"
	TemplateWelcomeTrial    TemplateID = "welcome_trial"
	TemplateEliteAccess     TemplateID = "elite_access"
	TemplatePlanUpgraded    TemplateID = "plan_upgraded"
	TemplatePlanDowngraded  TemplateID = "plan_downgraded"
	TemplateAccessEnded     TemplateID = "access_ended"
)

// Transition is the classification of one tier change.
type Transition struct {
	From          Tier
	To            Tier
	Trial         bool
	NewActivation bool
}

// templates is the full transition lookup. Every tier change the engine can
// produce has an entry here; classification is a table hit, never a chain of
// conditionals at the call site.
//
// Lifetime -> none is absent on purpose: the regression guard rewrites that
// result before any diff is taken. The manual-grant path has its own check and
// uses TemplateEliteAccess directly.
var templates = map[Transition]TemplateID{
	// Activations.
	{From: TierNone, To: TierMonthly, NewActivation: true}:               TemplateWelcomeMonthly,
	{From: TierNone, To: TierMonthly, Trial: true, NewActivation: true}:  TemplateWelcomeTrial,
	{From: TierNone, To: TierAnnual, NewActivation: true}:                TemplateWelcomeAnnual,
	{From: TierNone, To: TierAnnual, Trial: true, NewActivation: true}:   TemplateWelcomeTrial,
	{From: TierNone, To: TierLifetime, NewActivation: true}:              TemplateWelcomeLifetime,

	// Lateral plan changes.
	{From: TierMonthly, To: TierAnnual}:              TemplatePlanUpgraded,
	{From: TierMonthly, To: TierAnnual, Trial: true}: TemplatePlanUpgraded,
	{From: TierAnnual, To: TierMonthly}:              TemplatePlanDowngraded,
	{From: TierAnnual, To: TierMonthly, Trial: true}: TemplatePlanDowngraded,

	// Upgrades to lifetime.
	{From: TierMonthly, To: TierLifetime}: TemplateWelcomeLifetime,
	{From: TierAnnual, To: TierLifetime}:  TemplateWelcomeLifetime,

	// Lifetime revoked upstream (refund) while a recurring plan remains.
	{From: TierLifetime, To: TierMonthly}:              TemplatePlanDowngraded,
	{From: TierLifetime, To: TierMonthly, Trial: true}: TemplatePlanDowngraded,
	{From: TierLifetime, To: TierAnnual}:               TemplatePlanDowngraded,
	{From: TierLifetime, To: TierAnnual, Trial: true}:  TemplatePlanDowngraded,

	// Expirations and cancellations.
	{From: TierMonthly, To: TierNone}: TemplateAccessEnded,
	{From: TierAnnual, To: TierNone}:  TemplateAccessEnded,
}

// Classify derives the transition between the previously persisted
// entitlement and the newly resolved one. It returns false when no
// notification is due, which is exactly when the tier did not change.
func Classify(previous, next Entitlement, now time.Time) (Transition, TemplateID, bool) {
	if previous.Tier == next.Tier {
		return Transition{}, "", false
	}
	tr := Transition{
		From:          previous.Tier,
		To:            next.Tier,
		Trial:         next.InTrial(now),
		NewActivation: previous.Tier == TierNone && next.Tier != TierNone,
	}
	id, ok := templates[tr]
	return tr, id, ok
}
