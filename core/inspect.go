package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/open-rails/subkit/entitlements"
)

// SourceReport is one source's contribution as seen by Inspect.
type SourceReport struct {
	Entitlement entitlements.Entitlement `json:"entitlement"`
	Degraded    bool                     `json:"degraded"`
	Error       string                   `json:"error,omitempty"`
}

// ManualReport is the manual registry's contribution as seen by Inspect.
type ManualReport struct {
	Granted  bool   `json:"granted"`
	Notes    string `json:"notes,omitempty"`
	Degraded bool   `json:"degraded"`
	Error    string `json:"error,omitempty"`
}

// Report is the read-only reconciliation preview returned by Inspect.
type Report struct {
	UserID       uuid.UUID                  `json:"user_id"`
	Persisted    entitlements.Entitlement   `json:"persisted"`
	Manual       ManualReport               `json:"manual"`
	Mobile       SourceReport               `json:"mobile"`
	Billing      SourceReport               `json:"billing"`
	Resolved     entitlements.Entitlement   `json:"resolved"`
	GuardApplied bool                       `json:"guard_applied"`
	CancelIntent *entitlements.CancelIntent `json:"cancel_intent,omitempty"`
}

// Inspect reports every source's raw entitlement alongside the value
// reconciliation would resolve to, without persisting anything, deleting
// anything or sending notifications. All three sources are queried even when
// the manual grant would short-circuit a real call, since the whole point is
// operational visibility.
func (e *Engine) Inspect(ctx context.Context, userID uuid.UUID) (Report, error) {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		UserID:    userID,
		Persisted: profile.Entitlement,
	}

	grant, regErr := e.checkManual(ctx, profile.Email)
	if regErr != nil {
		report.Manual = ManualReport{Degraded: true, Error: regErr.Error()}
	} else {
		report.Manual = ManualReport{Granted: grant.Granted, Notes: grant.Notes}
	}

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	mobile, err := e.mobile.Query(qctx, userID)
	if err != nil {
		report.Mobile = SourceReport{Entitlement: entitlements.None(), Degraded: true, Error: err.Error()}
	} else {
		report.Mobile = SourceReport{Entitlement: mobile}
	}

	billing := entitlements.None()
	if profile.CustomerRef != "" {
		bctx, bcancel := context.WithTimeout(ctx, e.timeout)
		defer bcancel()
		ent, intent, err := e.billing.Query(bctx, profile.CustomerRef)
		if err != nil {
			report.Billing = SourceReport{Entitlement: entitlements.None(), Degraded: true, Error: err.Error()}
		} else {
			report.Billing = SourceReport{Entitlement: ent}
			report.CancelIntent = intent
			billing = ent
		}
	} else {
		report.Billing = SourceReport{Entitlement: billing}
	}

	if report.Manual.Granted {
		report.Resolved = entitlements.ManualGrant()
		return report, nil
	}

	resolved := entitlements.Resolve(report.Mobile.Entitlement, billing)
	report.Resolved, report.GuardApplied = entitlements.Guard(profile.Entitlement, resolved)
	return report, nil
}
