package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/subkit/entitlements"
)

const defaultSourceTimeout = 10 * time.Second

// Config wires the engine's collaborators. Profiles, Grants, Mobile and
// Billing are required; the rest default to no-ops.
type Config struct {
	Profiles ProfileStore
	Grants   ManualGrantRegistry
	Mobile   MobileSource
	Billing  BillingSource
	Cancels  CancelApplier
	Notifier Notifier
	Logger   logrus.FieldLogger

	// SourceTimeout bounds each adapter query and the notification dispatch.
	SourceTimeout time.Duration

	// Now is replaceable for tests.
	Now func() time.Time
}

// Engine reconciles a user's entitlement from the three authorization
// sources. One Reconcile call is a bounded read-then-write sequence; there is
// no cross-call state and no caching, so concurrent calls for the same user
// converge on whatever the sources currently say.
type Engine struct {
	profiles ProfileStore
	grants   ManualGrantRegistry
	mobile   MobileSource
	billing  BillingSource
	cancels  CancelApplier
	notifier Notifier
	log      logrus.FieldLogger
	timeout  time.Duration
	now      func() time.Time
}

func New(cfg Config) *Engine {
	e := &Engine{
		profiles: cfg.Profiles,
		grants:   cfg.Grants,
		mobile:   cfg.Mobile,
		billing:  cfg.Billing,
		cancels:  cfg.Cancels,
		notifier: cfg.Notifier,
		log:      cfg.Logger,
		timeout:  cfg.SourceTimeout,
		now:      cfg.Now,
	}
	if e.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		e.log = l
	}
	if e.timeout <= 0 {
		e.timeout = defaultSourceTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Reconcile recomputes the user's entitlement from scratch, persists it and
// dispatches at most one notification for a genuine transition. The returned
// entitlement is the persisted one.
func (e *Engine) Reconcile(ctx context.Context, userID uuid.UUID) (entitlements.Entitlement, error) {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return entitlements.Entitlement{}, err
	}
	previous := profile.Entitlement

	grant, regErr := e.checkManual(ctx, profile.Email)
	if regErr != nil {
		// Fail-open: an unreachable registry is treated as no grant for this
		// call. The regression guard still protects an already-granted
		// lifetime profile from the fallthrough.
		e.log.WithError(regErr).WithField("user_id", userID).
			Warn("manual grant registry unavailable, continuing without it")
	}
	if grant.Granted {
		return e.reconcileManual(ctx, profile, previous)
	}

	mobile, billing, intent := e.querySources(ctx, profile)

	resolved := entitlements.Resolve(mobile, billing)
	resolved, guarded := entitlements.Guard(previous, resolved)
	if guarded {
		e.log.WithFields(logrus.Fields{
			"user_id": userID,
			"source":  resolved.Source,
		}).Warn("sources reported no entitlement for a lifetime profile, keeping lifetime")
	}

	if err := e.persist(ctx, profile.ID, resolved); err != nil {
		return entitlements.Entitlement{}, err
	}

	if intent != nil {
		e.applyCancel(ctx, *intent)
	}

	e.notifyTransition(ctx, profile, previous, resolved)
	return resolved, nil
}

// reconcileManual handles the short-circuit path: a manual grant is
// authoritative on its own, so the other adapters are never queried and the
// resolver and guard are skipped.
func (e *Engine) reconcileManual(ctx context.Context, profile Profile, previous entitlements.Entitlement) (entitlements.Entitlement, error) {
	ent := entitlements.ManualGrant()
	if err := e.persist(ctx, profile.ID, ent); err != nil {
		return entitlements.Entitlement{}, err
	}

	// Tier diffing would miss a grant landing on an already-lifetime billing
	// profile, so the manual path keys its one-time notification on the
	// persisted source instead.
	if previous.Source != entitlements.SourceManual {
		e.send(ctx, profile, Notification{
			Email:        profile.Email,
			FirstName:    profile.FirstName,
			Template:     entitlements.TemplateEliteAccess,
			PreviousTier: previous.Tier,
			NewTier:      ent.Tier,
		})
	}
	return ent, nil
}

// querySources runs the mobile and billing reads. They have no ordering
// dependency on each other and run concurrently, each under its own timeout.
// A failing source degrades to the none entitlement for this call.
func (e *Engine) querySources(ctx context.Context, profile Profile) (mobile, billing entitlements.Entitlement, intent *entitlements.CancelIntent) {
	mobile, billing = entitlements.None(), entitlements.None()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		qctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		if n, err := e.mobile.PurgeExpiredTest(qctx, profile.ID); err != nil {
			e.log.WithError(err).WithField("user_id", profile.ID).
				Warn("purging expired test receipts failed")
		} else if n > 0 {
			e.log.WithFields(logrus.Fields{"user_id": profile.ID, "rows": n}).
				Debug("purged expired test receipts")
		}

		ent, err := e.mobile.Query(qctx, profile.ID)
		if err != nil {
			e.log.WithError(err).WithField("user_id", profile.ID).
				Warn("mobile source unavailable, degrading to none")
			return
		}
		mobile = ent
	}()

	go func() {
		defer wg.Done()
		if profile.CustomerRef == "" {
			return
		}
		qctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		ent, ci, err := e.billing.Query(qctx, profile.CustomerRef)
		if err != nil {
			e.log.WithError(err).WithField("customer", profile.CustomerRef).
				Warn("billing source unavailable, degrading to none")
			return
		}
		billing, intent = ent, ci
	}()

	wg.Wait()
	return mobile, billing, intent
}

func (e *Engine) checkManual(ctx context.Context, email string) (ManualGrant, error) {
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	grant, err := e.grants.Check(qctx, email)
	if err != nil {
		return ManualGrant{}, fmt.Errorf("%w: %v", ErrManualRegistryUnavailable, err)
	}
	return grant, nil
}

func (e *Engine) persist(ctx context.Context, id uuid.UUID, ent entitlements.Entitlement) error {
	if err := e.profiles.SetEntitlement(ctx, id, ent, e.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailure, err)
	}
	return nil
}

// applyCancel hands a cancellation intent to the applier. The intent is
// best-effort housekeeping; failure is logged and nothing else.
func (e *Engine) applyCancel(ctx context.Context, intent entitlements.CancelIntent) {
	if e.cancels == nil {
		e.log.WithField("subscription", intent.SubscriptionID).
			Warn("cancel intent decided but no applier configured")
		return
	}
	if err := e.cancels.Apply(ctx, intent); err != nil {
		e.log.WithError(err).WithField("subscription", intent.SubscriptionID).
			Error("applying cancel intent failed")
	}
}

func (e *Engine) notifyTransition(ctx context.Context, profile Profile, previous, next entitlements.Entitlement) {
	tr, template, ok := entitlements.Classify(previous, next, e.now())
	if !ok {
		if previous.Tier != next.Tier {
			e.log.WithFields(logrus.Fields{
				"from": previous.Tier.String(),
				"to":   next.Tier.String(),
			}).Error("tier changed but transition table has no entry")
		}
		return
	}
	e.send(ctx, profile, Notification{
		Email:          profile.Email,
		FirstName:      profile.FirstName,
		Template:       template,
		PreviousTier:   tr.From,
		NewTier:        tr.To,
		ExpiresAt:      next.ExpiresAt,
		TrialExpiresAt: next.TrialExpiresAt,
	})
}

func (e *Engine) send(ctx context.Context, profile Profile, n Notification) {
	if e.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.notifier.Send(nctx, n); err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"user_id":  profile.ID,
			"template": n.Template,
		}).Error("notification dispatch failed")
	}
}
