package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/subkit/core"
	"github.com/open-rails/subkit/entitlements"
	memorystore "github.com/open-rails/subkit/storage/memory"
)

var catalog = entitlements.PlanCatalog{
	LifetimePriceID: "price_lifetime",
	MonthlyPriceID:  "price_monthly",
	AnnualPriceID:   "price_annual",
}

type notifierRecorder struct {
	mu   sync.Mutex
	sent []core.Notification
	err  error
}

func (n *notifierRecorder) Send(ctx context.Context, msg core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *notifierRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type cancelRecorder struct {
	mu      sync.Mutex
	intents []entitlements.CancelIntent
}

func (c *cancelRecorder) Apply(ctx context.Context, intent entitlements.CancelIntent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents = append(c.intents, intent)
	return nil
}

type fixture struct {
	profiles *memorystore.ProfileStore
	grants   *memorystore.GrantRegistry
	mobile   *memorystore.MobileStore
	billing  *memorystore.BillingStore
	notifier *notifierRecorder
	cancels  *cancelRecorder
	engine   *core.Engine
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		profiles: memorystore.NewProfileStore(),
		grants:   memorystore.NewGrantRegistry(),
		mobile:   memorystore.NewMobileStore(),
		billing:  memorystore.NewBillingStore(catalog),
		notifier: &notifierRecorder{},
		cancels:  &cancelRecorder{},
		userID:   uuid.New(),
	}
	f.profiles.Put(core.Profile{
		ID:          f.userID,
		Email:       "user@example.com",
		FirstName:   "Pat",
		CustomerRef: "cus_1",
		Entitlement: entitlements.None(),
	})
	f.engine = core.New(core.Config{
		Profiles: f.profiles,
		Grants:   f.grants,
		Mobile:   f.mobile,
		Billing:  f.billing,
		Cancels:  f.cancels,
		Notifier: f.notifier,
	})
	return f
}

func (f *fixture) persisted(t *testing.T) entitlements.Entitlement {
	t.Helper()
	p, err := f.profiles.Get(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	return p.Entitlement
}

func TestReconcileMobileActivation(t *testing.T) {
	f := newFixture(t)
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "monthly",
		ExpiresAt:        time.Now().Add(30 * 24 * time.Hour),
		ValidationStatus: entitlements.ValidationValid,
		Active:           true,
	})

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierMonthly || got.Source != entitlements.SourceMobile {
		t.Errorf("got tier=%v source=%v, want monthly/mobile", got.Tier, got.Source)
	}
	if !f.persisted(t).Equal(got) {
		t.Error("persisted entitlement differs from returned one")
	}
	if f.notifier.count() != 1 {
		t.Fatalf("got %d notifications, want 1", f.notifier.count())
	}
	n := f.notifier.sent[0]
	if n.Template != entitlements.TemplateWelcomeMonthly {
		t.Errorf("got template %q, want welcome_monthly", n.Template)
	}
	if n.PreviousTier != entitlements.TierNone || n.NewTier != entitlements.TierMonthly {
		t.Errorf("got transition %v -> %v, want none -> monthly", n.PreviousTier, n.NewTier)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	f := newFixture(t)
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "annual",
		ExpiresAt:        time.Now().Add(300 * 24 * time.Hour),
		ValidationStatus: entitlements.ValidationValid,
		Active:           true,
	})

	first, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if f.notifier.count() != 1 {
		t.Errorf("got %d notifications across two calls, want 1", f.notifier.count())
	}
}

func TestReconcileGuardHoldsLifetimeThroughOutage(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(core.Profile{
		ID:          f.userID,
		Email:       "user@example.com",
		CustomerRef: "cus_1",
		Entitlement: entitlements.Entitlement{Tier: entitlements.TierLifetime, Source: entitlements.SourceBilling},
	})
	f.billing.Err = errors.New("mirror timeout")

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierLifetime {
		t.Errorf("got tier %v, want lifetime held by guard", got.Tier)
	}
	if got.Source != entitlements.SourceBilling {
		t.Errorf("got source %v, want previous source preserved", got.Source)
	}
	if f.notifier.count() != 0 {
		t.Errorf("got %d notifications, want 0 (tier unchanged)", f.notifier.count())
	}
}

func TestReconcileConflictCancelsRecurring(t *testing.T) {
	f := newFixture(t)
	f.billing.AddCharge("cus_1", entitlements.BillingCharge{
		ID: "ch_1", PriceID: "price_lifetime", Succeeded: true, CreatedAt: time.Now().Add(-time.Hour),
	})
	f.billing.AddSubscription("cus_1", entitlements.BillingSubscription{
		ID: "sub_9", Status: entitlements.SubStatusActive,
		PriceIDs: []string{"price_monthly"}, CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierLifetime {
		t.Errorf("got tier %v, want lifetime", got.Tier)
	}
	if len(f.cancels.intents) != 1 {
		t.Fatalf("got %d cancel intents, want exactly 1", len(f.cancels.intents))
	}
	if f.cancels.intents[0].SubscriptionID != "sub_9" {
		t.Errorf("cancel intent names %q, want sub_9", f.cancels.intents[0].SubscriptionID)
	}
}

func TestReconcileManualGrantSupremacy(t *testing.T) {
	f := newFixture(t)
	f.profiles.Put(core.Profile{
		ID:          f.userID,
		Email:       "user@example.com",
		CustomerRef: "cus_1",
		Entitlement: entitlements.Entitlement{Tier: entitlements.TierAnnual, Source: entitlements.SourceBilling},
	})
	f.grants.Grant("user@example.com", "partner license")
	// Sources that would resolve lower must never be consulted on a hit.
	f.mobile.QueryErr = errors.New("must not be called")
	f.billing.Err = errors.New("must not be called")

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierLifetime || got.Source != entitlements.SourceManual {
		t.Errorf("got tier=%v source=%v, want lifetime/manual", got.Tier, got.Source)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("got %d notifications, want 1", f.notifier.count())
	}
	if f.notifier.sent[0].Template != entitlements.TemplateEliteAccess {
		t.Errorf("got template %q, want elite_access", f.notifier.sent[0].Template)
	}

	// A second call finds source already manual and stays quiet.
	if _, err := f.engine.Reconcile(context.Background(), f.userID); err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}
	if f.notifier.count() != 1 {
		t.Errorf("got %d notifications after second call, want still 1", f.notifier.count())
	}
}

func TestReconcileTrialingAnnual(t *testing.T) {
	f := newFixture(t)
	trialEnd := time.Now().Add(10 * 24 * time.Hour)
	f.billing.AddSubscription("cus_1", entitlements.BillingSubscription{
		ID: "sub_1", Status: entitlements.SubStatusTrialing,
		PriceIDs: []string{"price_annual"}, CurrentPeriodEnd: trialEnd, TrialEnd: &trialEnd,
	})

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierAnnual {
		t.Errorf("got tier %v, want annual", got.Tier)
	}
	if !got.InTrial(time.Now()) {
		t.Error("expected entitlement in trial")
	}
	if f.notifier.count() != 1 {
		t.Fatalf("got %d notifications, want 1", f.notifier.count())
	}
	if f.notifier.sent[0].Template != entitlements.TemplateWelcomeTrial {
		t.Errorf("got template %q, want welcome_trial", f.notifier.sent[0].Template)
	}
}

func TestReconcilePersistFailureSuppressesNotification(t *testing.T) {
	f := newFixture(t)
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "monthly",
		ExpiresAt:        time.Now().Add(24 * time.Hour),
		ValidationStatus: entitlements.ValidationValid,
		Active:           true,
	})
	f.profiles.SetErr = errors.New("write refused")

	_, err := f.engine.Reconcile(context.Background(), f.userID)
	if !errors.Is(err, core.ErrPersistFailure) {
		t.Fatalf("got err %v, want ErrPersistFailure", err)
	}
	if f.notifier.count() != 0 {
		t.Errorf("got %d notifications despite failed persist, want 0", f.notifier.count())
	}
}

func TestReconcileManualRegistryFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.grants.Err = errors.New("registry down")
	f.billing.AddSubscription("cus_1", entitlements.BillingSubscription{
		ID: "sub_1", Status: entitlements.SubStatusActive,
		PriceIDs: []string{"price_monthly"}, CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierMonthly {
		t.Errorf("got tier %v, want monthly from billing fallthrough", got.Tier)
	}
}

func TestReconcileNotificationFailureDoesNotFailCall(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "monthly",
		ExpiresAt:        time.Now().Add(24 * time.Hour),
		ValidationStatus: entitlements.ValidationValid,
		Active:           true,
	})

	got, err := f.engine.Reconcile(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.Tier != entitlements.TierMonthly {
		t.Errorf("got tier %v, want monthly", got.Tier)
	}
	if !f.persisted(t).Equal(got) {
		t.Error("persist must not roll back on notification failure")
	}
}

func TestReconcilePurgesExpiredTestReceipts(t *testing.T) {
	f := newFixture(t)
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "monthly",
		ExpiresAt:        time.Now().Add(-time.Hour),
		ValidationStatus: entitlements.ValidationTest,
		Active:           true,
	})
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "monthly",
		ExpiresAt:        time.Now().Add(24 * time.Hour),
		ValidationStatus: entitlements.ValidationValid,
		Active:           true,
	})

	if _, err := f.engine.Reconcile(context.Background(), f.userID); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rows := f.mobile.Receipts(f.userID)
	if len(rows) != 1 {
		t.Fatalf("got %d receipt rows after purge, want 1", len(rows))
	}
	if rows[0].ValidationStatus != entitlements.ValidationValid {
		t.Errorf("wrong row survived the purge: %+v", rows[0])
	}
}

func TestInspectReadsOnly(t *testing.T) {
	f := newFixture(t)
	f.mobile.Add(f.userID, entitlements.MobileReceipt{
		SubscriptionType: "monthly",
		ExpiresAt:        time.Now().Add(24 * time.Hour),
		ValidationStatus: entitlements.ValidationValid,
		Active:           true,
	})
	f.billing.AddSubscription("cus_1", entitlements.BillingSubscription{
		ID: "sub_1", Status: entitlements.SubStatusActive,
		PriceIDs: []string{"price_annual"}, CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour),
	})

	report, err := f.engine.Inspect(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if report.Mobile.Entitlement.Tier != entitlements.TierMonthly {
		t.Errorf("mobile report tier %v, want monthly", report.Mobile.Entitlement.Tier)
	}
	if report.Billing.Entitlement.Tier != entitlements.TierAnnual {
		t.Errorf("billing report tier %v, want annual", report.Billing.Entitlement.Tier)
	}
	if report.Resolved.Tier != entitlements.TierAnnual {
		t.Errorf("resolved tier %v, want annual", report.Resolved.Tier)
	}
	if f.notifier.count() != 0 {
		t.Errorf("Inspect sent %d notifications, want 0", f.notifier.count())
	}
	if f.persisted(t).Tier != entitlements.TierNone {
		t.Error("Inspect mutated the persisted entitlement")
	}
	if f.profiles.SetCalls != 0 {
		t.Errorf("Inspect issued %d writes, want 0", f.profiles.SetCalls)
	}
}

func TestInspectReportsDegradedSources(t *testing.T) {
	f := newFixture(t)
	f.grants.Err = errors.New("registry down")
	f.billing.Err = errors.New("mirror down")

	report, err := f.engine.Inspect(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !report.Manual.Degraded {
		t.Error("manual report should be marked degraded")
	}
	if !report.Billing.Degraded {
		t.Error("billing report should be marked degraded")
	}
	if report.Resolved.Tier != entitlements.TierNone {
		t.Errorf("resolved tier %v, want none", report.Resolved.Tier)
	}
}
