package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/subkit/entitlements"
)

// Profile is the user record whose entitlement fields this engine owns.
// Everything else on the row is created and maintained elsewhere; the engine
// only ever rewrites the entitlement columns.
type Profile struct {
	ID          uuid.UUID
	Email       string
	FirstName   string
	LastName    string
	CustomerRef string
	Entitlement entitlements.Entitlement
	CheckedAt   *time.Time
}

// ProfileStore reads and writes one profile record per user.
type ProfileStore interface {
	Get(ctx context.Context, id uuid.UUID) (Profile, error)
	// SetEntitlement replaces the entitlement fields in a single atomic
	// update. Writing a value identical to the stored one is a no-op from an
	// observer's standpoint.
	SetEntitlement(ctx context.Context, id uuid.UUID, ent entitlements.Entitlement, checkedAt time.Time) error
}

// StaleProfileLister is implemented by stores that can enumerate profiles due
// for a scheduled refresh.
type StaleProfileLister interface {
	StaleProfiles(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

// ManualGrant is the raw manual-grant registry record, keyed by email.
type ManualGrant struct {
	Granted bool
	Notes   string
}

// ManualGrantRegistry is the highest-priority source. A hit short-circuits
// reconciliation entirely.
type ManualGrantRegistry interface {
	Check(ctx context.Context, email string) (ManualGrant, error)
}

// MobileSource normalizes the in-app-purchase ledger.
type MobileSource interface {
	// PurgeExpiredTest deletes expired test receipts so short-lived sandbox
	// rows cannot accumulate. It returns the number of rows removed.
	PurgeExpiredTest(ctx context.Context, userID uuid.UUID) (int64, error)
	Query(ctx context.Context, userID uuid.UUID) (entitlements.Entitlement, error)
}

// BillingSource normalizes the recurring-billing mirror. The read is pure;
// a conflict between a lifetime purchase and a live recurring subscription
// surfaces as a returned intent, never as an in-adapter mutation.
type BillingSource interface {
	Query(ctx context.Context, customerRef string) (entitlements.Entitlement, *entitlements.CancelIntent, error)
}

// CancelApplier executes a cancellation intent. Implementations are expected
// to be fire-and-forget from the engine's standpoint.
type CancelApplier interface {
	Apply(ctx context.Context, intent entitlements.CancelIntent) error
}

// BillingProvider is the upstream billing API. Only the cancel worker talks
// to it.
type BillingProvider interface {
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Notification carries a template id plus the structured data the external
// renderer needs. No HTML is built here.
type Notification struct {
	Email          string
	FirstName      string
	Template       entitlements.TemplateID
	PreviousTier   entitlements.Tier
	NewTier        entitlements.Tier
	ExpiresAt      *time.Time
	TrialExpiresAt *time.Time
}

// Notifier dispatches one notification. Failures are logged by the caller and
// never unwind an already-persisted entitlement.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
