package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/subkit/entitlements"
)

// BillingStore reads the mirrored charge and subscription tables kept in sync
// from the billing provider by an external replication job. The mirror can
// lag true provider state; the engine's regression guard accounts for that.
type BillingStore struct {
	pg      *pgxpool.Pool
	schema  string
	catalog entitlements.PlanCatalog
	now     func() time.Time
}

func NewBillingStore(pg *pgxpool.Pool, schema string, catalog entitlements.PlanCatalog) *BillingStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = defaultSchema
	}
	return &BillingStore{pg: pg, schema: s, catalog: catalog, now: time.Now}
}

func (s *BillingStore) chargesTable() string       { return s.schema + ".billing_charges" }
func (s *BillingStore) subscriptionsTable() string { return s.schema + ".billing_subscriptions" }

// Query normalizes the mirror rows for one customer. The decision logic is
// pure (entitlements.ResolveBilling); this method only fetches rows.
func (s *BillingStore) Query(ctx context.Context, customerRef string) (entitlements.Entitlement, *entitlements.CancelIntent, error) {
	charges, err := s.charges(ctx, customerRef)
	if err != nil {
		return entitlements.Entitlement{}, nil, err
	}
	subs, err := s.subscriptions(ctx, customerRef)
	if err != nil {
		return entitlements.Entitlement{}, nil, err
	}
	ent, intent := entitlements.ResolveBilling(charges, subs, s.catalog, customerRef, s.now())
	return ent, intent, nil
}

func (s *BillingStore) charges(ctx context.Context, customerRef string) ([]entitlements.BillingCharge, error) {
	rows, err := s.pg.Query(ctx, `SELECT id, price_id, succeeded, refunded, disputed, created_at
		FROM `+s.chargesTable()+` WHERE customer_ref=$1`, customerRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entitlements.BillingCharge
	for rows.Next() {
		var c entitlements.BillingCharge
		if err := rows.Scan(&c.ID, &c.PriceID, &c.Succeeded, &c.Refunded, &c.Disputed, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *BillingStore) subscriptions(ctx context.Context, customerRef string) ([]entitlements.BillingSubscription, error) {
	rows, err := s.pg.Query(ctx, `SELECT id, status, price_ids, current_period_end, trial_end
		FROM `+s.subscriptionsTable()+` WHERE customer_ref=$1`, customerRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entitlements.BillingSubscription
	for rows.Next() {
		var (
			sub       entitlements.BillingSubscription
			periodEnd *time.Time
		)
		if err := rows.Scan(&sub.ID, &sub.Status, &sub.PriceIDs, &periodEnd, &sub.TrialEnd); err != nil {
			return nil, err
		}
		if periodEnd != nil {
			sub.CurrentPeriodEnd = *periodEnd
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
