// Package memorystore holds in-memory implementations of the engine's
// collaborator interfaces. They back the unit tests and work as single-node
// stand-ins when no Postgres is wired up.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/open-rails/subkit/core"
	"github.com/open-rails/subkit/entitlements"
)

// ProfileStore is a map-backed core.ProfileStore. The exported error fields
// inject failures in tests.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]core.Profile

	GetErr   error
	SetErr   error
	SetCalls int
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[uuid.UUID]core.Profile)}
}

// Put seeds or replaces a profile record.
func (s *ProfileStore) Put(p core.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

func (s *ProfileStore) Get(ctx context.Context, id uuid.UUID) (core.Profile, error) {
	if s.GetErr != nil {
		return core.Profile{}, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return core.Profile{}, core.ErrProfileNotFound
	}
	return p, nil
}

func (s *ProfileStore) SetEntitlement(ctx context.Context, id uuid.UUID, ent entitlements.Entitlement, checkedAt time.Time) error {
	if s.SetErr != nil {
		return s.SetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls++
	p, ok := s.profiles[id]
	if !ok {
		return core.ErrProfileNotFound
	}
	p.Entitlement = ent
	p.CheckedAt = &checkedAt
	s.profiles[id] = p
	return nil
}

func (s *ProfileStore) StaleProfiles(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for id, p := range s.profiles {
		if len(out) >= limit {
			break
		}
		if p.CheckedAt == nil || p.CheckedAt.Before(before) {
			out = append(out, id)
		}
	}
	return out, nil
}

// GrantRegistry is a map-backed core.ManualGrantRegistry keyed by email.
type GrantRegistry struct {
	mu     sync.Mutex
	grants map[string]core.ManualGrant

	Err error
}

func NewGrantRegistry() *GrantRegistry {
	return &GrantRegistry{grants: make(map[string]core.ManualGrant)}
}

func (r *GrantRegistry) Grant(email, notes string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[email] = core.ManualGrant{Granted: true, Notes: notes}
}

func (r *GrantRegistry) Check(ctx context.Context, email string) (core.ManualGrant, error) {
	if r.Err != nil {
		return core.ManualGrant{}, r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants[email], nil
}

// MobileStore is a map-backed core.MobileSource.
type MobileStore struct {
	mu       sync.Mutex
	receipts map[uuid.UUID][]entitlements.MobileReceipt

	QueryErr error
	PurgeErr error
	Now      func() time.Time
}

func NewMobileStore() *MobileStore {
	return &MobileStore{receipts: make(map[uuid.UUID][]entitlements.MobileReceipt), Now: time.Now}
}

func (s *MobileStore) Add(userID uuid.UUID, r entitlements.MobileReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[userID] = append(s.receipts[userID], r)
}

// Receipts returns the current rows for a user, for assertions on purging.
func (s *MobileStore) Receipts(userID uuid.UUID) []entitlements.MobileReceipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entitlements.MobileReceipt, len(s.receipts[userID]))
	copy(out, s.receipts[userID])
	return out
}

func (s *MobileStore) PurgeExpiredTest(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.PurgeErr != nil {
		return 0, s.PurgeErr
	}
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.receipts[userID][:0]
	var removed int64
	for _, r := range s.receipts[userID] {
		if r.ValidationStatus == entitlements.ValidationTest && !r.ExpiresAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.receipts[userID] = kept
	return removed, nil
}

func (s *MobileStore) Query(ctx context.Context, userID uuid.UUID) (entitlements.Entitlement, error) {
	if s.QueryErr != nil {
		return entitlements.Entitlement{}, s.QueryErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return entitlements.ResolveMobile(s.receipts[userID], s.Now()), nil
}

// BillingStore is a map-backed core.BillingSource over mirrored charge and
// subscription rows.
type BillingStore struct {
	mu      sync.Mutex
	charges map[string][]entitlements.BillingCharge
	subs    map[string][]entitlements.BillingSubscription

	Catalog entitlements.PlanCatalog
	Err     error
	Now     func() time.Time
}

func NewBillingStore(catalog entitlements.PlanCatalog) *BillingStore {
	return &BillingStore{
		charges: make(map[string][]entitlements.BillingCharge),
		subs:    make(map[string][]entitlements.BillingSubscription),
		Catalog: catalog,
		Now:     time.Now,
	}
}

func (s *BillingStore) AddCharge(customerRef string, c entitlements.BillingCharge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charges[customerRef] = append(s.charges[customerRef], c)
}

func (s *BillingStore) AddSubscription(customerRef string, sub entitlements.BillingSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[customerRef] = append(s.subs[customerRef], sub)
}

func (s *BillingStore) Query(ctx context.Context, customerRef string) (entitlements.Entitlement, *entitlements.CancelIntent, error) {
	if s.Err != nil {
		return entitlements.Entitlement{}, nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, intent := entitlements.ResolveBilling(s.charges[customerRef], s.subs[customerRef], s.Catalog, customerRef, s.Now())
	return ent, intent, nil
}
