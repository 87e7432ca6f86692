// Package pgstore implements the engine's collaborator interfaces against
// Postgres.
package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/subkit/core"
	"github.com/open-rails/subkit/entitlements"
)

const defaultSchema = "app"

// ProfileStore reads and writes the entitlement fields of profile rows.
type ProfileStore struct {
	pg     *pgxpool.Pool
	schema string
}

func NewProfileStore(pg *pgxpool.Pool, schema string) *ProfileStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = defaultSchema
	}
	return &ProfileStore{pg: pg, schema: s}
}

func (s *ProfileStore) table() string { return s.schema + ".profiles" }

func (s *ProfileStore) Get(ctx context.Context, id uuid.UUID) (core.Profile, error) {
	var (
		p         core.Profile
		firstName *string
		lastName  *string
		customer  *string
		tier      string
		source    string
		expires   *time.Time
		trial     *time.Time
	)
	err := s.pg.QueryRow(ctx, `SELECT id, email, first_name, last_name, customer_ref,
		subscription, subscription_expiration, trial_expiration, subscription_source, checked_at
		FROM `+s.table()+` WHERE id=$1 LIMIT 1`, id).
		Scan(&p.ID, &p.Email, &firstName, &lastName, &customer,
			&tier, &expires, &trial, &source, &p.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Profile{}, core.ErrProfileNotFound
	}
	if err != nil {
		return core.Profile{}, err
	}
	if firstName != nil {
		p.FirstName = *firstName
	}
	if lastName != nil {
		p.LastName = *lastName
	}
	if customer != nil {
		p.CustomerRef = *customer
	}
	p.Entitlement = entitlements.Entitlement{
		Tier:           entitlements.ParseTier(tier),
		ExpiresAt:      expires,
		TrialExpiresAt: trial,
		Source:         entitlements.Source(source),
	}.Normalize()
	return p, nil
}

// SetEntitlement rewrites all entitlement columns in one statement. Partial
// field writes are never issued.
func (s *ProfileStore) SetEntitlement(ctx context.Context, id uuid.UUID, ent entitlements.Entitlement, checkedAt time.Time) error {
	_, err := s.pg.Exec(ctx, `UPDATE `+s.table()+` SET
		subscription=$2, subscription_expiration=$3, trial_expiration=$4,
		subscription_source=$5, checked_at=$6, updated_at=NOW()
		WHERE id=$1`,
		id, ent.Tier.String(), ent.ExpiresAt, ent.TrialExpiresAt, string(ent.Source), checkedAt)
	return err
}

// StaleProfiles lists users whose last reconciliation is older than the
// cutoff, for the scheduled refresh sweep.
func (s *ProfileStore) StaleProfiles(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.pg.Query(ctx, `SELECT id FROM `+s.table()+`
		WHERE checked_at IS NULL OR checked_at < $1
		ORDER BY checked_at ASC NULLS FIRST LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
