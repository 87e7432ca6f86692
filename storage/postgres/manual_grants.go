package pgstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/subkit/core"
)

// GrantRegistry reads the manual-grant table. The table is written by support
// tooling only; this store never mutates it.
type GrantRegistry struct {
	pg     *pgxpool.Pool
	schema string
}

func NewGrantRegistry(pg *pgxpool.Pool, schema string) *GrantRegistry {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = defaultSchema
	}
	return &GrantRegistry{pg: pg, schema: s}
}

func (r *GrantRegistry) table() string { return r.schema + ".manual_grants" }

func (r *GrantRegistry) Check(ctx context.Context, email string) (core.ManualGrant, error) {
	var (
		granted bool
		notes   *string
	)
	err := r.pg.QueryRow(ctx, `SELECT has_grant, notes FROM `+r.table()+`
		WHERE lower(email)=lower($1) LIMIT 1`, email).Scan(&granted, &notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ManualGrant{}, nil
	}
	if err != nil {
		return core.ManualGrant{}, err
	}
	g := core.ManualGrant{Granted: granted}
	if notes != nil {
		g.Notes = *notes
	}
	return g, nil
}
