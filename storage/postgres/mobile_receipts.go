package pgstore

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/subkit/entitlements"
)

// MobileStore reads the in-app-purchase ledger and removes expired test rows.
type MobileStore struct {
	pg     *pgxpool.Pool
	schema string
	now    func() time.Time
}

func NewMobileStore(pg *pgxpool.Pool, schema string) *MobileStore {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = defaultSchema
	}
	return &MobileStore{pg: pg, schema: s, now: time.Now}
}

func (s *MobileStore) table() string { return s.schema + ".mobile_receipts" }

// PurgeExpiredTest deletes expired sandbox receipts. Test receipts are
// short-lived and accumulate quickly under receipt re-validation, so they are
// swept on every read.
func (s *MobileStore) PurgeExpiredTest(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pg.Exec(ctx, `DELETE FROM `+s.table()+`
		WHERE user_id=$1 AND validation_status='test' AND expires_at <= $2`,
		userID, s.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *MobileStore) Query(ctx context.Context, userID uuid.UUID) (entitlements.Entitlement, error) {
	now := s.now()
	rows, err := s.pg.Query(ctx, `SELECT subscription_type, expires_at, validation_status, is_active
		FROM `+s.table()+`
		WHERE user_id=$1 AND is_active AND validation_status IN ('valid','test') AND expires_at > $2
		ORDER BY expires_at DESC`, userID, now)
	if err != nil {
		return entitlements.Entitlement{}, err
	}
	defer rows.Close()

	var receipts []entitlements.MobileReceipt
	for rows.Next() {
		var r entitlements.MobileReceipt
		if err := rows.Scan(&r.SubscriptionType, &r.ExpiresAt, &r.ValidationStatus, &r.Active); err != nil {
			return entitlements.Entitlement{}, err
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return entitlements.Entitlement{}, err
	}
	return entitlements.ResolveMobile(receipts, now), nil
}
