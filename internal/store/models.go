package store

import (
	"database/sql"
	"time"

	"github.com/ykvlv/redeem-bot/internal/domain"
)

func toNullInt64(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func fromNullInt64(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0).UTC()
	return &t
}

func nullID(ns sql.NullInt64) *int64 {
	if !ns.Valid {
		return nil
	}
	v := ns.Int64
	return &v
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rowScanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteUserColumns = `user_id, username, banned, premium_until, free_redeem_used, created_at`

func scanSQLiteUser(s rowScanner) (*domain.User, error) {
	var (
		id        int64
		name      string
		banned    int
		until     sql.NullInt64
		freeUsed  int
		createdAt int64
	)
	if err := s.Scan(&id, &name, &banned, &until, &freeUsed, &createdAt); err != nil {
		return nil, err
	}
	return &domain.User{
		ID:             id,
		DisplayName:    name,
		Banned:         banned != 0,
		PremiumUntil:   fromNullInt64(until),
		FreeRedeemUsed: freeUsed != 0,
		CreatedAt:      time.Unix(createdAt, 0).UTC(),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
