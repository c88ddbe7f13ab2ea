package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ykvlv/redeem-bot/internal/domain"
)

// PostgresRepo implements Repo on top of a pgx connection pool.
type PostgresRepo struct{ pool *pgxpool.Pool }

var _ Repo = (*PostgresRepo)(nil)

// OpenPostgres connects to dsn, pings the server and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := applyPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &PostgresRepo{pool: pool}, nil
}

// applyPostgresMigrations records applied files in schema_migrations and skips them on later starts.
func applyPostgresMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return err
	}

	files, err := migrationFiles("postgres")
	if err != nil {
		return err
	}
	for _, f := range files {
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, f.name,
		).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, f.sql); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migration %s failed: %w", f.name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, f.name); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the pool.
func (r *PostgresRepo) Close() error {
	r.pool.Close()
	return nil
}

// --- Users ---

const pgUserColumns = `user_id, username, banned, premium_until, free_redeem_used, created_at`

func scanPgUser(s rowScanner) (*domain.User, error) {
	var u domain.User
	if err := s.Scan(&u.ID, &u.DisplayName, &u.Banned, &u.PremiumUntil, &u.FreeRedeemUsed, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.PremiumUntil = utcPtr(u.PremiumUntil)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// UpsertUser creates a user or refreshes its display name.
func (r *PostgresRepo) UpsertUser(ctx context.Context, id int64, displayName string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username`,
		id, displayName,
	)
	return err
}

// GetUser returns a user by id or ErrNotFound.
func (r *PostgresRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanPgUser(r.pool.QueryRow(ctx,
		`SELECT `+pgUserColumns+` FROM users WHERE user_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// SetBanned sets the ban flag, creating the user if needed.
func (r *PostgresRepo) SetBanned(ctx context.Context, id int64, banned bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (user_id, username, banned, created_at)
		VALUES ($1, '', $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			banned = EXCLUDED.banned`,
		id, banned,
	)
	return err
}

// SetPremiumUntil overwrites premium_until; nil clears it.
func (r *PostgresRepo) SetPremiumUntil(ctx context.Context, id int64, until *time.Time) error {
	return r.updateOne(ctx, `UPDATE users SET premium_until = $1 WHERE user_id = $2`, utcPtr(until), id)
}

// SetFreeRedeemUsed sets the free redeem flag.
func (r *PostgresRepo) SetFreeRedeemUsed(ctx context.Context, id int64, used bool) error {
	return r.updateOne(ctx, `UPDATE users SET free_redeem_used = $1 WHERE user_id = $2`, used, id)
}

// GrantPremium sets premium_until and resets the free redeem flag.
func (r *PostgresRepo) GrantPremium(ctx context.Context, id int64, until time.Time) error {
	return r.updateOne(ctx, `
		UPDATE users
		SET premium_until = $1, free_redeem_used = FALSE
		WHERE user_id = $2`,
		until.UTC(), id,
	)
}

// ExpirePremium clears premium that ended at or before now and reports
// whether this call cleared it.
func (r *PostgresRepo) ExpirePremium(ctx context.Context, id int64, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET premium_until = NULL
		WHERE user_id = $1
		  AND premium_until IS NOT NULL
		  AND premium_until <= $2`,
		id, now.UTC(),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListUserIDs returns every known user id.
func (r *PostgresRepo) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPremium returns users with premium_until set.
func (r *PostgresRepo) ListPremium(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pgUserColumns+`
		FROM users
		WHERE premium_until IS NOT NULL
		ORDER BY premium_until ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanPgUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// CountUsers returns the number of known users.
func (r *PostgresRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// updateOne runs an UPDATE and maps zero affected rows to ErrNotFound.
func (r *PostgresRepo) updateOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Keys ---

// InsertKey stores a new key or returns ErrDuplicate.
func (r *PostgresRepo) InsertKey(ctx context.Context, k domain.Key) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO redeem_keys (token, days, created_at, created_by, used)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (token) DO NOTHING`,
		k.Token, k.Days, k.CreatedAt.UTC(), k.CreatedBy,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetKey returns a key by token or ErrNotFound.
func (r *PostgresRepo) GetKey(ctx context.Context, token string) (*domain.Key, error) {
	var k domain.Key
	err := r.pool.QueryRow(ctx, `
		SELECT token, days, created_at, created_by, used, used_by, used_at
		FROM redeem_keys
		WHERE token = $1`,
		token,
	).Scan(&k.Token, &k.Days, &k.CreatedAt, &k.CreatedBy, &k.Used, &k.UsedBy, &k.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	k.CreatedAt = k.CreatedAt.UTC()
	k.UsedAt = utcPtr(k.UsedAt)
	return &k, nil
}

// ClaimKey relies on the row lock taken by UPDATE: a concurrent claimer
// re-evaluates "used = FALSE" after the winner commits and matches nothing.
func (r *PostgresRepo) ClaimKey(ctx context.Context, token string, by int64, at time.Time) (int, error) {
	var days int
	err := r.pool.QueryRow(ctx, `
		UPDATE redeem_keys
		SET used = TRUE, used_by = $1, used_at = $2
		WHERE token = $3 AND used = FALSE
		RETURNING days`,
		by, at.UTC(), token,
	).Scan(&days)
	if err == nil {
		return days, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM redeem_keys WHERE token = $1)`, token,
	).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrKeyUsed
}

// CountKeys returns issued and used key counts.
func (r *PostgresRepo) CountKeys(ctx context.Context) (issued, used int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE used)
		FROM redeem_keys`,
	).Scan(&issued, &used)
	return issued, used, err
}

// --- Conversation states ---

// SetState stores the pending expectation; ExpectNone clears it.
func (r *PostgresRepo) SetState(ctx context.Context, userID int64, e domain.Expectation) error {
	if e == domain.ExpectNone {
		_, err := r.pool.Exec(ctx, `DELETE FROM states WHERE user_id = $1`, userID)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO states (user_id, expecting)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			expecting = EXCLUDED.expecting`,
		userID, e.Tag(),
	)
	return err
}

// TakeState reads and clears the pending expectation in one statement.
func (r *PostgresRepo) TakeState(ctx context.Context, userID int64) (domain.Expectation, error) {
	var tag string
	err := r.pool.QueryRow(ctx,
		`DELETE FROM states WHERE user_id = $1 RETURNING expecting`, userID,
	).Scan(&tag)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExpectNone, nil
	}
	if err != nil {
		return domain.ExpectNone, err
	}
	return domain.ParseExpectation(tag), nil
}
