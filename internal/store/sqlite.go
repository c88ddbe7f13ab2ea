package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ykvlv/redeem-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine. One connection also serialises the
	// conditional updates that back ClaimKey and TakeState.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// UpsertUser creates a user or refreshes its display name.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, id int64, displayName string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username`,
		id, displayName, time.Now().UTC().Unix(),
	)
	return err
}

// GetUser returns a user by id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteUserColumns+`
		FROM users
		WHERE user_id = ?`,
		id,
	)
	u, err := scanSQLiteUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// SetBanned sets the ban flag, creating the user if needed.
func (r *SQLiteRepo) SetBanned(ctx context.Context, id int64, banned bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, banned, created_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			banned = excluded.banned`,
		id, boolToInt(banned), time.Now().UTC().Unix(),
	)
	return err
}

// SetPremiumUntil overwrites premium_until; nil clears it.
func (r *SQLiteRepo) SetPremiumUntil(ctx context.Context, id int64, until *time.Time) error {
	return r.updateOne(ctx, `UPDATE users SET premium_until = ? WHERE user_id = ?`, toNullInt64(until), id)
}

// SetFreeRedeemUsed sets the free redeem flag.
func (r *SQLiteRepo) SetFreeRedeemUsed(ctx context.Context, id int64, used bool) error {
	return r.updateOne(ctx, `UPDATE users SET free_redeem_used = ? WHERE user_id = ?`, boolToInt(used), id)
}

// GrantPremium sets premium_until and resets the free redeem flag.
func (r *SQLiteRepo) GrantPremium(ctx context.Context, id int64, until time.Time) error {
	return r.updateOne(ctx, `
		UPDATE users
		SET premium_until = ?, free_redeem_used = 0
		WHERE user_id = ?`,
		until.UTC().Unix(), id,
	)
}

// ExpirePremium clears premium that ended at or before now and reports
// whether this call cleared it.
func (r *SQLiteRepo) ExpirePremium(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET premium_until = NULL
		WHERE user_id = ?
		  AND premium_until IS NOT NULL
		  AND premium_until <= ?`,
		id, now.UTC().Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListUserIDs returns every known user id.
func (r *SQLiteRepo) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListPremium returns users whose premium_until is set, ordered by premium_until ascending.
func (r *SQLiteRepo) ListPremium(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteUserColumns+`
		FROM users
		WHERE premium_until IS NOT NULL
		ORDER BY premium_until ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// CountUsers returns the number of known users.
func (r *SQLiteRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// updateOne runs a single-row UPDATE and maps "no row matched" to ErrNotFound.
func (r *SQLiteRepo) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Keys ---

// InsertKey stores a new key or returns ErrDuplicate.
func (r *SQLiteRepo) InsertKey(ctx context.Context, k domain.Key) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO redeem_keys (token, days, created_at, created_by, used)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(token) DO NOTHING`,
		k.Token, k.Days, k.CreatedAt.UTC().Unix(), k.CreatedBy,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// GetKey returns a key by token or ErrNotFound.
func (r *SQLiteRepo) GetKey(ctx context.Context, token string) (*domain.Key, error) {
	var (
		k         domain.Key
		createdAt int64
		used      int
		usedBy    sql.NullInt64
		usedAt    sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT token, days, created_at, created_by, used, used_by, used_at
		FROM redeem_keys
		WHERE token = ?`,
		token,
	).Scan(&k.Token, &k.Days, &createdAt, &k.CreatedBy, &used, &usedBy, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	k.CreatedAt = time.Unix(createdAt, 0).UTC()
	k.Used = used != 0
	k.UsedBy = nullID(usedBy)
	k.UsedAt = fromNullInt64(usedAt)
	return &k, nil
}

// ClaimKey is a compare-and-swap on the used flag: only the caller whose
// UPDATE matched the unused row gets the days back.
func (r *SQLiteRepo) ClaimKey(ctx context.Context, token string, by int64, at time.Time) (int, error) {
	var days int
	err := r.db.QueryRowContext(ctx, `
		UPDATE redeem_keys
		SET used = 1, used_by = ?, used_at = ?
		WHERE token = ? AND used = 0
		RETURNING days`,
		by, at.UTC().Unix(), token,
	).Scan(&days)
	if err == nil {
		return days, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM redeem_keys WHERE token = ?`, token).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return 0, ErrKeyUsed
}

// CountKeys returns issued and used key counts.
func (r *SQLiteRepo) CountKeys(ctx context.Context) (issued, used int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(used), 0)
		FROM redeem_keys`,
	).Scan(&issued, &used)
	return issued, used, err
}

// --- Conversation states ---

// SetState stores the pending expectation; ExpectNone clears it.
func (r *SQLiteRepo) SetState(ctx context.Context, userID int64, e domain.Expectation) error {
	if e == domain.ExpectNone {
		_, err := r.db.ExecContext(ctx, `DELETE FROM states WHERE user_id = ?`, userID)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO states (user_id, expecting)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			expecting = excluded.expecting`,
		userID, e.Tag(),
	)
	return err
}

// TakeState reads and clears the pending expectation in one statement.
func (r *SQLiteRepo) TakeState(ctx context.Context, userID int64) (domain.Expectation, error) {
	var tag string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM states
		WHERE user_id = ?
		RETURNING expecting`,
		userID,
	).Scan(&tag)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExpectNone, nil
	}
	if err != nil {
		return domain.ExpectNone, err
	}
	return domain.ParseExpectation(tag), nil
}
