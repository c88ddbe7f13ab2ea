package store

import (
	"context"
	"errors"
	"time"

	"github.com/ykvlv/redeem-bot/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when inserting a key whose token already exists.
	ErrDuplicate = errors.New("duplicate")
	// ErrKeyUsed is returned by ClaimKey when the key was redeemed before.
	ErrKeyUsed = errors.New("key already used")
)

// UserStore is the user directory.
type UserStore interface {
	// UpsertUser inserts a user if absent, otherwise refreshes only the display name.
	UpsertUser(ctx context.Context, id int64, displayName string) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	// SetBanned creates the row when the user was never seen.
	SetBanned(ctx context.Context, id int64, banned bool) error
	SetPremiumUntil(ctx context.Context, id int64, until *time.Time) error
	SetFreeRedeemUsed(ctx context.Context, id int64, used bool) error
	// GrantPremium sets premium_until and clears free_redeem_used in one statement.
	GrantPremium(ctx context.Context, id int64, until time.Time) error
	// ExpirePremium clears premium_until if it is <= now and reports whether
	// this call performed the clear.
	ExpirePremium(ctx context.Context, id int64, now time.Time) (bool, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	// ListPremium returns users with premium_until set, lapsed or not.
	ListPremium(ctx context.Context) ([]domain.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// KeyStore is the redemption key ledger storage.
type KeyStore interface {
	// InsertKey returns ErrDuplicate if the token is taken.
	InsertKey(ctx context.Context, k domain.Key) error
	GetKey(ctx context.Context, token string) (*domain.Key, error)
	// ClaimKey atomically flips used from false to true and returns the grant days.
	// It returns ErrNotFound for unknown tokens and ErrKeyUsed if the key was claimed before.
	ClaimKey(ctx context.Context, token string, by int64, at time.Time) (int, error)
	CountKeys(ctx context.Context) (issued, used int, err error)
}

// StateStore keeps the single pending expectation per user.
type StateStore interface {
	// SetState overwrites any pending expectation. ExpectNone clears it.
	SetState(ctx context.Context, userID int64, e domain.Expectation) error
	// TakeState atomically reads and removes the pending expectation.
	TakeState(ctx context.Context, userID int64) (domain.Expectation, error)
}

// Repo is everything the bot needs from persistent storage.
type Repo interface {
	UserStore
	KeyStore
	StateStore
	Close() error
}
