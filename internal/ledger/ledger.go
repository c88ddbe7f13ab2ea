// Package ledger issues and redeems single-use premium keys.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/store"
)

// Status is the result class of a redemption attempt.
type Status int

const (
	NotFound Status = iota
	AlreadyUsed
	Granted
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case AlreadyUsed:
		return "already_used"
	default:
		return "not_found"
	}
}

// Outcome of Redeem. Days is set only when Status is Granted.
type Outcome struct {
	Status Status
	Days   int
}

var (
	ErrInvalidDays = errors.New("grant days must be positive")
	// ErrTokenSpace means every generated token collided with an existing one.
	ErrTokenSpace = errors.New("could not generate a unique token")
)

const maxIssueAttempts = 5

// Ledger is the redemption key ledger.
type Ledger struct {
	keys     store.KeyStore
	log      *zap.Logger
	generate func() (string, error)
	now      func() time.Time
}

// New creates a Ledger backed by keys.
func New(keys store.KeyStore, log *zap.Logger) *Ledger {
	return &Ledger{
		keys:     keys,
		log:      log.Named("ledger"),
		generate: domain.GenerateToken,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Issue stores a new unused key worth days of premium.
// Token collisions are retried with a fresh token, never overwritten.
func (l *Ledger) Issue(ctx context.Context, days int, createdBy int64) (domain.Key, error) {
	if days <= 0 {
		return domain.Key{}, ErrInvalidDays
	}
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		token, err := l.generate()
		if err != nil {
			return domain.Key{}, err
		}
		k := domain.Key{
			Token:     token,
			Days:      days,
			CreatedAt: l.now(),
			CreatedBy: createdBy,
		}
		err = l.keys.InsertKey(ctx, k)
		if err == nil {
			l.log.Info("key issued",
				zap.Int("days", days),
				zap.Int64("created_by", createdBy),
				zap.Int("attempt", attempt),
			)
			return k, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return domain.Key{}, fmt.Errorf("insert key: %w", err)
		}
		l.log.Warn("token collision, retrying", zap.Int("attempt", attempt))
	}
	return domain.Key{}, ErrTokenSpace
}

// Redeem claims token for userID. Exactly one caller can ever observe
// Granted for a given token; everyone after it gets AlreadyUsed.
func (l *Ledger) Redeem(ctx context.Context, token string, userID int64) (Outcome, error) {
	token = domain.NormalizeToken(token)
	if token == "" {
		return Outcome{Status: NotFound}, nil
	}
	days, err := l.keys.ClaimKey(ctx, token, userID, l.now())
	switch {
	case err == nil:
		return Outcome{Status: Granted, Days: days}, nil
	case errors.Is(err, store.ErrNotFound):
		return Outcome{Status: NotFound}, nil
	case errors.Is(err, store.ErrKeyUsed):
		return Outcome{Status: AlreadyUsed}, nil
	default:
		return Outcome{}, fmt.Errorf("claim key: %w", err)
	}
}

// Lookup returns a key by token, or store.ErrNotFound.
func (l *Ledger) Lookup(ctx context.Context, token string) (*domain.Key, error) {
	return l.keys.GetKey(ctx, domain.NormalizeToken(token))
}

// Stats summarises the ledger.
type Stats struct {
	Issued int
	Used   int
}

// Stats returns how many keys were issued and how many are used.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	issued, used, err := l.keys.CountKeys(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Issued: issued, Used: used}, nil
}
