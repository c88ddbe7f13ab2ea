// Package entitlement decides what a user may do and mutates premium state.
package entitlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/ledger"
	"github.com/ykvlv/redeem-bot/internal/store"
)

// Redeemer claims a key for a user. *ledger.Ledger implements it.
type Redeemer interface {
	Redeem(ctx context.Context, token string, userID int64) (ledger.Outcome, error)
}

// DenyReason explains why a flow is closed for a user.
type DenyReason int

const (
	ReasonNone DenyReason = iota
	ReasonBanned
	ReasonFreeLimit
)

func (r DenyReason) String() string {
	switch r {
	case ReasonBanned:
		return "banned"
	case ReasonFreeLimit:
		return "free-limit-reached"
	default:
		return ""
	}
}

// Decision is the result of an entitlement gate.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var allowed = Decision{Allowed: true}

func denied(r DenyReason) Decision { return Decision{Reason: r} }

// Expired is a user whose premium was cleared by a sweep.
type Expired struct {
	UserID      int64
	DisplayName string
	Until       time.Time
}

// Engine composes the user directory and the key ledger.
type Engine struct {
	users store.UserStore
	keys  Redeemer
	log   *zap.Logger
	now   func() time.Time
}

// New creates an Engine. keys is usually a *ledger.Ledger.
func New(users store.UserStore, keys Redeemer, log *zap.Logger) *Engine {
	return &Engine{
		users: users,
		keys:  keys,
		log:   log.Named("entitlement"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// IsPremiumValid is true iff premium is set and ends strictly after now.
func (e *Engine) IsPremiumValid(u *domain.User) bool {
	return u.PremiumActive(e.now())
}

// CanEnterRedeemFlow gates the redeem-details flow. It runs when the flow is
// entered; the submission itself is not re-gated.
func (e *Engine) CanEnterRedeemFlow(u *domain.User) Decision {
	if u.Banned {
		return denied(ReasonBanned)
	}
	if !e.IsPremiumValid(u) && u.FreeRedeemUsed {
		return denied(ReasonFreeLimit)
	}
	return allowed
}

// FinalizeRedeemSubmission books an accepted submission. Premium users have
// unlimited submissions; everyone else spends the free one.
func (e *Engine) FinalizeRedeemSubmission(ctx context.Context, u *domain.User) error {
	if e.IsPremiumValid(u) {
		return nil
	}
	if err := e.users.SetFreeRedeemUsed(ctx, u.ID, true); err != nil {
		return fmt.Errorf("mark free redeem used: %w", err)
	}
	u.FreeRedeemUsed = true
	return nil
}

// RedeemKey exchanges token for premium. On success premium is set to
// now + days (grants replace, they do not stack) and the free flag is reset.
func (e *Engine) RedeemKey(ctx context.Context, u *domain.User, token string) (ledger.Outcome, error) {
	out, err := e.keys.Redeem(ctx, token, u.ID)
	if err != nil {
		return ledger.Outcome{}, err
	}
	if out.Status != ledger.Granted {
		return out, nil
	}

	until := e.now().Add(time.Duration(out.Days) * 24 * time.Hour)
	if err := e.users.GrantPremium(ctx, u.ID, until); err != nil {
		// The key is already burnt at this point; leave a trace for manual repair.
		e.log.Error("grant after claim failed",
			zap.Int64("user_id", u.ID),
			zap.Int("days", out.Days),
			zap.Error(err),
		)
		return ledger.Outcome{}, fmt.Errorf("grant premium: %w", err)
	}
	u.PremiumUntil = &until
	u.FreeRedeemUsed = false
	e.log.Info("premium granted", zap.Int64("user_id", u.ID), zap.Int("days", out.Days), zap.Time("until", until))
	return out, nil
}

// SweepExpired clears premium that ended at or before now and returns the
// users this call cleared. Users cleared earlier are not returned again.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]Expired, error) {
	users, err := e.users.ListPremium(ctx)
	if err != nil {
		return nil, fmt.Errorf("list premium: %w", err)
	}

	var out []Expired
	for _, u := range users {
		if u.PremiumUntil == nil || u.PremiumUntil.After(now) {
			continue
		}
		cleared, err := e.users.ExpirePremium(ctx, u.ID, now)
		if err != nil {
			e.log.Error("expire premium failed", zap.Int64("user_id", u.ID), zap.Error(err))
			continue
		}
		if !cleared {
			// Re-granted or swept concurrently.
			continue
		}
		out = append(out, Expired{UserID: u.ID, DisplayName: u.DisplayName, Until: *u.PremiumUntil})
	}
	return out, nil
}

// Summary describes a user's entitlement for display.
type Summary struct {
	Premium       bool
	Until         time.Time
	Remaining     time.Duration
	FreeAvailable bool
}

// Status summarises u's entitlement at the current time.
func (e *Engine) Status(u *domain.User) Summary {
	now := e.now()
	if u.PremiumActive(now) {
		return Summary{
			Premium:       true,
			Until:         *u.PremiumUntil,
			Remaining:     u.PremiumUntil.Sub(now),
			FreeAvailable: true,
		}
	}
	return Summary{FreeAvailable: !u.FreeRedeemUsed}
}
