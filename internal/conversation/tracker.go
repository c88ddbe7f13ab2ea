// Package conversation tracks the single pending expectation of each user.
package conversation

import (
	"context"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/store"
)

// Tracker remembers how the next free-text message of a user must be read.
type Tracker struct {
	states store.StateStore
}

// New creates a Tracker backed by states.
func New(states store.StateStore) *Tracker {
	return &Tracker{states: states}
}

// Expect overwrites any pending expectation of userID. ExpectNone clears it.
func (t *Tracker) Expect(ctx context.Context, userID int64, e domain.Expectation) error {
	return t.states.SetState(ctx, userID, e)
}

// Take returns the pending expectation and clears it in the same store operation,
// so two racing messages from one user cannot both consume it.
func (t *Tracker) Take(ctx context.Context, userID int64) (domain.Expectation, error) {
	return t.states.TakeState(ctx, userID)
}

// Cancel drops a pending expectation and reports whether one existed.
func (t *Tracker) Cancel(ctx context.Context, userID int64) (bool, error) {
	e, err := t.states.TakeState(ctx, userID)
	if err != nil {
		return false, err
	}
	return e != domain.ExpectNone, nil
}
