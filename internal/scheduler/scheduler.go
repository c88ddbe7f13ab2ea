package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/entitlement"
)

// Sweeper clears lapsed premium. entitlement.Engine implements it.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) ([]entitlement.Expired, error)
}

// Notifier alerts admins. notify.Fanout implements it.
type Notifier interface {
	NotifyAdmins(ctx context.Context, text string) int
}

// DefaultInterval is used when New receives a non-positive interval.
const DefaultInterval = 30 * time.Minute

// Scheduler periodically sweeps expired premium and tells admins about it.
type Scheduler struct {
	sweeper  Sweeper
	notifier Notifier
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// New creates a Scheduler; a non-positive interval means DefaultInterval.
func New(sweeper Sweeper, notifier Notifier, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		sweeper:  sweeper,
		notifier: notifier,
		log:      log.Named("scheduler"),
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one sweep. A failure or panic ends only this tick.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sweep panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	expired, err := s.sweeper.SweepExpired(ctx, s.now())
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		return
	}
	for _, e := range expired {
		s.log.Info("premium expired", zap.Int64("user_id", e.UserID), zap.Time("until", e.Until))
		s.notifier.NotifyAdmins(ctx, ExpiryMessage(e))
	}
}

// ExpiryMessage is the admin alert for a swept user.
func ExpiryMessage(e entitlement.Expired) string {
	return fmt.Sprintf("Premium expired for %s.", domain.Mention(e.UserID, e.DisplayName))
}
