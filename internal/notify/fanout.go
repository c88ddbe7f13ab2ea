// Package notify delivers one message to many recipients on a best-effort basis.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Format is a rendering hint for the transport.
type Format int

const (
	Plain Format = iota
	Markdown
)

// Sender delivers a single message. The Telegram router implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, format Format) error
}

// Recipients enumerates every known user. store.UserStore implements it.
type Recipients interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

const defaultWorkers = 8

// Fanout sends to admins and to all users. A failed recipient is logged and
// skipped; it never fails the batch or the caller.
type Fanout struct {
	sender  Sender
	users   Recipients
	admins  []int64
	workers int
	log     *zap.Logger
}

// New creates a Fanout that sends on at most workers goroutines.
func New(sender Sender, users Recipients, admins []int64, workers int, log *zap.Logger) *Fanout {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Fanout{
		sender:  sender,
		users:   users,
		admins:  append([]int64(nil), admins...),
		workers: workers,
		log:     log.Named("notify"),
	}
}

// Admins returns the configured admin ids.
func (f *Fanout) Admins() []int64 {
	return append([]int64(nil), f.admins...)
}

// NotifyAdmins delivers text to every admin and returns how many received it.
func (f *Fanout) NotifyAdmins(ctx context.Context, text string) int {
	return f.deliver(ctx, f.admins, text, Plain)
}

// Broadcast delivers text to every known user and returns the delivered count.
// It fails only if the recipient list cannot be read.
func (f *Fanout) Broadcast(ctx context.Context, text string) (int, error) {
	ids, err := f.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recipients: %w", err)
	}
	n := f.deliver(ctx, ids, text, Plain)
	f.log.Info("broadcast done", zap.Int("recipients", len(ids)), zap.Int("delivered", n))
	return n, nil
}

// Direct sends a single message and returns the transport error, if any.
func (f *Fanout) Direct(ctx context.Context, chatID int64, text string) error {
	return f.sender.SendMessage(ctx, chatID, text, Plain)
}

// deliver sends to ids on a bounded worker pool. Order between recipients is not kept.
func (f *Fanout) deliver(ctx context.Context, ids []int64, text string, format Format) int {
	var (
		delivered atomic.Int64
		wg        sync.WaitGroup
		sem       = make(chan struct{}, f.workers)
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := f.sender.SendMessage(ctx, id, text, format); err != nil {
				f.log.Warn("delivery failed", zap.Int64("chat_id", id), zap.Error(err))
				return
			}
			delivered.Add(1)
		}(id)
	}
	wg.Wait()
	return int(delivered.Load())
}
