package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu    sync.Mutex
	fail  map[int64]bool
	delay map[int64]time.Duration
	sent  map[int64][]string
}

func newFakeSender(fail ...int64) *fakeSender {
	s := &fakeSender{fail: map[int64]bool{}, delay: map[int64]time.Duration{}, sent: map[int64][]string{}}
	for _, id := range fail {
		s.fail[id] = true
	}
	return s
}

func (s *fakeSender) SendMessage(_ context.Context, chatID int64, text string, _ Format) error {
	s.mu.Lock()
	d := s.delay[chatID]
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[chatID] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func (s *fakeSender) got(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[chatID]
}

type staticRecipients struct {
	ids []int64
	err error
}

func (r staticRecipients) ListUserIDs(context.Context) ([]int64, error) { return r.ids, r.err }

func TestBroadcastCountsSuccesses(t *testing.T) {
	sender := newFakeSender(3)
	f := New(sender, staticRecipients{ids: []int64{1, 2, 3, 4, 5}}, nil, 2, zap.NewNop())

	n, err := f.Broadcast(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	for _, id := range []int64{1, 2, 4, 5} {
		assert.Equal(t, []string{"hello"}, sender.got(id))
	}
	assert.Empty(t, sender.got(3))
}

func TestBroadcastListFailure(t *testing.T) {
	f := New(newFakeSender(), staticRecipients{err: errors.New("db down")}, nil, 0, zap.NewNop())
	n, err := f.Broadcast(context.Background(), "x")
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestNotifyAdminsIsolatesFailures(t *testing.T) {
	sender := newFakeSender(10)
	f := New(sender, staticRecipients{}, []int64{10, 20, 30}, 1, zap.NewNop())

	n := f.NotifyAdmins(context.Background(), "alert")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"alert"}, sender.got(20))
	assert.Equal(t, []string{"alert"}, sender.got(30))
}

func TestNotifyAdminsWithoutAdmins(t *testing.T) {
	f := New(newFakeSender(), staticRecipients{}, nil, 4, zap.NewNop())
	assert.Zero(t, f.NotifyAdmins(context.Background(), "alert"))
}

func TestSlowRecipientDoesNotBlockOthers(t *testing.T) {
	sender := newFakeSender()
	sender.delay[1] = 300 * time.Millisecond
	f := New(sender, staticRecipients{ids: []int64{1, 2, 3}}, nil, 3, zap.NewNop())

	done := make(chan int, 1)
	go func() {
		n, _ := f.Broadcast(context.Background(), "hi")
		done <- n
	}()

	require.Eventually(t, func() bool {
		return len(sender.got(2)) == 1 && len(sender.got(3)) == 1
	}, 250*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 3, <-done)
}

func TestDirect(t *testing.T) {
	sender := newFakeSender(2)
	f := New(sender, staticRecipients{}, nil, 1, zap.NewNop())
	assert.NoError(t, f.Direct(context.Background(), 1, "hey"))
	assert.Error(t, f.Direct(context.Background(), 2, "hey"))
}

func TestAdminsIsACopy(t *testing.T) {
	admins := []int64{1, 2}
	f := New(newFakeSender(), staticRecipients{}, admins, 1, zap.NewNop())
	admins[0] = 99
	got := f.Admins()
	got[1] = 42
	assert.Equal(t, []int64{1, 2}, f.Admins())
}
