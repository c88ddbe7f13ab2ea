package entitlement

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/ledger"
	"github.com/ykvlv/redeem-bot/internal/store"
)

var t0 = time.Date(2025, time.May, 5, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *store.SQLiteRepo
	ledger *ledger.Ledger
	engine *Engine
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{repo: repo, now: t0}
	f.ledger = ledger.New(repo, zap.NewNop())
	f.engine = New(repo, f.ledger, zap.NewNop())
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) user(t *testing.T, id int64) *domain.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.repo.UpsertUser(ctx, id, "u"))
	u, err := f.repo.GetUser(ctx, id)
	require.NoError(t, err)
	return u
}

func ptr(t time.Time) *time.Time { return &t }

func TestIsPremiumValid(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		until *time.Time
		want  bool
	}{
		{"absent", nil, false},
		{"lapsed", ptr(t0.Add(-time.Minute)), false},
		{"ends now", ptr(t0), false},
		{"active", ptr(t0.Add(time.Minute)), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, f.engine.IsPremiumValid(&domain.User{PremiumUntil: c.until}))
		})
	}
}

func TestCanEnterRedeemFlow(t *testing.T) {
	f := newFixture(t)
	active := ptr(t0.Add(time.Hour))
	lapsed := ptr(t0.Add(-time.Hour))

	cases := []struct {
		name string
		u    domain.User
		want Decision
	}{
		{"fresh free user", domain.User{}, Decision{Allowed: true}},
		{"free used", domain.User{FreeRedeemUsed: true}, Decision{Reason: ReasonFreeLimit}},
		{"free used but premium", domain.User{FreeRedeemUsed: true, PremiumUntil: active}, Decision{Allowed: true}},
		{"free used and premium lapsed", domain.User{FreeRedeemUsed: true, PremiumUntil: lapsed}, Decision{Reason: ReasonFreeLimit}},
		{"banned", domain.User{Banned: true, PremiumUntil: active}, Decision{Reason: ReasonBanned}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, f.engine.CanEnterRedeemFlow(&c.u))
		})
	}
	assert.Equal(t, "free-limit-reached", ReasonFreeLimit.String())
	assert.Equal(t, "banned", ReasonBanned.String())
}

func TestFinalizeRedeemSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	free := f.user(t, 1)
	require.NoError(t, f.engine.FinalizeRedeemSubmission(ctx, free))
	got, err := f.repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.FreeRedeemUsed)
	assert.Equal(t, Decision{Reason: ReasonFreeLimit}, f.engine.CanEnterRedeemFlow(got))

	premium := f.user(t, 2)
	until := t0.Add(24 * time.Hour)
	require.NoError(t, f.repo.SetPremiumUntil(ctx, 2, &until))
	premium.PremiumUntil = &until
	require.NoError(t, f.engine.FinalizeRedeemSubmission(ctx, premium))
	got, err = f.repo.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.False(t, got.FreeRedeemUsed, "premium submissions are not booked")
}

func TestRedeemKeyGrantsAndRestoresFreeFlag(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	k, err := f.ledger.Issue(ctx, 30, 100)
	require.NoError(t, err)

	u := f.user(t, 1)
	require.NoError(t, f.repo.SetFreeRedeemUsed(ctx, 1, true))
	u.FreeRedeemUsed = true
	assert.False(t, f.engine.CanEnterRedeemFlow(u).Allowed)

	out, err := f.engine.RedeemKey(ctx, u, k.Token)
	require.NoError(t, err)
	assert.Equal(t, ledger.Outcome{Status: ledger.Granted, Days: 30}, out)

	got, err := f.repo.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.PremiumUntil)
	assert.True(t, got.PremiumUntil.Equal(t0.Add(30*24*time.Hour)))
	assert.False(t, got.FreeRedeemUsed)
	assert.True(t, f.engine.CanEnterRedeemFlow(got).Allowed)

	// Once premium lapses the restored free redeem is available again.
	f.now = t0.Add(31 * 24 * time.Hour)
	assert.True(t, f.engine.CanEnterRedeemFlow(got).Allowed)
}

func TestRedeemKeyDoesNotStack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, 1)

	long, err := f.ledger.Issue(ctx, 365, 1)
	require.NoError(t, err)
	short, err := f.ledger.Issue(ctx, 1, 1)
	require.NoError(t, err)

	_, err = f.engine.RedeemKey(ctx, u, long.Token)
	require.NoError(t, err)
	_, err = f.engine.RedeemKey(ctx, u, short.Token)
	require.NoError(t, err)

	got, err := f.repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.PremiumUntil.Equal(t0.Add(24*time.Hour)), "a grant replaces, it does not extend")
}

func TestRedeemKeyFailuresDoNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	k, err := f.ledger.Issue(ctx, 30, 100)
	require.NoError(t, err)
	a := f.user(t, 1)
	b := f.user(t, 2)
	require.NoError(t, f.repo.SetFreeRedeemUsed(ctx, 2, true))

	out, err := f.engine.RedeemKey(ctx, a, k.Token)
	require.NoError(t, err)
	require.Equal(t, ledger.Granted, out.Status)
	aBefore, err := f.repo.GetUser(ctx, 1)
	require.NoError(t, err)

	out, err = f.engine.RedeemKey(ctx, b, k.Token)
	require.NoError(t, err)
	assert.Equal(t, ledger.AlreadyUsed, out.Status)

	out, err = f.engine.RedeemKey(ctx, b, "NEVERISSUED0")
	require.NoError(t, err)
	assert.Equal(t, ledger.NotFound, out.Status)

	bAfter, err := f.repo.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, bAfter.PremiumUntil)
	assert.True(t, bAfter.FreeRedeemUsed)

	aAfter, err := f.repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, aBefore, aAfter)
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	set := func(id int64, until time.Time) {
		f.user(t, id)
		require.NoError(t, f.repo.SetPremiumUntil(ctx, id, &until))
	}
	set(1, t0.Add(-48*time.Hour))
	set(2, t0.Add(-time.Second))
	set(3, t0) // ends exactly now: lapsed
	set(4, t0.Add(time.Hour))
	f.user(t, 5)

	expired, err := f.engine.SweepExpired(ctx, t0)
	require.NoError(t, err)
	var ids []int64
	for _, e := range expired {
		ids = append(ids, e.UserID)
		assert.Equal(t, "u", e.DisplayName)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)

	left, err := f.repo.ListPremium(ctx)
	require.NoError(t, err)
	for _, u := range left {
		assert.True(t, u.PremiumUntil.After(t0), "user %d still has lapsed premium", u.ID)
	}

	again, err := f.engine.SweepExpired(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, again, "cleared users are not reported twice")

	later, err := f.engine.SweepExpired(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, int64(4), later[0].UserID)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	until := t0.Add(36 * time.Hour)

	s := f.engine.Status(&domain.User{PremiumUntil: &until})
	assert.True(t, s.Premium)
	assert.Equal(t, 36*time.Hour, s.Remaining)

	s = f.engine.Status(&domain.User{FreeRedeemUsed: true})
	assert.Equal(t, Summary{}, s)

	s = f.engine.Status(&domain.User{})
	assert.Equal(t, Summary{FreeAvailable: true}, s)
}
