package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/store"
)

func newLedger(t *testing.T) (*Ledger, *store.SQLiteRepo) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return New(repo, zap.NewNop()), repo
}

func TestIssueAndRedeem(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	for _, days := range []int{1, 7, 30, 365} {
		k, err := l.Issue(ctx, days, 99)
		require.NoError(t, err)
		assert.Len(t, k.Token, 12)
		assert.Equal(t, days, k.Days)

		out, err := l.Redeem(ctx, k.Token, 1)
		require.NoError(t, err)
		assert.Equal(t, Outcome{Status: Granted, Days: days}, out)

		for i := 0; i < 3; i++ {
			out, err = l.Redeem(ctx, k.Token, int64(2+i))
			require.NoError(t, err)
			assert.Equal(t, AlreadyUsed, out.Status)
			assert.Zero(t, out.Days)
		}
	}
}

func TestIssueRejectsNonPositiveDays(t *testing.T) {
	l, _ := newLedger(t)
	for _, d := range []int{0, -1} {
		_, err := l.Issue(context.Background(), d, 1)
		assert.ErrorIs(t, err, ErrInvalidDays)
	}
}

func TestRedeemUnknownToken(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	for _, tok := range []string{"NEVERISSUED1", "", "   "} {
		out, err := l.Redeem(ctx, tok, 1)
		require.NoError(t, err)
		assert.Equal(t, NotFound, out.Status)
	}
}

func TestRedeemNormalizesInput(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	k, err := l.Issue(ctx, 3, 1)
	require.NoError(t, err)

	out, err := l.Redeem(ctx, "  `"+k.Token+"`\n", 5)
	require.NoError(t, err)
	assert.Equal(t, Granted, out.Status)
}

func TestIssueRetriesCollisions(t *testing.T) {
	ctx := context.Background()
	l, repo := newLedger(t)

	tokens := []string{"TAKENTAKEN01", "TAKENTAKEN01", "TAKENTAKEN01", "FRESHFRESH01"}
	i := 0
	l.generate = func() (string, error) {
		tok := tokens[i]
		i++
		return tok, nil
	}

	first, err := l.Issue(ctx, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, "TAKENTAKEN01", first.Token)

	second, err := l.Issue(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, "FRESHFRESH01", second.Token)
	assert.Equal(t, 4, i)

	// The colliding insert must not have overwritten the first key.
	k, err := repo.GetKey(ctx, "TAKENTAKEN01")
	require.NoError(t, err)
	assert.Equal(t, 30, k.Days)
}

func TestIssueGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	l.generate = func() (string, error) { return "SAMESAMESAME", nil }

	_, err := l.Issue(ctx, 1, 1)
	require.NoError(t, err)
	_, err = l.Issue(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrTokenSpace)
}

func TestConcurrentRedeemHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	k, err := l.Issue(ctx, 30, 1)
	require.NoError(t, err)

	const callers = 2
	results := make([]Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := l.Redeem(ctx, k.Token, int64(100+i))
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}
	wg.Wait()

	counts := map[Status]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	assert.Equal(t, 1, counts[Granted])
	assert.Equal(t, 1, counts[AlreadyUsed])
}

func TestStatsAndLookup(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	a, err := l.Issue(ctx, 1, 7)
	require.NoError(t, err)
	_, err = l.Issue(ctx, 2, 7)
	require.NoError(t, err)
	_, err = l.Redeem(ctx, a.Token, 3)
	require.NoError(t, err)

	s, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Issued: 2, Used: 1}, s)

	k, err := l.Lookup(ctx, a.Token)
	require.NoError(t, err)
	assert.True(t, k.Used)

	_, err = l.Lookup(ctx, "MISSING")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
