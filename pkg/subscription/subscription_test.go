package subscription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/subscription"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to subscription.RequestStatus
		want     bool
	}{
		{subscription.RequestPending, subscription.RequestCompleted, true},
		{subscription.RequestPending, subscription.RequestFailed, true},
		{subscription.RequestPending, subscription.RequestCancelled, true},
		{subscription.RequestCompleted, subscription.RequestFailed, false},
		{subscription.RequestFailed, subscription.RequestCompleted, false},
		{subscription.RequestCancelled, subscription.RequestPending, false},
		{subscription.RequestCompleted, subscription.RequestPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subscription.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.False(t, subscription.IsTerminal(subscription.RequestPending))
	assert.True(t, subscription.IsTerminal(subscription.RequestCompleted))
	assert.True(t, subscription.IsTerminal(subscription.RequestFailed))
	assert.True(t, subscription.IsTerminal(subscription.RequestCancelled))
	assert.False(t, subscription.IsTerminal("bogus"))
}

func TestRenew(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	monthly := subscription.Plan{ID: "standard", DurationMonths: 1}

	t.Run("new account starts now", func(t *testing.T) {
		start, end := subscription.Renew(now, nil, monthly)
		assert.Equal(t, now, start)
		assert.Equal(t, now.AddDate(0, 1, 0), end)
	})

	t.Run("early renewal extends from current end", func(t *testing.T) {
		origStart := now.AddDate(0, 0, -20)
		oldEnd := now.AddDate(0, 0, 10)
		u := &subscription.UserAccount{
			Status: subscription.UserActive, SubscriptionStart: &origStart, SubscriptionEnd: &oldEnd,
		}
		start, end := subscription.Renew(now, u, monthly)
		assert.Equal(t, origStart, start)
		assert.Equal(t, oldEnd.AddDate(0, 1, 0), end)
		assert.NotEqual(t, now.AddDate(0, 1, 0), end)
	})

	t.Run("expired account starts fresh", func(t *testing.T) {
		origStart := now.AddDate(0, -3, 0)
		oldEnd := now.AddDate(0, 0, -5)
		u := &subscription.UserAccount{
			Status: subscription.UserActive, SubscriptionStart: &origStart, SubscriptionEnd: &oldEnd,
		}
		start, end := subscription.Renew(now, u, monthly)
		assert.Equal(t, now, start)
		assert.Equal(t, now.AddDate(0, 1, 0), end)
	})

	t.Run("month end clamps to shorter month", func(t *testing.T) {
		tests := []struct {
			from   time.Time
			months int
			want   time.Time
		}{
			{time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC), 1, time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)},
			{time.Date(2028, 1, 31, 12, 0, 0, 0, time.UTC), 1, time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC)},
			{time.Date(2026, 3, 31, 8, 30, 0, 0, time.UTC), 1, time.Date(2026, 4, 30, 8, 30, 0, 0, time.UTC)},
			{time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), 6, time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC)},
			{time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC), 3, time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC)},
			{time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC), 12, time.Date(2027, 5, 15, 0, 0, 0, 0, time.UTC)},
		}
		for _, tt := range tests {
			_, end := subscription.Renew(tt.from, nil, subscription.Plan{DurationMonths: tt.months})
			assert.Equal(t, tt.want, end, "%s + %d months", tt.from.Format(time.DateOnly), tt.months)
		}
	})
}

func TestPlan_Validate(t *testing.T) {
	t.Parallel()
	for _, p := range subscription.DefaultPlans() {
		assert.NoError(t, p.Validate(), p.ID)
	}
	err := subscription.Plan{ID: "x", Price: 0, MaxItems: 1, DurationMonths: 1}.Validate()
	assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)

	assert.EqualValues(t, 50000, subscription.Plan{Price: 500}.AmountMinor())
}

type countingSource struct {
	plans []subscription.Plan
	calls atomic.Int32
}

func (s *countingSource) LoadPlans(context.Context) ([]subscription.Plan, error) {
	s.calls.Add(1)
	return s.plans, nil
}

func TestCatalog(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &countingSource{plans: subscription.DefaultPlans()}
	c := subscription.NewCatalog(src, time.Hour)

	p, err := c.Plan(ctx, "standard")
	require.NoError(t, err)
	assert.EqualValues(t, 500, p.Price)

	_, err = c.Plan(ctx, "gold")
	assert.ErrorIs(t, err, subscription.ErrPlanNotFound)

	plans, err := c.Plans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, "basic", plans[0].ID)
	assert.Equal(t, "premium", plans[2].ID)
	assert.EqualValues(t, 1, src.calls.Load(), "cached after first load")

	var reloaded atomic.Int32
	c.OnReload(func() { reloaded.Add(1) })

	src.plans = append(subscription.DefaultPlans(), subscription.Plan{
		ID: "family", Name: "Family", Price: 1200, Currency: 980, MaxItems: 10, DurationMonths: 1,
	})
	plans, err = c.Reload(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 4)
	assert.EqualValues(t, 2, src.calls.Load())
	assert.EqualValues(t, 1, reloaded.Load())
}

func TestCatalog_ReloadKeepsPlansOnBadSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := &countingSource{plans: subscription.DefaultPlans()}
	c := subscription.NewCatalog(src, time.Hour)

	_, err := c.Plans(ctx)
	require.NoError(t, err)

	var reloaded atomic.Int32
	c.OnReload(func() { reloaded.Add(1) })

	src.plans = []subscription.Plan{{ID: "broken", Price: 0, MaxItems: 1, DurationMonths: 1}}
	_, err = c.Reload(ctx)
	assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	assert.Zero(t, reloaded.Load())

	p, err := c.Plan(ctx, "standard")
	require.NoError(t, err, "previous plans still served")
	assert.EqualValues(t, 500, p.Price)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCatalog_RejectsInvalidPlans(t *testing.T) {
	t.Parallel()
	c := subscription.NewCatalog(subscription.StaticSource{
		{ID: "a", Price: 1, MaxItems: 1, DurationMonths: 1},
		{ID: "a", Price: 2, MaxItems: 1, DurationMonths: 1},
	}, time.Minute)

	_, err := c.Plan(context.Background(), "a")
	assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
}

func TestFileSource(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - id: standard
    name: Standard
    price: 500
    currency: 980
    max_items: 3
    duration_months: 1
`), 0o600))

	src := subscription.SourceFromConfig(subscription.Config{PlansFile: path})
	plans, err := src.LoadPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 3, plans[0].MaxItems)

	_, err = subscription.FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.LoadPlans(context.Background())
	assert.True(t, errors.Is(err, subscription.ErrFailedToLoadPlans))
}
