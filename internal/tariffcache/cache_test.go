package tariffcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/tariff"
)

var (
	_ tariff.Source      = (*Cache)(nil)
	_ tariff.Invalidator = (*Cache)(nil)
)

type countingSource struct {
	entries []model.TariffEntry
	calls   int
	// duringLoad runs once, after the entries were read, standing in for a
	// catalog write that commits while the load is in flight.
	duringLoad func()
}

func (s *countingSource) TariffsFor(_ context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error) {
	s.calls++
	if fn := s.duringLoad; fn != nil {
		s.duringLoad = nil
		defer fn()
	}
	var out []model.TariffEntry
	for _, e := range s.entries {
		if e.ProcedureID == procedureID && e.HospitalID == hospitalID {
			out = append(out, e)
		}
	}
	return out, nil
}

func setupCache(t *testing.T) (*miniredis.Miniredis, *countingSource, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	insurer := int64(3)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	src := &countingSource{entries: []model.TariffEntry{
		{ID: 1, ProcedureID: 1, HospitalID: 2, UnitPrice: decimal.NewFromInt(100), ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ValidTo: &end},
		{ID: 2, ProcedureID: 1, HospitalID: 2, InsurerID: &insurer, UnitPrice: decimal.RequireFromString("150.25"), ValidFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 3, ProcedureID: 9, HospitalID: 2, UnitPrice: decimal.NewFromInt(1), ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}}
	return mr, src, New(rdb, src, time.Minute, zerolog.Nop())
}

func TestCacheReadThrough(t *testing.T) {
	mr, src, c := setupCache(t)
	ctx := context.Background()

	first, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, src.calls)
	assert.True(t, mr.Exists(Key(1, 2)))

	second, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "second read is served from redis")
	require.Len(t, second, 2)
	assert.True(t, first[1].UnitPrice.Equal(second[1].UnitPrice))
	assert.True(t, first[0].ValidFrom.Equal(second[0].ValidFrom))
	require.NotNil(t, second[0].ValidTo)
	assert.True(t, first[0].ValidTo.Equal(*second[0].ValidTo))
	require.NotNil(t, second[1].InsurerID)
	assert.Equal(t, int64(3), *second[1].InsurerID)
}

func TestCacheEmptyListIsCached(t *testing.T) {
	_, src, c := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		entries, err := c.TariffsFor(ctx, 42, 2)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
	assert.Equal(t, 1, src.calls)
}

func TestCacheInvalidate(t *testing.T) {
	mr, src, c := setupCache(t)
	ctx := context.Background()

	_, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	_, err = c.TariffsFor(ctx, 9, 2)
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, 1, 2))
	assert.False(t, mr.Exists(Key(1, 2)))
	assert.True(t, mr.Exists(Key(9, 2)), "other pairs stay cached")

	_, err = c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestCacheTTL(t *testing.T) {
	mr, src, c := setupCache(t)
	ctx := context.Background()

	_, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, src, c := setupCache(t)
	mr.Close()

	entries, err := c.TariffsFor(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, src.calls)

	assert.Error(t, c.Invalidate(context.Background(), 1, 2))
}

func TestCacheDropsCorruptEntry(t *testing.T) {
	mr, src, c := setupCache(t)
	require.NoError(t, mr.Set(Key(1, 2), "{not json"))

	entries, err := c.TariffsFor(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 1, src.calls)
}

func TestCacheFlush(t *testing.T) {
	mr, _, c := setupCache(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "x"))

	_, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	_, err = c.TariffsFor(ctx, 9, 2)
	require.NoError(t, err)

	n, err := c.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("unrelated"))
}

func TestResolverThroughCache(t *testing.T) {
	_, src, c := setupCache(t)
	r := tariff.NewResolver(c, zerolog.Nop())
	insurer := int64(3)

	res, err := r.Resolve(context.Background(), tariff.Query{
		ProcedureID: 1, HospitalID: 2, InsurerID: &insurer,
		Day: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.25").Equal(res.Price))
	assert.Equal(t, 1, src.calls)
}

func TestCacheSkipsFillInvalidatedDuringLoad(t *testing.T) {
	mr, src, c := setupCache(t)
	ctx := context.Background()
	src.duringLoad = func() {
		require.NoError(t, c.Invalidate(ctx, 1, 2))
	}

	entries, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "the caller still gets what it loaded")
	assert.False(t, mr.Exists(Key(1, 2)), "stale list is not written back")
	assert.True(t, mr.Exists(GenKey(1, 2)))

	_, err = c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.True(t, mr.Exists(Key(1, 2)), "next load fills normally")
}

func TestCacheSkipsFillFlushedDuringLoad(t *testing.T) {
	mr, src, c := setupCache(t)
	ctx := context.Background()
	src.duringLoad = func() {
		_, err := c.Flush(ctx)
		require.NoError(t, err)
	}

	_, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, mr.Exists(Key(1, 2)))
}

func TestInvalidationOfOtherPairDoesNotBlockFill(t *testing.T) {
	mr, src, c := setupCache(t)
	ctx := context.Background()
	src.duringLoad = func() {
		require.NoError(t, c.Invalidate(ctx, 9, 2))
	}

	_, err := c.TariffsFor(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, mr.Exists(Key(1, 2)))
}
