// Package tariffcache is a Redis read-through cache in front of the tariff
// store. It caches the full entry list of a (procedure, hospital) pair so the
// resolver keeps applying its rules to fresh candidates.
package tariffcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gyeh/hdprod/internal/model"
	"github.com/gyeh/hdprod/internal/tariff"
)

const (
	keyPrefix = "tariff:cand:"
	genPrefix = "tariff:gen:"
	epochKey  = "tariff:epoch"

	// genTTL bounds how long an idle pair's generation counter lives. It only
	// needs to outlast one store load.
	genTTL = 24 * time.Hour
)

// Key is the cache key of a (procedure, hospital) pair.
func Key(procedureID, hospitalID int64) string {
	return fmt.Sprintf("%s%d:%d", keyPrefix, procedureID, hospitalID)
}

// GenKey is the generation counter bumped on every invalidation of a pair.
func GenKey(procedureID, hospitalID int64) string {
	return fmt.Sprintf("%s%d:%d", genPrefix, procedureID, hospitalID)
}

var errStale = errors.New("tariff list changed while loading")

// stamp is the (pair generation, flush epoch) seen before a store load.
type stamp [2]string

func stampOf(vals []any) stamp {
	var st stamp
	for i := 0; i < len(st) && i < len(vals); i++ {
		if v, ok := vals[i].(string); ok {
			st[i] = v
		}
	}
	return st
}

// Cache implements tariff.Source and tariff.Invalidator. Redis failures are
// logged and fall through to the backing source; the cache never turns a
// readable store into an error.
type Cache struct {
	rdb redis.UniversalClient
	src tariff.Source
	ttl time.Duration
	log zerolog.Logger
}

func New(rdb redis.UniversalClient, src tariff.Source, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{rdb: rdb, src: src, ttl: ttl, log: log.With().Str("component", "tariffcache").Logger()}
}

func (c *Cache) TariffsFor(ctx context.Context, procedureID, hospitalID int64) ([]model.TariffEntry, error) {
	key := Key(procedureID, hospitalID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entries []model.TariffEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
		c.log.Warn().Str("key", key).Msg("dropping undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("tariff cache read failed, using store")
	}

	gen := GenKey(procedureID, hospitalID)
	vals, stampErr := c.rdb.MGet(ctx, gen, epochKey).Result()
	before := stampOf(vals)

	entries, err := c.src.TariffsFor(ctx, procedureID, hospitalID)
	if err != nil {
		return nil, err
	}
	if stampErr != nil {
		return entries, nil
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode tariffs: %w", err)
	}
	err = c.fill(ctx, key, gen, before, payload)
	switch {
	case err == nil:
	case errors.Is(err, errStale), errors.Is(err, redis.TxFailedErr):
		c.log.Debug().Str("key", key).Msg("tariff list invalidated during load, not caching")
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("tariff cache write failed")
	}
	return entries, nil
}

// fill stores payload only if no invalidation or flush happened since the
// stamp was read, so a load racing a catalog write cannot reinstate the
// list that write replaced.
func (c *Cache) fill(ctx context.Context, key, gen string, before stamp, payload []byte) error {
	return c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, gen, epochKey).Result()
		if err != nil {
			return err
		}
		if stampOf(vals) != before {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, gen, epochKey)
}

// Invalidate drops the cached list of a pair and bumps its generation so
// in-flight loads do not write it back.
func (c *Cache) Invalidate(ctx context.Context, procedureID, hospitalID int64) error {
	gen := GenKey(procedureID, hospitalID)
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, gen)
		p.Expire(ctx, gen, genTTL)
		p.Del(ctx, Key(procedureID, hospitalID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate tariff cache: %w", err)
	}
	return nil
}

// Flush drops every cached pair. Bulk imports call it after loading.
func (c *Cache) Flush(ctx context.Context) (int, error) {
	if err := c.rdb.Incr(ctx, epochKey).Err(); err != nil {
		return 0, fmt.Errorf("flush tariff cache: %w", err)
	}
	var n int
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return n, fmt.Errorf("flush tariff cache: %w", err)
		}
		n++
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("flush tariff cache: %w", err)
	}
	return n, nil
}

// Connect opens a client for addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
