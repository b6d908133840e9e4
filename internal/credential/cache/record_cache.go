// Package cache holds a Redis read-through cache for credential records.
//
// Records never change once minted; the only transition is burn. A burn
// writes a permanent tombstone that every lookup checks first, so a cached
// copy can never outlive the record it describes.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"soulcert/internal/credential/metrics"
	"soulcert/internal/credential/models"
	id "soulcert/pkg/domain"
)

const (
	recordKeyPrefix    = "soulcert:record:"
	tombstoneKeyPrefix = "soulcert:burned:"
	defaultTTL         = 5 * time.Minute
)

var (
	// ErrMiss means the cache has no entry; consult the ledger.
	ErrMiss = errors.New("record cache miss")
	// ErrBurned means the record was burned; no ledger lookup is needed.
	ErrBurned = errors.New("record burned")
)

// RecordCache caches RecordViews in Redis.
type RecordCache struct {
	client  redis.UniversalClient
	ttl     time.Duration
	metrics *metrics.Metrics
}

type Option func(*RecordCache)

// WithTTL sets the expiry of cached views. Tombstones never expire.
func WithTTL(ttl time.Duration) Option {
	return func(c *RecordCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *RecordCache) {
		c.metrics = m
	}
}

func NewRecordCache(client redis.UniversalClient, opts ...Option) *RecordCache {
	c := &RecordCache{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached view, ErrBurned for a tombstoned ID or ErrMiss.
func (c *RecordCache) Get(ctx context.Context, recordID id.RecordID) (models.RecordView, error) {
	pipe := c.client.Pipeline()
	burned := pipe.Exists(ctx, tombstoneKey(recordID))
	cached := pipe.Get(ctx, recordKey(recordID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		c.metrics.IncCacheLookup("error")
		return models.RecordView{}, fmt.Errorf("record cache get: %w", err)
	}

	if burned.Val() > 0 {
		c.metrics.IncCacheLookup("burned")
		return models.RecordView{}, ErrBurned
	}
	raw, err := cached.Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncCacheLookup("miss")
		return models.RecordView{}, ErrMiss
	}
	if err != nil {
		c.metrics.IncCacheLookup("error")
		return models.RecordView{}, fmt.Errorf("record cache get: %w", err)
	}

	var view models.RecordView
	if err := json.Unmarshal(raw, &view); err != nil {
		c.metrics.IncCacheLookup("error")
		return models.RecordView{}, fmt.Errorf("decode cached record: %w", err)
	}
	c.metrics.IncCacheLookup("hit")
	return view, nil
}

// Put stores view until the TTL elapses.
func (c *RecordCache) Put(ctx context.Context, view models.RecordView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode record view: %w", err)
	}
	return c.client.Set(ctx, recordKey(view.ID), raw, c.ttl).Err()
}

// MarkBurned tombstones recordID and drops any cached view.
func (c *RecordCache) MarkBurned(ctx context.Context, recordID id.RecordID) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, tombstoneKey(recordID), "1", 0)
	pipe.Del(ctx, recordKey(recordID))
	_, err := pipe.Exec(ctx)
	return err
}

func recordKey(recordID id.RecordID) string {
	return recordKeyPrefix + recordID.String()
}

func tombstoneKey(recordID id.RecordID) string {
	return tombstoneKeyPrefix + recordID.String()
}
