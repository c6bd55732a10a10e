package forecast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
)

// Cache is the short-TTL forecast result cache. Purely a performance
// optimization; the ledger stays authoritative.
type Cache interface {
	// Get returns the cached run for the key, or nil when absent or stale.
	Get(ctx context.Context, key string) (*Run, error)
	// Put stores or overwrites the run under the key.
	Put(ctx context.Context, key string, run Run) error
}

// CacheKey derives the content-addressed key for a request within the
// current hour bucket. Identical queries in the same hour share a key.
func CacheKey(req Request, at time.Time) string {
	area := ""
	if req.AreaID != nil {
		area = req.AreaID.String()
	}
	material := fmt.Sprintf("%s|%s|%d|%s|%s",
		req.Disease, area, req.Horizon, req.Type, at.UTC().Format("2006010215"))
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// PGCache is the Postgres-backed cache. Stale entries are ignored at read
// time and overwritten in place; no background eviction.
type PGCache struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewPGCache creates a new Postgres-backed cache
func NewPGCache(pool *pgxpool.Pool, ttl time.Duration) *PGCache {
	return &PGCache{pool: pool, ttl: ttl}
}

// Get returns the cached run, or nil when missing or older than the TTL.
func (c *PGCache) Get(ctx context.Context, key string) (*Run, error) {
	var payload []byte
	var writtenAt time.Time

	err := c.pool.QueryRow(ctx,
		`SELECT payload, written_at FROM forecast_cache WHERE cache_key = $1`, key,
	).Scan(&payload, &writtenAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read forecast cache")
	}

	if time.Since(writtenAt) >= c.ttl {
		return nil, nil
	}

	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		// A corrupt entry is treated as a miss and overwritten later.
		return nil, nil
	}

	return &run, nil
}

// Put stores the run under the key, overwriting any previous entry.
func (c *PGCache) Put(ctx context.Context, key string, run Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "failed to serialize cache payload")
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO forecast_cache (cache_key, payload, written_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cache_key)
		DO UPDATE SET payload = EXCLUDED.payload, written_at = NOW()`,
		key, payload,
	)
	if err != nil {
		return errors.Wrap(err, "failed to write forecast cache")
	}
	return nil
}
