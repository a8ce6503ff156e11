package services

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Lllllllleong/scanproof/internal/models"
)

// CacheKey derives the cache key for a correction request.
func CacheKey(text string, directive models.Directive) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(directive))
	return hex.EncodeToString(h.Sum(nil))
}

// ResultCache is a process-wide TTL cache of successful correction results.
// Expired entries are evicted in the background until Close is called.
type ResultCache struct {
	items *ttlcache.Cache[string, models.CorrectionResult]
}

// NewResultCache creates a cache whose entries live for ttl from the time
// they are stored. Reads do not extend an entry's life.
func NewResultCache(ttl time.Duration) *ResultCache {
	items := ttlcache.New[string, models.CorrectionResult](
		ttlcache.WithTTL[string, models.CorrectionResult](ttl),
		ttlcache.WithDisableTouchOnHit[string, models.CorrectionResult](),
	)
	go items.Start()
	return &ResultCache{items: items}
}

// Get returns a copy of the cached result, if present and not expired.
func (c *ResultCache) Get(key string) (*models.CorrectionResult, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	res := cloneResult(item.Value())
	return &res, true
}

// Put stores a copy of res under key.
func (c *ResultCache) Put(key string, res *models.CorrectionResult) {
	c.items.Set(key, cloneResult(*res), ttlcache.DefaultTTL)
}

// Len reports the number of stored entries not yet evicted.
func (c *ResultCache) Len() int {
	return c.items.Len()
}

// Close stops background eviction.
func (c *ResultCache) Close() {
	c.items.Stop()
}

func cloneResult(r models.CorrectionResult) models.CorrectionResult {
	if r.Findings != nil {
		findings := make([]models.SentenceFinding, len(r.Findings))
		for i, f := range r.Findings {
			f.Corrections = slices.Clone(f.Corrections)
			findings[i] = f
		}
		r.Findings = findings
	}
	return r
}
