package market

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/paperhands/paperhands/internal/domain"
)

// ErrEmptyCache is returned when prices are requested before the first
// successful ingestion cycle.
var ErrEmptyCache = errors.New("no price data available yet")

// PriceCache holds the latest snapshot per symbol. The ingestor is the
// only writer; everything else reads.
type PriceCache struct {
	mu        sync.RWMutex
	snapshots map[string]domain.PriceSnapshot
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{snapshots: make(map[string]domain.PriceSnapshot)}
}

// Get returns the cached snapshot for a symbol.
func (c *PriceCache) Get(symbol string) (domain.PriceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot, ok := c.snapshots[symbol]
	return snapshot, ok
}

// GetAll returns every cached snapshot ordered by symbol. It fails with
// ErrEmptyCache until at least one ingestion cycle has completed.
func (c *PriceCache) GetAll() ([]domain.PriceSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.snapshots) == 0 {
		return nil, ErrEmptyCache
	}

	all := make([]domain.PriceSnapshot, 0, len(c.snapshots))
	for _, snapshot := range c.snapshots {
		all = append(all, snapshot)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Symbol < all[j].Symbol })
	return all, nil
}

// SetBatch replaces the cache entry of every snapshot in the batch under a
// single lock, so readers observe either the whole cycle or none of it.
func (c *PriceCache) SetBatch(batch []domain.PriceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, snapshot := range batch {
		c.snapshots[snapshot.Symbol] = snapshot
	}
}
