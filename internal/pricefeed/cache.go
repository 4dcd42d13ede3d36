package pricefeed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ggonzalez94/squad-agent/internal/cache"
)

// Cache holds real quotes keyed by normalized symbol. Implementations must be
// safe for concurrent use; Put replaces the whole entry for a key.
type Cache interface {
	Get(symbol string) (Quote, time.Time, bool)
	Put(symbol string, quote Quote, storedAt time.Time)
}

type memoryEntry struct {
	quote    Quote
	storedAt time.Time
}

// MemoryCache is an in-process cache guarded by a single mutex.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(symbol string) (Quote, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[symbol]
	return entry.quote, entry.storedAt, ok
}

func (c *MemoryCache) Put(symbol string, quote Quote, storedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = memoryEntry{quote: quote, storedAt: storedAt}
}

// StoreCache shares quotes between agent processes through the SQLite cache.
// Read and write failures degrade to a cache miss.
type StoreCache struct {
	store  *cache.Store
	logger *slog.Logger
}

func NewStoreCache(store *cache.Store, logger *slog.Logger) *StoreCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreCache{store: store, logger: logger}
}

func storeKey(symbol string) string { return "price:" + symbol }

func (c *StoreCache) Get(symbol string) (Quote, time.Time, bool) {
	entry, ok, err := c.store.Get(storeKey(symbol))
	if err != nil {
		c.logger.Warn("price cache read failed", "symbol", symbol, "err", err)
		return Quote{}, time.Time{}, false
	}
	if !ok {
		return Quote{}, time.Time{}, false
	}
	var quote Quote
	if err := json.Unmarshal(entry.Value, &quote); err != nil {
		c.logger.Warn("price cache entry corrupt", "symbol", symbol, "err", err)
		return Quote{}, time.Time{}, false
	}
	return quote, entry.StoredAt, true
}

func (c *StoreCache) Put(symbol string, quote Quote, storedAt time.Time) {
	buf, err := json.Marshal(quote)
	if err != nil {
		c.logger.Warn("price cache encode failed", "symbol", symbol, "err", err)
		return
	}
	if err := c.store.Set(storeKey(symbol), buf, storedAt); err != nil {
		c.logger.Warn("price cache write failed", "symbol", symbol, "err", err)
	}
}
