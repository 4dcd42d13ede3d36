package pricefeed

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 60 * time.Second

// Provider fetches a live quote. Any error sends the feed to the synthetic
// fallback path.
type Provider interface {
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

type Options struct {
	TTL      time.Duration
	Currency string
	Now      func() time.Time
	// Rand drives synthetic quotes; seed it for deterministic output.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Feed serves quotes from cache, the live provider, or synthesis, in that
// order. GetQuote never fails.
type Feed struct {
	provider Provider
	cache    Cache
	ttl      time.Duration
	currency string
	now      func() time.Time
	logger   *slog.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	group singleflight.Group
}

func New(provider Provider, cache Cache, opts Options) *Feed {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Feed{
		provider: provider,
		cache:    cache,
		ttl:      opts.TTL,
		currency: opts.Currency,
		now:      opts.Now,
		rand:     opts.Rand,
		logger:   opts.Logger,
	}
}

func (f *Feed) GetQuote(ctx context.Context, symbol string) Quote {
	symbol = NormalizeSymbol(symbol)
	if quote, ok := f.fresh(symbol); ok {
		return quote
	}

	// Concurrent misses for one symbol share a single provider call. The call
	// outlives any one caller's cancellation; the HTTP client timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	v, _, _ := f.group.Do(symbol, func() (any, error) {
		if quote, ok := f.fresh(symbol); ok {
			return quote, nil
		}
		quote, err := f.fetch(fetchCtx, symbol)
		if err != nil {
			f.logger.Warn("price fetch failed, using synthetic quote", "symbol", symbol, "err", err)
			return f.synthesize(symbol), nil
		}
		f.cache.Put(symbol, quote, f.now())
		return quote, nil
	})
	return v.(Quote)
}

func (f *Feed) fresh(symbol string) (Quote, bool) {
	quote, storedAt, ok := f.cache.Get(symbol)
	if !ok {
		return Quote{}, false
	}
	if f.now().Sub(storedAt) >= f.ttl {
		return Quote{}, false
	}
	return quote, true
}

func (f *Feed) fetch(ctx context.Context, symbol string) (Quote, error) {
	if f.provider == nil {
		return Quote{}, errNoProvider
	}
	quote, err := f.provider.Fetch(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	quote.Symbol = symbol
	quote.Fallback = false
	if quote.Currency == "" {
		quote.Currency = f.currency
	}
	if quote.LastUpdated.IsZero() {
		quote.LastUpdated = f.now().UTC()
	}
	return quote, nil
}
