// Package pricecache keeps a bounded, periodically refreshed mirror of the price feed catalog.
package pricecache

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/cryptowallet/internal/clients"
	"github.com/vadiminshakov/cryptowallet/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCapacity   = 100
	DefaultStaleAfter = 30 * time.Minute
)

// Cache mediates every access to the price feed.
//
// All performs a bulk discard-and-replace refresh whenever the cache does not hold exactly
// capacity entries. Once the last refresh is older than the staleness window every cached id
// is re-fetched individually. Lookups of uncached ids fetch the single asset and, at capacity,
// evict the least recently used entry.
type Cache struct {
	mu          sync.Mutex
	feed        clients.PriceFeed
	entries     *simplelru.LRU[string, domain.Asset]
	capacity    int
	staleAfter  time.Duration
	lastRefresh time.Time
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of cached assets.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		c.capacity = n
	}
}

// WithStaleAfter sets the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) {
		c.staleAfter = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size        int       `json:"size"`
	Capacity    int       `json:"capacity"`
	LastRefresh time.Time `json:"last_refresh"`
}

// New creates an empty cache in front of feed.
func New(feed clients.PriceFeed, opts ...Option) (*Cache, error) {
	if feed == nil {
		return nil, errors.New("price feed is required")
	}
	c := &Cache{
		feed:       feed,
		capacity:   DefaultCapacity,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.capacity < 1 {
		return nil, errors.Errorf("cache capacity must be positive, got %d", c.capacity)
	}

	entries, err := simplelru.NewLRU[string, domain.Asset](c.capacity, func(id string, _ domain.Asset) {
		c.logger.Debug("evicted asset", zap.String("asset", id))
	})
	if err != nil {
		return nil, errors.Wrap(err, "init lru")
	}
	c.entries = entries

	return c, nil
}

// All returns the current catalog ordered by asset id.
func (c *Cache) All(ctx context.Context) ([]domain.Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries.Len() != c.capacity {
		if err := c.bulkRefresh(ctx); err != nil {
			return nil, err
		}
	}

	if c.isStale() {
		if err := c.refreshStale(ctx); err != nil {
			return nil, err
		}
	}

	return c.snapshot(), nil
}

// ByID returns the asset with the given id, fetching it from the feed when it is not cached.
func (c *Cache) ByID(ctx context.Context, id string) (domain.Asset, error) {
	if id == "" {
		return domain.Asset{}, domain.NewValidationError("id", "Id cannot be empty or null")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isStale() {
		if err := c.refreshStale(ctx); err != nil {
			return domain.Asset{}, err
		}
	}

	if asset, ok := c.entries.Get(id); ok {
		return asset, nil
	}

	resp, err := c.feed.AssetByID(ctx, id)
	if err != nil {
		return domain.Asset{}, errors.Wrapf(err, "fetch asset %s", id)
	}
	if err := feedError(resp.StatusCode, resp.Message); err != nil {
		return domain.Asset{}, err
	}
	if resp.Data == nil {
		return domain.Asset{}, errors.Wrapf(domain.ErrNoSuchAsset, "asset %s", id)
	}

	c.entries.Add(resp.Data.ID, *resp.Data)

	return *resp.Data, nil
}

// Stats returns size, capacity and last refresh time.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.entries.Len(), Capacity: c.capacity, LastRefresh: c.lastRefresh}
}

func (c *Cache) bulkRefresh(ctx context.Context) error {
	c.entries.Purge()
	c.lastRefresh = c.now()

	resp, err := c.feed.Assets(ctx)
	if err != nil {
		return errors.Wrap(err, "fetch catalog")
	}
	if err := feedError(resp.StatusCode, resp.Message); err != nil {
		return err
	}

	for _, asset := range resp.Data {
		if c.entries.Len() == c.capacity {
			break
		}
		if !asset.Tradable() {
			continue
		}
		c.entries.Add(asset.ID, asset)
	}

	c.logger.Debug("catalog refreshed", zap.Int("assets", c.entries.Len()))
	return nil
}

// refreshStale re-fetches every cached id concurrently. Any failure leaves the cache empty.
func (c *Cache) refreshStale(ctx context.Context) error {
	c.lastRefresh = c.now()

	ids := c.entries.Keys()
	c.entries.Purge()
	if len(ids) == 0 {
		return nil
	}

	results := make([]*domain.Asset, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			resp, err := c.feed.AssetByID(gctx, id)
			if err != nil {
				return errors.Wrapf(err, "refresh asset %s", id)
			}
			if err := feedError(resp.StatusCode, resp.Message); err != nil {
				return err
			}
			results[i] = resp.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, asset := range results {
		if asset == nil {
			c.logger.Warn("asset disappeared from feed", zap.String("asset", ids[i]))
			continue
		}
		c.entries.Add(asset.ID, *asset)
	}

	c.logger.Debug("stale prices refreshed", zap.Int("assets", c.entries.Len()))
	return nil
}

func (c *Cache) isStale() bool {
	if c.lastRefresh.IsZero() {
		return true
	}
	return c.now().Sub(c.lastRefresh) >= c.staleAfter
}

func (c *Cache) snapshot() []domain.Asset {
	ids := c.entries.Keys()
	assets := make([]domain.Asset, 0, len(ids))
	for _, id := range ids {
		if asset, ok := c.entries.Peek(id); ok {
			assets = append(assets, asset)
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		return assets[i].ID < assets[j].ID
	})
	return assets
}

func feedError(status int, message string) error {
	var kind domain.FeedErrorKind
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest:
		kind = domain.FeedBadRequest
	case http.StatusUnauthorized:
		kind = domain.FeedUnauthorized
	case http.StatusForbidden:
		kind = domain.FeedForbidden
	case http.StatusTooManyRequests:
		kind = domain.FeedTooManyRequests
	default:
		kind = domain.FeedUnexpectedStatus
	}
	return &domain.FeedError{Kind: kind, StatusCode: status, Message: message}
}
