package cache

import (
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imgen"
)

// Config bounds the local cache.
type Config struct {
	TTL     time.Duration `json:"ttl" yaml:"ttl"`
	MaxSize int           `json:"max_size" yaml:"max_size"`
}

// DefaultConfig returns the bounds used when none are configured.
func DefaultConfig() Config {
	return Config{
		TTL:     1 * time.Hour,
		MaxSize: 100,
	}
}

type entry struct {
	fingerprint string
	result      *imgen.GenerationResult
	byteSize    int
	createdAt   time.Time
	expiresAt   time.Time
}

// Stats is a point-in-time snapshot of cache behavior since process
// start.
type Stats struct {
	Entries   int     `json:"entries"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
	ByteSize  int64   `json:"byte_size"`
}

// ResultCache is the process-local result cache. Safe for concurrent
// use.
type ResultCache struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	entries   map[string]*entry
	hits      int64
	misses    int64
	evictions int64
	byteSize  int64

	// now is swapped in tests to control expiry.
	now func() time.Time
}

// New creates a ResultCache with the given bounds.
func New(cfg Config, logger *zap.Logger) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the live result for the request's fingerprint. Expired
// entries read as absent and are removed on the way out.
func (c *ResultCache) Get(req *imgen.GenerationRequest) (*imgen.GenerationResult, bool) {
	fp := imgen.Fingerprint(req)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fp]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.removeLocked(e)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.result, true
}

// Set inserts or overwrites the entry for the request's fingerprint and
// evicts oldest-created entries while the size bound is exceeded.
func (c *ResultCache) Set(req *imgen.GenerationRequest, result *imgen.GenerationResult) {
	if result == nil || !result.Success {
		return
	}
	fp := imgen.Fingerprint(req)
	created := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[fp]; ok {
		c.removeLocked(old)
	}

	e := &entry{
		fingerprint: fp,
		result:      result,
		byteSize:    resultByteSize(result),
		createdAt:   created,
		expiresAt:   created.Add(c.cfg.TTL),
	}
	c.entries[fp] = e
	c.byteSize += int64(e.byteSize)

	for len(c.entries) > c.cfg.MaxSize {
		c.evictOldestLocked()
	}
}

func (c *ResultCache) removeLocked(e *entry) {
	delete(c.entries, e.fingerprint)
	c.byteSize -= int64(e.byteSize)
}

func (c *ResultCache) evictOldestLocked() {
	var oldest *entry
	for _, e := range c.entries {
		if oldest == nil || e.createdAt.Before(oldest.createdAt) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	c.removeLocked(oldest)
	c.evictions++
	c.logger.Debug("evicted cache entry",
		zap.String("fingerprint", oldest.fingerprint),
		zap.Time("created_at", oldest.createdAt),
	)
}

// HitRate returns hits / (hits+misses) since process start.
func (c *ResultCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		HitRate:   rate,
		ByteSize:  c.byteSize,
	}
}

// FormattedUsage renders the approximate in-memory footprint for
// operator-facing output, e.g. "1.2 MB".
func (c *ResultCache) FormattedUsage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return humanize.Bytes(uint64(max64(c.byteSize, 0)))
}

func max64(v, floor int64) int64 {
	if v < floor {
		return floor
	}
	return v
}

// resultByteSize approximates the memory cost of a cached result.
func resultByteSize(res *imgen.GenerationResult) int {
	size := 0
	for _, img := range res.Images {
		size += len(img.Data) + len(img.URL)
		if img.ByteSize > 0 && len(img.Data) == 0 {
			size += img.ByteSize
		}
	}
	return size
}
