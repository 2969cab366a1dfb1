package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/imageflow/imgen"
)

func testResult(backend string) *imgen.GenerationResult {
	return &imgen.GenerationResult{
		Success: true,
		Backend: backend,
		Images: []imgen.GeneratedImage{
			{Data: []byte("fake image bytes"), Format: imgen.FormatPNG},
		},
	}
}

// clockCache returns a cache whose clock is advanced manually.
func clockCache(cfg Config) (*ResultCache, *time.Time) {
	c := New(cfg, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(DefaultConfig(), nil)
	req := &imgen.GenerationRequest{Prompt: "a red fox"}

	_, ok := c.Get(req)
	assert.False(t, ok)

	c.Set(req, testResult("openai"))

	got, ok := c.Get(req)
	require.True(t, ok)
	assert.Equal(t, "openai", got.Backend)
}

func TestCacheKeyedByFingerprint(t *testing.T) {
	c := New(DefaultConfig(), nil)
	c.Set(&imgen.GenerationRequest{Prompt: "a red fox"}, testResult("openai"))

	// Metadata does not affect the key; the prompt does.
	_, ok := c.Get(&imgen.GenerationRequest{
		Prompt:   "a red fox",
		Metadata: map[string]string{"trace_id": "t-1"},
	})
	assert.True(t, ok)

	_, ok = c.Get(&imgen.GenerationRequest{Prompt: "a blue fox"})
	assert.False(t, ok)
}

func TestCacheSkipsFailedResults(t *testing.T) {
	c := New(DefaultConfig(), nil)
	req := &imgen.GenerationRequest{Prompt: "a red fox"}

	c.Set(req, nil)
	c.Set(req, &imgen.GenerationResult{Success: false, ErrorCode: "TIMEOUT"})

	_, ok := c.Get(req)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCacheEntryExpiresAfterTTL(t *testing.T) {
	c, now := clockCache(Config{TTL: time.Hour, MaxSize: 10})
	req := &imgen.GenerationRequest{Prompt: "a red fox"}
	c.Set(req, testResult("openai"))

	*now = now.Add(59 * time.Minute)
	_, ok := c.Get(req)
	assert.True(t, ok, "entry still live before TTL")

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get(req)
	assert.False(t, ok, "entry expired after TTL")
	assert.Equal(t, 0, c.Stats().Entries, "expired entry removed on read")
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c, now := clockCache(Config{TTL: time.Hour, MaxSize: 2})

	reqs := make([]*imgen.GenerationRequest, 3)
	for i := range reqs {
		reqs[i] = &imgen.GenerationRequest{Prompt: fmt.Sprintf("fingerprint source %d", i)}
		c.Set(reqs[i], testResult(fmt.Sprintf("backend-%d", i)))
		*now = now.Add(time.Minute)
	}

	_, ok := c.Get(reqs[0])
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get(reqs[1])
	assert.True(t, ok)
	_, ok = c.Get(reqs[2])
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.EqualValues(t, 1, stats.Evictions)
}

func TestCacheSetSameFingerprintOverwrites(t *testing.T) {
	c := New(Config{TTL: time.Hour, MaxSize: 2}, nil)
	req := &imgen.GenerationRequest{Prompt: "a red fox"}

	c.Set(req, testResult("openai"))
	c.Set(req, testResult("stability"))

	got, ok := c.Get(req)
	require.True(t, ok)
	assert.Equal(t, "stability", got.Backend, "last write wins")
	assert.Equal(t, 1, c.Stats().Entries, "overwrite does not grow the cache")
}

func TestCacheHitRate(t *testing.T) {
	c := New(DefaultConfig(), nil)
	req := &imgen.GenerationRequest{Prompt: "a red fox"}

	assert.Zero(t, c.HitRate())

	c.Get(req) // miss
	c.Set(req, testResult("openai"))
	c.Get(req) // hit
	c.Get(req) // hit

	assert.InDelta(t, 2.0/3.0, c.HitRate(), 1e-9)

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestCacheByteAccounting(t *testing.T) {
	c := New(DefaultConfig(), nil)
	req := &imgen.GenerationRequest{Prompt: "a red fox"}
	result := testResult("openai")

	c.Set(req, result)
	assert.EqualValues(t, len(result.Images[0].Data), c.Stats().ByteSize)

	assert.NotEmpty(t, c.FormattedUsage())
}

func TestCacheDefaultsAppliedForZeroConfig(t *testing.T) {
	c := New(Config{}, nil)
	assert.Equal(t, DefaultConfig().TTL, c.cfg.TTL)
	assert.Equal(t, DefaultConfig().MaxSize, c.cfg.MaxSize)
}
