package imgen

import (
	"context"
	"sync/atomic"
	"time"
)

// mockAdapter is a configurable in-memory Adapter for orchestrator
// tests.
type mockAdapter struct {
	name      string
	caps      CapabilitySet
	available atomic.Bool

	generateErr  error
	describeText string
	describeErr  error
	tags         []string
	tagErr       error

	generateCalls atomic.Int64
	probeCalls    atomic.Int64
	panicOnProbe  bool
}

func newMockAdapter(name string, available bool, caps ...Capability) *mockAdapter {
	m := &mockAdapter{
		name:         name,
		caps:         NewCapabilitySet(caps...),
		describeText: "a mock description",
		tags:         []string{"mock", "test"},
	}
	m.available.Store(available)
	return m
}

func (m *mockAdapter) Name() string                { return m.name }
func (m *mockAdapter) Capabilities() CapabilitySet { return m.caps.Clone() }

func (m *mockAdapter) IsAvailable(ctx context.Context) bool {
	m.probeCalls.Add(1)
	if m.panicOnProbe {
		panic("probe exploded")
	}
	return m.available.Load()
}

func (m *mockAdapter) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	m.generateCalls.Add(1)
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	count := req.Count
	if count == 0 {
		count = 1
	}
	images := make([]GeneratedImage, count)
	for i := range images {
		images[i] = GeneratedImage{
			Data:   []byte{0x89, 0x50, 0x4e, 0x47},
			Format: FormatPNG,
			Metadata: ImageMetadata{
				Prompt:      req.Prompt,
				Backend:     m.name,
				GeneratedAt: time.Now(),
			},
		}
	}
	return &GenerationResult{Success: true, Images: images, Backend: m.name}, nil
}

func (m *mockAdapter) SupportedFormats() []Format {
	return []Format{FormatPNG, FormatJPEG}
}

func (m *mockAdapter) SupportedDimensions() []Dimensions {
	return []Dimensions{{Width: 1024, Height: 1024}}
}

func (m *mockAdapter) MaxImageCount() int { return 4 }

func (m *mockAdapter) Info() AdapterInfo {
	return AdapterInfo{
		Name:          m.name,
		Capabilities:  m.caps.List(),
		Formats:       m.SupportedFormats(),
		Dimensions:    m.SupportedDimensions(),
		MaxImageCount: m.MaxImageCount(),
	}
}

func (m *mockAdapter) Describe(ctx context.Context, url string) (string, error) {
	if m.describeErr != nil {
		return "", m.describeErr
	}
	return m.describeText, nil
}

func (m *mockAdapter) Tag(ctx context.Context, url string) ([]string, error) {
	if m.tagErr != nil {
		return nil, m.tagErr
	}
	return m.tags, nil
}

// fakeCache is a minimal ResultCache for orchestrator tests.
type fakeCache struct {
	entries map[string]*GenerationResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*GenerationResult)}
}

func (c *fakeCache) Get(req *GenerationRequest) (*GenerationResult, bool) {
	res, ok := c.entries[Fingerprint(req)]
	return res, ok
}

func (c *fakeCache) Set(req *GenerationRequest, result *GenerationResult) {
	c.entries[Fingerprint(req)] = result
}
