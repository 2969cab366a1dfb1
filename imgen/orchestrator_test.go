package imgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/imageflow/types"
)

func newTestOrchestrator(t *testing.T, cache ResultCache, adapters ...Adapter) *Orchestrator {
	t.Helper()
	reg := NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	opts := []OrchestratorOption{}
	if cache != nil {
		opts = append(opts, WithCache(cache))
	}
	return NewOrchestrator(reg, opts...)
}

func TestSelectAdapterPrefersRequestedBackend(t *testing.T) {
	primary := newMockAdapter("openai", true, CapGeneration)
	secondary := newMockAdapter("stability", true, CapGeneration)
	o := newTestOrchestrator(t, nil, primary, secondary)

	a, ok := o.SelectAdapter(context.Background(), CapGeneration, "stability")
	require.True(t, ok)
	assert.Equal(t, "stability", a.Name())
}

func TestSelectAdapterFallsBackWhenPreferredUnavailable(t *testing.T) {
	primary := newMockAdapter("openai", true, CapGeneration)
	down := newMockAdapter("stability", false, CapGeneration)
	o := newTestOrchestrator(t, nil, primary, down)

	a, ok := o.SelectAdapter(context.Background(), CapGeneration, "stability")
	require.True(t, ok)
	assert.Equal(t, "openai", a.Name())
}

func TestSelectAdapterNeverReturnsUnavailable(t *testing.T) {
	cases := []struct {
		name      string
		available map[string]bool
	}{
		{"all down", map[string]bool{"openai": false, "stability": false, "gemini": false}},
		{"only gemini", map[string]bool{"openai": false, "stability": false, "gemini": true}},
		{"only stability", map[string]bool{"openai": false, "stability": true, "gemini": false}},
		{"all up", map[string]bool{"openai": true, "stability": true, "gemini": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var adapters []Adapter
			for name, up := range tc.available {
				adapters = append(adapters, newMockAdapter(name, up, CapGeneration))
			}
			o := newTestOrchestrator(t, nil, adapters...)

			a, ok := o.SelectAdapter(context.Background(), CapGeneration, "")
			if !ok {
				for _, up := range tc.available {
					assert.False(t, up)
				}
				return
			}
			assert.True(t, tc.available[a.Name()], "selected %s which is unavailable", a.Name())
		})
	}
}

func TestSelectAdapterHonorsPriorityOrder(t *testing.T) {
	// Default generation priority is openai, stability, gemini.
	o := newTestOrchestrator(t, nil,
		newMockAdapter("gemini", true, CapGeneration),
		newMockAdapter("stability", true, CapGeneration),
	)

	a, ok := o.SelectAdapter(context.Background(), CapGeneration, "")
	require.True(t, ok)
	assert.Equal(t, "stability", a.Name())
}

func TestSelectAdapterRequiresCapability(t *testing.T) {
	o := newTestOrchestrator(t, nil,
		newMockAdapter("openai", true, CapGeneration),
	)

	_, ok := o.SelectAdapter(context.Background(), CapTransparency, "")
	assert.False(t, ok)
}

func TestAvailableAdaptersSkipsPanickingProbe(t *testing.T) {
	healthy := newMockAdapter("openai", true, CapGeneration)
	broken := newMockAdapter("stability", true, CapGeneration)
	broken.panicOnProbe = true
	o := newTestOrchestrator(t, nil, healthy, broken)

	available := o.AvailableAdapters(context.Background())
	require.Len(t, available, 1)
	assert.Equal(t, "openai", available[0].Name())
}

func TestGenerateImageHappyPath(t *testing.T) {
	adapter := newMockAdapter("openai", true, CapGeneration)
	o := newTestOrchestrator(t, nil, adapter)

	result := o.GenerateImage(context.Background(), &GenerationRequest{Prompt: "a red fox"})
	require.True(t, result.Success)
	assert.Equal(t, "openai", result.Backend)
	assert.NotEmpty(t, result.RequestID)
	assert.False(t, result.Cached)
	require.Len(t, result.Images, 1)
	assert.EqualValues(t, 1, adapter.generateCalls.Load())
}

func TestGenerateImageSecondCallServedFromCache(t *testing.T) {
	adapter := newMockAdapter("openai", true, CapGeneration)
	o := newTestOrchestrator(t, newFakeCache(), adapter)

	req := &GenerationRequest{Prompt: "a quiet harbor at dawn"}
	first := o.GenerateImage(context.Background(), req)
	require.True(t, first.Success)
	assert.False(t, first.Cached)

	second := o.GenerateImage(context.Background(), req)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Backend, second.Backend)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.EqualValues(t, 1, adapter.generateCalls.Load(), "cached call must not reach the adapter")
}

func TestGenerateImageFallsBackOnceOnFailure(t *testing.T) {
	failing := newMockAdapter("openai", true, CapGeneration)
	failing.generateErr = types.NewError(types.ErrTimeout, "deadline exceeded")
	backup := newMockAdapter("stability", true, CapGeneration)
	o := newTestOrchestrator(t, nil, failing, backup)

	result := o.GenerateImage(context.Background(), &GenerationRequest{Prompt: "a lighthouse"})
	require.True(t, result.Success)
	assert.Equal(t, "stability", result.Backend)
	assert.EqualValues(t, 1, failing.generateCalls.Load())
	assert.EqualValues(t, 1, backup.generateCalls.Load())

	// The failed adapter stays configured and reported.
	stats := o.ProviderStats(context.Background())
	names := make([]string, 0, len(stats))
	for _, s := range stats {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "openai")
}

func TestGenerateImageBothBackendsFail(t *testing.T) {
	a := newMockAdapter("openai", true, CapGeneration)
	a.generateErr = types.NewError(types.ErrServiceUnavailable, "overloaded")
	b := newMockAdapter("stability", true, CapGeneration)
	b.generateErr = types.NewError(types.ErrServiceUnavailable, "overloaded")
	o := newTestOrchestrator(t, nil, a, b)

	result := o.GenerateImage(context.Background(), &GenerationRequest{Prompt: "a lighthouse"})
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrServiceUnavailable), result.ErrorCode)
	assert.True(t, result.Retryable)
	assert.NotEmpty(t, result.Error)
	assert.EqualValues(t, 1, a.generateCalls.Load())
	assert.EqualValues(t, 1, b.generateCalls.Load(), "fallback is one-shot")
}

func TestGenerateImageInvalidRequestFailsFast(t *testing.T) {
	adapter := newMockAdapter("openai", true, CapGeneration)
	o := newTestOrchestrator(t, nil, adapter)

	result := o.GenerateImage(context.Background(), &GenerationRequest{
		Prompt:     "a mural",
		Dimensions: &Dimensions{Width: 4000, Height: 1024},
	})
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), result.ErrorCode)
	assert.False(t, result.Retryable)
	assert.EqualValues(t, 0, adapter.generateCalls.Load(), "validation failure must not reach any backend")
	assert.EqualValues(t, 0, adapter.probeCalls.Load())
}

func TestGenerateImageNoCapableBackend(t *testing.T) {
	o := newTestOrchestrator(t, nil, newMockAdapter("gemini", false, CapGeneration))

	result := o.GenerateImage(context.Background(), &GenerationRequest{Prompt: "anything"})
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrFeatureNotAvailable), result.ErrorCode)
}

func TestGenerateImageEmptyResponseIsInvalidResponse(t *testing.T) {
	adapter := newMockAdapter("openai", true, CapGeneration)
	adapter.generateErr = nil
	o := newTestOrchestrator(t, nil, &emptyResultAdapter{mockAdapter: adapter})

	result := o.GenerateImage(context.Background(), &GenerationRequest{Prompt: "a void"})
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrInvalidResponse), result.ErrorCode)
}

// emptyResultAdapter reports success with no images.
type emptyResultAdapter struct {
	*mockAdapter
}

func (a *emptyResultAdapter) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	a.generateCalls.Add(1)
	return &GenerationResult{Success: true, Backend: a.name}, nil
}

func TestGenerateImageTransparentLogoRoutesToLogoCapability(t *testing.T) {
	logoOnly := newMockAdapter("stability", true, CapGeneration, CapLogo, CapTransparency)
	plain := newMockAdapter("gemini", true, CapGeneration)
	o := newTestOrchestrator(t, nil, logoOnly, plain)

	result := o.GenerateImage(context.Background(), &GenerationRequest{
		Prompt:      "company mark",
		Style:       "logo",
		Transparent: true,
	})
	require.True(t, result.Success)
	assert.Equal(t, "stability", result.Backend)
	assert.EqualValues(t, 0, plain.generateCalls.Load())
}

func TestDescribeImage(t *testing.T) {
	vision := newMockAdapter("gemini", true, CapGeneration, CapDescription)
	vision.describeText = "a fox crossing a snowy field"
	o := newTestOrchestrator(t, nil, vision)

	result := o.DescribeImage(context.Background(), "https://example.com/fox.png")
	require.True(t, result.Success)
	assert.Equal(t, "a fox crossing a snowy field", result.Description)
	assert.Equal(t, "gemini", result.Backend)
}

func TestDescribeImageEmptyURL(t *testing.T) {
	o := newTestOrchestrator(t, nil, newMockAdapter("gemini", true, CapDescription))

	result := o.DescribeImage(context.Background(), "   ")
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), result.ErrorCode)
}

func TestDescribeImageNoVisionBackend(t *testing.T) {
	o := newTestOrchestrator(t, nil, newMockAdapter("stability", true, CapGeneration))

	result := o.DescribeImage(context.Background(), "https://example.com/x.png")
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrFeatureNotAvailable), result.ErrorCode)
}

func TestDescribeImageFallsBack(t *testing.T) {
	failing := newMockAdapter("gemini", true, CapDescription)
	failing.describeErr = types.NewError(types.ErrServiceUnavailable, "down")
	backup := newMockAdapter("openai", true, CapDescription)
	backup.describeText = "backup description"
	o := newTestOrchestrator(t, nil, failing, backup)

	result := o.DescribeImage(context.Background(), "https://example.com/x.png")
	require.True(t, result.Success)
	assert.Equal(t, "openai", result.Backend)
	assert.Equal(t, "backup description", result.Description)
}

func TestTagImage(t *testing.T) {
	vision := newMockAdapter("gemini", true, CapTagging)
	vision.tags = []string{"fox", "snow", "winter"}
	o := newTestOrchestrator(t, nil, vision)

	result := o.TagImage(context.Background(), "https://example.com/fox.png")
	require.True(t, result.Success)
	assert.Equal(t, []string{"fox", "snow", "winter"}, result.Tags)
	assert.Equal(t, "gemini", result.Backend)
}

func TestTagImageEmptyURL(t *testing.T) {
	o := newTestOrchestrator(t, nil, newMockAdapter("gemini", true, CapTagging))

	result := o.TagImage(context.Background(), "")
	require.False(t, result.Success)
	assert.Equal(t, string(types.ErrInvalidRequest), result.ErrorCode)
}

func TestCapabilitiesAggregatesAvailableAdapters(t *testing.T) {
	o := newTestOrchestrator(t, nil,
		newMockAdapter("openai", true, CapGeneration, CapDescription),
		newMockAdapter("stability", true, CapGeneration, CapTransparency),
		newMockAdapter("gemini", false, CapTagging),
	)

	caps := o.Capabilities(context.Background())
	assert.True(t, caps.Generation)
	assert.True(t, caps.Description)
	assert.True(t, caps.Transparency)
	assert.False(t, caps.Tagging, "unavailable adapters must not contribute")
	assert.Equal(t, 4, caps.MaxImageCount)
	assert.ElementsMatch(t, []Format{FormatPNG, FormatJPEG}, caps.Formats)
}

func TestProviderStatsIncludesUnavailableAdapters(t *testing.T) {
	o := newTestOrchestrator(t, nil,
		newMockAdapter("openai", true, CapGeneration),
		newMockAdapter("gemini", false, CapGeneration),
	)

	stats := o.ProviderStats(context.Background())
	require.Len(t, stats, 2)
	byName := make(map[string]ProviderStats, 2)
	for _, s := range stats {
		byName[s.Name] = s
	}
	assert.True(t, byName["openai"].Available)
	assert.False(t, byName["gemini"].Available)
}
