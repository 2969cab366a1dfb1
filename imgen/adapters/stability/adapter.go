package stability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imgen"
	"github.com/BaSui01/imageflow/types"
)

// Name is the adapter's registry identifier.
const Name = "stability"

// Config configures the Stability adapter.
type Config struct {
	APIKey  string             `json:"api_key" yaml:"api_key"`
	BaseURL string             `json:"base_url" yaml:"base_url"`
	Engine  string             `json:"engine,omitempty" yaml:"engine,omitempty"`
	Timeout time.Duration      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry   *imgen.RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// DefaultConfig returns the default Stability adapter configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.stability.ai",
		Engine:  "stable-diffusion-xl-1024-v1-0",
		Timeout: 120 * time.Second,
	}
}

// Adapter implements imgen.Adapter over the Stability REST API.
type Adapter struct {
	cfg      Config
	client   *http.Client
	executor *imgen.Executor
	caps     imgen.CapabilitySet
	logger   *zap.Logger
}

// New creates the Stability adapter.
func New(cfg Config, logger *zap.Logger, opts ...imgen.ExecutorOption) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Engine == "" {
		cfg.Engine = DefaultConfig().Engine
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := cfg.Retry
	if policy == nil {
		policy = imgen.DefaultRetryPolicy()
	}
	if policy.AttemptTimeout <= 0 || policy.AttemptTimeout > cfg.Timeout {
		p := *policy
		p.AttemptTimeout = cfg.Timeout
		policy = &p
	}

	return &Adapter{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		executor: imgen.NewExecutor(Name, policy, logger, opts...),
		caps: imgen.NewCapabilitySet(
			imgen.CapGeneration,
			imgen.CapTransparency,
			imgen.CapLogo,
		),
		logger: logger.With(zap.String("backend", Name)),
	}
}

// Name implements imgen.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements imgen.Adapter.
func (a *Adapter) Capabilities() imgen.CapabilitySet { return a.caps.Clone() }

// IsAvailable probes the engines listing.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.endpoint("/v1/engines/list"), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SupportedFormats implements imgen.Adapter.
func (a *Adapter) SupportedFormats() []imgen.Format {
	return []imgen.Format{imgen.FormatPNG, imgen.FormatJPEG}
}

// SupportedDimensions lists SDXL's native sizes.
func (a *Adapter) SupportedDimensions() []imgen.Dimensions {
	return []imgen.Dimensions{
		{Width: 1024, Height: 1024},
		{Width: 1152, Height: 896},
		{Width: 896, Height: 1152},
		{Width: 1344, Height: 768},
		{Width: 768, Height: 1344},
	}
}

// MaxImageCount implements imgen.Adapter.
func (a *Adapter) MaxImageCount() int { return 10 }

// Info implements imgen.Adapter.
func (a *Adapter) Info() imgen.AdapterInfo {
	return imgen.AdapterInfo{
		Name:          Name,
		Capabilities:  a.caps.List(),
		Formats:       a.SupportedFormats(),
		Dimensions:    a.SupportedDimensions(),
		MaxImageCount: a.MaxImageCount(),
	}
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type generateRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	Width       int          `json:"width,omitempty"`
	Height      int          `json:"height,omitempty"`
	Samples     int          `json:"samples,omitempty"`
	Seed        int64        `json:"seed,omitempty"`
	Steps       int          `json:"steps,omitempty"`
	CFGScale    float64      `json:"cfg_scale,omitempty"`
}

type generateResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// Generate implements imgen.Adapter.
func (a *Adapter) Generate(ctx context.Context, req *imgen.GenerationRequest) (*imgen.GenerationResult, error) {
	if err := imgen.ValidateRequest(req); err != nil {
		return nil, err
	}
	norm := imgen.NormalizeRequest(req)

	body := generateRequest{
		TextPrompts: []textPrompt{{Text: imgen.ComposePrompt(norm), Weight: 1}},
		Samples:     norm.Count,
	}
	if norm.NegativePrompt != "" {
		body.TextPrompts = append(body.TextPrompts,
			textPrompt{Text: imgen.SanitizePrompt(norm.NegativePrompt), Weight: -1})
	}
	native := a.nearestDimensions(norm.Dimensions)
	body.Width = native.Width
	body.Height = native.Height
	if norm.Seed != nil {
		body.Seed = *norm.Seed
	}
	if norm.Quality == imgen.QualityHD {
		body.Steps = 50
	}

	resp, err := imgen.Do(ctx, a.executor, "generate", func(ctx context.Context) (*generateResponse, error) {
		return a.postGenerate(ctx, &body)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Artifacts) == 0 {
		return nil, types.NewError(types.ErrInvalidResponse, "empty artifact list").WithBackend(Name)
	}

	images := make([]imgen.GeneratedImage, 0, len(resp.Artifacts))
	for _, artifact := range resp.Artifacts {
		if artifact.FinishReason == "CONTENT_FILTERED" {
			return nil, types.NewError(types.ErrContentPolicyViolation,
				"generation was filtered by the backend's safety system").WithBackend(Name)
		}
		raw, err := base64.StdEncoding.DecodeString(artifact.Base64)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidResponse,
				fmt.Sprintf("invalid base64 artifact: %v", err)).WithBackend(Name).WithCause(err)
		}

		processed, format, dims, err := imgen.PostProcess(raw, norm, imgen.FormatPNG, false)
		if err != nil {
			return nil, err
		}
		seed := artifact.Seed
		images = append(images, imgen.GeneratedImage{
			Data:       processed,
			Format:     format,
			Dimensions: dims,
			ByteSize:   len(processed),
			Metadata: imgen.ImageMetadata{
				Prompt:      norm.Prompt,
				Style:       norm.Style,
				Backend:     Name,
				Model:       a.cfg.Engine,
				GeneratedAt: time.Now(),
				Seed:        &seed,
			},
		})
	}

	return &imgen.GenerationResult{
		Success: true,
		Images:  images,
		Backend: Name,
	}, nil
}

func (a *Adapter) postGenerate(ctx context.Context, body *generateRequest) (*generateResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint("/v1/generation/"+a.cfg.Engine+"/text-to-image"),
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, imgen.MapHTTPStatus(resp.StatusCode, imgen.ReadErrorMessage(resp.Body), Name)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrInvalidResponse,
			fmt.Sprintf("decode response: %v", err)).WithBackend(Name).WithCause(err)
	}
	return &out, nil
}

// nearestDimensions maps a requested size to the closest native SDXL
// size by aspect ratio; exact output size is restored by resizing.
func (a *Adapter) nearestDimensions(d *imgen.Dimensions) imgen.Dimensions {
	supported := a.SupportedDimensions()
	if d == nil {
		return supported[0]
	}
	want := float64(d.Width) / float64(d.Height)
	best := supported[0]
	bestDiff := ratioDiff(best, want)
	for _, candidate := range supported[1:] {
		if diff := ratioDiff(candidate, want); diff < bestDiff {
			best, bestDiff = candidate, diff
		}
	}
	return best
}

func ratioDiff(d imgen.Dimensions, want float64) float64 {
	r := float64(d.Width) / float64(d.Height)
	if r > want {
		return r - want
	}
	return want - r
}

func (a *Adapter) endpoint(path string) string {
	return strings.TrimRight(a.cfg.BaseURL, "/") + path
}
