package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/imgen"
	"github.com/BaSui01/imageflow/types"
)

// Name is the adapter's registry identifier.
const Name = "openai"

// Config configures the OpenAI adapter.
type Config struct {
	APIKey      string             `json:"api_key" yaml:"api_key"`
	BaseURL     string             `json:"base_url" yaml:"base_url"`
	Model       string             `json:"model,omitempty" yaml:"model,omitempty"`
	VisionModel string             `json:"vision_model,omitempty" yaml:"vision_model,omitempty"`
	Timeout     time.Duration      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry       *imgen.RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// DefaultConfig returns the default OpenAI adapter configuration.
func DefaultConfig() Config {
	return Config{
		Model:       openai.CreateImageModelDallE3,
		VisionModel: openai.GPT4o,
		Timeout:     120 * time.Second,
	}
}

// Adapter implements imgen.Adapter over the OpenAI API.
type Adapter struct {
	cfg      Config
	client   *openai.Client
	executor *imgen.Executor
	caps     imgen.CapabilitySet
	logger   *zap.Logger
}

// New creates the OpenAI adapter.
func New(cfg Config, logger *zap.Logger, opts ...imgen.ExecutorOption) *Adapter {
	if cfg.Model == "" {
		cfg.Model = openai.CreateImageModelDallE3
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = openai.GPT4o
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
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
		client:   openai.NewClientWithConfig(clientCfg),
		executor: imgen.NewExecutor(Name, policy, logger, opts...),
		caps: imgen.NewCapabilitySet(
			imgen.CapGeneration,
			imgen.CapDescription,
			imgen.CapTagging,
			imgen.CapLogo,
		),
		logger: logger.With(zap.String("backend", Name)),
	}
}

// Name implements imgen.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements imgen.Adapter.
func (a *Adapter) Capabilities() imgen.CapabilitySet { return a.caps.Clone() }

// IsAvailable probes the API with a list-models call.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	_, err := a.client.ListModels(ctx)
	return err == nil
}

// SupportedFormats implements imgen.Adapter. WebP is absent: DALL·E
// returns PNG and there is no local webp encoder.
func (a *Adapter) SupportedFormats() []imgen.Format {
	return []imgen.Format{imgen.FormatPNG, imgen.FormatJPEG}
}

// SupportedDimensions lists DALL·E 3's native sizes.
func (a *Adapter) SupportedDimensions() []imgen.Dimensions {
	return []imgen.Dimensions{
		{Width: 1024, Height: 1024},
		{Width: 1792, Height: 1024},
		{Width: 1024, Height: 1792},
	}
}

// MaxImageCount implements imgen.Adapter. DALL·E 3 renders one image
// per call; larger counts are served by repeated calls.
func (a *Adapter) MaxImageCount() int { return 4 }

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

// Generate implements imgen.Adapter.
func (a *Adapter) Generate(ctx context.Context, req *imgen.GenerationRequest) (*imgen.GenerationResult, error) {
	if err := imgen.ValidateRequest(req); err != nil {
		return nil, err
	}
	norm := imgen.NormalizeRequest(req)
	prompt := imgen.ComposePrompt(norm)
	size := a.nearestSize(norm.Dimensions)

	quality := openai.CreateImageQualityStandard
	if norm.Quality == imgen.QualityHD {
		quality = openai.CreateImageQualityHD
	}

	images := make([]imgen.GeneratedImage, 0, norm.Count)
	// DALL·E 3 accepts n=1 only, so counts above one become repeated
	// calls, each retried independently.
	for i := 0; i < norm.Count; i++ {
		resp, err := imgen.Do(ctx, a.executor, "generate", func(ctx context.Context) (openai.ImageResponse, error) {
			resp, err := a.client.CreateImage(ctx, openai.ImageRequest{
				Model:          a.cfg.Model,
				Prompt:         prompt,
				N:              1,
				Size:           size,
				Quality:        quality,
				ResponseFormat: openai.CreateImageResponseFormatB64JSON,
			})
			if err != nil {
				return openai.ImageResponse{}, mapError(err)
			}
			return resp, nil
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return nil, types.NewError(types.ErrInvalidResponse, "empty image response").WithBackend(Name)
		}

		img, err := a.normalizeImage(resp.Data[0], norm, prompt)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	return &imgen.GenerationResult{
		Success: true,
		Images:  images,
		Backend: Name,
	}, nil
}

func (a *Adapter) normalizeImage(data openai.ImageResponseDataInner, req *imgen.GenerationRequest, prompt string) (imgen.GeneratedImage, error) {
	raw, err := base64.StdEncoding.DecodeString(data.B64JSON)
	if err != nil {
		return imgen.GeneratedImage{}, types.NewError(types.ErrInvalidResponse,
			fmt.Sprintf("invalid base64 image payload: %v", err)).WithBackend(Name).WithCause(err)
	}

	processed, format, dims, err := imgen.PostProcess(raw, req, imgen.FormatPNG, false)
	if err != nil {
		return imgen.GeneratedImage{}, err
	}

	return imgen.GeneratedImage{
		Data:       processed,
		Format:     format,
		Dimensions: dims,
		ByteSize:   len(processed),
		Metadata: imgen.ImageMetadata{
			Prompt:        req.Prompt,
			Style:         req.Style,
			Backend:       Name,
			Model:         a.cfg.Model,
			GeneratedAt:   time.Now(),
			RevisedPrompt: data.RevisedPrompt,
		},
	}, nil
}

// nearestSize picks the native DALL·E size closest in aspect ratio to
// the requested dimensions; exact output size is restored by resizing.
func (a *Adapter) nearestSize(d *imgen.Dimensions) string {
	if d == nil {
		return openai.CreateImageSize1024x1024
	}
	switch {
	case d.Width > d.Height*5/4:
		return openai.CreateImageSize1792x1024
	case d.Height > d.Width*5/4:
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

const describePrompt = "Describe this image in two or three sentences."

const tagPrompt = "List up to ten short content tags for this image as a comma-separated list. Reply with the tags only."

// Describe implements imgen.Describer via the vision chat endpoint.
func (a *Adapter) Describe(ctx context.Context, url string) (string, error) {
	return a.visionPrompt(ctx, "describe", url, describePrompt, types.ErrDescriptionFailed)
}

// Tag implements imgen.Tagger via the vision chat endpoint.
func (a *Adapter) Tag(ctx context.Context, url string) ([]string, error) {
	text, err := a.visionPrompt(ctx, "tag", url, tagPrompt, types.ErrTaggingFailed)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(text, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := strings.ToLower(strings.TrimSpace(p)); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

func (a *Adapter) visionPrompt(ctx context.Context, operation, url, prompt string, failCode types.ErrorCode) (string, error) {
	return imgen.Do(ctx, a.executor, operation, func(ctx context.Context) (string, error) {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: a.cfg.VisionModel,
			Messages: []openai.ChatCompletionMessage{{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: url}},
				},
			}},
		})
		if err != nil {
			return "", mapError(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", types.NewError(failCode, "empty vision response").WithBackend(Name)
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
}

// mapError converts SDK errors into the shared taxonomy.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Type != "" {
			msg = fmt.Sprintf("%s (type: %s)", msg, apiErr.Type)
		}
		return imgen.MapHTTPStatus(apiErr.HTTPStatusCode, msg, Name).WithCause(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return imgen.MapHTTPStatus(reqErr.HTTPStatusCode, reqErr.Error(), Name).WithCause(err)
	}
	return err
}
