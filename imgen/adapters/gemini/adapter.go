package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/BaSui01/imageflow/imgen"
	"github.com/BaSui01/imageflow/types"
)

// Name is the adapter's registry identifier.
const Name = "gemini"

// maxDownloadBytes bounds how much of a referenced image is fetched for
// describe/tag calls.
const maxDownloadBytes = 20 << 20

// Config configures the Gemini adapter.
type Config struct {
	APIKey      string             `json:"api_key" yaml:"api_key"`
	Model       string             `json:"model,omitempty" yaml:"model,omitempty"`
	VisionModel string             `json:"vision_model,omitempty" yaml:"vision_model,omitempty"`
	Timeout     time.Duration      `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retry       *imgen.RetryPolicy `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// DefaultConfig returns the default Gemini adapter configuration.
func DefaultConfig() Config {
	return Config{
		Model:       "gemini-2.5-flash-image",
		VisionModel: "gemini-2.5-flash",
		Timeout:     120 * time.Second,
	}
}

// Adapter implements imgen.Adapter over the Gemini API.
type Adapter struct {
	cfg      Config
	client   *genai.Client
	http     *http.Client
	executor *imgen.Executor
	caps     imgen.CapabilitySet
	logger   *zap.Logger
}

// New creates the Gemini adapter. Client construction only validates
// configuration shape; credential problems surface on first use.
func New(cfg Config, logger *zap.Logger, opts ...imgen.ExecutorOption) (*Adapter, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultConfig().VisionModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
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
		client:   client,
		http:     &http.Client{Timeout: 30 * time.Second},
		executor: imgen.NewExecutor(Name, policy, logger, opts...),
		caps: imgen.NewCapabilitySet(
			imgen.CapGeneration,
			imgen.CapDescription,
			imgen.CapTagging,
		),
		logger: logger.With(zap.String("backend", Name)),
	}, nil
}

// Name implements imgen.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements imgen.Adapter.
func (a *Adapter) Capabilities() imgen.CapabilitySet { return a.caps.Clone() }

// IsAvailable probes the configured model.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if a.cfg.APIKey == "" {
		return false
	}
	_, err := a.client.Models.Get(ctx, a.cfg.Model, nil)
	return err == nil
}

// SupportedFormats implements imgen.Adapter.
func (a *Adapter) SupportedFormats() []imgen.Format {
	return []imgen.Format{imgen.FormatPNG, imgen.FormatJPEG}
}

// SupportedDimensions implements imgen.Adapter. Gemini picks its own
// render size; requested dimensions are restored by resizing.
func (a *Adapter) SupportedDimensions() []imgen.Dimensions {
	return []imgen.Dimensions{{Width: 1024, Height: 1024}}
}

// MaxImageCount implements imgen.Adapter.
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

	images := make([]imgen.GeneratedImage, 0, norm.Count)
	for i := 0; i < norm.Count; i++ {
		raw, err := imgen.Do(ctx, a.executor, "generate", func(ctx context.Context) (blobResult, error) {
			return a.generateOne(ctx, prompt, norm)
		})
		if err != nil {
			return nil, err
		}

		nativeFormat := imgen.FormatPNG
		if strings.Contains(raw.mime, "jpeg") {
			nativeFormat = imgen.FormatJPEG
		}
		processed, format, dims, err := imgen.PostProcess(raw.data, norm, nativeFormat, false)
		if err != nil {
			return nil, err
		}
		images = append(images, imgen.GeneratedImage{
			Data:       processed,
			Format:     format,
			Dimensions: dims,
			ByteSize:   len(processed),
			Metadata: imgen.ImageMetadata{
				Prompt:      norm.Prompt,
				Style:       norm.Style,
				Backend:     Name,
				Model:       a.cfg.Model,
				GeneratedAt: time.Now(),
			},
		})
	}

	return &imgen.GenerationResult{
		Success: true,
		Images:  images,
		Backend: Name,
	}, nil
}

type blobResult struct {
	data []byte
	mime string
}

func (a *Adapter) generateOne(ctx context.Context, prompt string, req *imgen.GenerationRequest) (blobResult, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if req.Seed != nil {
		cfg.Seed = genai.Ptr(int32(*req.Seed))
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.Model, genai.Text(prompt), cfg)
	if err != nil {
		return blobResult{}, mapError(err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return blobResult{data: part.InlineData.Data, mime: part.InlineData.MIMEType}, nil
			}
		}
	}
	return blobResult{}, types.NewError(types.ErrInvalidResponse,
		"response contained no image data").WithBackend(Name)
}

const describePrompt = "Describe this image in two or three sentences."

const tagPrompt = "List up to ten short content tags for this image as a comma-separated list. Reply with the tags only."

// Describe implements imgen.Describer.
func (a *Adapter) Describe(ctx context.Context, url string) (string, error) {
	return a.visionPrompt(ctx, "describe", url, describePrompt, types.ErrDescriptionFailed)
}

// Tag implements imgen.Tagger.
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
	data, mime, err := a.download(ctx, url)
	if err != nil {
		return "", err
	}

	return imgen.Do(ctx, a.executor, operation, func(ctx context.Context) (string, error) {
		contents := []*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{MIMEType: mime, Data: data}},
			},
		}}
		resp, err := a.client.Models.GenerateContent(ctx, a.cfg.VisionModel, contents, nil)
		if err != nil {
			return "", mapError(err)
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", types.NewError(failCode, "empty vision response").WithBackend(Name)
		}
		return text, nil
	})
}

// download fetches a referenced image so it can be passed inline; the
// Gemini API does not fetch arbitrary URLs itself.
func (a *Adapter) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", types.NewError(types.ErrDownloadFailed,
			fmt.Sprintf("invalid image url: %v", err)).WithBackend(Name).WithCause(err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, "", types.NewError(types.ErrDownloadFailed,
			fmt.Sprintf("fetch image: %v", err)).WithBackend(Name).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", types.NewError(types.ErrDownloadFailed,
			fmt.Sprintf("fetch image: status %d", resp.StatusCode)).WithBackend(Name)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", types.NewError(types.ErrDownloadFailed,
			fmt.Sprintf("read image: %v", err)).WithBackend(Name).WithCause(err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// mapError converts genai SDK errors into the shared taxonomy.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return imgen.MapHTTPStatus(apiErr.Code, apiErr.Message, Name).WithCause(err)
	}
	return err
}
