package imgen

import (
	"fmt"
	"strings"

	"github.com/BaSui01/imageflow/types"
)

// Request bounds shared by every adapter. Requests outside these bounds
// fail fast with INVALID_REQUEST before any network call is made.
const (
	MaxPromptLength         = 4000
	MaxNegativePromptLength = 1000
	MinImageCount           = 1
	MaxImageCount           = 10
	MinDimension            = 64
	MaxDimension            = 2048
	MaxAspectRatio          = 4.0
)

// ValidateRequest checks a GenerationRequest against the shared bounds.
// It returns a non-retryable INVALID_REQUEST error describing the first
// violation found.
func ValidateRequest(req *GenerationRequest) error {
	if req == nil {
		return types.NewError(types.ErrInvalidRequest, "request is nil")
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt must not be empty")
	}
	if len(prompt) > MaxPromptLength {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("prompt exceeds %d characters", MaxPromptLength))
	}

	if len(req.NegativePrompt) > MaxNegativePromptLength {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("negative prompt exceeds %d characters", MaxNegativePromptLength))
	}

	if req.Count != 0 && (req.Count < MinImageCount || req.Count > MaxImageCount) {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("count must be between %d and %d", MinImageCount, MaxImageCount))
	}

	switch req.Quality {
	case "", QualityStandard, QualityHD:
	default:
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("quality %q is not supported", req.Quality))
	}

	switch req.Format {
	case "", FormatPNG, FormatJPEG, FormatWebP:
	default:
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("format %q is not supported", req.Format))
	}

	if req.Dimensions != nil {
		if err := validateDimensions(*req.Dimensions); err != nil {
			return err
		}
	}

	return nil
}

func validateDimensions(d Dimensions) error {
	if d.Width < MinDimension || d.Width > MaxDimension ||
		d.Height < MinDimension || d.Height > MaxDimension {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("dimensions %s outside [%d,%d]", d, MinDimension, MaxDimension))
	}

	ratio := float64(d.Width) / float64(d.Height)
	if ratio > MaxAspectRatio || ratio < 1.0/MaxAspectRatio {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("aspect ratio %s outside [1:4,4:1]", d))
	}
	return nil
}

// NormalizeRequest fills defaults into a validated request: count 1,
// standard quality, png output. It never mutates the caller's value.
func NormalizeRequest(req *GenerationRequest) *GenerationRequest {
	out := *req
	out.Prompt = strings.TrimSpace(out.Prompt)
	if out.Count == 0 {
		out.Count = 1
	}
	if out.Quality == "" {
		out.Quality = QualityStandard
	}
	if out.Format == "" {
		out.Format = FormatPNG
	}
	return &out
}
