package imgen

import (
	"fmt"
	"time"
)

// Quality selects the rendering tier offered by most generation APIs.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
)

// Format is the requested output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// Dimensions is a requested or reported image size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String renders the size in the "WxH" form backends use.
func (d Dimensions) String() string {
	if d.Width == 0 && d.Height == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// GenerationRequest is one image generation request. It is created per
// call, treated as immutable, and discarded after use.
type GenerationRequest struct {
	Prompt         string      `json:"prompt"`
	Style          string      `json:"style,omitempty"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
	Quality        Quality     `json:"quality,omitempty"`
	Count          int         `json:"count,omitempty"`
	Format         Format      `json:"format,omitempty"`
	Transparent    bool        `json:"transparent,omitempty"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	Seed           *int64      `json:"seed,omitempty"`

	// Metadata is free-form caller context (trace IDs, tenant, ...).
	// It never influences backend selection or the cache fingerprint.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ImageMetadata describes how a single image was produced.
type ImageMetadata struct {
	Prompt        string    `json:"prompt"`
	Style         string    `json:"style,omitempty"`
	Backend       string    `json:"backend"`
	Model         string    `json:"model,omitempty"`
	GeneratedAt   time.Time `json:"generated_at"`
	Seed          *int64    `json:"seed,omitempty"`
	RevisedPrompt string    `json:"revised_prompt,omitempty"`
}

// GeneratedImage is one normalized output image. Exactly one of URL and
// Data is set depending on what the backend returned.
type GeneratedImage struct {
	URL        string        `json:"url,omitempty"`
	Data       []byte        `json:"data,omitempty"`
	Format     Format        `json:"format"`
	Dimensions Dimensions    `json:"dimensions"`
	ByteSize   int           `json:"byte_size,omitempty"`
	Metadata   ImageMetadata `json:"metadata"`
}

// GenerationResult is the normalized outcome of a generation request.
type GenerationResult struct {
	Success   bool             `json:"success"`
	Images    []GeneratedImage `json:"images,omitempty"`
	Backend   string           `json:"backend,omitempty"`
	RequestID string           `json:"request_id"`
	Cached    bool             `json:"cached,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorCode string           `json:"error_code,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
}

// DescriptionResult is the normalized outcome of a describe request.
type DescriptionResult struct {
	Success     bool   `json:"success"`
	Description string `json:"description,omitempty"`
	Backend     string `json:"backend,omitempty"`
	RequestID   string `json:"request_id"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Retryable   bool   `json:"retryable,omitempty"`
}

// TagResult is the normalized outcome of a tagging request.
type TagResult struct {
	Success   bool     `json:"success"`
	Tags      []string `json:"tags,omitempty"`
	Backend   string   `json:"backend,omitempty"`
	RequestID string   `json:"request_id"`
	Error     string   `json:"error,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
}

// Capability names one thing an adapter may be able to do.
type Capability string

const (
	CapGeneration   Capability = "generation"
	CapDescription  Capability = "description"
	CapTagging      Capability = "tagging"
	CapTransparency Capability = "transparency"
	CapLogo         Capability = "logo"
)

// CapabilitySet is the declared capability surface of an adapter.
// Immutable after construction; adapters hand out copies.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// Clone returns an independent copy.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c, ok := range s {
		out[c] = ok
	}
	return out
}

// List returns the contained capabilities in stable order.
func (s CapabilitySet) List() []Capability {
	order := []Capability{CapGeneration, CapDescription, CapTagging, CapTransparency, CapLogo}
	out := make([]Capability, 0, len(s))
	for _, c := range order {
		if s[c] {
			out = append(out, c)
		}
	}
	return out
}

// AdapterInfo aggregates an adapter's introspection surface.
type AdapterInfo struct {
	Name          string       `json:"name"`
	Capabilities  []Capability `json:"capabilities"`
	Formats       []Format     `json:"formats"`
	Dimensions    []Dimensions `json:"dimensions"`
	MaxImageCount int          `json:"max_image_count"`
}

// ProviderStats is one configured adapter's status as reported to the
// tool layer. Unavailable adapters still appear with Available=false.
type ProviderStats struct {
	Name          string       `json:"name"`
	Available     bool         `json:"available"`
	Capabilities  []Capability `json:"capabilities"`
	Formats       []Format     `json:"formats"`
	MaxImageCount int          `json:"max_image_count"`
}

// Capabilities is the aggregate capability view across available
// adapters. All zero when no adapter is reachable.
type Capabilities struct {
	Generation    bool     `json:"generation"`
	Description   bool     `json:"description"`
	Tagging       bool     `json:"tagging"`
	Transparency  bool     `json:"transparency"`
	Logo          bool     `json:"logo"`
	Formats       []Format `json:"formats,omitempty"`
	MaxImageCount int      `json:"max_image_count"`
}
