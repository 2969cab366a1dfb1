package imgen

import "context"

// Adapter is the contract every backend integration implements.
// Implementations own their client handles and must be safe for
// concurrent use; they report failures as *types.Error values.
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() string

	// Capabilities returns the declared capability set. It is fixed at
	// construction; optional operations (describe/tag) are discovered
	// through the set plus the Describer/Tagger interfaces, never by
	// calling and catching "not supported".
	Capabilities() CapabilitySet

	// IsAvailable is a cheap liveness probe (typically a list-models
	// call). It never returns an error: any probe failure is false.
	IsAvailable(ctx context.Context) bool

	// Generate produces images for a validated request.
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error)

	// SupportedFormats lists the output encodings the adapter can return.
	SupportedFormats() []Format

	// SupportedDimensions lists the sizes the backend accepts natively.
	// Other in-bounds sizes are serviced by post-process resizing.
	SupportedDimensions() []Dimensions

	// MaxImageCount is the largest Count the backend accepts per call.
	MaxImageCount() int

	// Info aggregates the introspection surface above.
	Info() AdapterInfo
}

// Describer is implemented by adapters that can describe an image.
// An adapter advertising CapDescription must also implement Describer.
type Describer interface {
	Describe(ctx context.Context, url string) (string, error)
}

// Tagger is implemented by adapters that can tag an image.
// An adapter advertising CapTagging must also implement Tagger.
type Tagger interface {
	Tag(ctx context.Context, url string) ([]string, error)
}

// describerFor returns the Describer behind a if it both declares the
// capability and implements the interface.
func describerFor(a Adapter) (Describer, bool) {
	if !a.Capabilities().Has(CapDescription) {
		return nil, false
	}
	d, ok := a.(Describer)
	return d, ok
}

// taggerFor is the tagging analogue of describerFor.
func taggerFor(a Adapter) (Tagger, bool) {
	if !a.Capabilities().Has(CapTagging) {
		return nil, false
	}
	t, ok := a.(Tagger)
	return t, ok
}
