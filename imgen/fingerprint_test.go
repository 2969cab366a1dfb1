package imgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFingerprintDeterministic(t *testing.T) {
	req := &GenerationRequest{Prompt: "a red fox", Style: "anime", Count: 2}
	assert.Equal(t, Fingerprint(req), Fingerprint(req))
}

func TestFingerprintPrefix(t *testing.T) {
	fp := Fingerprint(&GenerationRequest{Prompt: "a red fox"})
	assert.True(t, strings.HasPrefix(fp, "imgen:cache:"))
	assert.Len(t, strings.TrimPrefix(fp, "imgen:cache:"), 32)
}

func TestFingerprintIgnoresMetadata(t *testing.T) {
	base := &GenerationRequest{Prompt: "a red fox"}
	withMeta := &GenerationRequest{
		Prompt:   "a red fox",
		Metadata: map[string]string{"trace_id": "abc", "tenant": "t1"},
	}
	assert.Equal(t, Fingerprint(base), Fingerprint(withMeta))
}

func TestFingerprintIgnoresPromptPadding(t *testing.T) {
	a := &GenerationRequest{Prompt: "a red fox"}
	b := &GenerationRequest{Prompt: "  a red fox  "}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintNormalizedDefaultsCollide(t *testing.T) {
	// Explicit defaults and omitted values fingerprint the same.
	a := &GenerationRequest{Prompt: "a red fox"}
	b := &GenerationRequest{Prompt: "a red fox", Count: 1, Quality: QualityStandard, Format: FormatPNG}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintSensitiveToSemanticFields(t *testing.T) {
	seed := int64(42)
	base := &GenerationRequest{Prompt: "a red fox"}
	variants := map[string]*GenerationRequest{
		"prompt":          {Prompt: "a blue fox"},
		"style":           {Prompt: "a red fox", Style: "anime"},
		"dimensions":      {Prompt: "a red fox", Dimensions: &Dimensions{Width: 512, Height: 512}},
		"quality":         {Prompt: "a red fox", Quality: QualityHD},
		"count":           {Prompt: "a red fox", Count: 2},
		"format":          {Prompt: "a red fox", Format: FormatJPEG},
		"transparent":     {Prompt: "a red fox", Transparent: true},
		"negative prompt": {Prompt: "a red fox", NegativePrompt: "blurry"},
		"seed":            {Prompt: "a red fox", Seed: &seed},
	}
	for field, variant := range variants {
		t.Run(field, func(t *testing.T) {
			assert.NotEqual(t, Fingerprint(base), Fingerprint(variant),
				"changing %s must change the fingerprint", field)
		})
	}
}

func TestFingerprintMetadataInvarianceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := &GenerationRequest{
			Prompt:         rapid.StringN(1, 200, -1).Draw(t, "prompt"),
			Style:          rapid.SampledFrom([]string{"", "anime", "sketch", "logo"}).Draw(t, "style"),
			Quality:        rapid.SampledFrom([]Quality{"", QualityStandard, QualityHD}).Draw(t, "quality"),
			Count:          rapid.IntRange(0, MaxImageCount).Draw(t, "count"),
			Format:         rapid.SampledFrom([]Format{"", FormatPNG, FormatJPEG}).Draw(t, "format"),
			Transparent:    rapid.Bool().Draw(t, "transparent"),
			NegativePrompt: rapid.StringN(0, 100, -1).Draw(t, "negative"),
		}

		decorated := *req
		decorated.Metadata = rapid.MapOf(
			rapid.StringN(1, 16, -1),
			rapid.StringN(0, 16, -1),
		).Draw(t, "metadata")

		if Fingerprint(req) != Fingerprint(&decorated) {
			t.Fatalf("metadata changed the fingerprint")
		}
	})
}

func TestFingerprintPromptSensitivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringN(1, 100, -1).Draw(t, "a")
		b := rapid.StringN(1, 100, -1).Draw(t, "b")
		if strings.TrimSpace(a) == strings.TrimSpace(b) {
			t.Skip("identical after normalization")
		}
		fa := Fingerprint(&GenerationRequest{Prompt: a})
		fb := Fingerprint(&GenerationRequest{Prompt: b})
		if fa == fb {
			t.Fatalf("distinct prompts %q and %q collided", a, b)
		}
	})
}
