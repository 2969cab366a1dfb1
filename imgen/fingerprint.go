package imgen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// fingerprintFields is the semantically relevant subset of a
// GenerationRequest. Two requests that differ only outside these fields
// must produce the same fingerprint; a difference in any of them must
// produce a different one.
type fingerprintFields struct {
	Prompt         string      `json:"prompt"`
	Style          string      `json:"style,omitempty"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
	Quality        Quality     `json:"quality,omitempty"`
	Count          int         `json:"count,omitempty"`
	Format         Format      `json:"format,omitempty"`
	Transparent    bool        `json:"transparent,omitempty"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	Seed           *int64      `json:"seed,omitempty"`
}

// Fingerprint derives the deterministic cache key for a request.
func Fingerprint(req *GenerationRequest) string {
	norm := NormalizeRequest(req)
	data, _ := json.Marshal(fingerprintFields{
		Prompt:         strings.TrimSpace(norm.Prompt),
		Style:          norm.Style,
		Dimensions:     norm.Dimensions,
		Quality:        norm.Quality,
		Count:          norm.Count,
		Format:         norm.Format,
		Transparent:    norm.Transparent,
		NegativePrompt: norm.NegativePrompt,
		Seed:           norm.Seed,
	})
	sum := sha256.Sum256(data)
	return "imgen:cache:" + hex.EncodeToString(sum[:16])
}

// ResultCache is the cache surface the orchestrator consumes. Lookups
// never fail: a miss, an expired entry, or a broken backing store all
// read as absent.
type ResultCache interface {
	Get(req *GenerationRequest) (*GenerationResult, bool)
	Set(req *GenerationRequest, result *GenerationResult)
}
