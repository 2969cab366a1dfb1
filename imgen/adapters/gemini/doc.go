// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

// Package gemini adapts Google's Gemini models to the imgen adapter
// contract: image generation through the image-capable models and
// describe/tag through multimodal prompting.
package gemini
