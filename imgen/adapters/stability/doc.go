// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

// Package stability adapts the Stability AI text-to-image API
// (Stable Diffusion) to the imgen adapter contract. It carries the
// negative-prompt and seed parameters DALL·E lacks, and services
// transparent output through the shared background-removal post-process.
package stability
