// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

// Package openai adapts the OpenAI image and vision APIs (DALL·E
// generation, GPT vision describe/tag) to the imgen adapter contract.
package openai
