// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared error taxonomy for the ImageFlow core.

types is the lowest-level public package and depends on nothing inside the
module. Every failure that crosses a package boundary — adapter calls,
retry exhaustion, validation, cache I/O — is normalized into an [*Error]
carrying a stable [ErrorCode], a [Severity], a retryability flag and a
user-facing message, so that callers never have to inspect raw transport
errors.

Retryability is derived deterministically from the code via
[DefaultRetryable] unless a producer overrides it with
[Error.WithRetryable]; the retry executor in imgen treats this as the
single source of truth.
*/
package types
