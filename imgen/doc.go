// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package imgen is the image backend orchestration core.

It owns the adapter registry and the result cache, selects a backend per
request by capability and priority, executes adapter calls through a
shared retry/timeout wrapper, and falls back across backends exactly once
when the primary call fails irrecoverably.

The [Orchestrator] is the only surface the tool layer talks to. Its public
methods never return a Go error for backend failures: they return result
shapes with Success=false carrying a stable error code and a user-facing
message, so the boundary between this core and the request-handling layer
is error-return-based end to end.

Rough shape of a request:

	caller → Orchestrator.GenerateImage
	       → cache lookup ───────────────(hit)──→ result
	       → SelectAdapter(capability, preferred)
	       → Executor.Do(adapter.Generate)   // retry + per-attempt timeout
	       → on failure: classify, one fallback adapter, retry once
	       → on success: write-through cache → result
*/
package imgen
