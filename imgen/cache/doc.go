// Copyright (c) ImageFlow Authors.
// Licensed under the MIT License.

/*
Package cache stores generation results keyed by request fingerprint.

The local [ResultCache] is the authoritative tier: TTL-stamped entries in
a synchronized map, size-bounded with oldest-created-first eviction and at
most one live entry per fingerprint. An optional Redis tier
([RedisCache]) adds best-effort sharing across processes; correctness
never depends on it — Redis failures are logged and read as misses.
*/
package cache
