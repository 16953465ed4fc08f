// Copyright 2024-2026 Aiku AI

// Package intent implements the per-identity session layer of the bridge:
// one lightweight handle per puppeted Matrix user that lazily performs
// registration and room joins before any action that requires them.
//
// # Core Types
//
// [Manager] owns the shared homeserver configuration and hands out one
// [Intent] per Matrix user ID. Handles are cached for the lifetime of the
// manager.
//
// [Intent] is the per-identity handle. Every room and message operation
// funnels through EnsureJoined and the power-level guard, so callers never
// need to reason about join ordering themselves.
//
// [Transport] abstracts the Matrix client-server API; the production
// implementation wraps a mautrix.Client impersonating the handle's user via
// the appservice user_id query parameter. [StateStore] caches membership
// and power-level facts per (room, user) pair.
package intent
