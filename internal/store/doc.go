// Package store provides durable storage for channel records and objectives.
//
// The store keeps:
//   - Channels: immutable constants plus my index and funding strategy
//   - States: one append-only row per (channel, turn)
//   - Signatures: accumulated per state, at most one per participant
//   - Funding and chain requests: per-asset annotations on a channel
//   - Objectives: the workflow registry keyed by objective id
//   - Nonces: per participant-set channel nonce allocator
//
// # Critical Sections
//
// All mutation goes through LockApp, which serializes work per channel id
// with an in-process mutex and wraps it in one database transaction. An
// error or panic inside the section rolls back every write. Sections on
// different channels run concurrently.
//
// # Idempotency
//
//   - Signatures and chain requests use ON CONFLICT DO NOTHING
//   - Funding stores absolute amounts, never deltas
//   - Objectives have deterministic ids, re-registration is a no-op
//
// # Database Configuration
//
// SQLite (default):
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// PostgreSQL is supported through lib/pq with the same schema; queries are
// written with ? placeholders and rebound.
package store
