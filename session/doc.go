// Package session provides session-lineage persistence and compact binary session
// encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored as a compact binary format with a fixed-offset header
// (status, revoke reason, generation counter, refresh hash, timestamps) followed
// by length-prefixed strings. The fixed header is what the Redis rotation script
// reads and patches in place; the string section is never touched by Lua.
//
// # Architecture boundaries
//
// This package owns the [Store] contract and its Redis and in-memory backends,
// plus the [Session] model. It does NOT interpret JWT tokens or decide the
// authentication outcome of a refresh attempt; mapping store results onto the
// public error taxonomy belongs to the Engine.
//
// # What this package must NOT do
//
//   - Import tokenlife, jwt, or refresh (no upward imports).
//   - Mint or parse tokens of any kind.
//   - Store plaintext refresh secrets in [Session] fields.
package session
