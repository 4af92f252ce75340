// Package password implements password hashing and verification with Argon2id.
//
// tokenlife itself never sees a password: callers verify credentials here (or
// against an upstream identity provider) and hand the engine an
// already-authenticated principal.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2] supports transparent parameter upgrades: if a stored hash was
// produced with weaker parameters, [Argon2.NeedsUpgrade] returns true so the
// caller can re-hash on the next successful verification.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy beyond the
// minimum length (reuse history, breach checks) belongs to the caller.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other tokenlife package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
