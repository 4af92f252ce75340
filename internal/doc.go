// Package internal contains helper utilities that are intentionally private to tokenlife,
// including secure random generation for session identifiers and refresh secrets.
//
// # Sub-packages
//
//   - rate — core Redis-backed rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public tokenlife API.
//   - Be imported by any package outside the tokenlife module.
package internal
