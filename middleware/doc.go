// Package middleware exposes net/http adapters for token validation and
// refresh-cookie transport built on top of tokenlife.Engine.
//
// # Guards
//
//   - [Guard]: reads the Authorization header, validates the bearer token,
//     and injects the claims into the request context.
//   - [RequireRole]: Guard plus a role check against the token claims.
//
// Handlers behind a guard recover the claims with [TokenFromContext].
//
// # Refresh cookie transport
//
// [SetRefreshCookie], [ClearRefreshCookie], and [RefreshTokenFromRequest]
// move the refresh token through an HttpOnly cookie so it never rides in
// response bodies or script-visible storage. [CookiePolicy] carries the
// deployment's Path, Secure, and SameSite choices.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. All token
// decisions are delegated to Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Touch the session store (the Engine owns all I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Validate
//     and the declared role check.
package middleware
