// Package jwt manages access-token issuance and verification using configured signing keys
// and strict validation semantics suitable for low-latency authentication paths.
//
// Verification is stateless: no session-store lookup happens here, so the
// request path stays O(1) and independent of store availability. Revocation is
// enforced at refresh time, not per request.
package jwt
