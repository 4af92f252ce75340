package middleware

import (
	"net/http"

	"github.com/tokenlife/tokenlife"
)

// RequireRole returns middleware that rejects authenticated requests whose
// access token does not carry the given role.
//
// Role checks read the token claims only. A role removed after issuance stays
// effective on outstanding tokens until they expire.
func RequireRole(engine *tokenlife.Engine, role string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := TokenFromContext(r.Context())
			if !ok || !hasRole(tok, role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func hasRole(tok *tokenlife.ValidatedToken, role string) bool {
	for _, have := range tok.Roles {
		if have == role {
			return true
		}
	}
	return false
}
