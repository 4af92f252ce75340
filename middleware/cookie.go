package middleware

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie the refresh helpers read and write.
const RefreshCookieName = "refresh_token"

// CookiePolicy controls the attributes of the refresh-token cookie. The zero
// value scopes the cookie to "/" with SameSite=Strict and no Secure flag;
// production deployments should set Secure from their TLS posture, typically
// Config.Security.RequireSecureCookies.
type CookiePolicy struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
}

func (p CookiePolicy) path() string {
	if p.Path == "" {
		return "/"
	}
	return p.Path
}

func (p CookiePolicy) sameSite() http.SameSite {
	if p.SameSite == 0 {
		return http.SameSiteStrictMode
	}
	return p.SameSite
}

// SetRefreshCookie writes the refresh token as an HttpOnly cookie expiring at
// the token's own expiry. HttpOnly is not configurable; the refresh token
// never travels to script.
func SetRefreshCookie(w http.ResponseWriter, policy CookiePolicy, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     policy.path(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   policy.Secure,
		SameSite: policy.sameSite(),
	})
}

// ClearRefreshCookie expires the refresh cookie. Callers pair this with
// Engine.Terminate so the server-side lineage dies with the cookie.
func ClearRefreshCookie(w http.ResponseWriter, policy CookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     policy.path(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.Secure,
		SameSite: policy.sameSite(),
	})
}

// RefreshTokenFromRequest extracts the refresh token from the request cookie.
func RefreshTokenFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
