package auth

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie that carries the refresh token.
const RefreshCookieName = "refreshToken"

// CookieWriter sets and clears the refresh cookie with one consistent set of
// attributes. A cookie is only replaced or removed by the browser when name,
// path and domain match, so issuing and clearing must agree.
type CookieWriter struct {
	secure bool
	maxAge time.Duration
}

// NewCookieWriter returns a writer. secure should be true in production
// (HTTPS only); maxAge is normally the refresh token TTL.
func NewCookieWriter(secure bool, maxAge time.Duration) *CookieWriter {
	return &CookieWriter{secure: secure, maxAge: maxAge}
}

// Set writes the refresh token cookie: HttpOnly so page scripts cannot read
// it, SameSite=Lax so it is not sent on cross-site subrequests.
func (c *CookieWriter) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		Expires:  time.Now().Add(c.maxAge),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the cookie immediately: empty value, epoch expiry, MaxAge<0.
func (c *CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RefreshTokenFrom returns the refresh token sent by the browser, if any.
func RefreshTokenFrom(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
