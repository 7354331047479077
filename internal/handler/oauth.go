package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/danigit7/E-commerce/internal/auth"
	"github.com/danigit7/E-commerce/internal/service"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 10 * time.Minute
	// oauthExchangeTimeout bounds the two calls to Google made during the
	// callback (token exchange and userinfo).
	oauthExchangeTimeout = 10 * time.Second
)

// Redirect reasons appended as ?error=… to CLIENT_URL/login.
const (
	oauthErrDenied = "oauth_error"  // Google sent error=…, or the state did not match
	oauthErrFailed = "oauth_failed" // exchange, store or account problem
	oauthErrToken  = "token_error"  // our own JWTs could not be issued
)

// GoogleAuthenticator is the part of auth.GoogleProvider the handler uses.
type GoogleAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

// OAuthHandler runs the browser side of "Sign in with Google".
//
// Unlike the JSON endpoints, every outcome here is a REDIRECT: the browser
// arrived by navigation, so it must leave by navigation, back to the SPA.
//
//	success → CLIENT_URL/auth/google/success?token=<access token>
//	failure → CLIENT_URL/login?error=<reason>
//
// The refresh token travels in the cookie as usual; only the short-lived
// access token is put in the URL for the SPA to pick up.
type OAuthHandler struct {
	google    GoogleAuthenticator
	svc       *service.AuthService
	cookies   *auth.CookieWriter
	clientURL string
	secure    bool
	logger    *slog.Logger
}

func NewOAuthHandler(
	google GoogleAuthenticator,
	svc *service.AuthService,
	cookies *auth.CookieWriter,
	clientURL string,
	secure bool,
	logger *slog.Logger,
) *OAuthHandler {
	return &OAuthHandler{
		google:    google,
		svc:       svc,
		cookies:   cookies,
		clientURL: strings.TrimRight(clientURL, "/"),
		secure:    secure,
		logger:    logger,
	}
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /api/auth/google
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived cookie AND sent to Google. Google
// echoes it back on the callback; if the two differ the callback was not
// started by this browser and is rejected.
func (h *OAuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth flow.
//
// HTTP: GET /api/auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state (CSRF check) and clear the single-use cookie
//  2. Bail out if Google reported an error (user denied consent)
//  3. Exchange the code for the Google profile
//  4. Resolve it to a local account and issue our tokens (AuthService)
//  5. Set the refresh cookie and redirect to the SPA
func (h *OAuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || q.Get("state") != stateCookie.Value {
		h.logger.Warn("google callback: state mismatch")
		h.fail(w, r, oauthErrDenied)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	// --- Step 2: provider error ---
	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("google callback: provider returned error", slog.String("error", errParam))
		h.fail(w, r, oauthErrDenied)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.fail(w, r, oauthErrDenied)
		return
	}

	// --- Step 3: exchange ---
	ctx, cancel := context.WithTimeout(r.Context(), oauthExchangeTimeout)
	defer cancel()

	gUser, err := h.google.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("google callback: exchange failed", slog.String("error", err.Error()))
		h.fail(w, r, oauthErrFailed)
		return
	}

	// --- Step 4: local account ---
	res, err := h.svc.LoginWithGoogle(r.Context(), gUser)
	if err != nil {
		h.logger.Warn("google callback: login refused", slog.String("error", err.Error()))
		h.fail(w, r, reasonFor(err))
		return
	}

	// --- Step 5: session ---
	h.cookies.Set(w, res.RefreshToken)
	target := h.clientURL + "/auth/google/success?token=" + url.QueryEscape(res.AccessToken)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.clientURL+"/login?error="+reason, http.StatusSeeOther)
}

// reasonFor tells a signing failure apart from everything else.
func reasonFor(err error) string {
	var tokenErr *service.TokenIssueError
	if errors.As(err, &tokenErr) {
		return oauthErrToken
	}
	return oauthErrFailed
}
