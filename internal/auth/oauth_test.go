package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"golang.org/x/oauth2"
)

// newFakeGoogle starts an httptest server standing in for Google's token and
// userinfo endpoints.
func newFakeGoogle(t *testing.T, profile map[string]any, userInfoStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"google-access","token_type":"Bearer","expires_in":3600}`))
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer google-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(userInfoStatus)
		json.NewEncoder(w).Encode(profile)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestGoogleProvider(srv *httptest.Server) *GoogleProvider {
	return NewGoogleProvider(GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://localhost:5000/api/auth/google/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   srv.URL + "/auth",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: srv.URL + "/userinfo",
	})
}

func TestGoogleProvider_AuthURL(t *testing.T) {
	p := NewGoogleProvider(GoogleConfig{ClientID: "cid", ClientSecret: "sec", CallbackURL: "http://cb"})

	u, err := url.Parse(p.AuthURL("state-123"))
	if err != nil {
		t.Fatalf("AuthURL() is not a URL: %v", err)
	}
	if u.Host != "accounts.google.com" {
		t.Errorf("host = %q, want accounts.google.com", u.Host)
	}

	q := u.Query()
	if q.Get("state") != "state-123" || q.Get("client_id") != "cid" || q.Get("redirect_uri") != "http://cb" {
		t.Errorf("query = %v", q)
	}
	if q.Get("scope") != "openid email profile" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}

func TestGoogleProvider_Exchange(t *testing.T) {
	srv := newFakeGoogle(t, map[string]any{
		"sub":            "google-sub-1",
		"email":          "shopper@gmail.com",
		"email_verified": true,
		"name":           "Shopper",
		"picture":        "https://example.com/p.png",
	}, http.StatusOK)
	p := newTestGoogleProvider(srv)

	gUser, err := p.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if gUser.ID != "google-sub-1" || gUser.Email != "shopper@gmail.com" || gUser.Name != "Shopper" {
		t.Errorf("Exchange() = %+v", gUser)
	}
}

func TestGoogleProvider_ExchangeFailures(t *testing.T) {
	goodProfile := map[string]any{"sub": "s", "email": "e@example.com"}

	tests := []struct {
		name    string
		profile map[string]any
		status  int
		code    string
	}{
		{"bad code", goodProfile, http.StatusOK, "bad-code"},
		{"userinfo error status", goodProfile, http.StatusInternalServerError, "good-code"},
		{"profile without subject", map[string]any{"email": "e@example.com"}, http.StatusOK, "good-code"},
		{"profile without email", map[string]any{"sub": "s"}, http.StatusOK, "good-code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeGoogle(t, tt.profile, tt.status)
			p := newTestGoogleProvider(srv)

			if _, err := p.Exchange(context.Background(), tt.code); err == nil {
				t.Error("Exchange() should have failed")
			}
		})
	}
}
