package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/auth"
	"github.com/lukas-andre/decollage-cl-sub000/internal/logging"
)

// ========================================
// bearerToken Tests
// ========================================

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Bearer   abc  ", "abc"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := bearerToken(tt.header); got != tt.want {
				t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth(t *testing.T) {
	verifier := auth.NewVerifier("secret", "")
	adminToken, err := verifier.IssueToken("admin-1", auth.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	userToken, _ := verifier.IssueToken("user-1", "", time.Hour)
	expiredToken, _ := verifier.IssueToken("user-1", "", -time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
		wantAdmin  bool
	}{
		{"missing header", "", http.StatusUnauthorized, "", false},
		{"garbage", "Bearer nope", http.StatusUnauthorized, "", false},
		{"expired", "Bearer " + expiredToken, http.StatusUnauthorized, "", false},
		{"user", "Bearer " + userToken, http.StatusOK, "user-1", false},
		{"admin", "Bearer " + adminToken, http.StatusOK, "admin-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *UserClaims
			var logUser string
			handler := Auth(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetUserClaims(r.Context())
				logUser = logging.GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
					t.Errorf("Content-Type = %q", ct)
				}
				return
			}
			if got == nil || got.UserID != tt.wantUser {
				t.Fatalf("claims = %+v, want user %q", got, tt.wantUser)
			}
			if got.IsAdmin != tt.wantAdmin {
				t.Errorf("IsAdmin = %v, want %v", got.IsAdmin, tt.wantAdmin)
			}
			if logUser != tt.wantUser {
				t.Errorf("logging user = %q, want %q", logUser, tt.wantUser)
			}
		})
	}
}

func TestAuth_NilVerifier(t *testing.T) {
	handler := Auth(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestGetUserClaims_Missing(t *testing.T) {
	if GetUserClaims(context.Background()) != nil {
		t.Error("expected nil claims")
	}
}
