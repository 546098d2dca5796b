package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johnrirwin/skinlens/internal/config"
	"github.com/johnrirwin/skinlens/internal/testutil"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		TokenSecret:   "test-secret-key-minimum-32-chars-long",
		TokenIssuer:   "skinlens-test",
		TokenAudience: "skinlens-sessions",
	}
}

func setupTestAuthService(t *testing.T) *Service {
	t.Helper()
	return NewService(testConfig(), 30*time.Minute, testutil.NullLogger())
}

func TestAuthError(t *testing.T) {
	err := &AuthError{Code: "invalid_token", Message: "invalid or expired token"}
	if err.Error() != "invalid or expired token" {
		t.Errorf("AuthError.Error() = %s", err.Error())
	}
}

func TestIssueAndValidate(t *testing.T) {
	service := setupTestAuthService(t)

	token, expiresAt, err := service.IssueSessionToken("session-1")
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	if time.Until(expiresAt) <= 29*time.Minute {
		t.Errorf("expiresAt = %v, want ~30m ahead", expiresAt)
	}

	sessionID, err := service.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken() error = %v", err)
	}
	if sessionID != "session-1" {
		t.Errorf("sessionID = %q", sessionID)
	}

	if _, _, err := service.IssueSessionToken(""); err == nil {
		t.Error("empty session id should be rejected")
	}
}

func TestValidateSessionToken_Rejects(t *testing.T) {
	service := setupTestAuthService(t)

	sign := func(claims jwt.MapClaims, secret string) string {
		t.Helper()
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "session-1",
			"iss": "skinlens-test",
			"aud": "skinlens-sessions",
			"exp": time.Now().Add(time.Minute).Unix(),
		}
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "invalid-token"},
		{name: "wrong secret", token: sign(valid(), "another-secret-key-that-is-long-enough")},
		{name: "expired", token: func() string {
			c := valid()
			c["exp"] = time.Now().Add(-time.Minute).Unix()
			return sign(c, testConfig().TokenSecret)
		}()},
		{name: "wrong issuer", token: func() string {
			c := valid()
			c["iss"] = "someone-else"
			return sign(c, testConfig().TokenSecret)
		}()},
		{name: "wrong audience", token: func() string {
			c := valid()
			c["aud"] = "skinlens-admin"
			return sign(c, testConfig().TokenSecret)
		}()},
		{name: "missing subject", token: func() string {
			c := valid()
			delete(c, "sub")
			return sign(c, testConfig().TokenSecret)
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.ValidateSessionToken(tt.token); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	service := setupTestAuthService(t)
	mw := NewMiddleware(service)
	token, _, _ := service.IssueSessionToken("session-1")

	handler := mw.RequireSession(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetSessionID(r.Context())))
	})

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		target     string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "bearer header",
			target:     "/api/session",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			wantStatus: http.StatusOK,
			wantBody:   "session-1",
		},
		{
			name:       "query token",
			target:     "/api/session/events?token=" + token,
			wantStatus: http.StatusOK,
			wantBody:   "session-1",
		},
		{
			name:       "missing",
			target:     "/api/session",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid",
			target:     "/api/session",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.setup != nil {
				tt.setup(req)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}
