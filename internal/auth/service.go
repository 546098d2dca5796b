// Package auth issues and validates the signed tokens that bind an HTTP client to its
// analysis session.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/johnrirwin/skinlens/internal/config"
	"github.com/johnrirwin/skinlens/internal/logging"
)

// Service handles session token operations
type Service struct {
	config config.AuthConfig
	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a new auth service. Tokens live for ttl.
func NewService(cfg config.AuthConfig, ttl time.Duration, logger *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		config: cfg,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// IssueSessionToken signs a token whose subject is sessionID.
func (s *Service) IssueSessionToken(sessionID string) (string, time.Time, error) {
	if sessionID == "" {
		return "", time.Time{}, &AuthError{Code: "invalid_input", Message: "session id is required"}
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.MapClaims{
		"sub": sessionID,
		"iss": s.config.TokenIssuer,
		"aud": s.config.TokenAudience,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.TokenSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateSessionToken checks signature, expiry, issuer and audience and returns the
// session id.
func (s *Service) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		s.logger.Debug("Session token rejected", logging.WithField("error", err.Error()))
		return "", &AuthError{Code: "invalid_token", Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token claims"}
	}

	if iss, _ := claims["iss"].(string); iss != s.config.TokenIssuer {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token issuer"}
	}
	if aud, _ := claims["aud"].(string); aud != s.config.TokenAudience {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token audience"}
	}

	sessionID, ok := claims["sub"].(string)
	if !ok || sessionID == "" {
		return "", &AuthError{Code: "invalid_token", Message: "invalid token subject"}
	}

	return sessionID, nil
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}
