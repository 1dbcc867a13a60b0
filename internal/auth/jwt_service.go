// Package auth verifies the HS256 bearer tokens the account service issues
// to runners and to internal producers such as the board service.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL applies when JWTConfig leaves AccessTokenTTL unset.
const DefaultAccessTokenTTL = 24 * time.Hour

var (
	ErrMissingSecret = errors.New("jwt: secret must be provided")
	ErrMissingUser   = errors.New("jwt: user id is required")
	ErrEmptyToken    = errors.New("jwt: token string is empty")
)

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims identifies the runner making a request. DeviceID is set when the
// token was issued to a specific installation of the mobile app.
type Claims struct {
	UserID   string `json:"uid"`
	DeviceID string `json:"did,omitempty"`
	Nickname string `json:"nick,omitempty"`
	jwt.RegisteredClaims
}

// HasAudience reports whether the token was issued for audience.
func (c *Claims) HasAudience(audience string) bool {
	return c != nil && audience != "" && slices.Contains(c.Audience, audience)
}

type AccessTokenInput struct {
	UserID   string
	DeviceID string
	Nickname string
	Audience []string
}

// JWTService signs and verifies access tokens with a shared secret.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSecret
	}

	svc := &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		now:    cfg.Clock,
	}
	if svc.ttl <= 0 {
		svc.ttl = DefaultAccessTokenTTL
	}
	if svc.now == nil {
		svc.now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(svc.now),
		jwt.WithExpirationRequired(),
	}
	if svc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(svc.issuer))
	}
	svc.parser = jwt.NewParser(opts...)
	return svc, nil
}

// GenerateAccessToken signs a token for input.UserID. The server only
// verifies tokens; issuing is used by tests and local tooling.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return "", ErrMissingUser
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:   userID,
		DeviceID: input.DeviceID,
		Nickname: input.Nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  input.Audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken checks signature, expiry and issuer and returns the
// claims. Errors wrap the jwt package sentinels.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrEmptyToken
	}

	var claims Claims
	if _, err := s.parser.ParseWithClaims(tokenString, &claims, s.key); err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}
	if claims.UserID == "" {
		return nil, ErrMissingUser
	}
	return &claims, nil
}

func (s *JWTService) key(*jwt.Token) (any, error) {
	return s.secret, nil
}
