package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenIssuer = "reward-ledger"
	DefaultTokenTTL    = 24 * time.Hour
	// clockSkew tolerated between the signer and a validating replica
	clockSkew = 30 * time.Second
)

var (
	ErrTokenNotConfigured = errors.New("token signing is not configured")
	ErrInvalidToken       = errors.New("invalid token")
)

// TokenOption adjusts how session tokens are issued and checked
type TokenOption func(*tokenSettings)

// WithTokenTTL sets the lifetime of issued tokens
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *tokenSettings) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenIssuer sets the issuer written to and required on tokens.
// The issuer is also the audience, so tokens of another deployment are rejected.
func WithTokenIssuer(issuer string) TokenOption {
	return func(s *tokenSettings) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

type tokenSettings struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

var (
	tokensMu sync.RWMutex
	tokens   tokenSettings
)

// InitJWT sets the HMAC secret and issuing options of session tokens
func InitJWT(secret string, opts ...TokenOption) {
	s := tokenSettings{
		secret: []byte(secret),
		issuer: DefaultTokenIssuer,
		ttl:    DefaultTokenTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}

	tokensMu.Lock()
	defer tokensMu.Unlock()
	tokens = s
}

func currentTokens() (tokenSettings, error) {
	tokensMu.RLock()
	defer tokensMu.RUnlock()
	if len(tokens.secret) == 0 {
		return tokenSettings{}, ErrTokenNotConfigured
	}
	return tokens, nil
}

// TokenTTL is the lifetime of tokens issued now
func TokenTTL() time.Duration {
	tokensMu.RLock()
	defer tokensMu.RUnlock()
	if tokens.ttl == 0 {
		return DefaultTokenTTL
	}
	return tokens.ttl
}

// Claims is the session of one ledger user
type Claims struct {
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a session token for userID
func GenerateToken(userID, walletAddress string) (string, error) {
	s, err := currentTokens()
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	now := time.Now()
	claims := &Claims{
		UserID:        userID,
		WalletAddress: walletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.issuer},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm, issuer, audience and expiry and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	s, err := currentTokens()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("%w: subject does not match user", ErrInvalidToken)
	}
	return claims, nil
}
