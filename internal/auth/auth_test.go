package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerateAndValidateToken(t *testing.T) {
	InitJWT("test-secret")

	token, err := GenerateToken("user-1", "wallet-1")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "wallet-1", claims.WalletAddress)

	_, err = GenerateToken("", "")
	assert.Error(t, err)

	InitJWT("another-secret")
	_, err = ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenCarriesRegisteredClaims(t *testing.T) {
	InitJWT("test-secret", WithTokenIssuer("ledger-staging"), WithTokenTTL(time.Hour))
	t.Cleanup(func() { InitJWT("test-secret") })

	token, err := GenerateToken("user-1", "")
	require.NoError(t, err)
	claims, err := ValidateToken(token)
	require.NoError(t, err)

	assert.Equal(t, "ledger-staging", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"ledger-staging"}, claims.Audience)
	assert.Equal(t, "user-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
	assert.Equal(t, time.Hour, TokenTTL())

	other, err := GenerateToken("user-1", "")
	require.NoError(t, err)
	otherClaims, err := ValidateToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID)
}

func TestValidateTokenRejects(t *testing.T) {
	InitJWT("test-secret")
	secret := []byte("test-secret")
	now := time.Now()
	valid := func() *Claims {
		return &Claims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    DefaultTokenIssuer,
				Audience:  jwt.ClaimStrings{DefaultTokenIssuer},
				Subject:   "user-1",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}
	sign := func(t *testing.T, method jwt.SigningMethod, claims *Claims) string {
		t.Helper()
		signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
		require.NoError(t, err)
		return signed
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"other issuer", func(t *testing.T) string {
			c := valid()
			c.Issuer = "someone-else"
			return sign(t, jwt.SigningMethodHS256, c)
		}},
		{"other audience", func(t *testing.T) string {
			c := valid()
			c.Audience = jwt.ClaimStrings{"another-service"}
			return sign(t, jwt.SigningMethodHS256, c)
		}},
		{"HS512 instead of HS256", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS512, valid())
		}},
		{"unsigned", func(t *testing.T) string {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, valid()).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return signed
		}},
		{"expired", func(t *testing.T) string {
			c := valid()
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
			return sign(t, jwt.SigningMethodHS256, c)
		}},
		{"no expiry", func(t *testing.T) string {
			c := valid()
			c.ExpiresAt = nil
			return sign(t, jwt.SigningMethodHS256, c)
		}},
		{"subject differs from user", func(t *testing.T) string {
			c := valid()
			c.Subject = "root"
			return sign(t, jwt.SigningMethodHS256, c)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(tt.token(t))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := ValidateToken(sign(t, jwt.SigningMethodHS256, valid()))
	assert.NoError(t, err)
}

func TestVerifyWalletSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	address := base58.Encode(pub)
	message := []byte(LoginMessage)
	sig := ed25519.Sign(priv, message)

	assert.NoError(t, VerifyWalletSignature(address, base58.Encode(sig), message))
	assert.NoError(t, VerifyWalletSignature(address, hex.EncodeToString(sig), message))

	other := ed25519.Sign(priv, []byte("something else"))
	assert.ErrorIs(t, VerifyWalletSignature(address, base58.Encode(other), message), ErrInvalidSignature)
	assert.Error(t, VerifyWalletSignature("not-a-key", base58.Encode(sig), message))
	assert.Error(t, VerifyWalletSignature(address, "zz", message))
}

type staticAdmins map[string]bool

func (a staticAdmins) IsAdmin(ctx context.Context, userID string) bool {
	return a[userID]
}

func newProtectedRouter() *gin.Engine {
	r := gin.New()
	api := r.Group("/api", AuthMiddleware())
	api.GET("/me", func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id)
	})
	admin := api.Group("/admin", AdminMiddleware(staticAdmins{"root": true}))
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func request(t *testing.T, r *gin.Engine, path, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	InitJWT("test-secret")
	r := newProtectedRouter()

	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/api/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/api/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/api/me", "Bearer abc").Code)

	token, err := GenerateToken("user-1", "")
	require.NoError(t, err)
	w := request(t, r, "/api/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
}

func TestAdminMiddleware(t *testing.T) {
	InitJWT("test-secret")
	r := newProtectedRouter()

	userToken, err := GenerateToken("user-1", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, request(t, r, "/api/admin/ping", "Bearer "+userToken).Code)

	rootToken, err := GenerateToken("root", "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, request(t, r, "/api/admin/ping", "Bearer "+rootToken).Code)
}
