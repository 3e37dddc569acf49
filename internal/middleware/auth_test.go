package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"uid": 42, "exp": time.Now().Add(time.Hour).Unix()})

	userID, err := v.Validate(token)
	require.NoError(t, err)
	require.Equal(t, 42, userID)

	userID, err = v.Validate("Bearer " + token)
	require.NoError(t, err)
	require.Equal(t, 42, userID)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	v := NewJWTValidator(testSecret)

	_, err := v.Validate("")
	require.Error(t, err)

	_, err = v.Validate("garbage")
	require.Error(t, err)

	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"uid": 42})
	_, err = v.Validate(wrongKey)
	require.Error(t, err)

	noUID := signToken(t, testSecret, jwt.MapClaims{"sub": "42"})
	_, err = v.Validate(noUID)
	require.Error(t, err)

	expired := signToken(t, testSecret, jwt.MapClaims{"uid": 42, "exp": time.Now().Add(-time.Hour).Unix()})
	_, err = v.Validate(expired)
	require.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewJWTValidator(testSecret)

	r := gin.New()
	r.GET("/me", AuthMiddleware(v), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userID": c.GetInt("userID")})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token := signToken(t, testSecret, jwt.MapClaims{"uid": 7})
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"userID":7`)
}
