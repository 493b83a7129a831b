package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_SignVerify(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Minute, Issuer: "bitpredict"}
	tok, exp, err := j.Sign("user-42")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	sub, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestJWT_Rejects(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Minute, Issuer: "bitpredict"}
	tok, _, err := j.Sign("user-42")
	require.NoError(t, err)

	other := JWT{Secret: []byte("different"), Issuer: "bitpredict"}
	_, err = other.Verify(tok)
	assert.Error(t, err)

	wrongIssuer := JWT{Secret: []byte("s3cret"), Issuer: "someone-else"}
	_, err = wrongIssuer.Verify(tok)
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    "bitpredict",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	s, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = j.Verify(s)
	assert.Error(t, err)

	noSub := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "bitpredict",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	s, err = noSub.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = j.Verify(s)
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, _, err = JWT{}.Sign("user-42")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestRequireUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Minute}
	r := gin.New()
	r.GET("/me", RequireUser(j, nil), func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})

	tok, _, err := j.Sign("alice")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + tok, http.StatusOK, "alice"},
		{"lower-case scheme", "bearer " + tok, http.StatusOK, "alice"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized, ""},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestRequireUser_ErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Minute}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Request-ID"); id != "" {
			c.Set("X-Request-ID", id)
		}
		c.Next()
	})
	r.GET("/me", RequireUser(j, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "req-7")
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":401,"message":"invalid token","meta":{"request_id":"req-7"}}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":401,"message":"missing bearer token"}`, w.Body.String())
}
