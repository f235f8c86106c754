package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	ts := NewTokenService("s3cret", "servicehub", time.Hour)
	tok, exp, err := ts.Sign("ops", RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := ts.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Operator)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "servicehub", claims.Issuer)
}

func TestParseRejects(t *testing.T) {
	ts := NewTokenService("s3cret", "servicehub", time.Hour)
	tok, _, err := ts.Sign("ops", RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokenService("other", "servicehub", time.Hour).Parse(tok)
	assert.Error(t, err)

	_, err = NewTokenService("s3cret", "someone-else", time.Hour).Parse(tok)
	assert.Error(t, err)

	expired := TokenService{Secret: []byte("s3cret"), Issuer: "servicehub", Duration: -time.Minute}
	old, _, err := expired.Sign("ops", RoleAdmin)
	require.NoError(t, err)
	_, err = ts.Parse(old)
	assert.Error(t, err)

	_, _, err = ts.Sign("", RoleAdmin)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Basic abc", "Bearer ", "Bear"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ts := NewTokenService("s3cret", "servicehub", time.Hour)

	r := gin.New()
	r.GET("/admin", AdminMiddleware(ts), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"operator": claims.Operator})
	})
	r.GET("/open", func(c *gin.Context) {
		_, ok := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"claims": ok})
	})

	admin, _, err := ts.Sign("ops", RoleAdmin)
	require.NoError(t, err)
	viewer, _, err := ts.Sign("ops", "viewer")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.JSONEq(t, `{"claims":false}`, w.Body.String())
}
