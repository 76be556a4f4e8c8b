package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"phrasal_tutor_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	seen string
}

func (v *stubVerifier) Verify(token string) (*util.Claims, error) {
	v.seen = token
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &util.Claims{UID: "user-1"}, nil
}

func newRouter(v TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(v), func(c *gin.Context) {
		c.String(http.StatusOK, util.GetUserFromContext(c).UserID())
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		status int
		token  string
	}{
		{"bearer header", "Bearer good", "", http.StatusOK, "good"},
		{"query fallback", "", "good", http.StatusOK, "good"},
		{"header wins", "Bearer bad", "good", http.StatusUnauthorized, "bad"},
		{"missing", "", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &stubVerifier{}
			path := "/me"
			if tt.query != "" {
				path += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(v).ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.token, v.seen)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-1", w.Body.String())
			}
		})
	}
}
