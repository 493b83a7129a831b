package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDKey    = "auth.user_id"
	requestIDKey = "X-Request-ID"
)

// errorBody matches the API response envelope.
type errorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type Verifier interface {
	Verify(token string) (string, error)
}

// RequireUser rejects requests without a valid bearer token and stores the
// token subject for UserID.
func RequireUser(v Verifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		tok := bearerToken(c.GetHeader("Authorization"))
		if tok == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		userID, err := v.Verify(tok)
		if err != nil {
			logger.Debug("bearer token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			unauthorized(c, "invalid token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	body := errorBody{Code: http.StatusUnauthorized, Message: message}
	if id := c.GetString(requestIDKey); id != "" {
		body.Meta = map[string]string{"request_id": id}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}

func UserID(c *gin.Context) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func bearerToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
