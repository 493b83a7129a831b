package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

// Error writes the envelope with code mirroring the HTTP status. The request
// id, when present, is added to meta so clients can quote it.
func Error(c *gin.Context, status int, message string, meta map[string]any) {
	if id := c.GetString(requestIDHeader); id != "" {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["request_id"] = id
	}
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}
