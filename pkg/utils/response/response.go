package response

import (
	"net/http"

	"gradex/pkg/errors"
	"gradex/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Success sends a successful response. The payload fields are merged
// into the envelope next to "success": true, so handlers control the
// exact response shape ({result: ...}, {languages: ...}, and so on).
func Success(c *gin.Context, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	if traceID := getTraceID(c); traceID != "" {
		body["traceId"] = traceID
	}
	c.JSON(http.StatusOK, body)
}

// Error sends an error response.
// It automatically extracts error code and message from the error.
func Error(c *gin.Context, err error) {
	customErr := errors.GetError(err)

	logger.Error(c.Request.Context(), "request error",
		zap.Int("code", int(customErr.Code)),
		zap.String("message", customErr.Error()),
		zap.Any("details", customErr.Details),
		zap.String("stack", customErr.Stack),
	)

	body := gin.H{
		"success": false,
		"code":    customErr.Code,
		"error":   customErr.Error(),
	}
	if len(customErr.Details) > 0 {
		body["details"] = customErr.Details
	}
	if traceID := getTraceID(c); traceID != "" {
		body["traceId"] = traceID
	}

	c.JSON(customErr.Code.HTTPStatus(), body)
}

// getTraceID extracts trace ID from context
func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if s, ok := traceID.(string); ok {
			return s
		}
	}
	return ""
}
