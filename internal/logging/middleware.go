// Grounded on the teacher's gin_logger.go GinLogrusLogger/GinLogrusRecovery.
// Trimmed since this proxy has exactly one route: every request gets a
// request id (the teacher's aiAPIPrefixes allowlist existed to spare
// non-AI routes the overhead; there are none here).
package logging

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger returns a gin middleware that assigns each request a short
// id, attaches it to the request context, and logs one summary line after
// the handler completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := GenerateRequestID()
		SetGinRequestID(c, requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))

		c.Next()

		latency := time.Since(start).Truncate(time.Millisecond)
		statusCode := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"latency":    latency.String(),
			"status":     statusCode,
			"path":       c.Request.URL.Path,
		})

		switch {
		case statusCode >= http.StatusInternalServerError:
			entry.Error("request complete")
		case statusCode >= http.StatusBadRequest:
			entry.Warn("request complete")
		default:
			entry.Info("request complete")
		}
	}
}

// Recovery returns a gin middleware that turns a panic into a logged
// 500 response instead of crashing the process.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(http.ErrAbortHandler)
		}

		log.WithFields(log.Fields{
			"panic": recovered,
			"stack": string(debug.Stack()),
			"path":  c.Request.URL.Path,
		}).Error("recovered from panic")

		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
