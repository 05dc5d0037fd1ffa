package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	logEventHTTP         = "http"
	logFieldMethod       = "method"
	logFieldPath         = "path"
	logFieldHTTPStatus   = "status"
	logFieldDuration     = "dur"
	logFieldClientIP     = "ip"
	logFieldUserAgent    = "ua"
	headerContentOptions = "X-Content-Type-Options"
	headerFrameOptions   = "X-Frame-Options"
	headerReferrerPolicy = "Referrer-Policy"
)

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		logger.Info(logEventHTTP,
			zap.String(logFieldMethod, context.Request.Method),
			zap.String(logFieldPath, context.Request.URL.Path),
			zap.Int(logFieldHTTPStatus, context.Writer.Status()),
			zap.Duration(logFieldDuration, time.Since(start)),
			zap.String(logFieldClientIP, context.ClientIP()),
			zap.String(logFieldUserAgent, context.Request.UserAgent()),
		)
	}
}

// SecurityHeaders sets the response headers every page and API answer carries.
func SecurityHeaders() gin.HandlerFunc {
	return func(context *gin.Context) {
		context.Header(headerContentOptions, "nosniff")
		context.Header(headerFrameOptions, "DENY")
		context.Header(headerReferrerPolicy, "same-origin")
		context.Next()
	}
}
