package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const correlationId string = "correlationId"

func getLoggerMiddleware(log *zap.Logger, prefix string, prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(correlationId, uuid.NewString())
		start := time.Now()
		c.Next()
		latency := time.Since(start).Milliseconds()
		if !prod {
			log.Sugar().Infof("%s | %d | %s | %s | %dms", prefix, c.Writer.Status(), c.Request.Method, c.FullPath(), latency)
			return
		}

		log.Info("request to collector",
			zap.String(correlationId, c.GetString(correlationId)),
			zap.Int("code", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int64("latencyInMs", latency),
		)
	}
}

func getAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(apiKey) != 0 && c.GetHeader("Authorization") != "Bearer "+apiKey {
			JSON(c, http.StatusUnauthorized, "api key is missing or invalid")
			c.Abort()
			return
		}

		c.Next()
	}
}
