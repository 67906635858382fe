package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/alejandroruanova/itv-catalog-service/internal/pkg/errors"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

type errorBody struct {
	Code    apperrors.ErrorCode    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondError writes err as JSON. Application errors keep their status
// and code; anything else is an opaque 500.
func (s *Server) respondError(c *gin.Context, err error) {
	if appErr, ok := apperrors.GetAppError(err); ok {
		if appErr.StatusCode >= http.StatusInternalServerError {
			s.logger.Error("request failed",
				slog.String("path", c.FullPath()),
				slog.Any("error", err))
		}
		c.JSON(appErr.StatusCode, gin.H{"error": errorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}

	if ctxErr := c.Request.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": errorBody{
			Code:    apperrors.ErrCodeInternal,
			Message: "request cancelled",
		}})
		return
	}

	s.logger.Error("request failed",
		slog.String("path", c.FullPath()),
		slog.Any("error", err))
	opaque := apperrors.Internal("internal server error")
	c.JSON(opaque.StatusCode, gin.H{"error": errorBody{
		Code:    opaque.Code,
		Message: opaque.Message,
	}})
}
