package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	runauth "github.com/bionicotaku/lingo-utils-runauth"
)

const msgInternalError = "Internal server error"

func (s *Server) handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "running", "service": "webhook"})
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *Server) handleWebhook() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		claims, _ := runauth.ClaimsFromContext(ctx)

		var payload map[string]any
		if err := c.ShouldBindJSON(&payload); err != nil {
			s.fail(c, "decode webhook payload", err)
			return
		}
		if err := s.process(ctx, payload, claims); err != nil {
			s.fail(c, "webhook processing error", err)
			return
		}

		s.metrics.processed.WithLabelValues("success").Inc()
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	}
}

// fail logs err and answers with a generic 500 body.
func (s *Server) fail(c *gin.Context, msg string, err error) {
	s.metrics.processed.WithLabelValues("error").Inc()
	s.logger.LogAttrs(c.Request.Context(), slog.LevelError, msg,
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
}

func (s *Server) logPayload(ctx context.Context, payload map[string]any, claims runauth.Claims) error {
	s.logger.InfoContext(ctx, "processing webhook payload",
		slog.String("caller", claims.Email()),
		slog.Any("payload", payload),
	)
	return nil
}
