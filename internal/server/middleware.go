package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/denisenanni/portfolio/internal/store"
)

// requestLogger logs every request with its status and duration, choosing
// the level from the status class.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("HTTP request completed", fields...)
		case status >= 400:
			log.Warn("HTTP request completed", fields...)
		default:
			log.Info("HTTP request completed", fields...)
		}
	}
}

var untrackedPrefixes = []string{
	"/static/",
	"/admin",
	"/favicon",
	"/privacy",
	"/healthz",
	"/pipeline/stream",
}

// visitorTracking records successful page views with a salted hash of the
// client address. Requests carrying "DNT: 1" are never recorded.
func (s *Server) visitorTracking() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}
		for _, prefix := range untrackedPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := s.store.RecordVisit(ctx, store.Visitor{
			HashedIP:  store.HashIP(c.ClientIP(), s.hashingSalt),
			UserAgent: c.GetHeader("User-Agent"),
			Path:      path,
			VisitedAt: s.clock.Now(),
		})
		if err != nil {
			s.log.Warn("recording visitor", zap.Error(err))
		}
	}
}
