package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/denisenanni/portfolio/internal/store"
)

const (
	adminCookie = "admin_token"
	// devAdminPassword is only accepted outside release mode when no
	// password is configured.
	devAdminPassword = "admin123"
)

// adminAuth redirects requests without a valid session cookie to the login
// page.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// checkCredentials compares in constant time, or against the bcrypt hash
// when one is configured.
func (s *Server) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.AdminUsername)) == 1

	switch {
	case s.cfg.AdminPasswordHash != "":
		err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(password))
		return userOK && err == nil
	case s.cfg.AdminPassword != "":
		return userOK && subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) == 1
	case !s.cfg.Release():
		s.log.Warn("using default admin password, set ADMIN_PASSWORD")
		return userOK && subtle.ConstantTimeCompare([]byte(password), []byte(devAdminPassword)) == 1
	default:
		return false
	}
}

func (s *Server) adminRoutes() {
	r := s.engine

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{"title": "Admin Login"})
	})

	r.POST("/admin/login", func(c *gin.Context) {
		if !s.checkCredentials(c.PostForm("username"), c.PostForm("password")) {
			s.log.Warn("failed admin login", zap.String("client", store.HashIP(c.ClientIP(), s.hashingSalt)))
			c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
				"title": "Admin Login",
				"error": "Invalid credentials",
			})
			return
		}

		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookie, s.adminToken, 3600*24, "/admin", "", s.cfg.Release(), true)
		s.log.Info("admin login", zap.String("client", store.HashIP(c.ClientIP(), s.hashingSalt)))
		c.Redirect(http.StatusFound, "/admin/dashboard")
	})

	r.POST("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", s.cfg.Release(), true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	admin := r.Group("/admin", s.adminAuth())

	admin.GET("/dashboard", func(c *gin.Context) {
		stats, err := s.store.Stats(c.Request.Context(), s.clock.Now())
		if err != nil {
			s.log.Error("loading admin stats", zap.Error(err))
			s.adminError(c, "Failed to load statistics")
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{"stats": stats})
	})

	admin.GET("/api/stats", func(c *gin.Context) {
		stats, err := s.store.Stats(c.Request.Context(), s.clock.Now())
		if err != nil {
			s.log.Error("loading admin stats", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	admin.GET("/visitors", func(c *gin.Context) {
		visitors, err := s.store.RecentVisitors(c.Request.Context(), 200)
		if err != nil {
			s.log.Error("loading visitors", zap.Error(err))
			s.adminError(c, "Failed to load visitors")
			return
		}
		c.HTML(http.StatusOK, "admin-visitors.html", gin.H{"visitors": visitors})
	})

	admin.GET("/messages", func(c *gin.Context) {
		messages, err := s.store.Messages(c.Request.Context(), 200)
		if err != nil {
			s.log.Error("loading messages", zap.Error(err))
			s.adminError(c, "Failed to load messages")
			return
		}
		c.HTML(http.StatusOK, "admin-messages.html", gin.H{"messages": messages})
	})

	admin.DELETE("/messages/:id", func(c *gin.Context) {
		id := c.Param("id")
		err := s.store.DeleteMessage(c.Request.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		case err != nil:
			s.log.Error("deleting message", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
			return
		}
		s.log.Info("message deleted by admin", zap.String("id", id))
		c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
	})

	admin.POST("/privacy/cleanup", func(c *gin.Context) {
		n, err := s.CleanupVisitors(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cleanup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": n})
	})

	admin.GET("/export/stats", func(c *gin.Context) {
		stats, err := s.store.Stats(c.Request.Context(), s.clock.Now())
		if err != nil {
			s.log.Error("exporting admin stats", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statistics"})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
		c.JSON(http.StatusOK, stats)
	})
}

func (s *Server) adminError(c *gin.Context, msg string) {
	c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{"error": msg})
}
