package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/application/scheduler"
	"github.com/momentapp/notifier/pkg/auth"
	"github.com/momentapp/notifier/pkg/logger"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the HTTP surface needs. Nil handlers leave
// their routes unregistered.
type Deps struct {
	Auth          auth.Authenticator
	Devices       *DeviceHandler
	Notifications *NotificationHandler
	Sockets       http.Handler
	Checks        map[string]HealthCheck
	Jobs          func() []scheduler.JobStatus
	SocketStats   func() SocketStats
	MetricsPath   string
}

// SocketStats is the live socket population served at /health/sockets.
type SocketStats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// NewRouter builds the gin engine serving the notifier's HTTP API
func NewRouter(deps Deps, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log.Named("http")))

	r.GET("/health", healthHandler(deps.Checks))
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	if deps.Jobs != nil {
		r.GET("/health/jobs", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"jobs": deps.Jobs()})
		})
	}
	if deps.SocketStats != nil {
		r.GET("/health/sockets", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.SocketStats())
		})
	}
	if deps.MetricsPath != "" {
		r.GET(deps.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	if deps.Sockets != nil {
		r.GET("/ws", gin.WrapH(deps.Sockets))
	}

	api := r.Group("/api", AuthMiddleware(deps.Auth))
	if deps.Devices != nil {
		api.POST("/devices/register", deps.Devices.Register)
		api.GET("/devices", deps.Devices.List)
		api.DELETE("/devices/:deviceId", deps.Devices.Deactivate)
		api.POST("/devices/activity", deps.Devices.Activity)
		api.POST("/devices/test", deps.Devices.SendTest)
	}
	if deps.Notifications != nil {
		api.GET("/notifications", deps.Notifications.List)
		api.GET("/notifications/unread-count", deps.Notifications.UnreadCount)
		api.PUT("/notifications/read-all", deps.Notifications.MarkAllRead)
		api.PUT("/notifications/:id/read", deps.Notifications.MarkRead)
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
