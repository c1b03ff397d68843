package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schedule-backend/internal/contributions"
	"schedule-backend/internal/services/health"
	"schedule-backend/internal/shared/config"
	"schedule-backend/internal/shared/metrics"
	"schedule-backend/internal/shared/server/middleware"
	"schedule-backend/internal/shared/server/respond"
)

const uploadRateGroup = "UPLOAD"

// RouterDeps holds the handlers the router mounts.
type RouterDeps struct {
	Config              config.Config
	ContributionHandler *contributions.Handler
	Health              *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.Server.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	secured := api.Group("")
	secured.Use(
		middleware.Identity(),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				uploadRateGroup: {
					Rate:  deps.Config.Server.UploadRate,
					Burst: deps.Config.Server.UploadBurst,
				},
			},
			GroupFor: rateGroup,
		}),
	)
	if deps.ContributionHandler != nil {
		deps.ContributionHandler.RegisterRoutes(secured)
	}

	return r
}

// rateGroup throttles image uploads only; polling has its own limiter.
func rateGroup(c *gin.Context) string {
	if c.Request.Method == http.MethodPost && strings.HasSuffix(c.FullPath(), "/contributions/images") {
		return uploadRateGroup
	}
	return ""
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
