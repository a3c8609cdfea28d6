package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/config"
	"github.com/pandeptwidyaop/trp-api/internal/handlers"
	"github.com/pandeptwidyaop/trp-api/internal/metrics"
	"github.com/pandeptwidyaop/trp-api/internal/middleware"
	"github.com/pandeptwidyaop/trp-api/internal/services"
)

// LivenessPath is polled by the proxy and the container runtime, so it
// stays out of the access log.
const LivenessPath = "/health-check"

// MetricsPath serves Prometheus metrics behind basic auth.
const MetricsPath = "/metrics"

// New wires the HTTP API. m may be nil, in which case /metrics is not
// served.
func New(cfg *config.Config, log, access logrus.FieldLogger, recordService *services.RecordService, healthService *services.HealthService, m *metrics.Metrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if m != nil {
		r.Use(m.Middleware())
	}
	r.Use(middleware.Logger(access, LivenessPath))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	recordHandler := handlers.NewRecordHandler(recordService, log)
	healthHandler := handlers.NewHealthHandler(healthService, log)
	versionHandler := handlers.NewVersionHandler()

	// Public endpoints
	r.GET(LivenessPath, healthHandler.Liveness)
	r.GET("/api/version", versionHandler.Get)

	protected := r.Group("")
	protected.Use(middleware.BasicAuth(middleware.Credentials{
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
		Realm:    cfg.Auth.Realm,
	}))
	{
		protected.GET("/health", healthHandler.Health)

		protected.GET("/trp", recordHandler.List)
		protected.POST("/trp", recordHandler.Create)
		protected.GET("/trp/:id", recordHandler.Get)
		protected.PUT("/trp/:id", recordHandler.Update)
		protected.DELETE("/trp/:id", recordHandler.Delete)

		if m != nil {
			protected.GET(MetricsPath, gin.WrapH(m.Handler()))
		}
	}

	return r
}
