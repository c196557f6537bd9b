package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/enroll"
	"github.com/your-org/facegate/internal/vision"
)

type RouterConfig struct {
	APIKey    string
	Service   *enroll.Service
	Hub       *ws.Hub
	Readiness *vision.Readiness
	// Deps are pinged by /readyz; leave out what is not configured.
	Deps map[string]handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Deps, cfg.Readiness)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	recordH := handlers.NewRecordHandler(cfg.Service)
	v1.POST("/records", recordH.Enroll)
	v1.GET("/records", recordH.List)
	v1.GET("/records/:identity", recordH.Get)
	v1.DELETE("/records/:identity", recordH.Delete)
	v1.GET("/records/:identity/thumbnail", recordH.Thumbnail)
	v1.GET("/search", recordH.Search)

	verifyH := handlers.NewVerifyHandler(cfg.Service)
	v1.POST("/verify", verifyH.Verify)
	v1.POST("/identify", verifyH.Identify)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AddAllowHeaders(auth.HeaderName, handlers.SessionHeader, handlers.OperatorHeader)
	return c
}
