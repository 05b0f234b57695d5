package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"segflow/internal/config"
	"segflow/internal/ingress"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		fx.Annotate(NewRouter, fx.As(new(http.Handler))),
	),
)

// NewRouter builds the gin engine: /healthz unauthenticated, everything
// under /api behind bearerAuth.
func NewRouter(cfg *config.Config, services *ingress.Services, log *zap.Logger) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginZapLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{services: services, log: log}

	api := r.Group("/api")
	api.Use(bearerAuth(cfg.APIKey))
	{
		api.POST("/user/:id", h.createUser)
		api.PATCH("/user/:id", h.updateUser)
		api.GET("/user/:id", h.getUser)
		api.DELETE("/user/:id", h.deleteUser)
		api.POST("/user/:id/event/:name", h.emitEvent)
		api.GET("/user/:id/event", h.listEvents)
		api.GET("/user/:id/segment", h.listUserSegments)

		api.POST("/segment/:id", h.createSegment)
		api.PATCH("/segment/:id", h.updateSegment)
		api.DELETE("/segment/:id", h.deleteSegment)
		api.GET("/segment", h.listSegments)
		api.GET("/segment/:id", h.getSegment)
		api.GET("/segment/:id/user", h.listSegmentUsers)

		api.POST("/campaign/:id", h.createCampaign)
		api.DELETE("/campaign/:id", h.deleteCampaign)
		api.GET("/campaign", h.listCampaigns)
		api.GET("/campaign/:id", h.getCampaign)

		api.POST("/template/:id", h.createTemplate)
		api.PATCH("/template/:id", h.updateTemplate)
		api.DELETE("/template/:id", h.deleteTemplate)

		api.POST("/email/config", h.setEmailProvider)
		api.POST("/config", h.pushConfig)
	}

	return r
}

func ginZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			log.Warn("request error",
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", c.Writer.Status()),
				zap.String("errors", c.Errors.String()),
			)
		}
	}
}
