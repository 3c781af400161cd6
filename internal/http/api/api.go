package api

import (
	"net/http"

	"github.com/tubelens/tubelens/internal/gateway"
	"github.com/tubelens/tubelens/internal/http/api/handlers"
	"github.com/tubelens/tubelens/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies carries the constructed components the routes need.
type Dependencies struct {
	DB      *gorm.DB
	Store   *store.CredentialStore
	YouTube *gateway.YouTubeGateway
	OpenAI  *gateway.OpenAIGateway
}

// RegisterRoutes mounts all API endpoints on the engine.
func RegisterRoutes(engine *gin.Engine, deps Dependencies) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	credentials := handlers.NewCredentialHandler(deps.DB, deps.Store)
	videos := handlers.NewVideoHandler(deps.YouTube)
	optimize := handlers.NewOptimizeHandler(deps.OpenAI)

	apiGroup := engine.Group("/api")
	{
		credGroup := apiGroup.Group("/credentials")
		{
			credGroup.GET("", credentials.List)
			credGroup.POST("", credentials.Create)
			credGroup.PATCH("/:id", credentials.Update)
			credGroup.POST("/:id/rotate", credentials.Rotate)
			credGroup.DELETE("/:id", credentials.Delete)
			credGroup.GET("/:id/stats", credentials.Stats)
		}

		apiGroup.GET("/channel", videos.Channel)
		apiGroup.GET("/videos", videos.List)
		apiGroup.POST("/optimize", optimize.Optimize)
	}
}
