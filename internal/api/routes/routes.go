package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/vibematch/internal/api/handlers"
)

type Deps struct {
	Profile *handlers.ProfileHandler
	Queue   *handlers.QueueHandler
	Search  *handlers.SearchHandler
	Country *handlers.CountryHandler
	WS      *handlers.WSHandler

	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Admin guards operator routes, typically JWTAuth followed by RequireAdmin.
	Admin []gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	api := r.Group("/api")
	admin := api.Group("/", d.Admin...)

	profiles := api.Group("/profiles")
	profiles.GET("", d.Profile.List)
	profiles.POST("", d.Profile.Create)
	profiles.GET("/:id", d.Profile.Get)
	profiles.PUT("/:id", d.Profile.Update)
	profiles.DELETE("/:id", d.Profile.Delete)
	profiles.GET("/:id/parse-preview", d.Profile.ParsePreview)
	admin.POST("/profiles/import", d.Profile.Import)

	api.GET("/embedding-queue/status", d.Queue.Status)
	admin.POST("/embedding-queue/clear", d.Queue.Clear)
	admin.POST("/embedding-queue/retry-dead", d.Queue.RetryDead)
	admin.POST("/embedding-queue/purge-dead", d.Queue.PurgeDead)
	admin.POST("/embedding-queue/run-once", d.Queue.RunOnce)
	admin.GET("/embedding-queue/journal", d.Queue.Journal)

	api.POST("/rag-search/search", d.Search.Search)
	api.GET("/rag-search/search", d.Search.SearchGet)
	api.POST("/user-match/match", d.Search.Match)

	api.GET("/countries", d.Country.List)
	admin.POST("/countries/sync", d.Country.Sync)

	ws := r.Group("/ws", d.Admin...)
	ws.GET("/embedding-queue", d.WS.QueueEvents)
}
