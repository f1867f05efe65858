package endpoints

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imnotfancy/TuneForge-sub000/internal/storage"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Deps are the collaborators the route handlers are built from.
type Deps struct {
	Jobs    JobStore
	Queue   JobQueue
	Layout  *storage.Layout
	Text    TextSearcher
	Humming HummingSearcher
	Catalog CatalogSearcher
}

// SetupRoutes configures all API routes.
func SetupRoutes(r *gin.Engine, deps Deps) {
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":    "healthy",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
				"version":   Version,
			})
		})

		jobs := api.Group("/jobs")
		{
			jobs.GET("", HandleListJobs(deps.Jobs))
			jobs.POST("", HandleCreateJob(deps.Jobs, deps.Queue))
			jobs.POST("/upload", HandleUploadJob(deps.Jobs, deps.Queue, deps.Layout))
			jobs.GET("/:id", HandleGetJob(deps.Jobs))
			jobs.GET("/:id/stems/:stem_type", HandleDownloadStem(deps.Jobs))
			jobs.GET("/:id/master", HandleDownloadMaster(deps.Jobs))
			jobs.GET("/:id/download", HandleDownloadManifest(deps.Jobs))
		}

		searchGroup := api.Group("/search")
		{
			searchGroup.POST("/text", HandleTextSearch(deps.Text))
			searchGroup.POST("/humming", HandleHummingSearch(deps.Humming))
			searchGroup.GET("/musicbrainz", HandleMusicBrainzSearch(deps.Catalog))
		}
	}
}
