package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TaskHandler defines the interface for the task handler.
type TaskHandler interface {
	Upload(c *gin.Context)
	List(c *gin.Context)
	Status(c *gin.Context)
	Analyze(c *gin.Context)
	Results(c *gin.Context)
	Events(c *gin.Context)
	Delete(c *gin.Context)
}

// New wires up handlers to the Gin engine. storageEvents may be nil when
// bucket ingestion is not configured.
func New(tasks TaskHandler, storageEvents http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check endpoint (no middleware)
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1 := r.Group("/api/v1")
	{
		t := v1.Group("/tasks")
		t.POST("", tasks.Upload)
		t.GET("", tasks.List)
		t.GET("/:id/status", tasks.Status)
		t.POST("/:id/analyze", tasks.Analyze)
		t.GET("/:id/results", tasks.Results)
		t.GET("/:id/events", tasks.Events)
		t.DELETE("/:id", tasks.Delete)

		if storageEvents != nil {
			v1.POST("/events/storage", gin.WrapH(storageEvents))
		}
	}

	return r
}
