package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/khanhnd/jobengine/internal/api/handler"
	"github.com/khanhnd/jobengine/internal/api/policy"
)

// SetupRouter configures and returns the Gin router with all routes.
// Administrative routes compose their authorization check explicitly, one
// middleware per action.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":           "healthy",
			"broker_connected": deps.RabbitClient.IsConnected(),
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	adminHandler := handler.NewAdminHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/requeue",
				RequireAction(deps.Authorizer, policy.ActionRequeueJob),
				jobHandler.RequeueJob,
			)
		}

		outbox := v1.Group("/outbox")
		{
			outbox.GET("/failed", adminHandler.ListFailedOutbox)
			outbox.POST("/:id/retry",
				RequireAction(deps.Authorizer, policy.ActionRetryOutbox),
				adminHandler.RetryOutboxEvent,
			)
		}

		v1.DELETE("/cache/:key",
			RequireAction(deps.Authorizer, policy.ActionInvalidateCache),
			adminHandler.InvalidateCacheKey,
		)
	}

	return r
}
