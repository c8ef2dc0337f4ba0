package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gradex/internal/common/cache"
	"gradex/internal/common/http/middleware"
)

// NewRouter assembles the gin engine with middleware and all routes.
func NewRouter(execCtl *ExecutionController, attemptCtl *AttemptController, c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RecoveryMiddleware())
	r.Use(middleware.TraceContextMiddleware())
	r.Use(middleware.RequestLoggerMiddleware())

	r.GET("/healthz", func(ctx *gin.Context) {
		status := gin.H{"status": "ok"}
		code := http.StatusOK
		if c != nil {
			if err := c.Ping(ctx.Request.Context()); err != nil {
				status["status"] = "degraded"
				status["cache"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		ctx.JSON(code, status)
	})

	v1 := r.Group("/api/v1/execution")
	{
		v1.POST("/run", execCtl.Run)
		v1.GET("/runs/:runId", execCtl.GetRun)
		v1.GET("/languages", execCtl.Languages)
		v1.GET("/quota", execCtl.Quota)

		attempts := v1.Group("/attempts")
		{
			attempts.POST("/:attemptId/save", attemptCtl.Save)
			attempts.POST("/:attemptId/submit", attemptCtl.Submit)
			attempts.GET("/:attemptId", attemptCtl.Get)
		}
	}
	return r
}
