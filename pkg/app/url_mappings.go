package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osvaldoandrade/elqbulk/internal/controllers"
	"github.com/osvaldoandrade/elqbulk/internal/middleware"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController(app.Store.Health).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/elqbulk", middleware.AuthMiddleware(app.Validator, app.Config.RequiredScope))
	{
		v1.POST("/jobs", middleware.RateLimitJobCreate(app.RateLimiter, app.Config), controllers.NewCreateJobController(app.Jobs).Handle)
		v1.GET("/jobs", controllers.NewListJobsController(app.Jobs).Handle)
		v1.GET("/jobs/:id", controllers.NewGetJobController(app.Jobs).Handle)
		v1.GET("/jobs/:id/results", controllers.NewGetResultsController(app.Jobs).Handle)
		v1.POST("/jobs/:id/cancel", controllers.NewCancelJobController(app.Jobs).Handle)

		v1.POST("/validate", controllers.NewValidateController(app.Jobs).Handle)
		v1.GET("/operations", controllers.NewOperationsController(app.Operations).Handle)
	}
}
