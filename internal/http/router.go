// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ridedispatch/internal/http/handlers"
	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/driver"
	"ridedispatch/internal/modules/trip"
)

type RouterDeps struct {
	Trips    *trip.Service
	Drivers  *driver.Service
	Verifier infra.TokenVerifier
	Log      *logrus.Entry
}

func NewRouter(deps RouterDeps) *gin.Engine {
	log := logging.Component(deps.Log, "http")
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Metrics(), middleware.Logging(log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	tripHandler := handlers.NewTripHandler(deps.Trips)
	driverHandler := handlers.NewDriverHandler(deps.Trips, deps.Drivers)
	opsHandler := handlers.NewOpsHandler(deps.Trips)

	staff := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator, middleware.RoleStationManager)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	api.POST("/trips", staff, tripHandler.Create)
	api.GET("/trips", tripHandler.List)
	api.GET("/trips/:id", tripHandler.Get)
	api.POST("/trips/:id/resend", staff, tripHandler.Resend)
	api.POST("/trips/:id/cancel", staff, tripHandler.Cancel)
	api.GET("/drivers/nearby", staff, driverHandler.Nearby)

	drv := api.Group("/driver", middleware.RequireRole(middleware.RoleDriver))
	drv.GET("/trips/active", driverHandler.Active)
	drv.POST("/trips/:id/accept", driverHandler.Accept)
	drv.POST("/trips/:id/reject", driverHandler.Reject)
	drv.POST("/trips/:id/start", driverHandler.Start)
	drv.POST("/trips/:id/complete", driverHandler.Complete)
	drv.PUT("/location", driverHandler.UpdateLocation)
	drv.PUT("/availability", driverHandler.SetAvailability)

	internal := r.Group("/internal", middleware.Auth(deps.Verifier), middleware.RequireRole(middleware.RoleAdmin))
	internal.POST("/sweep", opsHandler.Sweep)

	return r
}
