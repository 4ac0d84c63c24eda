package routes

import (
	"campusride/internal/handlers/shared"
	"campusride/internal/middleware"

	"github.com/gin-gonic/gin"
)

// Handlers bundles everything the API routes dispatch to.
type Handlers struct {
	RideRequests  *shared.RideRequestHandler
	Matches       *shared.MatchHandler
	Notifications *shared.NotificationHandler
}

// SetupRideRoutes sets up the ride request, match and inbox routes. Every
// route requires a valid token; sweeps also require the admin role.
func SetupRideRoutes(r *gin.RouterGroup, h Handlers, jwtSecret string) {
	auth := middleware.AuthRequired(jwtSecret)

	requests := r.Group("/ride-requests")
	requests.Use(auth)
	{
		requests.POST("", h.RideRequests.CreateRideRequest)
		requests.GET("", h.RideRequests.GetUserRideRequests)
		requests.GET("/:id", h.RideRequests.GetRideRequest)
		requests.PUT("/:id", h.RideRequests.UpdateRideRequest)
		requests.DELETE("/:id", h.RideRequests.DeleteRideRequest)
		requests.POST("/:id/reset", h.RideRequests.ResetStuckRequest)
		requests.GET("/:id/matches", h.RideRequests.FindPotentialMatches)
	}

	matches := r.Group("/matches")
	matches.Use(auth)
	{
		matches.POST("", h.Matches.CreateMatch)
		matches.GET("", h.Matches.GetUserMatches)
		matches.GET("/:id", h.Matches.GetRideMatch)
		matches.GET("/:id/messages", h.Matches.GetMatchMessages)
		matches.POST("/:id/confirm", h.Matches.ConfirmMatch)
		matches.POST("/:id/leave", h.Matches.LeaveMatch)
		matches.POST("/:id/start", h.Matches.StartRide)
		matches.POST("/:id/complete", h.Matches.CompleteRide)
	}

	r.GET("/notifications", auth, h.Notifications.GetNotifications)

	admin := r.Group("/admin/matches")
	admin.Use(auth, middleware.AdminRequired())
	{
		admin.POST("/expire", h.Matches.ExpireOldMatches)
		admin.POST("/timeouts", h.Matches.CheckConfirmationTimeouts)
		admin.POST("/:id/timeout", h.Matches.CheckMatchConfirmationTimeout)
	}
}
