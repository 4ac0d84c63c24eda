package shared

import (
	"campusride/internal/models"
	"campusride/internal/services"
	"campusride/internal/utils"
	"campusride/internal/validators"

	"github.com/gin-gonic/gin"
)

type RideRequestHandler struct {
	rideRequestService services.RideRequestService
	matchService       services.MatchService
}

func NewRideRequestHandler(rideRequestService services.RideRequestService, matchService services.MatchService) *RideRequestHandler {
	return &RideRequestHandler{
		rideRequestService: rideRequestService,
		matchService:       matchService,
	}
}

// CreateRideRequest posts a new ride request for the caller
func (h *RideRequestHandler) CreateRideRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.CreateRideRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	request, err := h.rideRequestService.CreateRideRequest(c.Request.Context(), userID, &input)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Ride request created successfully", request)
}

// GetRideRequest returns one of the caller's ride requests
func (h *RideRequestHandler) GetRideRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := objectIDParam(c, "id", "ride request")
	if !ok {
		return
	}

	request, err := h.rideRequestService.GetRideRequest(c.Request.Context(), requestID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride request retrieved successfully", request)
}

// GetUserRideRequests lists the caller's ride requests, optionally by status
func (h *RideRequestHandler) GetUserRideRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var status *models.RideRequestStatus
	if s := c.Query("status"); s != "" {
		st := models.RideRequestStatus(s)
		status = &st
	}

	requests, err := h.rideRequestService.GetUserRideRequests(c.Request.Context(), userID, status)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Ride requests retrieved successfully", requests, &utils.Meta{Count: len(requests)})
}

func (h *RideRequestHandler) UpdateRideRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := objectIDParam(c, "id", "ride request")
	if !ok {
		return
	}

	var input models.UpdateRideRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}

	request, err := h.rideRequestService.UpdateRideRequest(c.Request.Context(), requestID, userID, &input)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride request updated successfully", request)
}

func (h *RideRequestHandler) DeleteRideRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := objectIDParam(c, "id", "ride request")
	if !ok {
		return
	}

	if err := h.rideRequestService.DeleteRideRequest(c.Request.Context(), requestID, userID); err != nil {
		respondError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// ResetStuckRequest frees a request left matched by a vanished match
func (h *RideRequestHandler) ResetStuckRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := objectIDParam(c, "id", "ride request")
	if !ok {
		return
	}

	request, err := h.matchService.ResetStuckRequest(c.Request.Context(), requestID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride request reset successfully", request)
}

// FindPotentialMatches ranks compatible searching requests for one of the
// caller's requests
func (h *RideRequestHandler) FindPotentialMatches(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := objectIDParam(c, "id", "ride request")
	if !ok {
		return
	}

	var query models.FindMatchesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "Invalid query: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(&query); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	if _, err := h.rideRequestService.GetRideRequest(c.Request.Context(), requestID, userID); err != nil {
		respondError(c, err)
		return
	}

	criteria := services.MatchCriteria{
		MaxOriginDistance:      query.MaxOriginDistance,
		MaxDestinationDistance: query.MaxDestinationDistance,
		MinMatchScore:          query.MinMatchScore,
	}

	matches, err := h.matchService.FindPotentialMatches(c.Request.Context(), requestID, criteria)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Potential matches retrieved successfully", matches, &utils.Meta{Count: len(matches)})
}
