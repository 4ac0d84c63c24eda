package shared

import (
	"context"

	"campusride/internal/models"
	"campusride/internal/services"
	"campusride/internal/utils"
	"campusride/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(matchService services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// CreateMatch groups the given ride requests; the caller must own one of them
func (h *MatchHandler) CreateMatch(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.CreateMatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateCreateMatch(&input); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Map())
		return
	}

	ids := make([]primitive.ObjectID, len(input.RequestIDs))
	for i, s := range input.RequestIDs {
		ids[i], _ = primitive.ObjectIDFromHex(s)
	}

	match, err := h.matchService.CreateMatch(c.Request.Context(), ids, &userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Match created successfully", match)
}

func (h *MatchHandler) GetRideMatch(c *gin.Context) {
	h.withMatch(c, "Match retrieved successfully", h.matchService.GetRideMatch)
}

// GetUserMatches lists matches the caller participates in
func (h *MatchHandler) GetUserMatches(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var status *models.MatchStatus
	if s := c.Query("status"); s != "" {
		st := models.MatchStatus(s)
		status = &st
	}

	matches, err := h.matchService.GetUserMatches(c.Request.Context(), userID, status)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Matches retrieved successfully", matches, &utils.Meta{Count: len(matches)})
}

func (h *MatchHandler) GetMatchMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	matchID, ok := objectIDParam(c, "id", "match")
	if !ok {
		return
	}

	messages, err := h.matchService.GetMatchMessages(c.Request.Context(), matchID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Messages retrieved successfully", messages, &utils.Meta{Count: len(messages)})
}

func (h *MatchHandler) ConfirmMatch(c *gin.Context) {
	h.withMatch(c, "Match confirmed", h.matchService.ConfirmMatch)
}

func (h *MatchHandler) LeaveMatch(c *gin.Context) {
	h.withMatch(c, "Left match", h.matchService.LeaveMatch)
}

func (h *MatchHandler) StartRide(c *gin.Context) {
	h.withMatch(c, "Ride started", h.matchService.StartRide)
}

func (h *MatchHandler) CompleteRide(c *gin.Context) {
	h.withMatch(c, "Ride completed", h.matchService.CompleteRide)
}

// ExpireOldMatches runs the departure-time sweep on demand
func (h *MatchHandler) ExpireOldMatches(c *gin.Context) {
	count, err := h.matchService.ExpireOldMatches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, "Expired matches swept", gin.H{"cancelled": count})
}

// CheckConfirmationTimeouts runs the confirmation-window sweep on demand
func (h *MatchHandler) CheckConfirmationTimeouts(c *gin.Context) {
	count, err := h.matchService.CheckConfirmationTimeouts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, "Confirmation timeouts swept", gin.H{"cancelled": count})
}

func (h *MatchHandler) CheckMatchConfirmationTimeout(c *gin.Context) {
	matchID, ok := objectIDParam(c, "id", "match")
	if !ok {
		return
	}

	cancelled, err := h.matchService.CheckMatchConfirmationTimeout(c.Request.Context(), matchID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, "Confirmation timeout checked", gin.H{"cancelled": cancelled})
}

type matchAction func(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error)

func (h *MatchHandler) withMatch(c *gin.Context, message string, action matchAction) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	matchID, ok := objectIDParam(c, "id", "match")
	if !ok {
		return
	}

	match, err := action(c.Request.Context(), matchID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, message, match)
}
