package services

import (
	"context"
	"errors"

	"campusride/internal/models"
	"campusride/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// healIfOrphan detaches a matched request whose match is missing, no longer
// active, or does not list the request. It reports whether the request was
// reset to searching.
func (s *matchService) healIfOrphan(ctx context.Context, request *models.RideRequest) (bool, error) {
	if request.Status != models.RideRequestStatusMatched {
		return false, nil
	}

	orphan, err := s.isOrphan(ctx, request)
	if err != nil || !orphan {
		return false, err
	}

	ok, err := s.requestRepo.DetachFromMatch(ctx, request.ID, request.MatchID)
	if err != nil {
		return false, dependencyError(err, "failed to reset ride request %s", request.ID.Hex())
	}
	if !ok {
		return false, nil
	}

	metrics.OrphansHealed.Inc()
	s.logger.LogRideRequestEvent(request.ID, "orphan_healed", map[string]interface{}{
		"stale_match_id": matchIDHex(request.MatchID),
	})
	return true, nil
}

func (s *matchService) isOrphan(ctx context.Context, request *models.RideRequest) (bool, error) {
	if request.MatchID == nil {
		return true, nil
	}

	match, err := s.matchRepo.GetByID(ctx, *request.MatchID)
	if err != nil {
		if errors.Is(storeError(err, "ride match"), ErrNotFound) {
			return true, nil
		}
		return false, storeError(err, "ride match")
	}

	if !match.Status.IsActive() {
		return true, nil
	}
	return !containsID(match.RequestIDs, request.ID), nil
}

// ResetStuckRequest lets an owner return an orphaned matched request to
// searching. A request held by a live match is left alone.
func (s *matchService) ResetStuckRequest(ctx context.Context, requestID, userID primitive.ObjectID) (*models.RideRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "ride request")
	}
	if request.UserID != userID {
		return nil, unauthorized("ride request belongs to another user")
	}
	if request.Status != models.RideRequestStatusMatched {
		return nil, invalidState("ride request is %s, only matched requests can be reset", request.Status)
	}

	healed, err := s.healIfOrphan(ctx, request)
	if err != nil {
		return nil, err
	}
	if !healed {
		return nil, invalidState("ride request belongs to an active match")
	}

	request, err = s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "ride request")
	}
	return request, nil
}

func matchIDHex(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}
