package services

import (
	"context"
	"fmt"
	"sort"

	"campusride/internal/models"
	"campusride/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CreateMatch groups two or more searching requests into a pending match.
// All preconditions are checked before the first write. A request left
// "matched" by a vanished or finished match is healed and included.
func (s *matchService) CreateMatch(ctx context.Context, requestIDs []primitive.ObjectID, creatorID *primitive.ObjectID) (*models.RideMatch, error) {
	ids := uniqueIDs(requestIDs)
	if len(ids) < models.MinParticipants {
		return nil, newError(KindValidation, "a match needs at least %d distinct ride requests", models.MinParticipants)
	}

	release, err := s.lockRequests(ctx, ids)
	if err != nil {
		return nil, err
	}
	defer release()

	requests, err := s.loadFormationRequests(ctx, ids, creatorID)
	if err != nil {
		return nil, err
	}

	active, err := s.matchRepo.FindActiveByRequestIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, "ride matches")
	}
	if len(active) > 0 {
		return nil, conflict("ride request already belongs to active match %s", active[0].ID.Hex())
	}

	match, err := s.buildMatch(ctx, requests)
	if err != nil {
		return nil, err
	}

	if err := s.matchRepo.Create(ctx, match); err != nil {
		return nil, dependencyError(err, "failed to create ride match")
	}

	if err := s.attachRequests(ctx, match, requests); err != nil {
		return nil, err
	}

	metrics.MatchesFormed.Inc()
	s.logger.LogMatchEvent(match.ID, "created", map[string]interface{}{
		"participants": len(match.Participants),
		"total_seats":  match.TotalSeats,
		"total_cost":   match.EstimatedTotalCost,
	})

	s.runPostCommit(ctx, match.ID,
		s.systemMessageHook(match, fmt.Sprintf(
			"Match created! Meet at %s. Estimated cost per person: %s. Confirm within %d minutes.",
			match.MeetingPoint.Address, formatMoney(match.CostPerPerson, match.Currency), int(s.confirmWindow.Minutes()),
		)),
		s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeMatchFound, match,
			"Ride match found!",
			fmt.Sprintf("You've been matched with %d other rider(s). Confirm to lock in %s per person.",
				len(match.Participants)-1, formatMoney(match.CostPerPerson, match.Currency)),
		)),
	)

	return match, nil
}

// loadFormationRequests reads and validates every request, healing orphans.
// The returned slice follows ids order.
func (s *matchService) loadFormationRequests(ctx context.Context, ids []primitive.ObjectID, creatorID *primitive.ObjectID) ([]*models.RideRequest, error) {
	found, err := s.requestRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, "ride requests")
	}

	byID := make(map[primitive.ObjectID]*models.RideRequest, len(found))
	for _, r := range found {
		byID[r.ID] = r
	}

	requests := make([]*models.RideRequest, 0, len(ids))
	owners := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		request, ok := byID[id]
		if !ok {
			return nil, notFound("ride request %s not found", id.Hex())
		}
		if owners[request.UserID] {
			return nil, newError(KindValidation, "a rider cannot appear twice in one match")
		}
		owners[request.UserID] = true
		requests = append(requests, request)
	}

	if creatorID != nil && !owners[*creatorID] {
		return nil, unauthorized("creator must own one of the ride requests")
	}

	for _, request := range requests {
		switch request.Status {
		case models.RideRequestStatusSearching:
		case models.RideRequestStatusMatched:
			healed, err := s.healIfOrphan(ctx, request)
			if err != nil {
				return nil, err
			}
			if !healed {
				return nil, conflict("ride request %s already belongs to an active match", request.ID.Hex())
			}
			request.Status = models.RideRequestStatusSearching
			request.MatchID = nil
			request.MatchedWith = nil
		default:
			return nil, invalidState("ride request %s is %s, not searching", request.ID.Hex(), request.Status)
		}
	}

	return requests, nil
}

func (s *matchService) buildMatch(ctx context.Context, requests []*models.RideRequest) (*models.RideMatch, error) {
	userIDs := make([]primitive.ObjectID, len(requests))
	for i, r := range requests {
		userIDs[i] = r.UserID
	}

	users, err := s.userRepo.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, storeError(err, "users")
	}

	now := s.clock.Now()
	match := &models.RideMatch{
		ID:            primitive.NewObjectID(),
		RequestIDs:    make([]primitive.ObjectID, len(requests)),
		Participants:  make([]models.Participant, len(requests)),
		Status:        models.MatchStatusPending,
		Confirmations: []primitive.ObjectID{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	match.ChatRoomID = match.ID.Hex()

	for i, r := range requests {
		user, ok := users[r.UserID]
		if !ok {
			return nil, notFound("user %s not found", r.UserID.Hex())
		}
		match.RequestIDs[i] = r.ID
		match.Participants[i] = participantSnapshot(r, user)
		if i == 0 || r.DepartureTime.Before(match.DepartureTime) {
			match.DepartureTime = r.DepartureTime
		}
	}

	meeting, dropoff := centroids(match.Participants)
	meetingAddr, dropoffAddr := s.addresses.resolvePair(ctx, meeting, dropoff)
	match.MeetingPoint = models.Location{Latitude: meeting.Lat, Longitude: meeting.Lng, Address: meetingAddr}
	match.DropoffPoint = models.Location{Latitude: dropoff.Lat, Longitude: dropoff.Lng, Address: dropoffAddr}

	s.pricing.applyPricing(match, meeting, dropoff)

	return match, nil
}

// attachRequests flips each request searching -> matched. Losing the race on
// any request cancels the new match and detaches the ones already flipped.
func (s *matchService) attachRequests(ctx context.Context, match *models.RideMatch, requests []*models.RideRequest) error {
	now := s.clock.Now()
	flipped := make([]primitive.ObjectID, 0, len(requests))

	for _, r := range requests {
		ok, err := s.requestRepo.UpdateIfStatus(ctx, r.ID, models.RideRequestStatusSearching, map[string]interface{}{
			"status":       models.RideRequestStatusMatched,
			"match_id":     match.ID,
			"matched_with": siblings(match.RequestIDs, r.ID),
			"updated_at":   now,
		})
		if err != nil || !ok {
			s.abortFormation(ctx, match, flipped)
			if err != nil {
				return dependencyError(err, "failed to attach ride request %s", r.ID.Hex())
			}
			return conflict("ride request %s changed while the match was being formed", r.ID.Hex())
		}
		flipped = append(flipped, r.ID)
	}

	return nil
}

func (s *matchService) abortFormation(ctx context.Context, match *models.RideMatch, flipped []primitive.ObjectID) {
	now := s.clock.Now()
	match.Status = models.MatchStatusCancelled
	match.CancelReason = "formation conflict"
	match.CancelledAt = &now
	match.UpdatedAt = now

	if _, err := s.matchRepo.UpdateIfVersion(ctx, match.ID, match.Version, matchUpdates(match)); err != nil {
		s.logger.WithMatchID(match.ID).WithError(err).Error("failed to cancel match after formation conflict")
	}
	s.detachRequests(ctx, match.ID, flipped)
	metrics.MatchesCancelled.WithLabelValues(metrics.ReasonFormationConflict).Inc()
}

// lockRequests takes the per-request locks in id order so two formations
// over overlapping sets cannot deadlock.
func (s *matchService) lockRequests(ctx context.Context, ids []primitive.ObjectID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	sorted := make([]primitive.ObjectID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hex() < sorted[j].Hex() })

	type held struct{ key, token string }
	var locks []held

	release := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(locks) - 1; i >= 0; i-- {
			if err := s.locker.ReleaseLock(rctx, locks[i].key, locks[i].token); err != nil {
				s.logger.WithError(err).WithField("lock", locks[i].key).Warn("failed to release lock")
			}
		}
	}

	for _, id := range sorted {
		key := rideRequestLockKeyPrefix + id.Hex()
		token, ok, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
		if err != nil {
			release()
			return nil, dependencyError(err, "failed to lock ride request %s", id.Hex())
		}
		if !ok {
			release()
			return nil, conflict("ride request %s is being matched by another request", id.Hex())
		}
		locks = append(locks, held{key: key, token: token})
	}

	return release, nil
}

func participantSnapshot(r *models.RideRequest, u *models.User) models.Participant {
	return models.Participant{
		UserID:            u.ID,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Phone:             u.Phone,
		Avatar:            u.ProfilePicture,
		PickupLocation:    r.Origin,
		DropoffLocation:   r.Destination,
		Seats:             r.LookingForSeats,
		IsStudentVerified: u.IsStudentVerified,
		Department:        u.Department,
	}
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
