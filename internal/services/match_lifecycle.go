package services

import (
	"context"
	"fmt"

	"campusride/internal/models"
	"campusride/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	reasonConfirmationTimeout = "confirmation timeout"
	reasonDeparturePassed     = "departure time passed"
	reasonNotEnoughRiders     = "not enough participants remaining"
)

// ConfirmMatch records userID's confirmation. Once every participant has
// confirmed the match becomes confirmed and the per-person cost is frozen.
// Confirming twice is a no-op.
func (s *matchService) ConfirmMatch(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error) {
	var completed bool

	match, changed, err := s.updateMatch(ctx, matchID, func(m *models.RideMatch) (bool, error) {
		completed = false
		if !m.HasParticipant(userID) {
			return false, unauthorized("user is not a participant of this match")
		}
		if m.IsConfirmedBy(userID) {
			return false, nil
		}
		if m.Status != models.MatchStatusPending {
			return false, invalidState("cannot confirm a %s match", m.Status)
		}

		m.Confirmations = append(m.Confirmations, userID)
		if m.AllConfirmed() {
			now := s.clock.Now()
			final := m.CostPerPerson
			m.Status = models.MatchStatusConfirmed
			m.FinalCostPerPerson = &final
			m.ConfirmedAt = &now
			completed = true
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return match, nil
	}

	idx := match.ParticipantIndex(userID)
	s.logger.LogMatchEvent(match.ID, "participant_confirmed", map[string]interface{}{
		"user_id":       userID.Hex(),
		"confirmations": len(match.Confirmations),
		"participants":  len(match.Participants),
	})

	hooks := []postCommitHook{
		s.systemMessageHook(match, fmt.Sprintf("%s confirmed the ride (%d/%d).",
			match.Participants[idx].DisplayName(), len(match.Confirmations), len(match.Participants))),
	}
	if completed {
		metrics.MatchesConfirmed.Inc()
		s.logger.LogMatchEvent(match.ID, "confirmed", map[string]interface{}{
			"final_cost_per_person": *match.FinalCostPerPerson,
		})
		hooks = append(hooks,
			s.systemMessageHook(match, fmt.Sprintf("Everyone confirmed! Final cost per person: %s.",
				formatMoney(*match.FinalCostPerPerson, match.Currency))),
			s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeMatchConfirmed, match,
				"Ride confirmed",
				fmt.Sprintf("All riders confirmed. Meet at %s.", match.MeetingPoint.Address))),
		)
	}
	s.runPostCommit(ctx, match.ID, hooks...)

	return match, nil
}

// LeaveMatch removes userID from a pending or confirmed match and returns
// their request to searching. A match left with fewer than two riders is
// cancelled; otherwise it is re-priced for those who remain.
func (s *matchService) LeaveMatch(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error) {
	var (
		leaver        models.Participant
		leaverRequest primitive.ObjectID
	)

	match, _, err := s.updateMatch(ctx, matchID, func(m *models.RideMatch) (bool, error) {
		idx := m.ParticipantIndex(userID)
		if idx < 0 {
			return false, unauthorized("user is not a participant of this match")
		}
		if m.Status != models.MatchStatusPending && m.Status != models.MatchStatusConfirmed {
			return false, invalidState("cannot leave a %s match", m.Status)
		}

		leaver = m.Participants[idx]
		leaverRequest = m.RequestIDs[idx]
		removeParticipant(m, idx)

		now := s.clock.Now()
		if len(m.Participants) < models.MinParticipants {
			m.Status = models.MatchStatusCancelled
			m.CancelReason = reasonNotEnoughRiders
			m.CancelledAt = &now
			return true, nil
		}

		meeting, dropoff := centroids(m.Participants)
		meetingAddr, dropoffAddr := s.addresses.resolvePair(ctx, meeting, dropoff)
		m.MeetingPoint = models.Location{Latitude: meeting.Lat, Longitude: meeting.Lng, Address: meetingAddr}
		m.DropoffPoint = models.Location{Latitude: dropoff.Lat, Longitude: dropoff.Lng, Address: dropoffAddr}
		s.pricing.applyPricing(m, meeting, dropoff)

		if m.AllConfirmed() {
			final := m.CostPerPerson
			m.Status = models.MatchStatusConfirmed
			m.FinalCostPerPerson = &final
			if m.ConfirmedAt == nil {
				m.ConfirmedAt = &now
			}
		} else {
			m.Status = models.MatchStatusPending
			m.FinalCostPerPerson = nil
			m.ConfirmedAt = nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.detachRequests(ctx, match.ID, []primitive.ObjectID{leaverRequest})
	s.logger.LogMatchEvent(match.ID, "participant_left", map[string]interface{}{
		"user_id":   userID.Hex(),
		"remaining": len(match.Participants),
		"status":    string(match.Status),
	})

	if match.Status == models.MatchStatusCancelled {
		metrics.MatchesCancelled.WithLabelValues(metrics.ReasonUnderQuorum).Inc()
		s.detachRequests(ctx, match.ID, match.RequestIDs)
		s.runPostCommit(ctx, match.ID,
			s.systemMessageHook(match, fmt.Sprintf("%s left. The match was cancelled because not enough riders remain.", leaver.DisplayName())),
			s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeMatchCancelled, match,
				"Ride match cancelled",
				fmt.Sprintf("%s left the ride. You are back in the search pool.", leaver.DisplayName()))),
		)
		return match, nil
	}

	s.refreshSiblings(ctx, match)
	s.runPostCommit(ctx, match.ID,
		s.systemMessageHook(match, fmt.Sprintf("%s left the ride. New cost per person: %s.",
			leaver.DisplayName(), formatMoney(match.CostPerPerson, match.Currency))),
		s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeMatchUpdated, match,
			"Ride match updated",
			fmt.Sprintf("%s left. Cost per person is now %s.", leaver.DisplayName(), formatMoney(match.CostPerPerson, match.Currency)))),
	)
	return match, nil
}

// StartRide moves a confirmed match and its requests to riding.
func (s *matchService) StartRide(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error) {
	match, changed, err := s.updateMatch(ctx, matchID, func(m *models.RideMatch) (bool, error) {
		if !m.HasParticipant(userID) {
			return false, unauthorized("user is not a participant of this match")
		}
		if m.Status == models.MatchStatusRiding {
			return false, nil
		}
		if !models.CanTransition(m.Status, models.MatchStatusRiding) {
			return false, invalidState("cannot start a %s match", m.Status)
		}
		now := s.clock.Now()
		m.Status = models.MatchStatusRiding
		m.StartedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// requests are moved even on a repeated call to converge a partial earlier run
	if _, err := s.requestRepo.UpdateStatusForMatch(ctx, match.ID, models.RideRequestStatusMatched, models.RideRequestStatusRiding); err != nil {
		s.logger.WithMatchID(match.ID).WithError(err).Error("failed to move ride requests to riding")
	}
	if !changed {
		return match, nil
	}

	s.logger.LogMatchEvent(match.ID, "ride_started", nil)
	s.runPostCommit(ctx, match.ID,
		s.systemMessageHook(match, "The ride has started. Have a safe trip!"),
		s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeRideStarted, match,
			"Ride started", "Your shared ride is on its way.")),
	)
	return match, nil
}

// CompleteRide finishes a riding match and its requests.
func (s *matchService) CompleteRide(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error) {
	match, changed, err := s.updateMatch(ctx, matchID, func(m *models.RideMatch) (bool, error) {
		if !m.HasParticipant(userID) {
			return false, unauthorized("user is not a participant of this match")
		}
		if m.Status == models.MatchStatusCompleted {
			return false, nil
		}
		if !models.CanTransition(m.Status, models.MatchStatusCompleted) {
			return false, invalidState("cannot complete a %s match", m.Status)
		}
		now := s.clock.Now()
		m.Status = models.MatchStatusCompleted
		m.CompletedAt = &now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.requestRepo.UpdateStatusForMatch(ctx, match.ID, models.RideRequestStatusRiding, models.RideRequestStatusCompleted); err != nil {
		s.logger.WithMatchID(match.ID).WithError(err).Error("failed to move ride requests to completed")
	}
	if !changed {
		return match, nil
	}

	s.logger.LogMatchEvent(match.ID, "ride_completed", nil)
	s.runPostCommit(ctx, match.ID,
		s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeRideCompleted, match,
			"Ride completed", "Thanks for sharing your ride!")),
	)
	return match, nil
}

// CheckMatchConfirmationTimeout cancels a pending match whose confirmation
// window has elapsed without every participant confirming. Only unconfirmed
// participants' requests are reset; confirmed ones stay matched until healed.
// It reports whether this call cancelled the match.
func (s *matchService) CheckMatchConfirmationTimeout(ctx context.Context, matchID primitive.ObjectID) (bool, error) {
	match, changed, err := s.updateMatch(ctx, matchID, func(m *models.RideMatch) (bool, error) {
		if m.Status != models.MatchStatusPending || m.AllConfirmed() {
			return false, nil
		}
		now := s.clock.Now()
		if now.Before(m.CreatedAt.Add(s.confirmWindow)) {
			return false, nil
		}
		m.Status = models.MatchStatusCancelled
		m.CancelReason = reasonConfirmationTimeout
		m.CancelledAt = &now
		return true, nil
	})
	if err != nil || !changed {
		return false, err
	}

	var unconfirmed []primitive.ObjectID
	for i, p := range match.Participants {
		if !match.IsConfirmedBy(p.UserID) {
			unconfirmed = append(unconfirmed, match.RequestIDs[i])
		}
	}
	s.detachRequests(ctx, match.ID, unconfirmed)

	metrics.MatchesCancelled.WithLabelValues(metrics.ReasonConfirmationTimeout).Inc()
	s.logger.LogMatchEvent(match.ID, "cancelled", map[string]interface{}{
		"reason":        reasonConfirmationTimeout,
		"confirmations": len(match.Confirmations),
		"participants":  len(match.Participants),
	})

	ratio := fmt.Sprintf("%d/%d", len(match.Confirmations), len(match.Participants))
	s.runPostCommit(ctx, match.ID,
		s.systemMessageHook(match, fmt.Sprintf("Match cancelled: not everyone confirmed in time (%s confirmed).", ratio)),
		s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeMatchCancelled, match,
			"Ride match expired",
			fmt.Sprintf("Not all riders confirmed within %d minutes (%s confirmed).", int(s.confirmWindow.Minutes()), ratio))),
	)
	return true, nil
}

// CheckConfirmationTimeouts runs CheckMatchConfirmationTimeout over pending
// matches older than the confirmation window. Per-match failures are logged.
func (s *matchService) CheckConfirmationTimeouts(ctx context.Context) (int, error) {
	matches, err := s.matchRepo.FindPendingCreatedBefore(ctx, s.clock.Now().Add(-s.confirmWindow), s.batchSize)
	if err != nil {
		return 0, storeError(err, "ride matches")
	}

	cancelled := 0
	for _, m := range matches {
		if ctx.Err() != nil {
			return cancelled, ctx.Err()
		}
		ok, err := s.CheckMatchConfirmationTimeout(ctx, m.ID)
		if err != nil {
			s.logger.WithMatchID(m.ID).WithError(err).Warn("confirmation timeout check failed")
			continue
		}
		if ok {
			cancelled++
		}
	}
	return cancelled, nil
}

// ExpireOldMatches cancels every pending match whose departure time has
// passed and resets all of its requests, confirmed or not.
func (s *matchService) ExpireOldMatches(ctx context.Context) (int, error) {
	matches, err := s.matchRepo.FindPendingDepartedBefore(ctx, s.clock.Now(), s.batchSize)
	if err != nil {
		return 0, storeError(err, "ride matches")
	}

	expired := 0
	for _, m := range matches {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := s.expireMatch(ctx, m.ID)
		if err != nil {
			s.logger.WithMatchID(m.ID).WithError(err).Warn("failed to expire match")
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (s *matchService) expireMatch(ctx context.Context, matchID primitive.ObjectID) (bool, error) {
	match, changed, err := s.updateMatch(ctx, matchID, func(m *models.RideMatch) (bool, error) {
		now := s.clock.Now()
		if m.Status != models.MatchStatusPending || m.DepartureTime.After(now) {
			return false, nil
		}
		m.Status = models.MatchStatusCancelled
		m.CancelReason = reasonDeparturePassed
		m.CancelledAt = &now
		return true, nil
	})
	if err != nil || !changed {
		return false, err
	}

	s.detachRequests(ctx, match.ID, match.RequestIDs)
	metrics.MatchesCancelled.WithLabelValues(metrics.ReasonDeparturePassed).Inc()
	s.logger.LogMatchEvent(match.ID, "cancelled", map[string]interface{}{"reason": reasonDeparturePassed})

	s.runPostCommit(ctx, match.ID,
		s.systemMessageHook(match, "Match cancelled: departure time passed."),
		s.notifyHook(match.ParticipantIDs(), matchNotification(models.NotificationTypeMatchCancelled, match,
			"Ride match cancelled",
			"The departure time passed before everyone confirmed. You are back in the search pool.")),
	)
	return true, nil
}

// refreshSiblings rewrites matched_with on every remaining request.
func (s *matchService) refreshSiblings(ctx context.Context, match *models.RideMatch) {
	now := s.clock.Now()
	for _, id := range match.RequestIDs {
		_, err := s.requestRepo.UpdateIfStatus(ctx, id, models.RideRequestStatusMatched, map[string]interface{}{
			"matched_with": siblings(match.RequestIDs, id),
			"updated_at":   now,
		})
		if err != nil {
			s.logger.WithMatchID(match.ID).WithRideRequestID(id).WithError(err).Warn("failed to refresh matched_with")
		}
	}
}

// removeParticipant drops index i from the parallel arrays and the user's
// confirmation. It allocates new slices so a retried mutation never sees a
// half-edited backing array.
func removeParticipant(m *models.RideMatch, i int) {
	userID := m.Participants[i].UserID

	participants := make([]models.Participant, 0, len(m.Participants)-1)
	participants = append(participants, m.Participants[:i]...)
	m.Participants = append(participants, m.Participants[i+1:]...)

	requestIDs := make([]primitive.ObjectID, 0, len(m.RequestIDs)-1)
	requestIDs = append(requestIDs, m.RequestIDs[:i]...)
	m.RequestIDs = append(requestIDs, m.RequestIDs[i+1:]...)

	confirmations := make([]primitive.ObjectID, 0, len(m.Confirmations))
	for _, id := range m.Confirmations {
		if id != userID {
			confirmations = append(confirmations, id)
		}
	}
	m.Confirmations = confirmations
}
