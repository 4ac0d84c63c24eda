package services

import (
	"context"
	"fmt"
	"time"

	"campusride/internal/models"
	"campusride/internal/repositories/interfaces"
	"campusride/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	maxUpdateAttempts        = 3
	defaultConfirmWindow     = 30 * time.Minute
	defaultLockTTL           = 10 * time.Second
	defaultSweepBatchSize    = 500
	rideRequestLockKeyPrefix = "lock:ride_request:"
)

type MatchService interface {
	FindPotentialMatches(ctx context.Context, requestID primitive.ObjectID, criteria MatchCriteria) ([]PotentialMatch, error)
	CreateMatch(ctx context.Context, requestIDs []primitive.ObjectID, creatorID *primitive.ObjectID) (*models.RideMatch, error)

	GetRideMatch(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error)
	GetUserMatches(ctx context.Context, userID primitive.ObjectID, status *models.MatchStatus) ([]*models.RideMatch, error)
	GetMatchMessages(ctx context.Context, matchID, userID primitive.ObjectID) ([]*models.Message, error)

	ConfirmMatch(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error)
	LeaveMatch(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error)
	StartRide(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error)
	CompleteRide(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error)

	CheckMatchConfirmationTimeout(ctx context.Context, matchID primitive.ObjectID) (bool, error)
	CheckConfirmationTimeouts(ctx context.Context) (int, error)
	ExpireOldMatches(ctx context.Context) (int, error)
	ResetStuckRequest(ctx context.Context, requestID, userID primitive.ObjectID) (*models.RideRequest, error)
}

// MatchServiceDeps are the collaborators of the matching engine. Geocoder,
// Notifier and Locker are optional.
type MatchServiceDeps struct {
	Requests interfaces.RideRequestRepository
	Matches  interfaces.MatchRepository
	Users    interfaces.UserRepository
	Chat     interfaces.ChatRepository
	Geocoder ReverseGeocoder
	Notifier Notifier
	Locker   Locker
	Clock    Clock
	Logger   *logger.Logger
}

type MatchServiceConfig struct {
	Criteria           MatchCriteria
	Pricing            Pricing
	ConfirmationWindow time.Duration
	LockTTL            time.Duration
	GeocodeTimeout     time.Duration
	SweepBatchSize     int64
}

type matchService struct {
	requestRepo interfaces.RideRequestRepository
	matchRepo   interfaces.MatchRepository
	userRepo    interfaces.UserRepository
	chatRepo    interfaces.ChatRepository
	notifier    Notifier
	locker      Locker
	clock       Clock
	logger      *logger.Logger
	addresses   addressResolver

	criteria      MatchCriteria
	pricing       Pricing
	confirmWindow time.Duration
	lockTTL       time.Duration
	batchSize     int64
}

func NewMatchService(deps MatchServiceDeps, cfg MatchServiceConfig) MatchService {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if cfg.ConfirmationWindow <= 0 {
		cfg.ConfirmationWindow = defaultConfirmWindow
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = defaultSweepBatchSize
	}
	if cfg.Pricing == (Pricing{}) {
		cfg.Pricing = DefaultPricing()
	}

	return &matchService{
		requestRepo: deps.Requests,
		matchRepo:   deps.Matches,
		userRepo:    deps.Users,
		chatRepo:    deps.Chat,
		notifier:    deps.Notifier,
		locker:      deps.Locker,
		clock:       deps.Clock,
		logger:      deps.Logger,
		addresses: addressResolver{
			geocoder: deps.Geocoder,
			timeout:  cfg.GeocodeTimeout,
			logger:   deps.Logger,
		},
		criteria:      cfg.Criteria.withDefaults(DefaultMatchCriteria()),
		pricing:       cfg.Pricing,
		confirmWindow: cfg.ConfirmationWindow,
		lockTTL:       cfg.LockTTL,
		batchSize:     cfg.SweepBatchSize,
	}
}

func (s *matchService) GetRideMatch(ctx context.Context, matchID, userID primitive.ObjectID) (*models.RideMatch, error) {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, storeError(err, "ride match")
	}
	if !match.HasParticipant(userID) {
		return nil, unauthorized("user is not a participant of this match")
	}
	return match, nil
}

func (s *matchService) GetUserMatches(ctx context.Context, userID primitive.ObjectID, status *models.MatchStatus) ([]*models.RideMatch, error) {
	matches, err := s.matchRepo.GetByParticipant(ctx, userID, status)
	if err != nil {
		return nil, storeError(err, "ride matches")
	}
	return matches, nil
}

func (s *matchService) GetMatchMessages(ctx context.Context, matchID, userID primitive.ObjectID) ([]*models.Message, error) {
	match, err := s.GetRideMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chatRepo.GetByChatRoom(ctx, match.ChatRoomID, 200)
	if err != nil {
		return nil, storeError(err, "messages")
	}
	return messages, nil
}

// updateMatch re-reads the match, lets mutate change it in place and writes
// the result back guarded by the version counter. mutate returning false
// means there is nothing to write. A lost race is retried from a fresh read.
func (s *matchService) updateMatch(ctx context.Context, matchID primitive.ObjectID, mutate func(m *models.RideMatch) (bool, error)) (*models.RideMatch, bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		match, err := s.matchRepo.GetByID(ctx, matchID)
		if err != nil {
			return nil, false, storeError(err, "ride match")
		}

		changed, err := mutate(match)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return match, false, nil
		}

		match.UpdatedAt = s.clock.Now()
		ok, err := s.matchRepo.UpdateIfVersion(ctx, match.ID, match.Version, matchUpdates(match))
		if err != nil {
			return nil, false, dependencyError(err, "failed to update ride match")
		}
		if ok {
			match.Version++
			return match, true, nil
		}

		s.logger.WithMatchID(matchID).WithField("attempt", attempt+1).Debug("match modified concurrently, retrying")
	}

	return nil, false, conflict("ride match %s was modified concurrently, try again", matchID.Hex())
}

// matchUpdates lists every field a lifecycle operation may change.
func matchUpdates(m *models.RideMatch) map[string]interface{} {
	return map[string]interface{}{
		"request_ids":           m.RequestIDs,
		"participants":          m.Participants,
		"meeting_point":         m.MeetingPoint,
		"dropoff_point":         m.DropoffPoint,
		"estimated_total_cost":  m.EstimatedTotalCost,
		"cost_per_person":       m.CostPerPerson,
		"final_cost_per_person": m.FinalCostPerPerson,
		"total_seats":           m.TotalSeats,
		"status":                m.Status,
		"confirmations":         m.Confirmations,
		"cancel_reason":         m.CancelReason,
		"updated_at":            m.UpdatedAt,
		"confirmed_at":          m.ConfirmedAt,
		"cancelled_at":          m.CancelledAt,
		"started_at":            m.StartedAt,
		"completed_at":          m.CompletedAt,
	}
}

// postCommitHook is a side effect that runs after the primary write has
// committed. Its failure is logged and never undoes the write.
type postCommitHook struct {
	name string
	run  func(ctx context.Context) error
}

func (s *matchService) runPostCommit(ctx context.Context, matchID primitive.ObjectID, hooks ...postCommitHook) {
	for _, hook := range hooks {
		if err := hook.run(ctx); err != nil {
			s.logger.WithMatchID(matchID).WithError(err).WithField("hook", hook.name).Warn("post-commit side effect failed")
		}
	}
}

func (s *matchService) systemMessageHook(match *models.RideMatch, content string) postCommitHook {
	return postCommitHook{
		name: "system_message",
		run: func(ctx context.Context) error {
			return s.chatRepo.CreateMessage(ctx, &models.Message{
				ChatRoomID: match.ChatRoomID,
				Type:       models.MessageTypeSystem,
				Content:    content,
				CreatedAt:  s.clock.Now(),
			})
		},
	}
}

func (s *matchService) notifyHook(userIDs []primitive.ObjectID, notification Notification) postCommitHook {
	return postCommitHook{
		name: "notify",
		run: func(ctx context.Context) error {
			if len(userIDs) > 0 {
				s.notifier.Notify(ctx, userIDs, notification)
			}
			return nil
		},
	}
}

func matchNotification(kind models.NotificationType, match *models.RideMatch, title, body string) Notification {
	return Notification{
		Type:  string(kind),
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":     string(kind),
			"match_id": match.ID.Hex(),
			"status":   string(match.Status),
		},
	}
}

// detachRequests resets each request that still points at matchID. Failures
// are logged; the request is healed later by formation or ResetStuckRequest.
func (s *matchService) detachRequests(ctx context.Context, matchID primitive.ObjectID, requestIDs []primitive.ObjectID) {
	for _, id := range requestIDs {
		if _, err := s.requestRepo.DetachFromMatch(ctx, id, &matchID); err != nil {
			s.logger.WithMatchID(matchID).WithRideRequestID(id).WithError(err).Warn("failed to reset ride request")
		}
	}
}

func formatMoney(amount float64, currency string) string {
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func siblings(ids []primitive.ObjectID, self primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, []primitive.ObjectID, Notification) {}
