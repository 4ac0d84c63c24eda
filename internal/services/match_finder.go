package services

import (
	"context"
	"sort"
	"time"

	"campusride/internal/models"
	"campusride/internal/utils"
	"campusride/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

type PotentialMatch struct {
	Score     int                 `json:"score"`
	Breakdown ScoreBreakdown      `json:"breakdown"`
	Request   *models.RideRequest `json:"request"`
	User      models.UserSummary  `json:"user"`
}

// FindPotentialMatches ranks searching requests whose origin lies near the
// source request's origin. Zero-valued criteria fields take the service
// defaults.
func (s *matchService) FindPotentialMatches(ctx context.Context, requestID primitive.ObjectID, criteria MatchCriteria) ([]PotentialMatch, error) {
	start := time.Now()
	criteria = criteria.withDefaults(s.criteria)

	source, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "ride request")
	}

	candidates, err := s.searchCandidates(ctx, source, criteria.MaxOriginDistance)
	if err != nil {
		return nil, err
	}

	userIDs := make([]primitive.ObjectID, 0, len(candidates)+1)
	userIDs = append(userIDs, source.UserID)
	for _, c := range candidates {
		userIDs = append(userIDs, c.UserID)
	}

	users, err := s.userRepo.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, storeError(err, "users")
	}

	sourceParty := Party{Request: source, User: users[source.UserID]}
	log := s.logger.WithRideRequestID(source.ID)

	results := make([]PotentialMatch, 0, len(candidates))
	for _, candidate := range candidates {
		user, ok := users[candidate.UserID]
		if !ok {
			log.WithField("candidate_id", candidate.ID.Hex()).Debug("skipping candidate with unresolved owner")
			continue
		}

		party := Party{Request: candidate, User: user}
		if !verificationCompatible(sourceParty, party) {
			continue
		}

		score := ScoreMatch(sourceParty, party, criteria)
		if score.Breakdown.Rejected != "" || score.Score < criteria.minScore() {
			continue
		}

		results = append(results, PotentialMatch{
			Score:     score.Score,
			Breakdown: score.Breakdown,
			Request:   candidate,
			User:      user.Summary(),
		})
	}

	sortPotentialMatches(results, source)

	metrics.FinderLatency.Observe(time.Since(start).Seconds())
	metrics.FinderCandidates.Observe(float64(len(results)))
	log.WithFields(map[string]interface{}{
		"candidates": len(candidates),
		"matches":    len(results),
	}).Debug("potential matches ranked")

	return results, nil
}

// searchCandidates queries every geohash range around the source origin
// concurrently and unions the results. Requests owned by the source's user or
// no longer searching are dropped.
func (s *matchService) searchCandidates(ctx context.Context, source *models.RideRequest, radius float64) ([]*models.RideRequest, error) {
	bounds := utils.GeohashQueryBounds(source.Origin.Latitude, source.Origin.Longitude, radius)
	batches := make([][]*models.RideRequest, len(bounds))

	g, gctx := errgroup.WithContext(ctx)
	for i, bound := range bounds {
		i, bound := i, bound
		g.Go(func() error {
			found, err := s.requestRepo.FindSearchingInGeohashRange(gctx, bound.Start, bound.End, source.ID)
			if err != nil {
				return err
			}
			batches[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dependencyError(err, "failed to query candidate ride requests")
	}

	seen := make(map[primitive.ObjectID]bool)
	var candidates []*models.RideRequest
	for _, batch := range batches {
		for _, c := range batch {
			if seen[c.ID] || c.ID == source.ID || c.UserID == source.UserID {
				continue
			}
			if c.Status != models.RideRequestStatusSearching {
				continue
			}
			seen[c.ID] = true
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// sortPotentialMatches orders by score, then closer departure time, then
// request id, so the result does not depend on query completion order.
func sortPotentialMatches(results []PotentialMatch, source *models.RideRequest) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ga, gb := departureGap(source, a.Request), departureGap(source, b.Request)
		if ga != gb {
			return ga < gb
		}
		return a.Request.ID.Hex() < b.Request.ID.Hex()
	})
}
