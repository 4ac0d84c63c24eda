package services

import (
	"math"
	"time"

	"campusride/internal/models"
	"campusride/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Score weights. They sum to 100.
const (
	WeightOrigin      = 40.0
	WeightDestination = 40.0
	WeightTime        = 10.0
	WeightGender      = 5.0
	WeightDepartment  = 5.0
)

// Rejection reasons reported when a distance cap short-circuits scoring.
const (
	RejectedOriginDistance      = "origin_distance"
	RejectedDestinationDistance = "destination_distance"
)

type MatchCriteria struct {
	MaxOriginDistance      float64 `json:"max_origin_distance"`      // meters
	MaxDestinationDistance float64 `json:"max_destination_distance"` // meters
	// MinMatchScore is nil when unset; an explicit 0 keeps every candidate
	// that passes the hard constraints.
	MinMatchScore *int `json:"min_match_score,omitempty"`
}

func DefaultMatchCriteria() MatchCriteria {
	return MatchCriteria{
		MaxOriginDistance:      2000,
		MaxDestinationDistance: 2000,
		MinMatchScore:          MinScore(60),
	}
}

// MinScore returns a threshold suitable for MatchCriteria.MinMatchScore.
func MinScore(score int) *int {
	return &score
}

// withDefaults fills unset fields from def.
func (c MatchCriteria) withDefaults(def MatchCriteria) MatchCriteria {
	if c.MaxOriginDistance <= 0 {
		c.MaxOriginDistance = def.MaxOriginDistance
	}
	if c.MaxDestinationDistance <= 0 {
		c.MaxDestinationDistance = def.MaxDestinationDistance
	}
	if c.MinMatchScore == nil {
		c.MinMatchScore = def.MinMatchScore
	}
	return c
}

func (c MatchCriteria) minScore() int {
	if c.MinMatchScore == nil {
		return 0
	}
	return *c.MinMatchScore
}

// Party is one side of a pairing: a request and its owner's profile. User may
// be nil, in which case gender and department are unknown.
type Party struct {
	Request *models.RideRequest
	User    *models.User
}

type ScoreBreakdown struct {
	OriginDistance      float64 `json:"origin_distance"`      // meters
	DestinationDistance float64 `json:"destination_distance"` // meters
	TimeDifference      float64 `json:"time_difference"`      // minutes
	OriginScore         float64 `json:"origin_score"`
	DestinationScore    float64 `json:"destination_score"`
	TimeScore           float64 `json:"time_score"`
	GenderScore         float64 `json:"gender_score"`
	DepartmentScore     float64 `json:"department_score"`
	GenderCompatible    bool    `json:"gender_compatible"`
	SameDepartment      bool    `json:"same_department"`
	Rejected            string  `json:"rejected,omitempty"`
}

type MatchScore struct {
	RequestID primitive.ObjectID `json:"request_id"`
	Score     int                `json:"score"`
	Breakdown ScoreBreakdown     `json:"breakdown"`
}

// ScoreMatch rates how well candidate fits source on a 0-100 scale.
//
// A distance strictly beyond its cap returns a zero score immediately; the
// breakdown still carries the measured distance. A distance exactly at the
// cap contributes nothing but does not disqualify.
func ScoreMatch(source, candidate Party, criteria MatchCriteria) MatchScore {
	result := MatchScore{RequestID: candidate.Request.ID}
	b := &result.Breakdown

	src, cand := source.Request, candidate.Request

	b.OriginDistance = utils.DistanceMeters(
		src.Origin.Latitude, src.Origin.Longitude,
		cand.Origin.Latitude, cand.Origin.Longitude,
	)
	if b.OriginDistance > criteria.MaxOriginDistance {
		b.Rejected = RejectedOriginDistance
		return result
	}
	b.OriginScore = linearDecay(WeightOrigin, b.OriginDistance, criteria.MaxOriginDistance)

	b.DestinationDistance = utils.DistanceMeters(
		src.Destination.Latitude, src.Destination.Longitude,
		cand.Destination.Latitude, cand.Destination.Longitude,
	)
	if b.DestinationDistance > criteria.MaxDestinationDistance {
		b.Rejected = RejectedDestinationDistance
		return result
	}
	b.DestinationScore = linearDecay(WeightDestination, b.DestinationDistance, criteria.MaxDestinationDistance)

	b.TimeDifference = math.Abs(src.DepartureTime.Sub(cand.DepartureTime).Minutes())
	bound := float64(maxInt(src.Flexibility, cand.Flexibility))
	b.TimeScore = timeScore(b.TimeDifference, bound)

	b.GenderCompatible = genderCompatible(source, candidate)
	if b.GenderCompatible {
		b.GenderScore = WeightGender
	}

	b.SameDepartment = sameDepartment(source, candidate)
	if b.SameDepartment {
		b.DepartmentScore = WeightDepartment
	}

	total := b.OriginScore + b.DestinationScore + b.TimeScore + b.GenderScore + b.DepartmentScore
	result.Score = int(math.Round(math.Min(100, math.Max(0, total))))
	return result
}

func linearDecay(weight, distance, limit float64) float64 {
	if limit <= 0 {
		if distance == 0 {
			return weight
		}
		return 0
	}
	return weight * (1 - distance/limit)
}

// A zero bound means both riders are inflexible, so only an exact departure
// time scores.
func timeScore(diff, bound float64) float64 {
	if bound == 0 {
		if diff == 0 {
			return WeightTime
		}
		return 0
	}
	if diff > bound {
		return 0
	}
	return WeightTime * (1 - diff/bound)
}

func genderCompatible(a, b Party) bool {
	return genderAllows(a.Request.Preferences.GenderPreference, partyGender(b)) &&
		genderAllows(b.Request.Preferences.GenderPreference, partyGender(a))
}

// genderAllows checks a preference against the counterpart's reported
// gender. Unknown gender never disqualifies.
func genderAllows(pref models.GenderPreference, other models.Gender) bool {
	if other == "" {
		return true
	}
	switch pref {
	case models.GenderPreferenceFemaleOnly:
		return other == models.GenderFemale
	case models.GenderPreferenceMaleOnly:
		return other == models.GenderMale
	default:
		return true
	}
}

func sameDepartment(a, b Party) bool {
	if !a.Request.Preferences.SameDepartmentPreferred || !b.Request.Preferences.SameDepartmentPreferred {
		return false
	}
	if a.User == nil || b.User == nil {
		return false
	}
	da, db := a.User.NormalizedDepartment(), b.User.NormalizedDepartment()
	return da != "" && da == db
}

// verificationCompatible applies the studentVerifiedOnly requirement in both
// directions. An unknown profile counts as unverified.
func verificationCompatible(a, b Party) bool {
	if a.Request.Preferences.StudentVerifiedOnly && !partyVerified(b) {
		return false
	}
	if b.Request.Preferences.StudentVerifiedOnly && !partyVerified(a) {
		return false
	}
	return true
}

func partyGender(p Party) models.Gender {
	if p.User == nil {
		return ""
	}
	return p.User.KnownGender()
}

func partyVerified(p Party) bool {
	return p.User != nil && p.User.IsStudentVerified
}

func departureGap(a, b *models.RideRequest) time.Duration {
	d := a.DepartureTime.Sub(b.DepartureTime)
	if d < 0 {
		return -d
	}
	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
