package services

import (
	"testing"
	"time"

	"campusride/internal/models"
	"campusride/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func party(origin, dest utils.Point, depart time.Time, flex int, user *models.User, prefs models.RidePreferences) Party {
	if prefs.GenderPreference == "" {
		prefs.GenderPreference = models.GenderPreferenceAny
	}
	return Party{
		Request: &models.RideRequest{
			ID:            primitive.NewObjectID(),
			Origin:        models.Location{Latitude: origin.Lat, Longitude: origin.Lng},
			Destination:   models.Location{Latitude: dest.Lat, Longitude: dest.Lng},
			DepartureTime: depart,
			Flexibility:   flex,
			Preferences:   prefs,
		},
		User: user,
	}
}

func TestScoreMatchScenario(t *testing.T) {
	a := party(campusGate, cityCentre, baseTime, 15, nil, models.RidePreferences{})
	b := party(north(campusGate, 200), north(cityCentre, 300), baseTime.Add(10*time.Minute), 15, nil, models.RidePreferences{})

	got := ScoreMatch(a, b, DefaultMatchCriteria())
	if got.Score != 78 {
		t.Errorf("ScoreMatch() = %d, want 78 (breakdown %+v)", got.Score, got.Breakdown)
	}
	if got.Breakdown.Rejected != "" {
		t.Errorf("unexpected rejection %q", got.Breakdown.Rejected)
	}
	if got.RequestID != b.Request.ID {
		t.Errorf("RequestID = %s, want candidate id", got.RequestID.Hex())
	}
}

func TestScoreMatchIdenticalRidersScoreFull(t *testing.T) {
	cs := &models.User{ID: primitive.NewObjectID(), Department: "CSE"}
	cs2 := &models.User{ID: primitive.NewObjectID(), Department: " cse "}
	prefs := models.RidePreferences{SameDepartmentPreferred: true}

	a := party(campusGate, cityCentre, baseTime, 15, cs, prefs)
	b := party(campusGate, cityCentre, baseTime, 15, cs2, prefs)

	got := ScoreMatch(a, b, DefaultMatchCriteria())
	if got.Score != 100 {
		t.Errorf("ScoreMatch() = %d, want 100 (breakdown %+v)", got.Score, got.Breakdown)
	}
	if !got.Breakdown.SameDepartment {
		t.Error("expected same department bonus")
	}
}

func TestScoreMatchDepartmentNeedsBothOptIns(t *testing.T) {
	ua := &models.User{ID: primitive.NewObjectID(), Department: "EEE"}
	ub := &models.User{ID: primitive.NewObjectID(), Department: "EEE"}

	a := party(campusGate, cityCentre, baseTime, 15, ua, models.RidePreferences{SameDepartmentPreferred: true})
	b := party(campusGate, cityCentre, baseTime, 15, ub, models.RidePreferences{})

	got := ScoreMatch(a, b, DefaultMatchCriteria())
	if got.Score != 95 {
		t.Errorf("ScoreMatch() = %d, want 95", got.Score)
	}
}

func TestScoreMatchDistanceCap(t *testing.T) {
	a := party(campusGate, cityCentre, baseTime, 15, nil, models.RidePreferences{})
	b := party(north(campusGate, 800), cityCentre, baseTime, 15, nil, models.RidePreferences{})
	d := utils.DistanceMeters(campusGate.Lat, campusGate.Lng, b.Request.Origin.Latitude, b.Request.Origin.Longitude)

	t.Run("at cap contributes nothing", func(t *testing.T) {
		criteria := DefaultMatchCriteria()
		criteria.MaxOriginDistance = d
		got := ScoreMatch(a, b, criteria)
		if got.Breakdown.Rejected != "" {
			t.Fatalf("rejected at cap: %q", got.Breakdown.Rejected)
		}
		if got.Breakdown.OriginScore != 0 {
			t.Errorf("OriginScore = %v, want 0", got.Breakdown.OriginScore)
		}
		// destination 40 + time 10 + gender 5
		if got.Score != 55 {
			t.Errorf("Score = %d, want 55", got.Score)
		}
	})

	t.Run("beyond cap rejects", func(t *testing.T) {
		criteria := DefaultMatchCriteria()
		criteria.MaxOriginDistance = d - 1
		got := ScoreMatch(a, b, criteria)
		if got.Score != 0 {
			t.Errorf("Score = %d, want 0", got.Score)
		}
		if got.Breakdown.Rejected != RejectedOriginDistance {
			t.Errorf("Rejected = %q, want %q", got.Breakdown.Rejected, RejectedOriginDistance)
		}
		if got.Breakdown.OriginDistance != d {
			t.Errorf("OriginDistance = %v, want %v", got.Breakdown.OriginDistance, d)
		}
	})

	t.Run("destination beyond cap rejects", func(t *testing.T) {
		far := party(campusGate, north(cityCentre, 2500), baseTime, 15, nil, models.RidePreferences{})
		got := ScoreMatch(a, far, DefaultMatchCriteria())
		if got.Score != 0 || got.Breakdown.Rejected != RejectedDestinationDistance {
			t.Errorf("got score %d rejected %q, want 0 %q", got.Score, got.Breakdown.Rejected, RejectedDestinationDistance)
		}
	})
}

func TestScoreMatchMonotonicInDistance(t *testing.T) {
	a := party(campusGate, cityCentre, baseTime, 15, nil, models.RidePreferences{})
	prev := 101
	for _, meters := range []float64{0, 100, 400, 900, 1500, 1900} {
		b := party(north(campusGate, meters), cityCentre, baseTime, 15, nil, models.RidePreferences{})
		got := ScoreMatch(a, b, DefaultMatchCriteria()).Score
		if got > prev {
			t.Errorf("score rose from %d to %d at %vm", prev, got, meters)
		}
		prev = got
	}
}

func TestScoreMatchGender(t *testing.T) {
	female := &models.User{ID: primitive.NewObjectID(), Gender: models.GenderFemale}
	male := &models.User{ID: primitive.NewObjectID(), Gender: models.GenderMale}
	unknown := &models.User{ID: primitive.NewObjectID()}
	femaleOnly := models.RidePreferences{GenderPreference: models.GenderPreferenceFemaleOnly}

	cases := []struct {
		name       string
		source     *models.User
		candidate  *models.User
		prefs      models.RidePreferences
		compatible bool
	}{
		{"female only with female", female, female, femaleOnly, true},
		{"female only with male", female, male, femaleOnly, false},
		{"female only with unknown gender", female, unknown, femaleOnly, true},
		{"female only with missing profile", female, nil, femaleOnly, true},
		{"any with male", female, male, models.RidePreferences{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := party(campusGate, cityCentre, baseTime, 15, tc.source, tc.prefs)
			b := party(campusGate, cityCentre, baseTime, 15, tc.candidate, models.RidePreferences{})
			got := ScoreMatch(a, b, DefaultMatchCriteria())
			if got.Breakdown.GenderCompatible != tc.compatible {
				t.Errorf("GenderCompatible = %v, want %v", got.Breakdown.GenderCompatible, tc.compatible)
			}
			want := 90
			if tc.compatible {
				want = 95
			}
			if got.Score != want {
				t.Errorf("Score = %d, want %d", got.Score, want)
			}
		})
	}
}

func TestScoreMatchZeroFlexibility(t *testing.T) {
	cases := []struct {
		name string
		gap  time.Duration
		want float64
	}{
		{"same minute", 0, WeightTime},
		{"one minute apart", time.Minute, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := party(campusGate, cityCentre, baseTime, 0, nil, models.RidePreferences{})
			b := party(campusGate, cityCentre, baseTime.Add(tc.gap), 0, nil, models.RidePreferences{})
			got := ScoreMatch(a, b, DefaultMatchCriteria())
			if got.Breakdown.TimeScore != tc.want {
				t.Errorf("TimeScore = %v, want %v", got.Breakdown.TimeScore, tc.want)
			}
		})
	}
}

func TestScoreMatchUsesWiderFlexibility(t *testing.T) {
	a := party(campusGate, cityCentre, baseTime, 0, nil, models.RidePreferences{})
	b := party(campusGate, cityCentre, baseTime.Add(15*time.Minute), 30, nil, models.RidePreferences{})
	got := ScoreMatch(a, b, DefaultMatchCriteria())
	if got.Breakdown.TimeScore != 5 {
		t.Errorf("TimeScore = %v, want 5", got.Breakdown.TimeScore)
	}
}

func TestVerificationCompatible(t *testing.T) {
	verifiedUser := &models.User{ID: primitive.NewObjectID(), IsStudentVerified: true}
	plain := &models.User{ID: primitive.NewObjectID()}
	strict := models.RidePreferences{StudentVerifiedOnly: true}

	cases := []struct {
		name string
		a, b Party
		want bool
	}{
		{"strict with verified", party(campusGate, cityCentre, baseTime, 15, plain, strict), party(campusGate, cityCentre, baseTime, 15, verifiedUser, models.RidePreferences{}), true},
		{"strict with unverified", party(campusGate, cityCentre, baseTime, 15, verifiedUser, strict), party(campusGate, cityCentre, baseTime, 15, plain, models.RidePreferences{}), false},
		{"candidate strict", party(campusGate, cityCentre, baseTime, 15, plain, models.RidePreferences{}), party(campusGate, cityCentre, baseTime, 15, verifiedUser, strict), false},
		{"strict with missing profile", party(campusGate, cityCentre, baseTime, 15, verifiedUser, strict), party(campusGate, cityCentre, baseTime, 15, nil, models.RidePreferences{}), false},
	}
	for _, tc := range cases {
		if got := verificationCompatible(tc.a, tc.b); got != tc.want {
			t.Errorf("verificationCompatible(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMatchCriteriaWithDefaults(t *testing.T) {
	got := MatchCriteria{MaxOriginDistance: 500}.withDefaults(DefaultMatchCriteria())
	if got.MaxOriginDistance != 500 || got.MaxDestinationDistance != 2000 || got.minScore() != 60 {
		t.Errorf("withDefaults() = %+v, want origin 500, destination 2000, min score 60", got)
	}

	got = MatchCriteria{MinMatchScore: MinScore(0)}.withDefaults(DefaultMatchCriteria())
	if got.MinMatchScore == nil || got.minScore() != 0 {
		t.Errorf("withDefaults() overrode an explicit zero threshold: %+v", got)
	}
}
