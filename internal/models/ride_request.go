package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideRequestStatus string
type GenderPreference string

const (
	RideRequestStatusSearching RideRequestStatus = "searching"
	RideRequestStatusMatched   RideRequestStatus = "matched"
	RideRequestStatusRiding    RideRequestStatus = "riding"
	RideRequestStatusCompleted RideRequestStatus = "completed"
	RideRequestStatusCancelled RideRequestStatus = "cancelled"

	GenderPreferenceAny        GenderPreference = "any"
	GenderPreferenceFemaleOnly GenderPreference = "female_only"
	GenderPreferenceMaleOnly   GenderPreference = "male_only"
)

const (
	MinSeats = 1
	MaxSeats = 4
)

type RidePreferences struct {
	GenderPreference        GenderPreference `json:"gender_preference" bson:"gender_preference"`
	StudentVerifiedOnly     bool             `json:"student_verified_only" bson:"student_verified_only"`
	SameDepartmentPreferred bool             `json:"same_department_preferred" bson:"same_department_preferred"`
}

type RideRequest struct {
	ID              primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	UserID          primitive.ObjectID   `json:"user_id" bson:"user_id"`
	Origin          Location             `json:"origin" bson:"origin"`
	Destination     Location             `json:"destination" bson:"destination"`
	DepartureTime   time.Time            `json:"departure_time" bson:"departure_time"`
	Flexibility     int                  `json:"flexibility" bson:"flexibility"` // minutes
	LookingForSeats int                  `json:"looking_for_seats" bson:"looking_for_seats"`
	MaxPricePerSeat float64              `json:"max_price_per_seat" bson:"max_price_per_seat"`
	MaxWalkDistance float64              `json:"max_walk_distance" bson:"max_walk_distance"` // meters
	Preferences     RidePreferences      `json:"preferences" bson:"preferences"`
	Status          RideRequestStatus    `json:"status" bson:"status"`
	MatchID         *primitive.ObjectID  `json:"match_id" bson:"match_id"`
	MatchedWith     []primitive.ObjectID `json:"matched_with" bson:"matched_with"`
	ExpiresAt       time.Time            `json:"expires_at" bson:"expires_at"`
	CreatedAt       time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" bson:"updated_at"`
}

// IsMutable reports whether the owner may still edit or delete the request.
func (r *RideRequest) IsMutable() bool {
	return r.Status == RideRequestStatusSearching
}

func (r *RideRequest) ComputeExpiry() time.Time {
	return r.DepartureTime.Add(time.Duration(r.Flexibility) * time.Minute)
}

func (s RideRequestStatus) IsValid() bool {
	switch s {
	case RideRequestStatusSearching, RideRequestStatusMatched, RideRequestStatusRiding,
		RideRequestStatusCompleted, RideRequestStatusCancelled:
		return true
	}
	return false
}

func (g GenderPreference) IsValid() bool {
	switch g {
	case GenderPreferenceAny, GenderPreferenceFemaleOnly, GenderPreferenceMaleOnly:
		return true
	}
	return false
}
