package models

import "time"

// LocationInput accepts either coordinates or a free-form address. An
// address alone is forward geocoded.
type LocationInput struct {
	Latitude  *float64 `json:"latitude" validate:"omitnil,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitnil,longitude"`
	Address   string   `json:"address" validate:"max=300"`
}

func (l *LocationInput) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type PreferencesInput struct {
	GenderPreference        GenderPreference `json:"gender_preference" validate:"omitempty,gender_preference"`
	StudentVerifiedOnly     bool             `json:"student_verified_only"`
	SameDepartmentPreferred bool             `json:"same_department_preferred"`
}

type CreateRideRequestInput struct {
	Origin          LocationInput    `json:"origin"`
	Destination     LocationInput    `json:"destination"`
	DepartureTime   time.Time        `json:"departure_time" validate:"required"`
	Flexibility     int              `json:"flexibility" validate:"gte=0,lte=720"`
	LookingForSeats int              `json:"looking_for_seats" validate:"gte=1,lte=4"`
	MaxPricePerSeat float64          `json:"max_price_per_seat" validate:"gt=0"`
	MaxWalkDistance float64          `json:"max_walk_distance" validate:"gt=0"`
	Preferences     PreferencesInput `json:"preferences"`
}

// UpdateRideRequestInput is a partial update; nil fields are left alone.
type UpdateRideRequestInput struct {
	Origin          *LocationInput    `json:"origin"`
	Destination     *LocationInput    `json:"destination"`
	DepartureTime   *time.Time        `json:"departure_time"`
	Flexibility     *int              `json:"flexibility" validate:"omitnil,gte=0,lte=720"`
	LookingForSeats *int              `json:"looking_for_seats" validate:"omitnil,gte=1,lte=4"`
	MaxPricePerSeat *float64          `json:"max_price_per_seat" validate:"omitnil,gt=0"`
	MaxWalkDistance *float64          `json:"max_walk_distance" validate:"omitnil,gt=0"`
	Preferences     *PreferencesInput `json:"preferences"`
}

type CreateMatchInput struct {
	RequestIDs []string `json:"request_ids" validate:"required,min=2,max=8,dive,object_id"`
}

type FindMatchesQuery struct {
	MaxOriginDistance      float64 `form:"max_origin_distance" validate:"omitempty,gt=0,lte=20000"`
	MaxDestinationDistance float64 `form:"max_destination_distance" validate:"omitempty,gt=0,lte=20000"`
	MinMatchScore          *int    `form:"min_score" validate:"omitnil,gte=0,lte=100"`
}
