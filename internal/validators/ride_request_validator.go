package validators

import (
	"strings"
	"time"

	"campusride/internal/models"
)

// ValidateCreateRideRequest checks struct tags plus the rules tags cannot
// express: each endpoint needs coordinates or an address, and departure must
// not already have passed.
func ValidateCreateRideRequest(input *models.CreateRideRequestInput, now time.Time) ValidationErrors {
	errs := ValidateStruct(input)

	errs = append(errs, validateLocation("Origin", &input.Origin)...)
	errs = append(errs, validateLocation("Destination", &input.Destination)...)

	if !input.DepartureTime.IsZero() && departurePassed(input.DepartureTime, input.Flexibility, now) {
		errs = append(errs, ValidationError{
			Field:   "DepartureTime",
			Tag:     "future_date",
			Value:   input.DepartureTime.Format(time.RFC3339),
			Message: "Departure time must be in the future",
		})
	}

	return errs
}

// ValidateUpdateRideRequest applies the create rules to the fields being
// changed. Departure is checked against the flexibility the request will have
// after the update, falling back to current's.
func ValidateUpdateRideRequest(input *models.UpdateRideRequestInput, current *models.RideRequest, now time.Time) ValidationErrors {
	errs := ValidateStruct(input)

	if input.Origin != nil {
		errs = append(errs, validateLocation("Origin", input.Origin)...)
	}
	if input.Destination != nil {
		errs = append(errs, validateLocation("Destination", input.Destination)...)
	}

	if input.DepartureTime != nil || input.Flexibility != nil {
		var (
			departure   time.Time
			flexibility int
		)
		if current != nil {
			departure, flexibility = current.DepartureTime, current.Flexibility
		}
		if input.DepartureTime != nil {
			departure = *input.DepartureTime
		}
		if input.Flexibility != nil {
			flexibility = *input.Flexibility
		}
		if !departure.IsZero() && departurePassed(departure, flexibility, now) {
			errs = append(errs, ValidationError{
				Field:   "DepartureTime",
				Tag:     "future_date",
				Value:   departure.Format(time.RFC3339),
				Message: "Departure time must be in the future",
			})
		}
	}

	return errs
}

func ValidateCreateMatch(input *models.CreateMatchInput) ValidationErrors {
	errs := ValidateStruct(input)

	seen := make(map[string]bool, len(input.RequestIDs))
	for _, id := range input.RequestIDs {
		if seen[id] {
			errs = append(errs, ValidationError{
				Field:   "RequestIDs",
				Tag:     "unique",
				Value:   id,
				Message: "Request IDs must be distinct",
			})
			break
		}
		seen[id] = true
	}

	return errs
}

func validateLocation(field string, loc *models.LocationInput) ValidationErrors {
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return ValidationErrors{{
			Field:   field,
			Tag:     "coordinates",
			Message: "Latitude and longitude must be given together",
		}}
	}
	if !loc.HasCoordinates() && strings.TrimSpace(loc.Address) == "" {
		return ValidationErrors{{
			Field:   field,
			Tag:     "required",
			Message: field + " needs coordinates or an address",
		}}
	}
	return nil
}

// A request is still valid while now is inside its flexibility window.
func departurePassed(departure time.Time, flexibility int, now time.Time) bool {
	return departure.Add(time.Duration(flexibility) * time.Minute).Before(now)
}
