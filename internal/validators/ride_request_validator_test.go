package validators

import (
	"testing"
	"time"

	"campusride/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func validInput() *models.CreateRideRequestInput {
	return &models.CreateRideRequestInput{
		Origin:          models.LocationInput{Latitude: ptr(23.7285), Longitude: ptr(90.3985)},
		Destination:     models.LocationInput{Address: "Farmgate, Dhaka"},
		DepartureTime:   now.Add(time.Hour),
		Flexibility:     15,
		LookingForSeats: 1,
		MaxPricePerSeat: 100,
		MaxWalkDistance: 500,
	}
}

func TestValidateCreateRideRequest(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.CreateRideRequestInput)
		fields []string
	}{
		{"valid", func(*models.CreateRideRequestInput) {}, nil},
		{"latitude out of range", func(in *models.CreateRideRequestInput) { in.Origin.Latitude = ptr(91) }, []string{"Origin.Latitude"}},
		{"zero seats", func(in *models.CreateRideRequestInput) { in.LookingForSeats = 0 }, []string{"LookingForSeats"}},
		{"negative flexibility", func(in *models.CreateRideRequestInput) { in.Flexibility = -1 }, []string{"Flexibility"}},
		{"no price", func(in *models.CreateRideRequestInput) { in.MaxPricePerSeat = 0 }, []string{"MaxPricePerSeat"}},
		{"empty destination", func(in *models.CreateRideRequestInput) { in.Destination = models.LocationInput{} }, []string{"Destination"}},
		{"departure passed", func(in *models.CreateRideRequestInput) { in.DepartureTime = now.Add(-time.Hour) }, []string{"DepartureTime"}},
		{"inside flexibility window", func(in *models.CreateRideRequestInput) { in.DepartureTime = now.Add(-10 * time.Minute) }, nil},
		{"bad gender preference", func(in *models.CreateRideRequestInput) { in.Preferences.GenderPreference = "anyone" }, []string{"Preferences.GenderPreference"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(in)
			errs := ValidateCreateRideRequest(in, now)
			if len(errs) != len(tc.fields) {
				t.Fatalf("got %d errors %v, want fields %v", len(errs), errs, tc.fields)
			}
			got := errs.Map()
			for _, f := range tc.fields {
				if _, ok := got[f]; !ok {
					t.Errorf("missing error for %s in %v", f, got)
				}
			}
		})
	}
}

func TestValidateUpdateRideRequestDeparture(t *testing.T) {
	current := &models.RideRequest{DepartureTime: now.Add(time.Hour), Flexibility: 15}
	at := func(d time.Duration) *time.Time { v := now.Add(d); return &v }
	flex := func(v int) *int { return &v }

	cases := []struct {
		name  string
		input models.UpdateRideRequestInput
		valid bool
	}{
		{"future departure", models.UpdateRideRequestInput{DepartureTime: at(30 * time.Minute)}, true},
		{"inside stored flexibility", models.UpdateRideRequestInput{DepartureTime: at(-10 * time.Minute)}, true},
		{"beyond stored flexibility", models.UpdateRideRequestInput{DepartureTime: at(-20 * time.Minute)}, false},
		{"inside new flexibility", models.UpdateRideRequestInput{DepartureTime: at(-20 * time.Minute), Flexibility: flex(30)}, true},
		{"beyond new flexibility", models.UpdateRideRequestInput{DepartureTime: at(-10 * time.Minute), Flexibility: flex(5)}, false},
		{"flexibility only", models.UpdateRideRequestInput{Flexibility: flex(0)}, true},
	}
	for _, tc := range cases {
		errs := ValidateUpdateRideRequest(&tc.input, current, now)
		if (len(errs) == 0) != tc.valid {
			t.Errorf("ValidateUpdateRideRequest(%s) = %v, want valid=%v", tc.name, errs, tc.valid)
		}
		if !tc.valid {
			if _, ok := errs.Map()["DepartureTime"]; !ok {
				t.Errorf("ValidateUpdateRideRequest(%s) missing DepartureTime error: %v", tc.name, errs)
			}
		}
	}

	departed := &models.RideRequest{DepartureTime: now.Add(-10 * time.Minute), Flexibility: 15}
	if errs := ValidateUpdateRideRequest(&models.UpdateRideRequestInput{Flexibility: flex(5)}, departed, now); len(errs) == 0 {
		t.Error("shrinking flexibility past the stored departure should fail")
	}
}

func TestValidateCreateMatch(t *testing.T) {
	a, b := primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex()
	cases := []struct {
		name  string
		ids   []string
		valid bool
	}{
		{"two ids", []string{a, b}, true},
		{"one id", []string{a}, false},
		{"duplicate", []string{a, a}, false},
		{"malformed", []string{a, "123"}, false},
	}
	for _, tc := range cases {
		errs := ValidateCreateMatch(&models.CreateMatchInput{RequestIDs: tc.ids})
		if (len(errs) == 0) != tc.valid {
			t.Errorf("ValidateCreateMatch(%s) = %v, want valid=%v", tc.name, errs, tc.valid)
		}
	}
}
