package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"campusride/internal/models"
	"campusride/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newRideRequestTestService(geocoder LocationGeocoder) (RideRequestService, *fakeRequestRepo, *fixedClock) {
	repo := newFakeRequestRepo()
	clock := &fixedClock{now: baseTime}
	svc := NewRideRequestService(RideRequestServiceDeps{
		Requests: repo,
		Geocoder: geocoder,
		Clock:    clock,
		Logger:   logger.NewNop(),
	})
	return svc, repo, clock
}

func floatPtr(v float64) *float64 { return &v }

func validCreateInput() *models.CreateRideRequestInput {
	return &models.CreateRideRequestInput{
		Origin:          models.LocationInput{Latitude: floatPtr(campusGate.Lat), Longitude: floatPtr(campusGate.Lng)},
		Destination:     models.LocationInput{Latitude: floatPtr(cityCentre.Lat), Longitude: floatPtr(cityCentre.Lng), Address: "Farmgate"},
		DepartureTime:   baseTime.Add(time.Hour),
		Flexibility:     20,
		LookingForSeats: 1,
		MaxPricePerSeat: 150,
		MaxWalkDistance: 400,
	}
}

func TestCreateRideRequest(t *testing.T) {
	svc, repo, _ := newRideRequestTestService(&fakeGeocoder{})
	userID := primitive.NewObjectID()

	got, err := svc.CreateRideRequest(context.Background(), userID, validCreateInput())
	if err != nil {
		t.Fatalf("CreateRideRequest: %v", err)
	}
	if got.Status != models.RideRequestStatusSearching || got.UserID != userID {
		t.Errorf("request = %s owned by %s", got.Status, got.UserID.Hex())
	}
	if !strings.HasPrefix(got.Origin.Address, "Near ") {
		t.Errorf("Origin.Address = %q, want reverse geocoded", got.Origin.Address)
	}
	if got.Destination.Address != "Farmgate" {
		t.Errorf("Destination.Address = %q, want the given address", got.Destination.Address)
	}
	if len(got.Origin.Geohash) == 0 || len(got.Destination.Geohash) == 0 {
		t.Error("geohash not set")
	}
	if got.Preferences.GenderPreference != models.GenderPreferenceAny {
		t.Errorf("GenderPreference = %q, want any", got.Preferences.GenderPreference)
	}
	if want := got.DepartureTime.Add(20 * time.Minute); !got.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, want)
	}
	repo.get(t, got.ID)
}

func TestCreateRideRequestAddressOnly(t *testing.T) {
	input := validCreateInput()
	input.Origin = models.LocationInput{Address: "Campus Gate"}

	t.Run("geocoded", func(t *testing.T) {
		svc, _, _ := newRideRequestTestService(&fakeGeocoder{})
		got, err := svc.CreateRideRequest(context.Background(), primitive.NewObjectID(), input)
		if err != nil {
			t.Fatalf("CreateRideRequest: %v", err)
		}
		if got.Origin.Latitude != campusGate.Lat || got.Origin.Longitude != campusGate.Lng {
			t.Errorf("Origin = %+v, want campus gate coordinates", got.Origin)
		}
	})

	t.Run("no geocoder", func(t *testing.T) {
		svc, _, _ := newRideRequestTestService(nil)
		_, err := svc.CreateRideRequest(context.Background(), primitive.NewObjectID(), input)
		assertKind(t, err, ErrValidation)
	})

	t.Run("geocoder down", func(t *testing.T) {
		svc, _, _ := newRideRequestTestService(&fakeGeocoder{err: errors.New("timeout")})
		_, err := svc.CreateRideRequest(context.Background(), primitive.NewObjectID(), input)
		assertKind(t, err, ErrDependencyUnavailable)
	})
}

func TestCreateRideRequestValidation(t *testing.T) {
	svc, _, _ := newRideRequestTestService(&fakeGeocoder{})

	cases := []struct {
		name   string
		mutate func(*models.CreateRideRequestInput)
		field  string
	}{
		{"departure passed", func(in *models.CreateRideRequestInput) { in.DepartureTime = baseTime.Add(-time.Hour) }, "DepartureTime"},
		{"too many seats", func(in *models.CreateRideRequestInput) { in.LookingForSeats = 5 }, "LookingForSeats"},
		{"no origin", func(in *models.CreateRideRequestInput) { in.Origin = models.LocationInput{} }, "Origin"},
		{"half coordinates", func(in *models.CreateRideRequestInput) { in.Destination.Longitude = nil }, "Destination"},
		{"bad gender preference", func(in *models.CreateRideRequestInput) { in.Preferences.GenderPreference = "robots" }, "Preferences.GenderPreference"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput()
			tc.mutate(input)
			_, err := svc.CreateRideRequest(context.Background(), primitive.NewObjectID(), input)
			assertKind(t, err, ErrValidation)

			var svcErr *ServiceError
			if !errors.As(err, &svcErr) {
				t.Fatalf("error %T is not a ServiceError", err)
			}
			if _, ok := svcErr.Fields.Map()[tc.field]; !ok {
				t.Errorf("fields = %v, want an entry for %s", svcErr.Fields.Map(), tc.field)
			}
		})
	}
}

func TestUpdateRideRequest(t *testing.T) {
	svc, repo, _ := newRideRequestTestService(&fakeGeocoder{})
	ctx := context.Background()
	owner := primitive.NewObjectID()
	created, err := svc.CreateRideRequest(ctx, owner, validCreateInput())
	if err != nil {
		t.Fatal(err)
	}

	flex := 45
	got, err := svc.UpdateRideRequest(ctx, created.ID, owner, &models.UpdateRideRequestInput{Flexibility: &flex})
	if err != nil {
		t.Fatalf("UpdateRideRequest: %v", err)
	}
	stored := repo.get(t, created.ID)
	if stored.Flexibility != 45 || !stored.ExpiresAt.Equal(got.DepartureTime.Add(45*time.Minute)) {
		t.Errorf("stored flexibility %d expires %v", stored.Flexibility, stored.ExpiresAt)
	}

	_, err = svc.UpdateRideRequest(ctx, created.ID, primitive.NewObjectID(), &models.UpdateRideRequestInput{Flexibility: &flex})
	assertKind(t, err, ErrUnauthorized)

	matched := repo.get(t, created.ID)
	matched.Status = models.RideRequestStatusMatched
	repo.put(matched)
	_, err = svc.UpdateRideRequest(ctx, created.ID, owner, &models.UpdateRideRequestInput{Flexibility: &flex})
	assertKind(t, err, ErrInvalidState)
}

func TestUpdateRideRequestDepartureUsesFlexibility(t *testing.T) {
	svc, repo, _ := newRideRequestTestService(&fakeGeocoder{})
	ctx := context.Background()
	owner := primitive.NewObjectID()
	created, err := svc.CreateRideRequest(ctx, owner, validCreateInput())
	if err != nil {
		t.Fatal(err)
	}

	// stored flexibility is 20 minutes
	inWindow := baseTime.Add(-10 * time.Minute)
	if _, err := svc.UpdateRideRequest(ctx, created.ID, owner, &models.UpdateRideRequestInput{DepartureTime: &inWindow}); err != nil {
		t.Fatalf("UpdateRideRequest inside flexibility window: %v", err)
	}
	if got := repo.get(t, created.ID); !got.DepartureTime.Equal(inWindow) {
		t.Errorf("DepartureTime = %v, want %v", got.DepartureTime, inWindow)
	}

	tooLate := baseTime.Add(-30 * time.Minute)
	_, err = svc.UpdateRideRequest(ctx, created.ID, owner, &models.UpdateRideRequestInput{DepartureTime: &tooLate})
	assertKind(t, err, ErrValidation)

	flex := 45
	if _, err := svc.UpdateRideRequest(ctx, created.ID, owner, &models.UpdateRideRequestInput{DepartureTime: &tooLate, Flexibility: &flex}); err != nil {
		t.Fatalf("UpdateRideRequest with wider flexibility: %v", err)
	}
}

func TestDeleteRideRequest(t *testing.T) {
	svc, repo, _ := newRideRequestTestService(&fakeGeocoder{})
	ctx := context.Background()
	owner := primitive.NewObjectID()

	a, _ := svc.CreateRideRequest(ctx, owner, validCreateInput())
	b, _ := svc.CreateRideRequest(ctx, owner, validCreateInput())

	if err := svc.DeleteRideRequest(ctx, a.ID, owner); err != nil {
		t.Fatalf("DeleteRideRequest: %v", err)
	}
	_, err := svc.GetRideRequest(ctx, a.ID, owner)
	assertKind(t, err, ErrNotFound)

	matched := repo.get(t, b.ID)
	matched.Status = models.RideRequestStatusMatched
	repo.put(matched)
	assertKind(t, svc.DeleteRideRequest(ctx, b.ID, owner), ErrInvalidState)
}

func TestGetUserRideRequests(t *testing.T) {
	svc, _, _ := newRideRequestTestService(&fakeGeocoder{})
	ctx := context.Background()
	owner := primitive.NewObjectID()
	svc.CreateRideRequest(ctx, owner, validCreateInput())
	svc.CreateRideRequest(ctx, primitive.NewObjectID(), validCreateInput())

	searching := models.RideRequestStatusSearching
	got, err := svc.GetUserRideRequests(ctx, owner, &searching)
	if err != nil || len(got) != 1 {
		t.Errorf("GetUserRideRequests = %d, %v; want 1", len(got), err)
	}

	bogus := models.RideRequestStatus("lost")
	_, err = svc.GetUserRideRequests(ctx, owner, &bogus)
	assertKind(t, err, ErrValidation)
}
