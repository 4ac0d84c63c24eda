package services

import (
	"context"
	"strings"
	"time"

	"campusride/internal/models"
	"campusride/internal/repositories/interfaces"
	"campusride/internal/utils"
	"campusride/internal/validators"
	"campusride/pkg/logger"
	"campusride/pkg/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RideRequestService interface {
	CreateRideRequest(ctx context.Context, userID primitive.ObjectID, input *models.CreateRideRequestInput) (*models.RideRequest, error)
	GetRideRequest(ctx context.Context, requestID, userID primitive.ObjectID) (*models.RideRequest, error)
	GetUserRideRequests(ctx context.Context, userID primitive.ObjectID, status *models.RideRequestStatus) ([]*models.RideRequest, error)
	UpdateRideRequest(ctx context.Context, requestID, userID primitive.ObjectID, input *models.UpdateRideRequestInput) (*models.RideRequest, error)
	DeleteRideRequest(ctx context.Context, requestID, userID primitive.ObjectID) error
}

// LocationGeocoder can resolve in both directions.
type LocationGeocoder interface {
	Geocoder
	ReverseGeocoder
}

type RideRequestServiceDeps struct {
	Requests       interfaces.RideRequestRepository
	Geocoder       LocationGeocoder
	Clock          Clock
	Logger         *logger.Logger
	GeocodeTimeout time.Duration
}

type rideRequestService struct {
	requestRepo interfaces.RideRequestRepository
	geocoder    LocationGeocoder
	clock       Clock
	logger      *logger.Logger
	timeout     time.Duration
	addresses   addressResolver
}

func NewRideRequestService(deps RideRequestServiceDeps) RideRequestService {
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	s := &rideRequestService{
		requestRepo: deps.Requests,
		geocoder:    deps.Geocoder,
		clock:       deps.Clock,
		logger:      deps.Logger,
		timeout:     deps.GeocodeTimeout,
	}
	s.addresses = addressResolver{timeout: deps.GeocodeTimeout, logger: deps.Logger}
	if deps.Geocoder != nil {
		s.addresses.geocoder = deps.Geocoder
	}
	return s
}

func (s *rideRequestService) CreateRideRequest(ctx context.Context, userID primitive.ObjectID, input *models.CreateRideRequestInput) (*models.RideRequest, error) {
	now := s.clock.Now()
	if errs := validators.ValidateCreateRideRequest(input, now); len(errs) > 0 {
		return nil, validationFailed(errs)
	}

	origin, err := s.resolveLocation(ctx, "Origin", input.Origin)
	if err != nil {
		return nil, err
	}
	destination, err := s.resolveLocation(ctx, "Destination", input.Destination)
	if err != nil {
		return nil, err
	}

	request := &models.RideRequest{
		ID:              primitive.NewObjectID(),
		UserID:          userID,
		Origin:          origin,
		Destination:     destination,
		DepartureTime:   input.DepartureTime.UTC(),
		Flexibility:     input.Flexibility,
		LookingForSeats: input.LookingForSeats,
		MaxPricePerSeat: input.MaxPricePerSeat,
		MaxWalkDistance: input.MaxWalkDistance,
		Preferences:     preferencesFromInput(input.Preferences),
		Status:          models.RideRequestStatusSearching,
		MatchedWith:     []primitive.ObjectID{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	request.ExpiresAt = request.ComputeExpiry()

	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, dependencyError(err, "failed to create ride request")
	}

	metrics.RideRequestsCreated.Inc()
	s.logger.LogRideRequestEvent(request.ID, "created", map[string]interface{}{
		"user_id":        userID.Hex(),
		"origin_geohash": request.Origin.Geohash,
		"departure_time": request.DepartureTime,
		"seats":          request.LookingForSeats,
	})

	return request, nil
}

func (s *rideRequestService) GetRideRequest(ctx context.Context, requestID, userID primitive.ObjectID) (*models.RideRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, storeError(err, "ride request")
	}
	if request.UserID != userID {
		return nil, unauthorized("ride request belongs to another user")
	}
	return request, nil
}

func (s *rideRequestService) GetUserRideRequests(ctx context.Context, userID primitive.ObjectID, status *models.RideRequestStatus) ([]*models.RideRequest, error) {
	if status != nil && !status.IsValid() {
		return nil, newError(KindValidation, "unknown ride request status %q", *status)
	}
	requests, err := s.requestRepo.GetByUser(ctx, userID, status)
	if err != nil {
		return nil, storeError(err, "ride requests")
	}
	return requests, nil
}

// UpdateRideRequest applies a partial update while the request is still
// searching. The write is guarded on status so a concurrent match formation
// wins.
func (s *rideRequestService) UpdateRideRequest(ctx context.Context, requestID, userID primitive.ObjectID, input *models.UpdateRideRequestInput) (*models.RideRequest, error) {
	request, err := s.mutableRequest(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if errs := validators.ValidateUpdateRideRequest(input, request, now); len(errs) > 0 {
		return nil, validationFailed(errs)
	}

	updates := map[string]interface{}{}
	if input.Origin != nil {
		loc, err := s.resolveLocation(ctx, "Origin", *input.Origin)
		if err != nil {
			return nil, err
		}
		request.Origin = loc
		updates["origin"] = loc
	}
	if input.Destination != nil {
		loc, err := s.resolveLocation(ctx, "Destination", *input.Destination)
		if err != nil {
			return nil, err
		}
		request.Destination = loc
		updates["destination"] = loc
	}
	if input.DepartureTime != nil {
		request.DepartureTime = input.DepartureTime.UTC()
		updates["departure_time"] = request.DepartureTime
	}
	if input.Flexibility != nil {
		request.Flexibility = *input.Flexibility
		updates["flexibility"] = request.Flexibility
	}
	if input.LookingForSeats != nil {
		request.LookingForSeats = *input.LookingForSeats
		updates["looking_for_seats"] = request.LookingForSeats
	}
	if input.MaxPricePerSeat != nil {
		request.MaxPricePerSeat = *input.MaxPricePerSeat
		updates["max_price_per_seat"] = request.MaxPricePerSeat
	}
	if input.MaxWalkDistance != nil {
		request.MaxWalkDistance = *input.MaxWalkDistance
		updates["max_walk_distance"] = request.MaxWalkDistance
	}
	if input.Preferences != nil {
		request.Preferences = preferencesFromInput(*input.Preferences)
		updates["preferences"] = request.Preferences
	}
	if len(updates) == 0 {
		return request, nil
	}

	request.ExpiresAt = request.ComputeExpiry()
	request.UpdatedAt = now
	updates["expires_at"] = request.ExpiresAt
	updates["updated_at"] = now

	ok, err := s.requestRepo.UpdateIfStatus(ctx, requestID, models.RideRequestStatusSearching, updates)
	if err != nil {
		return nil, dependencyError(err, "failed to update ride request")
	}
	if !ok {
		return nil, invalidState("ride request is no longer searching")
	}

	s.logger.LogRideRequestEvent(requestID, "updated", map[string]interface{}{"fields": len(updates) - 2})
	return request, nil
}

func (s *rideRequestService) DeleteRideRequest(ctx context.Context, requestID, userID primitive.ObjectID) error {
	if _, err := s.mutableRequest(ctx, requestID, userID); err != nil {
		return err
	}

	ok, err := s.requestRepo.DeleteIfStatus(ctx, requestID, models.RideRequestStatusSearching)
	if err != nil {
		return dependencyError(err, "failed to delete ride request")
	}
	if !ok {
		return invalidState("ride request is no longer searching")
	}

	s.logger.LogRideRequestEvent(requestID, "deleted", nil)
	return nil
}

func (s *rideRequestService) mutableRequest(ctx context.Context, requestID, userID primitive.ObjectID) (*models.RideRequest, error) {
	request, err := s.GetRideRequest(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	if !request.IsMutable() {
		return nil, invalidState("ride request is %s, only searching requests can be changed", request.Status)
	}
	return request, nil
}

// resolveLocation fills whichever of coordinates or address is missing.
// Forward geocoding is required when only an address is given; reverse
// geocoding is best-effort.
func (s *rideRequestService) resolveLocation(ctx context.Context, field string, in models.LocationInput) (models.Location, error) {
	loc := models.Location{Address: strings.TrimSpace(in.Address)}

	if in.HasCoordinates() {
		loc.Latitude, loc.Longitude = *in.Latitude, *in.Longitude
		if loc.Address == "" {
			loc.Address = s.addresses.resolve(ctx, utils.Point{Lat: loc.Latitude, Lng: loc.Longitude})
		}
	} else {
		var geocoder Geocoder
		if s.geocoder != nil {
			geocoder = s.geocoder
		}
		lat, lng, err := forwardGeocode(ctx, geocoder, loc.Address, s.timeout)
		if err != nil {
			if geocoder == nil {
				return loc, validationFailed(validators.ValidationErrors{{
					Field:   field,
					Tag:     "coordinates",
					Message: field + " coordinates are required",
				}})
			}
			return loc, dependencyError(err, "failed to geocode %s address", strings.ToLower(field))
		}
		loc.Latitude, loc.Longitude = lat, lng
	}

	loc.Geohash = utils.EncodeGeohash(loc.Latitude, loc.Longitude)
	return loc, nil
}

func preferencesFromInput(in models.PreferencesInput) models.RidePreferences {
	pref := in.GenderPreference
	if pref == "" {
		pref = models.GenderPreferenceAny
	}
	return models.RidePreferences{
		GenderPreference:        pref,
		StudentVerifiedOnly:     in.StudentVerifiedOnly,
		SameDepartmentPreferred: in.SameDepartmentPreferred,
	}
}
