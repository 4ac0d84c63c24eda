package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"campusride/internal/models"
	"campusride/internal/repositories/interfaces"
	"campusride/internal/utils"
	"campusride/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reference points around a Dhaka campus.
var (
	campusGate = utils.Point{Lat: 23.7285, Lng: 90.3985}
	cityCentre = utils.Point{Lat: 23.8103, Lng: 90.4125}
	baseTime   = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
)

// north moves p about meters northwards.
func north(p utils.Point, meters float64) utils.Point {
	return utils.Point{Lat: p.Lat + meters/111195, Lng: p.Lng}
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---- ride requests ----

type fakeRequestRepo struct {
	mu       sync.Mutex
	requests map[primitive.ObjectID]*models.RideRequest
	// loseRace makes UpdateIfStatus report a lost compare-and-set for an id.
	loseRace map[primitive.ObjectID]bool
	findErr  error
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{
		requests: make(map[primitive.ObjectID]*models.RideRequest),
		loseRace: make(map[primitive.ObjectID]bool),
	}
}

func cloneRequest(r *models.RideRequest) *models.RideRequest {
	c := *r
	c.MatchedWith = append([]primitive.ObjectID(nil), r.MatchedWith...)
	if r.MatchID != nil {
		id := *r.MatchID
		c.MatchID = &id
	}
	return &c
}

func (f *fakeRequestRepo) put(r *models.RideRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[r.ID] = cloneRequest(r)
}

func (f *fakeRequestRepo) get(t *testing.T, id primitive.ObjectID) *models.RideRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		t.Fatalf("ride request %s not stored", id.Hex())
	}
	return cloneRequest(r)
}

func (f *fakeRequestRepo) Create(_ context.Context, r *models.RideRequest) error {
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	f.put(r)
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.RideRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("ride request %s: %w", id.Hex(), interfaces.ErrDocumentNotFound)
	}
	return cloneRequest(r), nil
}

func (f *fakeRequestRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.RideRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideRequest
	for _, id := range ids {
		if r, ok := f.requests[id]; ok {
			out = append(out, cloneRequest(r))
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) GetByUser(_ context.Context, userID primitive.ObjectID, status *models.RideRequestStatus) ([]*models.RideRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideRequest
	for _, r := range f.requests {
		if r.UserID == userID && (status == nil || r.Status == *status) {
			out = append(out, cloneRequest(r))
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) FindSearchingInGeohashRange(_ context.Context, start, end string, excludeID primitive.ObjectID) ([]*models.RideRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*models.RideRequest
	for _, r := range f.requests {
		hash := r.Origin.Geohash
		if r.Status == models.RideRequestStatusSearching && r.ID != excludeID && hash >= start && hash <= end {
			out = append(out, cloneRequest(r))
		}
	}
	// map order is random; the finder must not depend on it
	sort.Slice(out, func(i, j int) bool { return out[i].Origin.Geohash < out[j].Origin.Geohash })
	return out, nil
}

func (f *fakeRequestRepo) UpdateIfStatus(_ context.Context, id primitive.ObjectID, expected models.RideRequestStatus, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != expected || f.loseRace[id] {
		return false, nil
	}
	applyRequestUpdates(r, updates)
	return true, nil
}

func (f *fakeRequestRepo) DeleteIfStatus(_ context.Context, id primitive.ObjectID, expected models.RideRequestStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != expected {
		return false, nil
	}
	delete(f.requests, id)
	return true, nil
}

func (f *fakeRequestRepo) DetachFromMatch(_ context.Context, id primitive.ObjectID, matchID *primitive.ObjectID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != models.RideRequestStatusMatched {
		return false, nil
	}
	if matchID != nil && (r.MatchID == nil || *r.MatchID != *matchID) {
		return false, nil
	}
	r.Status = models.RideRequestStatusSearching
	r.MatchID = nil
	r.MatchedWith = []primitive.ObjectID{}
	return true, nil
}

func (f *fakeRequestRepo) UpdateStatusForMatch(_ context.Context, matchID primitive.ObjectID, from, to models.RideRequestStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.requests {
		if r.MatchID != nil && *r.MatchID == matchID && r.Status == from {
			r.Status = to
			n++
		}
	}
	return n, nil
}

func applyRequestUpdates(r *models.RideRequest, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			r.Status = v.(models.RideRequestStatus)
		case "match_id":
			if id, ok := v.(primitive.ObjectID); ok {
				r.MatchID = &id
			} else {
				r.MatchID = nil
			}
		case "matched_with":
			r.MatchedWith = append([]primitive.ObjectID(nil), v.([]primitive.ObjectID)...)
		case "origin":
			r.Origin = v.(models.Location)
		case "destination":
			r.Destination = v.(models.Location)
		case "departure_time":
			r.DepartureTime = v.(time.Time)
		case "flexibility":
			r.Flexibility = v.(int)
		case "looking_for_seats":
			r.LookingForSeats = v.(int)
		case "max_price_per_seat":
			r.MaxPricePerSeat = v.(float64)
		case "max_walk_distance":
			r.MaxWalkDistance = v.(float64)
		case "preferences":
			r.Preferences = v.(models.RidePreferences)
		case "expires_at":
			r.ExpiresAt = v.(time.Time)
		case "updated_at":
			r.UpdatedAt = v.(time.Time)
		}
	}
}

// ---- matches ----

type fakeMatchRepo struct {
	mu        sync.Mutex
	matches   map[primitive.ObjectID]*models.RideMatch
	createErr error
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{matches: make(map[primitive.ObjectID]*models.RideMatch)}
}

func cloneMatch(m *models.RideMatch) *models.RideMatch {
	c := *m
	c.RequestIDs = append([]primitive.ObjectID(nil), m.RequestIDs...)
	c.Participants = append([]models.Participant(nil), m.Participants...)
	c.Confirmations = append([]primitive.ObjectID(nil), m.Confirmations...)
	return &c
}

func (f *fakeMatchRepo) get(t *testing.T, id primitive.ObjectID) *models.RideMatch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		t.Fatalf("match %s not stored", id.Hex())
	}
	return cloneMatch(m)
}

func (f *fakeMatchRepo) all() []*models.RideMatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideMatch
	for _, m := range f.matches {
		out = append(out, cloneMatch(m))
	}
	return out
}

func (f *fakeMatchRepo) delete(id primitive.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.matches, id)
}

func (f *fakeMatchRepo) Create(_ context.Context, m *models.RideMatch) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[m.ID] = cloneMatch(m)
	return nil
}

func (f *fakeMatchRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.RideMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return nil, fmt.Errorf("ride match %s: %w", id.Hex(), interfaces.ErrDocumentNotFound)
	}
	return cloneMatch(m), nil
}

func (f *fakeMatchRepo) UpdateIfVersion(_ context.Context, id primitive.ObjectID, version int64, updates map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok || m.Version != version {
		return false, nil
	}
	for k, v := range updates {
		switch k {
		case "request_ids":
			m.RequestIDs = append([]primitive.ObjectID(nil), v.([]primitive.ObjectID)...)
		case "participants":
			m.Participants = append([]models.Participant(nil), v.([]models.Participant)...)
		case "meeting_point":
			m.MeetingPoint = v.(models.Location)
		case "dropoff_point":
			m.DropoffPoint = v.(models.Location)
		case "estimated_total_cost":
			m.EstimatedTotalCost = v.(float64)
		case "cost_per_person":
			m.CostPerPerson = v.(float64)
		case "final_cost_per_person":
			m.FinalCostPerPerson = v.(*float64)
		case "total_seats":
			m.TotalSeats = v.(int)
		case "status":
			m.Status = v.(models.MatchStatus)
		case "confirmations":
			m.Confirmations = append([]primitive.ObjectID(nil), v.([]primitive.ObjectID)...)
		case "cancel_reason":
			m.CancelReason = v.(string)
		case "updated_at":
			m.UpdatedAt = v.(time.Time)
		case "confirmed_at":
			m.ConfirmedAt = v.(*time.Time)
		case "cancelled_at":
			m.CancelledAt = v.(*time.Time)
		case "started_at":
			m.StartedAt = v.(*time.Time)
		case "completed_at":
			m.CompletedAt = v.(*time.Time)
		}
	}
	m.Version++
	return true, nil
}

func (f *fakeMatchRepo) FindActiveByRequestIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.RideMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideMatch
	for _, m := range f.matches {
		if !m.Status.IsActive() {
			continue
		}
		for _, id := range ids {
			if containsID(m.RequestIDs, id) {
				out = append(out, cloneMatch(m))
				break
			}
		}
	}
	return out, nil
}

func (f *fakeMatchRepo) FindPendingDepartedBefore(_ context.Context, before time.Time, limit int64) ([]*models.RideMatch, error) {
	return f.findPending(func(m *models.RideMatch) bool { return m.DepartureTime.Before(before) }, limit)
}

func (f *fakeMatchRepo) FindPendingCreatedBefore(_ context.Context, before time.Time, limit int64) ([]*models.RideMatch, error) {
	return f.findPending(func(m *models.RideMatch) bool { return !m.CreatedAt.After(before) }, limit)
}

func (f *fakeMatchRepo) findPending(keep func(*models.RideMatch) bool, limit int64) ([]*models.RideMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideMatch
	for _, m := range f.matches {
		if m.Status == models.MatchStatusPending && keep(m) {
			out = append(out, cloneMatch(m))
		}
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMatchRepo) GetByParticipant(_ context.Context, userID primitive.ObjectID, status *models.MatchStatus) ([]*models.RideMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RideMatch
	for _, m := range f.matches {
		if m.HasParticipant(userID) && (status == nil || m.Status == *status) {
			out = append(out, cloneMatch(m))
		}
	}
	return out, nil
}

// ---- users, chat, collaborators ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[primitive.ObjectID]*models.User)}
}

func (f *fakeUserRepo) add(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUserRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, interfaces.ErrDocumentNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) GetByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[primitive.ObjectID]*models.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type fakeChatRepo struct {
	mu       sync.Mutex
	messages []*models.Message
	err      error
}

func (f *fakeChatRepo) CreateMessage(_ context.Context, m *models.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeChatRepo) GetByChatRoom(_ context.Context, room string, limit int64) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, m := range f.messages {
		if m.ChatRoomID == room {
			out = append(out, m)
		}
	}
	return out, nil
}

type sentNotification struct {
	userIDs      []primitive.ObjectID
	notification Notification
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(_ context.Context, userIDs []primitive.ObjectID, notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{userIDs: userIDs, notification: notification})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		out = append(out, s.notification.Type)
	}
	return out
}

type fakeGeocoder struct {
	err error
}

func (g *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return fmt.Sprintf("Near %.3f,%.3f", lat, lng), nil
}

func (g *fakeGeocoder) Geocode(_ context.Context, address string) (float64, float64, error) {
	if g.err != nil {
		return 0, 0, g.err
	}
	if address == "Campus Gate" {
		return campusGate.Lat, campusGate.Lng, nil
	}
	return cityCentre.Lat, cityCentre.Lng, nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := primitive.NewObjectID().Hex()
	l.held[key] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// ---- test environment ----

type testEnv struct {
	requests *fakeRequestRepo
	matches  *fakeMatchRepo
	users    *fakeUserRepo
	chat     *fakeChatRepo
	notifier *recordingNotifier
	geocoder *fakeGeocoder
	locker   *fakeLocker
	clock    *fixedClock
	svc      *matchService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		requests: newFakeRequestRepo(),
		matches:  newFakeMatchRepo(),
		users:    newFakeUserRepo(),
		chat:     &fakeChatRepo{},
		notifier: &recordingNotifier{},
		geocoder: &fakeGeocoder{},
		locker:   newFakeLocker(),
		clock:    &fixedClock{now: baseTime},
	}
	env.svc = NewMatchService(MatchServiceDeps{
		Requests: env.requests,
		Matches:  env.matches,
		Users:    env.users,
		Chat:     env.chat,
		Geocoder: env.geocoder,
		Notifier: env.notifier,
		Locker:   env.locker,
		Clock:    env.clock,
		Logger:   logger.NewNop(),
	}, MatchServiceConfig{}).(*matchService)
	return env
}

func (e *testEnv) addUser(first string, opts ...func(*models.User)) *models.User {
	u := &models.User{
		ID:        primitive.NewObjectID(),
		FirstName: first,
		LastName:  "Rahman",
		Phone:     "+8801700000000",
	}
	for _, opt := range opts {
		opt(u)
	}
	e.users.add(u)
	return u
}

// addRequest stores a searching request departing departAfter past baseTime
// with 15 minutes of flexibility.
func (e *testEnv) addRequest(user *models.User, origin, dest utils.Point, departAfter time.Duration, opts ...func(*models.RideRequest)) *models.RideRequest {
	r := &models.RideRequest{
		ID:              primitive.NewObjectID(),
		UserID:          user.ID,
		Origin:          models.Location{Latitude: origin.Lat, Longitude: origin.Lng, Geohash: utils.EncodeGeohash(origin.Lat, origin.Lng)},
		Destination:     models.Location{Latitude: dest.Lat, Longitude: dest.Lng, Geohash: utils.EncodeGeohash(dest.Lat, dest.Lng)},
		DepartureTime:   baseTime.Add(time.Hour + departAfter),
		Flexibility:     15,
		LookingForSeats: 1,
		MaxPricePerSeat: 200,
		MaxWalkDistance: 500,
		Preferences:     models.RidePreferences{GenderPreference: models.GenderPreferenceAny},
		Status:          models.RideRequestStatusSearching,
		MatchedWith:     []primitive.ObjectID{},
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	r.ExpiresAt = r.ComputeExpiry()
	for _, opt := range opts {
		opt(r)
	}
	e.requests.put(r)
	return r
}

// formMatch creates n riders near the campus gate and groups them.
func (e *testEnv) formMatch(t *testing.T, n int) (*models.RideMatch, []*models.User, []*models.RideRequest) {
	t.Helper()
	var (
		users    []*models.User
		requests []*models.RideRequest
		ids      []primitive.ObjectID
	)
	for i := 0; i < n; i++ {
		u := e.addUser(fmt.Sprintf("Rider%d", i+1))
		r := e.addRequest(u, north(campusGate, float64(i)*100), north(cityCentre, float64(i)*100), time.Duration(i)*5*time.Minute)
		users = append(users, u)
		requests = append(requests, r)
		ids = append(ids, r.ID)
	}
	match, err := e.svc.CreateMatch(context.Background(), ids, &users[0].ID)
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	return match, users, requests
}

func assertKind(t *testing.T, err error, want *ServiceError) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want.Kind)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s error, got %v", want.Kind, err)
	}
}

func withGender(g models.Gender) func(*models.User) {
	return func(u *models.User) { u.Gender = g }
}

func withDepartment(d string) func(*models.User) {
	return func(u *models.User) { u.Department = d }
}

func verified(u *models.User) { u.IsStudentVerified = true }
