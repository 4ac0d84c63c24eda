package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusConfirmed MatchStatus = "confirmed"
	MatchStatusRiding    MatchStatus = "riding"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// MinParticipants is the smallest group a match may hold.
const MinParticipants = 2

// MatchTransitions is the match state machine. A pending match returns to
// pending after a participant leaves; a confirmed match drops back to
// pending for the same reason.
var MatchTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusPending:   {MatchStatusPending, MatchStatusConfirmed, MatchStatusCancelled},
	MatchStatusConfirmed: {MatchStatusPending, MatchStatusConfirmed, MatchStatusRiding, MatchStatusCancelled},
	MatchStatusRiding:    {MatchStatusCompleted},
}

func CanTransition(from, to MatchStatus) bool {
	next, ok := MatchTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the match still holds its requests.
func (s MatchStatus) IsActive() bool {
	return s == MatchStatusPending || s == MatchStatusConfirmed || s == MatchStatusRiding
}

type Participant struct {
	UserID            primitive.ObjectID `json:"user_id" bson:"user_id"`
	FirstName         string             `json:"first_name" bson:"first_name"`
	LastName          string             `json:"last_name" bson:"last_name"`
	Phone             string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Avatar            string             `json:"avatar,omitempty" bson:"avatar,omitempty"`
	PickupLocation    Location           `json:"pickup_location" bson:"pickup_location"`
	DropoffLocation   Location           `json:"dropoff_location" bson:"dropoff_location"`
	Seats             int                `json:"seats" bson:"seats"`
	IsStudentVerified bool               `json:"is_student_verified" bson:"is_student_verified"`
	Department        string             `json:"department,omitempty" bson:"department,omitempty"`
}

func (p Participant) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type RideMatch struct {
	ID                 primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	RequestIDs         []primitive.ObjectID `json:"request_ids" bson:"request_ids"`
	Participants       []Participant        `json:"participants" bson:"participants"`
	MeetingPoint       Location             `json:"meeting_point" bson:"meeting_point"`
	DropoffPoint       Location             `json:"dropoff_point" bson:"dropoff_point"`
	DepartureTime      time.Time            `json:"departure_time" bson:"departure_time"`
	EstimatedTotalCost float64              `json:"estimated_total_cost" bson:"estimated_total_cost"`
	CostPerPerson      float64              `json:"cost_per_person" bson:"cost_per_person"`
	FinalCostPerPerson *float64             `json:"final_cost_per_person,omitempty" bson:"final_cost_per_person,omitempty"`
	Currency           string               `json:"currency" bson:"currency"`
	TotalSeats         int                  `json:"total_seats" bson:"total_seats"`
	ChatRoomID         string               `json:"chat_room_id" bson:"chat_room_id"`
	Status             MatchStatus          `json:"status" bson:"status"`
	Confirmations      []primitive.ObjectID `json:"confirmations" bson:"confirmations"`
	CancelReason       string               `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`
	Version            int64                `json:"version" bson:"version"`
	CreatedAt          time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at" bson:"updated_at"`
	ConfirmedAt        *time.Time           `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	StartedAt          *time.Time           `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// ParticipantIndex returns the position of userID in Participants, or -1.
func (m *RideMatch) ParticipantIndex(userID primitive.ObjectID) int {
	for i, p := range m.Participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (m *RideMatch) HasParticipant(userID primitive.ObjectID) bool {
	return m.ParticipantIndex(userID) >= 0
}

func (m *RideMatch) IsConfirmedBy(userID primitive.ObjectID) bool {
	for _, id := range m.Confirmations {
		if id == userID {
			return true
		}
	}
	return false
}

// AllConfirmed reports whether every current participant has confirmed.
func (m *RideMatch) AllConfirmed() bool {
	if len(m.Participants) == 0 {
		return false
	}
	for _, p := range m.Participants {
		if !m.IsConfirmedBy(p.UserID) {
			return false
		}
	}
	return true
}

func (m *RideMatch) ParticipantIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(m.Participants))
	for i, p := range m.Participants {
		ids[i] = p.UserID
	}
	return ids
}
