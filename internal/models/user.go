package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Gender string
type DevicePlatform string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"

	DevicePlatformAndroid DevicePlatform = "android"
	DevicePlatformIOS     DevicePlatform = "ios"
	DevicePlatformWeb     DevicePlatform = "web"
)

// User is the profile the matching engine reads. Accounts are managed
// elsewhere; this service never writes users.
type User struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	FirstName         string             `json:"first_name" bson:"first_name"`
	LastName          string             `json:"last_name" bson:"last_name"`
	Email             string             `json:"email" bson:"email"`
	Phone             string             `json:"phone" bson:"phone"`
	ProfilePicture    string             `json:"profile_picture" bson:"profile_picture"`
	Gender            Gender             `json:"gender" bson:"gender"`
	Department        string             `json:"department" bson:"department"`
	University        string             `json:"university" bson:"university"`
	IsStudentVerified bool               `json:"is_student_verified" bson:"is_student_verified"`
	DeviceTokens      []DeviceToken      `json:"device_tokens,omitempty" bson:"device_tokens"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}

type DeviceToken struct {
	Token    string         `json:"token" bson:"token"`
	Platform DevicePlatform `json:"platform" bson:"platform"`
}

// KnownGender returns the user's gender, or "" when not reported.
func (u *User) KnownGender() Gender {
	switch Gender(strings.ToLower(strings.TrimSpace(string(u.Gender)))) {
	case GenderMale:
		return GenderMale
	case GenderFemale:
		return GenderFemale
	case GenderOther:
		return GenderOther
	}
	return ""
}

// NormalizedDepartment is the department used for equality checks.
func (u *User) NormalizedDepartment() string {
	return strings.ToLower(strings.TrimSpace(u.Department))
}

// UserSummary is the part of a profile shown to other riders.
type UserSummary struct {
	ID                primitive.ObjectID `json:"id"`
	FirstName         string             `json:"first_name"`
	LastName          string             `json:"last_name"`
	ProfilePicture    string             `json:"profile_picture,omitempty"`
	Gender            Gender             `json:"gender,omitempty"`
	Department        string             `json:"department,omitempty"`
	IsStudentVerified bool               `json:"is_student_verified"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:                u.ID,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		ProfilePicture:    u.ProfilePicture,
		Gender:            u.Gender,
		Department:        u.Department,
		IsStudentVerified: u.IsStudentVerified,
	}
}
