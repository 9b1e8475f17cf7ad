package models

import "time"

// User is the subject profile as seen by the MFA service. Account
// management (registration, password auth) lives in the main identity
// service; this service only reads the profile and mutates its
// MFA-related flags.
type User struct {
	ID                    string
	Email                 string
	Name                  string
	MFAEnabled            bool
	MFAEnrolledAt         *time.Time
	LastEnrollmentStartAt *time.Time // cooldown anchor for repeated enrollment starts
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
