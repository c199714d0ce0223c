package models

import "time"

// Role values enumerate the capability levels a user can hold.
const (
	RoleAdmin   = 1
	RoleManager = 2
	RoleCommon  = 3
)

// ValidRole reports whether role is one of the enumerated values.
func ValidRole(role int) bool {
	return role == RoleAdmin || role == RoleManager || role == RoleCommon
}

// User is a registered account. TemplateEnvelope holds the sealed biometric
// reference and is never exposed through the API.
type User struct {
	ID               int64
	Username         string
	Lastname         string
	Nickname         string
	Email            string
	Role             int
	Active           bool
	TemplateEnvelope []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
