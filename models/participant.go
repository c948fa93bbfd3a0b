// models/participant.go
package models

import (
	"time"
)

// Participant is the directory's view of a registered user.
// The directory is owned by user management; the engine only reads it,
// apart from assigning referral codes.
type Participant struct {
	ID             string    `json:"id"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email,omitempty"`
	ReferralCode   string    `json:"referralCode,omitempty"`
	IsActive       bool      `json:"isActive"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReferralLink is returned to a participant sharing their code.
type ReferralLink struct {
	ReferralCode string `json:"referralCode"`
	ReferralLink string `json:"referralLink"`
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
