package models

import "github.com/shopspring/decimal"

// PlacementRequest asks the placement engine to attach a participant.
// ReferrerID wins over ReferralCode when both are set; neither means root.
type PlacementRequest struct {
	ParticipantID string `json:"participantId" validate:"required"`
	ReferrerID    string `json:"referrerId,omitempty"`
	ReferralCode  string `json:"referralCode,omitempty" validate:"omitempty,min=4,max=32"`
}

// DistributionRequest triggers a commission distribution for a transaction.
// Amount accepts a JSON number or a decimal string; send a string to keep
// every digit.
type DistributionRequest struct {
	SourceParticipantID string           `json:"sourceParticipantId" validate:"required"`
	Amount              *decimal.Decimal `json:"amount" validate:"required"`
	TransactionRef      string           `json:"transactionRef" validate:"required,max=128"`
}

// CommissionsQuery binds GET /api/mlm/commissions.
type CommissionsQuery struct {
	Page  int    `query:"page" validate:"omitempty,min=1"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Type  string `query:"type" validate:"omitempty,oneof=referral binary matching"`
}

// LeaderboardQuery binds GET /api/mlm/leaderboard.
type LeaderboardQuery struct {
	Period string `query:"period" validate:"omitempty,oneof=all month week"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// DownlinesQuery binds GET /api/mlm/downlines.
type DownlinesQuery struct {
	Levels   int    `query:"levels" validate:"omitempty,min=1,max=10"`
	Position string `query:"position" validate:"omitempty,oneof=left right"`
}
