package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionType string

const (
	CommissionReferral CommissionType = "referral"
	CommissionBinary   CommissionType = "binary"
	CommissionMatching CommissionType = "matching"
)

// Valid reports whether t is a known commission type.
func (t CommissionType) Valid() bool {
	switch t {
	case CommissionReferral, CommissionBinary, CommissionMatching:
		return true
	}
	return false
}

// CommissionEntry is one immutable line of the commission ledger.
type CommissionEntry struct {
	EntryID             string          `json:"entryId"`
	BeneficiaryID       string          `json:"beneficiaryId"`
	SourceParticipantID string          `json:"sourceParticipantId"`
	Amount              decimal.Decimal `json:"amount"`
	Rate                decimal.Decimal `json:"rate"`
	Level               int             `json:"level"`
	CommissionType      CommissionType  `json:"commissionType"`
	TransactionRef      string          `json:"transactionRef,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// CommissionFilter narrows ledger queries. Zero values mean "no restriction".
type CommissionFilter struct {
	Type *CommissionType
	From *time.Time
	To   *time.Time
}

// Matches reports whether e passes the filter. To is exclusive.
func (f CommissionFilter) Matches(e CommissionEntry) bool {
	if f.Type != nil && e.CommissionType != *f.Type {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// LevelBreakdown aggregates a participant's earnings at one commission level.
type LevelBreakdown struct {
	Level  int             `json:"level"`
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// CommissionSummary is the aggregate returned by SumByParticipant.
type CommissionSummary struct {
	Count       int64            `json:"count"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	PerLevel    []LevelBreakdown `json:"perLevel"`
}

// CommissionPage is one page of a participant's ledger, newest first.
type CommissionPage struct {
	Entries  []CommissionEntry `json:"entries"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

// TotalPages is the number of pages needed for Total entries.
func (p CommissionPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

type LeaderboardPeriod string

const (
	PeriodAll   LeaderboardPeriod = "all"
	PeriodMonth LeaderboardPeriod = "month"
	PeriodWeek  LeaderboardPeriod = "week"
)

// Since returns the lower bound of the period relative to now, nil for "all".
func (p LeaderboardPeriod) Since(now time.Time) (*time.Time, bool) {
	var since time.Time
	switch p {
	case PeriodAll, "":
		return nil, true
	case PeriodMonth:
		since = now.AddDate(0, 0, -30)
	case PeriodWeek:
		since = now.AddDate(0, 0, -7)
	default:
		return nil, false
	}
	return &since, true
}

// LeaderboardEntry ranks a beneficiary by total commission earned.
type LeaderboardEntry struct {
	ParticipantID    string          `json:"participantId"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int64           `json:"transactionCount"`
	DirectChildCount int             `json:"directChildCount"`
}

// Posting is a commission entry actually written by a distribution.
type Posting struct {
	EntryID       string          `json:"entryId"`
	BeneficiaryID string          `json:"beneficiaryId"`
	Level         int             `json:"level"`
	Amount        decimal.Decimal `json:"amount"`
	Rate          decimal.Decimal `json:"rate"`
}

// SkippedPosting is an ancestor that was not credited, with the reason.
type SkippedPosting struct {
	BeneficiaryID string    `json:"beneficiaryId"`
	Level         int       `json:"level"`
	Kind          ErrorKind `json:"kind"`
	Detail        string    `json:"detail"`
}

// DistributionResult reports a commission distribution; partial success is
// carried in Skipped rather than as an error.
type DistributionResult struct {
	SourceParticipantID string           `json:"sourceParticipantId"`
	TransactionRef      string           `json:"transactionRef"`
	Amount              decimal.Decimal  `json:"amount"`
	Postings            []Posting        `json:"postings"`
	Skipped             []SkippedPosting `json:"skipped"`
	TotalPosted         decimal.Decimal  `json:"totalPosted"`
}

// Duplicates returns the skipped postings caused by the idempotency guard.
func (r DistributionResult) Duplicates() []SkippedPosting {
	var out []SkippedPosting
	for _, s := range r.Skipped {
		if s.Kind == KindDuplicateCommission {
			out = append(out, s)
		}
	}
	return out
}
