package models

import (
	"github.com/shopspring/decimal"
)

// StructureStatistics summarises a participant's team and earnings.
type StructureStatistics struct {
	TotalDownline     int             `json:"totalDownline"`
	DirectReferrals   int             `json:"directReferrals"`
	TotalEarnings     decimal.Decimal `json:"totalEarnings"`
	TotalTransactions int64           `json:"totalTransactions"`
}

// Structure is a participant's node with its immediate neighbourhood.
type Structure struct {
	Node       TreeNode            `json:"node"`
	Parent     *TreeNode           `json:"parent,omitempty"`
	Downlines  []TreeNode          `json:"downlines"`
	Statistics StructureStatistics `json:"statistics"`
}

// DownlineLevel groups descendants found at the same relative level.
type DownlineLevel struct {
	RelativeLevel int        `json:"relativeLevel"`
	Nodes         []TreeNode `json:"nodes"`
}

type Downlines struct {
	Levels            []DownlineLevel `json:"levels"`
	TotalDownlines    int             `json:"totalDownlines"`
	MaxLevelsSearched int             `json:"maxLevelsSearched"`
}

// Upline is an ancestor at a distance from the participant (1 = parent).
type Upline struct {
	Node          TreeNode `json:"node"`
	RelativeLevel int      `json:"relativeLevel"`
}

type TeamStats struct {
	TotalDownlines  int `json:"totalDownlines"`
	MaxDepth        int `json:"maxDepth"`
	ActiveDownlines int `json:"activeDownlines"`
}

type TeamCommissionStats struct {
	TotalTransactions int64            `json:"totalTransactions"`
	TotalEarned       decimal.Decimal  `json:"totalEarned"`
	AverageCommission decimal.Decimal  `json:"averageCommission"`
	PerLevel          []LevelBreakdown `json:"perLevel"`
}

// TeamStatistics is the team overview of a participant.
type TeamStatistics struct {
	Team        TeamStats           `json:"team"`
	Commissions TeamCommissionStats `json:"commissions"`
}

type DashboardNode struct {
	Level      int `json:"level"`
	LeftCount  int `json:"leftCount"`
	RightCount int `json:"rightCount"`
}

type DashboardEarnings struct {
	TotalEarnings     decimal.Decimal `json:"totalEarnings"`
	TotalTransactions int64           `json:"totalTransactions"`
}

type DashboardReferrals struct {
	TotalReferrals int `json:"totalReferrals"`
}

// Dashboard is the compact landing view of a participant.
type Dashboard struct {
	ParticipantID string             `json:"participantId"`
	MLM           DashboardNode      `json:"mlm"`
	Earnings      DashboardEarnings  `json:"earnings"`
	Referrals     DashboardReferrals `json:"referrals"`
}
