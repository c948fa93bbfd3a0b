package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/metrics"
	"github.com/HSouheill/barrim_mlm/models"
	"github.com/HSouheill/barrim_mlm/repositories"
)

const (
	teamDepth             = 10
	referralDepth         = 5
	defaultDownlineLevels = 5
	maxDownlineLevels     = 10

	// A downline counts as active when it did something within this window.
	activityWindow = 30 * 24 * time.Hour

	defaultCommissionPageSize = 20
	defaultLeaderboardLimit   = 10
	maxListLimit              = 100
)

// ReportingService composes read-only views from the tree and the ledger.
type ReportingService struct {
	tree      repositories.TreeStore
	ledger    repositories.CommissionLedger
	directory repositories.ParticipantDirectory
	cache     ReportCache

	leaderboardTTL time.Duration
	dashboardTTL   time.Duration
	now            func() time.Time
	log            logrus.FieldLogger
}

// NewReportingService builds the reporting layer. cache may be nil, in which
// case every view is computed on demand.
func NewReportingService(tree repositories.TreeStore, ledger repositories.CommissionLedger, directory repositories.ParticipantDirectory, cache ReportCache, leaderboardTTL, dashboardTTL time.Duration, log logrus.FieldLogger) *ReportingService {
	return &ReportingService{
		tree:           tree,
		ledger:         ledger,
		directory:      directory,
		cache:          cache,
		leaderboardTTL: leaderboardTTL,
		dashboardTTL:   dashboardTTL,
		now:            time.Now,
		log:            log,
	}
}

func (s *ReportingService) GetStructure(ctx context.Context, participantID string) (models.Structure, error) {
	node, err := s.tree.GetNode(ctx, participantID)
	if err != nil {
		return models.Structure{}, err
	}

	var parent *models.TreeNode
	if node.ParentNodeID != nil {
		p, err := s.tree.GetNodeByID(ctx, *node.ParentNodeID)
		if err != nil {
			return models.Structure{}, err
		}
		parent = &p
	}

	children, err := s.tree.GetDirectChildren(ctx, node.NodeID)
	if err != nil {
		return models.Structure{}, err
	}
	team, err := s.tree.GetDescendants(ctx, node.NodeID, teamDepth)
	if err != nil {
		return models.Structure{}, err
	}
	summary, err := s.ledger.SumByParticipant(ctx, participantID, models.CommissionFilter{})
	if err != nil {
		return models.Structure{}, err
	}

	return models.Structure{
		Node:      node,
		Parent:    parent,
		Downlines: children,
		Statistics: models.StructureStatistics{
			TotalDownline:     len(team),
			DirectReferrals:   len(children),
			TotalEarnings:     summary.TotalAmount,
			TotalTransactions: summary.Count,
		},
	}, nil
}

// GetDownlines groups descendants by relative level. The position filter
// selects which first-level children are followed; their subtrees are kept
// whole.
func (s *ReportingService) GetDownlines(ctx context.Context, participantID string, maxLevels int, position *models.Position) (models.Downlines, error) {
	if maxLevels == 0 {
		maxLevels = defaultDownlineLevels
	}
	if maxLevels < 1 || maxLevels > maxDownlineLevels {
		return models.Downlines{}, fmt.Errorf("levels must be between 1 and %d, got %d: %w", maxDownlineLevels, maxLevels, models.ErrInvalidInput)
	}
	if position != nil && !position.Valid() {
		return models.Downlines{}, fmt.Errorf("position %q: %w", *position, models.ErrInvalidInput)
	}

	node, err := s.tree.GetNode(ctx, participantID)
	if err != nil {
		return models.Downlines{}, err
	}
	descendants, err := s.tree.GetDescendants(ctx, node.NodeID, maxLevels)
	if err != nil {
		return models.Downlines{}, err
	}

	kept := map[string]bool{node.NodeID: true}
	result := models.Downlines{Levels: []models.DownlineLevel{}, MaxLevelsSearched: maxLevels}
	for _, d := range descendants {
		if d.Node.ParentNodeID == nil || !kept[*d.Node.ParentNodeID] {
			continue
		}
		if d.RelativeLevel == 1 && position != nil && (d.Node.Position == nil || *d.Node.Position != *position) {
			continue
		}
		kept[d.Node.NodeID] = true

		if n := len(result.Levels); n == 0 || result.Levels[n-1].RelativeLevel != d.RelativeLevel {
			result.Levels = append(result.Levels, models.DownlineLevel{RelativeLevel: d.RelativeLevel})
		}
		last := &result.Levels[len(result.Levels)-1]
		last.Nodes = append(last.Nodes, d.Node)
		result.TotalDownlines++
	}
	return result, nil
}

// GetUplines returns the ancestor chain, nearest first.
func (s *ReportingService) GetUplines(ctx context.Context, participantID string) ([]models.Upline, error) {
	ancestors, err := s.tree.GetAncestors(ctx, participantID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Upline, 0, len(ancestors))
	for i, a := range ancestors {
		out = append(out, models.Upline{Node: a, RelativeLevel: i + 1})
	}
	return out, nil
}

// GetTeamStatistics summarises the ten levels below participantID. A
// downline is active when its last activity falls within the last 30 days.
func (s *ReportingService) GetTeamStatistics(ctx context.Context, participantID string) (models.TeamStatistics, error) {
	node, err := s.tree.GetNode(ctx, participantID)
	if err != nil {
		return models.TeamStatistics{}, err
	}
	team, err := s.tree.GetDescendants(ctx, node.NodeID, teamDepth)
	if err != nil {
		return models.TeamStatistics{}, err
	}

	stats := models.TeamStatistics{}
	stats.Team.TotalDownlines = len(team)
	activeSince := s.now().Add(-activityWindow)
	for _, d := range team {
		if d.RelativeLevel > stats.Team.MaxDepth {
			stats.Team.MaxDepth = d.RelativeLevel
		}
		if s.directory == nil {
			continue
		}
		p, err := s.directory.GetParticipant(ctx, d.Node.ParticipantID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return models.TeamStatistics{}, err
		}
		if !p.LastActivityAt.Before(activeSince) {
			stats.Team.ActiveDownlines++
		}
	}

	summary, err := s.ledger.SumByParticipant(ctx, participantID, models.CommissionFilter{})
	if err != nil {
		return models.TeamStatistics{}, err
	}
	stats.Commissions = models.TeamCommissionStats{
		TotalTransactions: summary.Count,
		TotalEarned:       summary.TotalAmount,
		AverageCommission: decimal.Zero,
		PerLevel:          summary.PerLevel,
	}
	if summary.Count > 0 {
		stats.Commissions.AverageCommission = summary.TotalAmount.
			DivRound(decimal.NewFromInt(summary.Count), currencyPlaces+2).
			Round(currencyPlaces)
	}
	return stats, nil
}

func (s *ReportingService) GetDashboard(ctx context.Context, participantID string) (models.Dashboard, error) {
	key := dashboardKey(participantID)
	var cached models.Dashboard
	if s.cacheGet(ctx, "dashboard", key, &cached) {
		return cached, nil
	}

	node, err := s.tree.GetNode(ctx, participantID)
	if err != nil {
		return models.Dashboard{}, err
	}
	summary, err := s.ledger.SumByParticipant(ctx, participantID, models.CommissionFilter{})
	if err != nil {
		return models.Dashboard{}, err
	}
	referrals, err := s.tree.GetDescendants(ctx, node.NodeID, referralDepth)
	if err != nil {
		return models.Dashboard{}, err
	}

	dashboard := models.Dashboard{
		ParticipantID: participantID,
		MLM: models.DashboardNode{
			Level:      node.Level,
			LeftCount:  node.LeftChildCount,
			RightCount: node.RightChildCount,
		},
		Earnings: models.DashboardEarnings{
			TotalEarnings:     summary.TotalAmount,
			TotalTransactions: summary.Count,
		},
		Referrals: models.DashboardReferrals{TotalReferrals: len(referrals)},
	}
	s.cacheSet(ctx, key, dashboard, s.dashboardTTL)
	return dashboard, nil
}

// Leaderboard ranks beneficiaries by commission earned in period. The full
// top list is cached per period and cut to limit on the way out.
func (s *ReportingService) Leaderboard(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	if period == "" {
		period = models.PeriodAll
	}
	if _, ok := period.Since(time.Now()); !ok {
		return nil, fmt.Errorf("leaderboard period %q: %w", period, models.ErrInvalidInput)
	}
	if limit == 0 {
		limit = defaultLeaderboardLimit
	}
	if limit < 1 || limit > maxListLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d: %w", maxListLimit, limit, models.ErrInvalidInput)
	}

	var board []models.LeaderboardEntry
	if !s.cacheGet(ctx, "leaderboard", leaderboardKey(string(period)), &board) {
		var err error
		board, err = s.computeLeaderboard(ctx, period)
		if err != nil {
			return nil, err
		}
		s.cacheSet(ctx, leaderboardKey(string(period)), board, s.leaderboardTTL)
	}
	if len(board) > limit {
		board = board[:limit]
	}
	return board, nil
}

func (s *ReportingService) computeLeaderboard(ctx context.Context, period models.LeaderboardPeriod) ([]models.LeaderboardEntry, error) {
	board, err := s.ledger.Leaderboard(ctx, period, maxListLimit)
	if err != nil {
		return nil, err
	}
	for i := range board {
		node, err := s.tree.GetNode(ctx, board[i].ParticipantID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		board[i].DirectChildCount = node.DirectChildCount()
	}
	return board, nil
}

// RefreshLeaderboards recomputes and caches every leaderboard period.
func (s *ReportingService) RefreshLeaderboards(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	for _, period := range []models.LeaderboardPeriod{models.PeriodAll, models.PeriodMonth, models.PeriodWeek} {
		board, err := s.computeLeaderboard(ctx, period)
		if err != nil {
			return fmt.Errorf("refresh %s leaderboard: %w", period, err)
		}
		if err := s.cache.Set(ctx, leaderboardKey(string(period)), board, s.leaderboardTTL); err != nil {
			return fmt.Errorf("cache %s leaderboard: %w", period, err)
		}
	}
	return nil
}

// ListCommissions pages through a participant's ledger, newest first.
func (s *ReportingService) ListCommissions(ctx context.Context, participantID string, page, limit int, commissionType string) (models.CommissionPage, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultCommissionPageSize
	}
	if page < 1 {
		return models.CommissionPage{}, fmt.Errorf("page must be positive, got %d: %w", page, models.ErrInvalidInput)
	}
	if limit < 1 || limit > maxListLimit {
		return models.CommissionPage{}, fmt.Errorf("limit must be between 1 and %d, got %d: %w", maxListLimit, limit, models.ErrInvalidInput)
	}
	var filter models.CommissionFilter
	if commissionType != "" {
		t := models.CommissionType(commissionType)
		if !t.Valid() {
			return models.CommissionPage{}, fmt.Errorf("commission type %q: %w", commissionType, models.ErrInvalidInput)
		}
		filter.Type = &t
	}
	return s.ledger.ListByParticipant(ctx, participantID, page, limit, filter)
}

// InvalidateParticipants drops the cached dashboards of participantIDs and
// every cached leaderboard.
func (s *ReportingService) InvalidateParticipants(ctx context.Context, participantIDs []string) {
	if s.cache == nil {
		return
	}
	keys := []string{
		leaderboardKey(string(models.PeriodAll)),
		leaderboardKey(string(models.PeriodMonth)),
		leaderboardKey(string(models.PeriodWeek)),
	}
	for _, id := range participantIDs {
		keys = append(keys, dashboardKey(id))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.WithError(err).Warn("report cache invalidation failed")
	}
}

func (s *ReportingService) cacheGet(ctx context.Context, view, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dest)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(view, "error")
		s.log.WithError(err).WithField("key", key).Warn("report cache read failed")
		return false
	case ok:
		metrics.RecordCacheLookup(view, "hit")
	default:
		metrics.RecordCacheLookup(view, "miss")
	}
	return ok
}

func (s *ReportingService) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.cache == nil || ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("report cache write failed")
	}
}
