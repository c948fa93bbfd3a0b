package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HSouheill/barrim_mlm/models"
)

type ledgerKey struct {
	beneficiaryID  string
	transactionRef string
}

// MemoryCommissionLedger is an in-process CommissionLedger.
type MemoryCommissionLedger struct {
	mu      sync.RWMutex
	entries []models.CommissionEntry
	keys    map[ledgerKey]struct{}

	now func() time.Time
}

func NewMemoryCommissionLedger() *MemoryCommissionLedger {
	return &MemoryCommissionLedger{
		keys: make(map[ledgerKey]struct{}),
		now:  time.Now,
	}
}

func (l *MemoryCommissionLedger) RecordCommission(ctx context.Context, entry models.CommissionEntry) (string, error) {
	if err := validateEntry(entry); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.TransactionRef != "" {
		key := ledgerKey{entry.BeneficiaryID, entry.TransactionRef}
		if _, ok := l.keys[key]; ok {
			return "", fmt.Errorf("beneficiary %s, transaction %s: %w", entry.BeneficiaryID, entry.TransactionRef, models.ErrDuplicateCommission)
		}
		l.keys[key] = struct{}{}
	}
	entry.EntryID = uuid.New().String()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	l.entries = append(l.entries, entry)
	return entry.EntryID, nil
}

func (l *MemoryCommissionLedger) SumByParticipant(ctx context.Context, participantID string, filter models.CommissionFilter) (models.CommissionSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := models.CommissionSummary{TotalAmount: decimal.Zero}
	perLevel := map[int]*models.LevelBreakdown{}
	for _, e := range l.entries {
		if e.BeneficiaryID != participantID || !filter.Matches(e) {
			continue
		}
		summary.Count++
		summary.TotalAmount = summary.TotalAmount.Add(e.Amount)
		b, ok := perLevel[e.Level]
		if !ok {
			b = &models.LevelBreakdown{Level: e.Level, Amount: decimal.Zero}
			perLevel[e.Level] = b
		}
		b.Count++
		b.Amount = b.Amount.Add(e.Amount)
	}
	summary.PerLevel = sortedBreakdown(perLevel)
	return summary, nil
}

func (l *MemoryCommissionLedger) ListByParticipant(ctx context.Context, participantID string, page, pageSize int, filter models.CommissionFilter) (models.CommissionPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	l.mu.RLock()
	matched := make([]models.CommissionEntry, 0)
	for _, e := range l.entries {
		if e.BeneficiaryID == participantID && filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].EntryID > matched[j].EntryID
	})

	result := models.CommissionPage{Total: int64(len(matched)), Page: page, PageSize: pageSize, Entries: []models.CommissionEntry{}}
	start := (page - 1) * pageSize
	if start < len(matched) {
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		result.Entries = matched[start:end]
	}
	return result, nil
}

func (l *MemoryCommissionLedger) Leaderboard(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	since, ok := period.Since(l.now())
	if !ok {
		return nil, fmt.Errorf("leaderboard period %q: %w", period, models.ErrInvalidInput)
	}
	limit = clampLimit(limit)

	l.mu.RLock()
	totals := map[string]*models.LeaderboardEntry{}
	for _, e := range l.entries {
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		t, ok := totals[e.BeneficiaryID]
		if !ok {
			t = &models.LeaderboardEntry{ParticipantID: e.BeneficiaryID, TotalAmount: decimal.Zero}
			totals[e.BeneficiaryID] = t
		}
		t.TotalAmount = t.TotalAmount.Add(e.Amount)
		t.TransactionCount++
	}
	l.mu.RUnlock()

	out := make([]models.LeaderboardEntry, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sortLeaderboard(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryCommissionLedger) GetByTransaction(ctx context.Context, transactionRef string) ([]models.CommissionEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []models.CommissionEntry{}
	for _, e := range l.entries {
		if e.TransactionRef == transactionRef {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// validateEntry enforces what every ledger backend requires of an entry.
func validateEntry(e models.CommissionEntry) error {
	switch {
	case e.BeneficiaryID == "":
		return fmt.Errorf("beneficiary is required: %w", models.ErrInvalidInput)
	case e.SourceParticipantID == "":
		return fmt.Errorf("source participant is required: %w", models.ErrInvalidInput)
	case e.Amount.IsNegative():
		return fmt.Errorf("amount %s is negative: %w", e.Amount, models.ErrInvalidInput)
	case e.Level < 1:
		return fmt.Errorf("level %d: %w", e.Level, models.ErrInvalidInput)
	case !e.CommissionType.Valid():
		return fmt.Errorf("commission type %q: %w", e.CommissionType, models.ErrInvalidInput)
	}
	return nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 10
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// sortLeaderboard ranks by total descending; participant id breaks ties.
func sortLeaderboard(entries []models.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].TotalAmount.Cmp(entries[j].TotalAmount); c != 0 {
			return c > 0
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
}

func sortedBreakdown(perLevel map[int]*models.LevelBreakdown) []models.LevelBreakdown {
	out := make([]models.LevelBreakdown, 0, len(perLevel))
	for _, b := range perLevel {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
