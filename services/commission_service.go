package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/metrics"
	"github.com/HSouheill/barrim_mlm/models"
	"github.com/HSouheill/barrim_mlm/repositories"
)

// DefaultCommissionDepth is the number of ancestors credited per transaction.
const DefaultCommissionDepth = 9

// currencyPlaces is the minor unit every posted amount is rounded to.
const currencyPlaces = 2

// CommissionService credits a transaction's amount up the ancestor chain.
type CommissionService struct {
	tree        repositories.TreeStore
	ledger      repositories.CommissionLedger
	rates       RateTable
	maxDepth    int
	invalidator ReportInvalidator
	txTimeout   time.Duration
	log         logrus.FieldLogger
}

func NewCommissionService(tree repositories.TreeStore, ledger repositories.CommissionLedger, rates RateTable, maxDepth int, txTimeout time.Duration, log logrus.FieldLogger) *CommissionService {
	if maxDepth < 1 {
		maxDepth = DefaultCommissionDepth
	}
	return &CommissionService{
		tree:      tree,
		ledger:    ledger,
		rates:     rates,
		maxDepth:  maxDepth,
		txTimeout: txTimeout,
		log:       log,
	}
}

// SetInvalidator registers the cache to clear after postings are written.
func (s *CommissionService) SetInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

// DistributeCommission posts one referral commission per ancestor of the
// source participant. Each ancestor is posted on its own; a failed or
// duplicate posting is reported in Skipped and does not stop the others.
// Repeating a call with the same transactionRef posts nothing new.
func (s *CommissionService) DistributeCommission(ctx context.Context, sourceParticipantID string, amount decimal.Decimal, transactionRef string) (models.DistributionResult, error) {
	sourceParticipantID = strings.TrimSpace(sourceParticipantID)
	transactionRef = strings.TrimSpace(transactionRef)
	switch {
	case sourceParticipantID == "":
		return models.DistributionResult{}, fmt.Errorf("source participant is required: %w", models.ErrInvalidInput)
	case transactionRef == "":
		return models.DistributionResult{}, fmt.Errorf("transaction reference is required: %w", models.ErrInvalidInput)
	case amount.IsNegative():
		return models.DistributionResult{}, fmt.Errorf("amount %s is negative: %w", amount, models.ErrInvalidInput)
	}

	logger := s.log.WithFields(logrus.Fields{
		"source_participant_id": sourceParticipantID,
		"transaction_ref":       transactionRef,
		"amount":                amount.String(),
	})

	var result models.DistributionResult
	err := runDetached(ctx, s.txTimeout, func(ctx context.Context) error {
		var err error
		result, err = s.distribute(ctx, logger, sourceParticipantID, amount, transactionRef)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrDepthExceeded) {
			logger.WithError(err).Error("ancestor chain is corrupted")
		} else if models.IsExpected(err) {
			logger.WithError(err).Info("distribution rejected")
		} else {
			logger.WithError(err).Error("distribution failed")
		}
		return models.DistributionResult{}, err
	}

	logger.WithFields(logrus.Fields{
		"postings":     len(result.Postings),
		"skipped":      len(result.Skipped),
		"total_posted": result.TotalPosted.String(),
	}).Info("commission distributed")

	if len(result.Postings) > 0 && s.invalidator != nil {
		ids := make([]string, 0, len(result.Postings))
		for _, p := range result.Postings {
			ids = append(ids, p.BeneficiaryID)
		}
		s.invalidator.InvalidateParticipants(ctx, ids)
	}
	return result, nil
}

func (s *CommissionService) distribute(ctx context.Context, logger logrus.FieldLogger, sourceID string, amount decimal.Decimal, transactionRef string) (models.DistributionResult, error) {
	ancestors, err := s.tree.GetAncestors(ctx, sourceID)
	if err != nil {
		return models.DistributionResult{}, err
	}
	if len(ancestors) > s.maxDepth {
		ancestors = ancestors[:s.maxDepth]
	}

	result := models.DistributionResult{
		SourceParticipantID: sourceID,
		TransactionRef:      transactionRef,
		Amount:              amount,
		Postings:            []models.Posting{},
		Skipped:             []models.SkippedPosting{},
		TotalPosted:         decimal.Zero,
	}
	for i, ancestor := range ancestors {
		// The source itself is commission level 1; its parent is level 2 and
		// earns the first rate.
		commissionLevel := i + 2
		level := commissionLevel - 1
		rate := s.rates.RateFor(level)
		value := amount.Mul(rate).Round(currencyPlaces)

		entryID, err := s.ledger.RecordCommission(ctx, models.CommissionEntry{
			BeneficiaryID:       ancestor.ParticipantID,
			SourceParticipantID: sourceID,
			Amount:              value,
			Rate:                rate,
			Level:               level,
			CommissionType:      models.CommissionReferral,
			TransactionRef:      transactionRef,
		})
		if err != nil {
			kind := models.KindOf(err)
			metrics.RecordCommissionPosting(string(kind))
			entry := logger.WithError(err).WithFields(logrus.Fields{
				"beneficiary_id": ancestor.ParticipantID,
				"level":          level,
			})
			if kind == models.KindDuplicateCommission {
				entry.Debug("commission already posted")
			} else {
				entry.Warn("commission posting skipped")
			}
			result.Skipped = append(result.Skipped, models.SkippedPosting{
				BeneficiaryID: ancestor.ParticipantID,
				Level:         level,
				Kind:          kind,
				Detail:        err.Error(),
			})
			continue
		}

		metrics.RecordCommissionPosting("posted")
		result.Postings = append(result.Postings, models.Posting{
			EntryID:       entryID,
			BeneficiaryID: ancestor.ParticipantID,
			Level:         level,
			Amount:        value,
			Rate:          rate,
		})
		result.TotalPosted = result.TotalPosted.Add(value)
	}
	return result, nil
}

// TransactionCommissions returns what a distribution posted, for audit.
func (s *CommissionService) TransactionCommissions(ctx context.Context, transactionRef string) ([]models.CommissionEntry, error) {
	transactionRef = strings.TrimSpace(transactionRef)
	if transactionRef == "" {
		return nil, fmt.Errorf("transaction reference is required: %w", models.ErrInvalidInput)
	}
	return s.ledger.GetByTransaction(ctx, transactionRef)
}
