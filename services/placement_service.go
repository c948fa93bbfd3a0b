package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/metrics"
	"github.com/HSouheill/barrim_mlm/models"
	"github.com/HSouheill/barrim_mlm/repositories"
)

// dashboardDepth is how far up a new placement changes cached dashboards.
const dashboardDepth = 5

// ReportInvalidator drops cached views that a mutation made stale.
type ReportInvalidator interface {
	InvalidateParticipants(ctx context.Context, participantIDs []string)
}

// PlacementService attaches new participants to the binary tree.
type PlacementService struct {
	tree        repositories.TreeStore
	directory   repositories.ParticipantDirectory
	invalidator ReportInvalidator
	txTimeout   time.Duration
	log         logrus.FieldLogger
}

func NewPlacementService(tree repositories.TreeStore, directory repositories.ParticipantDirectory, txTimeout time.Duration, log logrus.FieldLogger) *PlacementService {
	return &PlacementService{
		tree:      tree,
		directory: directory,
		txTimeout: txTimeout,
		log:       log,
	}
}

// SetInvalidator registers the cache to clear after a successful placement.
func (s *PlacementService) SetInvalidator(inv ReportInvalidator) {
	s.invalidator = inv
}

// PlaceParticipant attaches participantID directly under referrerID, on the
// left while the referrer's left side is not larger than its right side.
// An empty referrerID makes the participant the root.
func (s *PlacementService) PlaceParticipant(ctx context.Context, participantID, referrerID string) (models.TreeNode, error) {
	participantID = strings.TrimSpace(participantID)
	referrerID = strings.TrimSpace(referrerID)
	logger := s.log.WithFields(logrus.Fields{
		"participant_id": participantID,
		"referrer_id":    referrerID,
	})

	start := time.Now()
	node, err := s.place(ctx, participantID, referrerID)
	if err != nil {
		metrics.RecordPlacement(string(models.KindOf(err)), time.Since(start))
		if models.IsExpected(err) {
			logger.WithError(err).Info("placement rejected")
		} else {
			logger.WithError(err).Error("placement failed")
		}
		return models.TreeNode{}, err
	}
	metrics.RecordPlacement("ok", time.Since(start))
	logger.WithFields(logrus.Fields{
		"node_id":  node.NodeID,
		"level":    node.Level,
		"position": positionString(node.Position),
	}).Info("participant placed")

	s.invalidateUpline(ctx, node)
	return node, nil
}

func (s *PlacementService) place(ctx context.Context, participantID, referrerID string) (models.TreeNode, error) {
	if participantID == "" {
		return models.TreeNode{}, fmt.Errorf("participant id is required: %w", models.ErrInvalidInput)
	}
	if participantID == referrerID {
		return models.TreeNode{}, fmt.Errorf("participant %s cannot refer themselves: %w", participantID, models.ErrInvalidInput)
	}
	if s.directory != nil {
		exists, err := s.directory.ParticipantExists(ctx, participantID)
		if err != nil {
			return models.TreeNode{}, err
		}
		if !exists {
			return models.TreeNode{}, fmt.Errorf("participant %s: %w", participantID, models.ErrNotFound)
		}
	}

	var node models.TreeNode
	err := runDetached(ctx, s.txTimeout, func(ctx context.Context) error {
		return s.tree.WithTx(ctx, func(ctx context.Context, tx repositories.TreeStore) error {
			var err error
			if referrerID == "" {
				node, err = tx.InsertNode(ctx, models.NewNodeInput{ParticipantID: participantID, Level: 1})
				return err
			}

			parent, err := tx.LockNode(ctx, referrerID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return fmt.Errorf("referrer %s has no node: %w", referrerID, models.ErrParentNotFound)
				}
				return err
			}
			position := parent.NextPosition()
			node, err = tx.InsertNode(ctx, models.NewNodeInput{
				ParticipantID:         participantID,
				ParentNodeID:          &parent.NodeID,
				ReferrerParticipantID: referrerID,
				Level:                 parent.Level + 1,
				Position:              &position,
			})
			if err != nil {
				return err
			}
			return tx.IncrementChildCount(ctx, parent.NodeID, position)
		})
	})
	if err != nil {
		return models.TreeNode{}, err
	}
	return node, nil
}

// RegisterWithReferralCode places a participant under the owner of code. An
// empty code places the participant as the root.
func (s *PlacementService) RegisterWithReferralCode(ctx context.Context, participantID, code string) (models.TreeNode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return s.PlaceParticipant(ctx, participantID, "")
	}
	referrerID, err := s.ResolveReferrer(ctx, code)
	if err != nil {
		s.log.WithError(err).WithField("participant_id", participantID).Info("referral code rejected")
		return models.TreeNode{}, err
	}
	return s.PlaceParticipant(ctx, participantID, referrerID)
}

// ResolveReferrer returns the active participant owning code.
func (s *PlacementService) ResolveReferrer(ctx context.Context, code string) (string, error) {
	if s.directory == nil {
		return "", fmt.Errorf("no participant directory configured: %w", models.ErrInvalidInput)
	}
	referrerID, err := s.directory.ResolveByReferralCode(ctx, code)
	if err != nil {
		return "", err
	}
	active, err := s.directory.IsActive(ctx, referrerID)
	if err != nil {
		return "", err
	}
	if !active {
		return "", fmt.Errorf("referrer %s: %w", referrerID, models.ErrReferrerInactive)
	}
	return referrerID, nil
}

func (s *PlacementService) invalidateUpline(ctx context.Context, node models.TreeNode) {
	if s.invalidator == nil || node.IsRoot() {
		return
	}
	ancestors, err := s.tree.GetAncestors(ctx, node.ParticipantID)
	if err != nil {
		s.log.WithError(err).WithField("participant_id", node.ParticipantID).Warn("could not load upline for cache invalidation")
		return
	}
	if len(ancestors) > dashboardDepth {
		ancestors = ancestors[:dashboardDepth]
	}
	ids := make([]string, 0, len(ancestors))
	for _, a := range ancestors {
		ids = append(ids, a.ParticipantID)
	}
	s.invalidator.InvalidateParticipants(ctx, ids)
}

func positionString(p *models.Position) string {
	if p == nil {
		return ""
	}
	return string(*p)
}
