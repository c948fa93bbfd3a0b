package repositories

import (
	"context"

	"github.com/HSouheill/barrim_mlm/models"
)

// MaxTreeDepth bounds every traversal. A walk that goes further is treated
// as corrupted data (a cycle) rather than a deep tree.
const MaxTreeDepth = 32

// TreeStore persists the binary placement tree.
type TreeStore interface {
	GetNode(ctx context.Context, participantID string) (models.TreeNode, error)
	GetNodeByID(ctx context.Context, nodeID string) (models.TreeNode, error)
	GetAncestors(ctx context.Context, participantID string) ([]models.TreeNode, error)
	GetDirectChildren(ctx context.Context, nodeID string) ([]models.TreeNode, error)
	GetDescendants(ctx context.Context, nodeID string, maxDepth int) ([]models.Descendant, error)
	IncrementChildCount(ctx context.Context, nodeID string, position models.Position) error
	InsertNode(ctx context.Context, in models.NewNodeInput) (models.TreeNode, error)
	CountNodes(ctx context.Context) (int64, error)

	// LockNode reads a participant's node and holds it against concurrent
	// writers until the surrounding transaction ends. Outside a transaction
	// it behaves like GetNode.
	LockNode(ctx context.Context, participantID string) (models.TreeNode, error)

	// WithTx runs fn against a transactional view of the store. Writes made
	// through tx become visible together when fn returns nil and are
	// discarded otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TreeStore) error) error
}

// CommissionLedger is the append-only record of commission events.
type CommissionLedger interface {
	RecordCommission(ctx context.Context, entry models.CommissionEntry) (string, error)
	SumByParticipant(ctx context.Context, participantID string, filter models.CommissionFilter) (models.CommissionSummary, error)
	ListByParticipant(ctx context.Context, participantID string, page, pageSize int, filter models.CommissionFilter) (models.CommissionPage, error)
	Leaderboard(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error)
	GetByTransaction(ctx context.Context, transactionRef string) ([]models.CommissionEntry, error)
}

// ParticipantDirectory is the user-management collaborator.
type ParticipantDirectory interface {
	GetParticipant(ctx context.Context, participantID string) (models.Participant, error)
	ResolveByReferralCode(ctx context.Context, code string) (string, error)
	ParticipantExists(ctx context.Context, participantID string) (bool, error)
	IsActive(ctx context.Context, participantID string) (bool, error)
	ReferralCodeInUse(ctx context.Context, code string) (bool, error)
	// AssignReferralCode gives the participant code unless they already hold
	// one, and returns the code they hold afterwards.
	AssignReferralCode(ctx context.Context, participantID, code string) (string, error)
}

var (
	_ TreeStore = (*MemoryTreeStore)(nil)
	_ TreeStore = (*MongoTreeStore)(nil)
	_ TreeStore = (*PostgresTreeStore)(nil)

	_ CommissionLedger = (*MemoryCommissionLedger)(nil)
	_ CommissionLedger = (*MongoCommissionLedger)(nil)
	_ CommissionLedger = (*PostgresCommissionLedger)(nil)

	_ ParticipantDirectory = (*MemoryParticipantDirectory)(nil)
	_ ParticipantDirectory = (*ParticipantRepository)(nil)
	_ ParticipantDirectory = (*PostgresParticipantDirectory)(nil)
)
