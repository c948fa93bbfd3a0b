package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/HSouheill/barrim_mlm/models"
)

const nodeColumns = `node_id, participant_id, parent_node_id, referrer_participant_id, level, position, left_child_count, right_child_count, created_at`

// PostgresTreeStore keeps the placement tree in the mlm_nodes table.
type PostgresTreeStore struct {
	db   *sql.DB
	q    sqlQuerier
	inTx bool
}

func NewPostgresTreeStore(db *sql.DB) *PostgresTreeStore {
	return &PostgresTreeStore{db: db, q: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (models.TreeNode, error) {
	var (
		node     models.TreeNode
		parentID sql.NullString
		position sql.NullString
	)
	err := row.Scan(&node.NodeID, &node.ParticipantID, &parentID, &node.ReferrerParticipantID,
		&node.Level, &position, &node.LeftChildCount, &node.RightChildCount, &node.CreatedAt)
	if err != nil {
		return models.TreeNode{}, err
	}
	if parentID.Valid {
		id := parentID.String
		node.ParentNodeID = &id
	} else {
		node.Root = true
	}
	if position.Valid {
		node.Position = models.PositionPtr(models.Position(position.String))
	}
	return node, nil
}

func (s *PostgresTreeStore) GetNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM mlm_nodes WHERE participant_id = $1`, participantID)
	node, err := scanNode(row)
	if err != nil {
		return node, sqlError(fmt.Sprintf("node for participant %s", participantID), err)
	}
	return node, nil
}

func (s *PostgresTreeStore) GetNodeByID(ctx context.Context, nodeID string) (models.TreeNode, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM mlm_nodes WHERE node_id = $1`, nodeID)
	node, err := scanNode(row)
	if err != nil {
		return node, sqlError(fmt.Sprintf("node %s", nodeID), err)
	}
	return node, nil
}

// LockNode takes a row lock on the node for the rest of the transaction.
func (s *PostgresTreeStore) LockNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	if !s.inTx {
		return s.GetNode(ctx, participantID)
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM mlm_nodes WHERE participant_id = $1 FOR UPDATE`, participantID)
	node, err := scanNode(row)
	if err != nil {
		return node, sqlError(fmt.Sprintf("lock node for participant %s", participantID), err)
	}
	return node, nil
}

func (s *PostgresTreeStore) GetAncestors(ctx context.Context, participantID string) ([]models.TreeNode, error) {
	return walkAncestors(ctx, s, participantID)
}

func (s *PostgresTreeStore) GetDirectChildren(ctx context.Context, nodeID string) ([]models.TreeNode, error) {
	if _, err := s.GetNodeByID(ctx, nodeID); err != nil {
		return nil, err
	}
	children, err := s.childrenOf(ctx, []string{nodeID})
	if err != nil {
		return nil, err
	}
	sortNodes(children)
	return children, nil
}

func (s *PostgresTreeStore) GetDescendants(ctx context.Context, nodeID string, maxDepth int) ([]models.Descendant, error) {
	return walkDescendants(ctx, s, nodeID, maxDepth)
}

func (s *PostgresTreeStore) childrenOf(ctx context.Context, parentIDs []string) ([]models.TreeNode, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM mlm_nodes WHERE parent_node_id = ANY($1) ORDER BY position, created_at, node_id`,
		pq.Array(parentIDs))
	if err != nil {
		return nil, sqlError("find children", err)
	}
	defer rows.Close()

	children := []models.TreeNode{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, sqlError("scan child", err)
		}
		children = append(children, node)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlError("find children", err)
	}
	return children, nil
}

func (s *PostgresTreeStore) CountNodes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM mlm_nodes`).Scan(&n); err != nil {
		return 0, sqlError("count nodes", err)
	}
	return n, nil
}

func (s *PostgresTreeStore) IncrementChildCount(ctx context.Context, nodeID string, position models.Position) error {
	var query string
	switch position {
	case models.PositionLeft:
		query = `UPDATE mlm_nodes SET left_child_count = left_child_count + 1 WHERE node_id = $1`
	case models.PositionRight:
		query = `UPDATE mlm_nodes SET right_child_count = right_child_count + 1 WHERE node_id = $1`
	default:
		return fmt.Errorf("position %q: %w", position, models.ErrInvalidInput)
	}
	res, err := s.q.ExecContext(ctx, query, nodeID)
	if err != nil {
		return sqlError(fmt.Sprintf("increment %s count of %s", position, nodeID), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("increment %s count of %s: %w", position, nodeID, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresTreeStore) InsertNode(ctx context.Context, in models.NewNodeInput) (models.TreeNode, error) {
	if _, err := s.GetNode(ctx, in.ParticipantID); err == nil {
		return models.TreeNode{}, fmt.Errorf("participant %s: %w", in.ParticipantID, models.ErrDuplicateNode)
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.TreeNode{}, err
	}

	var parent *models.TreeNode
	if in.ParentNodeID != nil {
		p, err := s.GetNodeByID(ctx, *in.ParentNodeID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.TreeNode{}, fmt.Errorf("parent %s: %w", *in.ParentNodeID, models.ErrParentNotFound)
			}
			return models.TreeNode{}, err
		}
		parent = &p
	}
	if err := validateNewNode(in, parent); err != nil {
		return models.TreeNode{}, err
	}

	node := models.TreeNode{
		NodeID:                uuid.NewString(),
		ParticipantID:         in.ParticipantID,
		ParentNodeID:          in.ParentNodeID,
		ReferrerParticipantID: in.ReferrerParticipantID,
		Level:                 in.Level,
		Position:              in.Position,
		Root:                  in.ParentNodeID == nil,
		CreatedAt:             time.Now().UTC().Truncate(time.Microsecond),
	}
	var position sql.NullString
	if node.Position != nil {
		position = sql.NullString{String: string(*node.Position), Valid: true}
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO mlm_nodes (`+nodeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
	`, node.NodeID, node.ParticipantID, node.ParentNodeID, node.ReferrerParticipantID, node.Level, position, node.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "mlm_nodes_single_root" {
				return models.TreeNode{}, fmt.Errorf("insert root for %s: %w", in.ParticipantID, models.ErrRootExists)
			}
			return models.TreeNode{}, fmt.Errorf("participant %s: %w", in.ParticipantID, models.ErrDuplicateNode)
		}
		return models.TreeNode{}, sqlError(fmt.Sprintf("insert node for %s", in.ParticipantID), err)
	}
	return node, nil
}

func (s *PostgresTreeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TreeStore) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqlError("begin transaction", err)
	}
	if err := fn(ctx, &PostgresTreeStore{db: s.db, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return sqlError("commit transaction", err)
	}
	return nil
}
