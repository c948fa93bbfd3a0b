package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/HSouheill/barrim_mlm/models"
)

type nodeReader interface {
	GetNode(ctx context.Context, participantID string) (models.TreeNode, error)
	GetNodeByID(ctx context.Context, nodeID string) (models.TreeNode, error)
}

// childLister returns the direct children of every node in parentIDs.
type childLister interface {
	nodeReader
	childrenOf(ctx context.Context, parentIDs []string) ([]models.TreeNode, error)
}

// walkAncestors follows parent pointers from the participant's node up to
// the root, nearest first. A revisited node or a chain longer than
// MaxTreeDepth is reported as ErrDepthExceeded.
func walkAncestors(ctx context.Context, r nodeReader, participantID string) ([]models.TreeNode, error) {
	node, err := r.GetNode(ctx, participantID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{node.NodeID: true}
	chain := make([]models.TreeNode, 0, 8)
	for node.ParentNodeID != nil {
		if len(chain) >= MaxTreeDepth {
			return nil, fmt.Errorf("ancestors of %s: more than %d levels: %w", participantID, MaxTreeDepth, models.ErrDepthExceeded)
		}
		parentID := *node.ParentNodeID
		if seen[parentID] {
			return nil, fmt.Errorf("ancestors of %s: node %s revisited: %w", participantID, parentID, models.ErrDepthExceeded)
		}
		parent, err := r.GetNodeByID(ctx, parentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("ancestors of %s: dangling parent %s: %w", participantID, parentID, models.ErrParentNotFound)
			}
			return nil, err
		}
		seen[parentID] = true
		chain = append(chain, parent)
		node = parent
	}
	return chain, nil
}

// walkDescendants is a breadth-first traversal driven by a work queue of
// node ids, one childrenOf call per level.
func walkDescendants(ctx context.Context, l childLister, nodeID string, maxDepth int) ([]models.Descendant, error) {
	if _, err := l.GetNodeByID(ctx, nodeID); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		return []models.Descendant{}, nil
	}
	if maxDepth > MaxTreeDepth {
		maxDepth = MaxTreeDepth
	}

	seen := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	out := []models.Descendant{}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		children, err := l.childrenOf(ctx, frontier)
		if err != nil {
			return nil, err
		}
		sortNodes(children)

		next := make([]string, 0, len(children))
		for _, child := range children {
			if seen[child.NodeID] {
				return nil, fmt.Errorf("descendants of %s: node %s revisited: %w", nodeID, child.NodeID, models.ErrDepthExceeded)
			}
			seen[child.NodeID] = true
			out = append(out, models.Descendant{Node: child, RelativeLevel: depth})
			next = append(next, child.NodeID)
		}
		frontier = next
	}
	return out, nil
}

// sortNodes orders siblings by (position, createdAt): left before right,
// then oldest first. Node id breaks ties so the order is total.
func sortNodes(nodes []models.TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		pi, pj := positionRank(nodes[i].Position), positionRank(nodes[j].Position)
		if pi != pj {
			return pi < pj
		}
		if !nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
		}
		return nodes[i].NodeID < nodes[j].NodeID
	})
}

func positionRank(p *models.Position) int {
	if p == nil {
		return 0
	}
	if *p == models.PositionLeft {
		return 1
	}
	return 2
}

// validateNewNode checks the structural invariants of a node about to be
// inserted under parent (nil for the root).
func validateNewNode(in models.NewNodeInput, parent *models.TreeNode) error {
	if in.ParticipantID == "" {
		return fmt.Errorf("participant id is required: %w", models.ErrInvalidInput)
	}
	if parent == nil {
		if in.Level != 1 || in.Position != nil {
			return fmt.Errorf("root must have level 1 and no position: %w", models.ErrInvalidInput)
		}
		return nil
	}
	if in.Position == nil || !in.Position.Valid() {
		return fmt.Errorf("child of %s needs a left or right position: %w", parent.NodeID, models.ErrInvalidInput)
	}
	if in.Level != parent.Level+1 {
		return fmt.Errorf("level %d under parent at level %d: %w", in.Level, parent.Level, models.ErrInvalidInput)
	}
	return nil
}
