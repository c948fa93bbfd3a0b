package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HSouheill/barrim_mlm/models"
)

// MemoryTreeStore keeps the placement tree in process memory. Transactions
// are serialized and buffer their writes until commit, so readers never see
// a half-applied placement.
type MemoryTreeStore struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	nodes         map[string]models.TreeNode
	byParticipant map[string]string
	children      map[string][]string
	rootID        string

	now func() time.Time
}

func NewMemoryTreeStore() *MemoryTreeStore {
	return &MemoryTreeStore{
		nodes:         make(map[string]models.TreeNode),
		byParticipant: make(map[string]string),
		children:      make(map[string][]string),
		now:           time.Now,
	}
}

func (s *MemoryTreeStore) GetNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byParticipant[participantID]
	if !ok {
		return models.TreeNode{}, fmt.Errorf("node for participant %s: %w", participantID, models.ErrNotFound)
	}
	return s.nodes[id], nil
}

func (s *MemoryTreeStore) GetNodeByID(ctx context.Context, nodeID string) (models.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return models.TreeNode{}, fmt.Errorf("node %s: %w", nodeID, models.ErrNotFound)
	}
	return n, nil
}

func (s *MemoryTreeStore) LockNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	return s.GetNode(ctx, participantID)
}

func (s *MemoryTreeStore) GetAncestors(ctx context.Context, participantID string) ([]models.TreeNode, error) {
	return walkAncestors(ctx, s, participantID)
}

func (s *MemoryTreeStore) GetDirectChildren(ctx context.Context, nodeID string) ([]models.TreeNode, error) {
	if _, err := s.GetNodeByID(ctx, nodeID); err != nil {
		return nil, err
	}
	children, _ := s.childrenOf(ctx, []string{nodeID})
	sortNodes(children)
	return children, nil
}

func (s *MemoryTreeStore) GetDescendants(ctx context.Context, nodeID string, maxDepth int) ([]models.Descendant, error) {
	return walkDescendants(ctx, s, nodeID, maxDepth)
}

func (s *MemoryTreeStore) childrenOf(ctx context.Context, parentIDs []string) ([]models.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TreeNode
	for _, pid := range parentIDs {
		for _, cid := range s.children[pid] {
			out = append(out, s.nodes[cid])
		}
	}
	return out, nil
}

func (s *MemoryTreeStore) CountNodes(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.nodes)), nil
}

func (s *MemoryTreeStore) IncrementChildCount(ctx context.Context, nodeID string, position models.Position) error {
	return s.WithTx(ctx, func(ctx context.Context, tx TreeStore) error {
		return tx.IncrementChildCount(ctx, nodeID, position)
	})
}

func (s *MemoryTreeStore) InsertNode(ctx context.Context, in models.NewNodeInput) (models.TreeNode, error) {
	var node models.TreeNode
	err := s.WithTx(ctx, func(ctx context.Context, tx TreeStore) error {
		var err error
		node, err = tx.InsertNode(ctx, in)
		return err
	})
	return node, err
}

func (s *MemoryTreeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TreeStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTreeTx{
		store:    s,
		inserted: make(map[string]models.TreeNode),
		updated:  make(map[string]models.TreeNode),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryTreeStore) commit(tx *memoryTreeTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range tx.updated {
		s.nodes[id] = n
	}
	for _, id := range tx.order {
		n := tx.inserted[id]
		s.nodes[id] = n
		s.byParticipant[n.ParticipantID] = id
		if n.ParentNodeID != nil {
			s.children[*n.ParentNodeID] = append(s.children[*n.ParentNodeID], id)
		} else {
			s.rootID = id
		}
	}
}

// memoryTreeTx overlays buffered writes on the committed store. The store's
// txMu is held for its whole life, so every read it makes is stable.
type memoryTreeTx struct {
	store    *MemoryTreeStore
	inserted map[string]models.TreeNode
	order    []string
	updated  map[string]models.TreeNode
}

func (t *memoryTreeTx) GetNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	for _, id := range t.order {
		if n := t.inserted[id]; n.ParticipantID == participantID {
			return n, nil
		}
	}
	n, err := t.store.GetNode(ctx, participantID)
	if err != nil {
		return n, err
	}
	if u, ok := t.updated[n.NodeID]; ok {
		return u, nil
	}
	return n, nil
}

func (t *memoryTreeTx) GetNodeByID(ctx context.Context, nodeID string) (models.TreeNode, error) {
	if n, ok := t.inserted[nodeID]; ok {
		return n, nil
	}
	if u, ok := t.updated[nodeID]; ok {
		return u, nil
	}
	return t.store.GetNodeByID(ctx, nodeID)
}

func (t *memoryTreeTx) LockNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	return t.GetNode(ctx, participantID)
}

func (t *memoryTreeTx) GetAncestors(ctx context.Context, participantID string) ([]models.TreeNode, error) {
	return walkAncestors(ctx, t, participantID)
}

func (t *memoryTreeTx) GetDirectChildren(ctx context.Context, nodeID string) ([]models.TreeNode, error) {
	if _, err := t.GetNodeByID(ctx, nodeID); err != nil {
		return nil, err
	}
	children, _ := t.childrenOf(ctx, []string{nodeID})
	sortNodes(children)
	return children, nil
}

func (t *memoryTreeTx) GetDescendants(ctx context.Context, nodeID string, maxDepth int) ([]models.Descendant, error) {
	return walkDescendants(ctx, t, nodeID, maxDepth)
}

func (t *memoryTreeTx) childrenOf(ctx context.Context, parentIDs []string) ([]models.TreeNode, error) {
	base, _ := t.store.childrenOf(ctx, parentIDs)
	for i, n := range base {
		if u, ok := t.updated[n.NodeID]; ok {
			base[i] = u
		}
	}
	wanted := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		wanted[id] = true
	}
	for _, id := range t.order {
		n := t.inserted[id]
		if n.ParentNodeID != nil && wanted[*n.ParentNodeID] {
			base = append(base, n)
		}
	}
	return base, nil
}

func (t *memoryTreeTx) CountNodes(ctx context.Context) (int64, error) {
	n, _ := t.store.CountNodes(ctx)
	return n + int64(len(t.order)), nil
}

func (t *memoryTreeTx) IncrementChildCount(ctx context.Context, nodeID string, position models.Position) error {
	if !position.Valid() {
		return fmt.Errorf("position %q: %w", position, models.ErrInvalidInput)
	}
	n, err := t.GetNodeByID(ctx, nodeID)
	if err != nil {
		return err
	}
	if position == models.PositionLeft {
		n.LeftChildCount++
	} else {
		n.RightChildCount++
	}
	if _, ok := t.inserted[nodeID]; ok {
		t.inserted[nodeID] = n
	} else {
		t.updated[nodeID] = n
	}
	return nil
}

func (t *memoryTreeTx) InsertNode(ctx context.Context, in models.NewNodeInput) (models.TreeNode, error) {
	if _, err := t.GetNode(ctx, in.ParticipantID); err == nil {
		return models.TreeNode{}, fmt.Errorf("participant %s: %w", in.ParticipantID, models.ErrDuplicateNode)
	}

	var parent *models.TreeNode
	if in.ParentNodeID == nil {
		if t.hasRoot() {
			return models.TreeNode{}, fmt.Errorf("insert root for %s: %w", in.ParticipantID, models.ErrRootExists)
		}
	} else {
		p, err := t.GetNodeByID(ctx, *in.ParentNodeID)
		if err != nil {
			return models.TreeNode{}, fmt.Errorf("parent %s: %w", *in.ParentNodeID, models.ErrParentNotFound)
		}
		parent = &p
	}
	if err := validateNewNode(in, parent); err != nil {
		return models.TreeNode{}, err
	}

	node := models.TreeNode{
		NodeID:                uuid.New().String(),
		ParticipantID:         in.ParticipantID,
		ParentNodeID:          in.ParentNodeID,
		ReferrerParticipantID: in.ReferrerParticipantID,
		Level:                 in.Level,
		Position:              in.Position,
		Root:                  in.ParentNodeID == nil,
		CreatedAt:             t.store.now().UTC(),
	}
	t.inserted[node.NodeID] = node
	t.order = append(t.order, node.NodeID)
	return node, nil
}

func (t *memoryTreeTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx TreeStore) error) error {
	return fn(ctx, t)
}

func (t *memoryTreeTx) hasRoot() bool {
	for _, id := range t.order {
		if t.inserted[id].ParentNodeID == nil {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.rootID != ""
}
