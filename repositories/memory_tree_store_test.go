package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/barrim_mlm/models"
)

// placeUnder attaches participantID below parentParticipant the way the
// placement engine does: spillover position, insert, increment.
func placeUnder(t *testing.T, s TreeStore, participantID, parentParticipant string) models.TreeNode {
	t.Helper()
	ctx := context.Background()
	var node models.TreeNode
	err := s.WithTx(ctx, func(ctx context.Context, tx TreeStore) error {
		if parentParticipant == "" {
			var err error
			node, err = tx.InsertNode(ctx, models.NewNodeInput{ParticipantID: participantID, Level: 1})
			return err
		}
		parent, err := tx.LockNode(ctx, parentParticipant)
		if err != nil {
			return err
		}
		pos := parent.NextPosition()
		node, err = tx.InsertNode(ctx, models.NewNodeInput{
			ParticipantID:         participantID,
			ParentNodeID:          &parent.NodeID,
			ReferrerParticipantID: parentParticipant,
			Level:                 parent.Level + 1,
			Position:              &pos,
		})
		if err != nil {
			return err
		}
		return tx.IncrementChildCount(ctx, parent.NodeID, pos)
	})
	require.NoError(t, err)
	return node
}

// newSteppingTreeStore returns a store whose clock advances a millisecond per
// node, so sibling order by creation time is deterministic.
func newSteppingTreeStore() *MemoryTreeStore {
	s := NewMemoryTreeStore()
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return s
}

func TestMemoryTreeStore_RootAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()

	root := placeUnder(t, s, "A", "")
	assert.True(t, root.IsRoot())
	assert.Equal(t, 1, root.Level)
	assert.Nil(t, root.Position)

	_, err := s.InsertNode(ctx, models.NewNodeInput{ParticipantID: "Z", Level: 1})
	assert.ErrorIs(t, err, models.ErrRootExists)

	_, err = s.InsertNode(ctx, models.NewNodeInput{
		ParticipantID: "A",
		ParentNodeID:  &root.NodeID,
		Level:         2,
		Position:      models.PositionPtr(models.PositionLeft),
	})
	assert.ErrorIs(t, err, models.ErrDuplicateNode)

	missing := "no-such-node"
	_, err = s.InsertNode(ctx, models.NewNodeInput{
		ParticipantID: "B",
		ParentNodeID:  &missing,
		Level:         2,
		Position:      models.PositionPtr(models.PositionLeft),
	})
	assert.ErrorIs(t, err, models.ErrParentNotFound)

	count, err := s.CountNodes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestMemoryTreeStore_SpilloverAlternates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	placeUnder(t, s, "A", "")

	want := []models.Position{models.PositionLeft, models.PositionRight, models.PositionLeft, models.PositionRight}
	for i, pos := range want {
		node := placeUnder(t, s, fmt.Sprintf("child-%d", i), "A")
		require.NotNil(t, node.Position)
		assert.Equal(t, pos, *node.Position, "child %d", i)
		assert.Equal(t, 2, node.Level)
	}

	a, err := s.GetNode(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, a.LeftChildCount)
	assert.Equal(t, 2, a.RightChildCount)
}

func TestMemoryTreeStore_Ancestors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	placeUnder(t, s, "A", "")
	placeUnder(t, s, "B", "A")
	placeUnder(t, s, "C", "B")
	placeUnder(t, s, "D", "C")

	ancestors, err := s.GetAncestors(ctx, "D")
	require.NoError(t, err)
	require.Len(t, ancestors, 3)
	assert.Equal(t, "C", ancestors[0].ParticipantID)
	assert.Equal(t, "B", ancestors[1].ParticipantID)
	assert.Equal(t, "A", ancestors[2].ParticipantID)
	for i, a := range ancestors {
		// Levels strictly decrease towards the root.
		assert.Equal(t, 3-i, a.Level)
	}

	rootAncestors, err := s.GetAncestors(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, rootAncestors)

	_, err = s.GetAncestors(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryTreeStore_AncestorCycleIsDepthExceeded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	a := placeUnder(t, s, "A", "")
	b := placeUnder(t, s, "B", "A")

	// Corrupt the root so that it points back at its own child.
	s.mu.Lock()
	a.ParentNodeID = &b.NodeID
	s.nodes[a.NodeID] = a
	s.mu.Unlock()

	_, err := s.GetAncestors(ctx, "B")
	assert.ErrorIs(t, err, models.ErrDepthExceeded)
	assert.Equal(t, models.KindDepthExceeded, models.KindOf(err))
}

func TestMemoryTreeStore_AncestorDepthLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	placeUnder(t, s, "p0", "")
	for i := 1; i <= MaxTreeDepth+1; i++ {
		placeUnder(t, s, fmt.Sprintf("p%d", i), fmt.Sprintf("p%d", i-1))
	}

	ancestors, err := s.GetAncestors(ctx, fmt.Sprintf("p%d", MaxTreeDepth))
	require.NoError(t, err)
	assert.Len(t, ancestors, MaxTreeDepth)

	_, err = s.GetAncestors(ctx, fmt.Sprintf("p%d", MaxTreeDepth+1))
	assert.ErrorIs(t, err, models.ErrDepthExceeded)
}

func TestMemoryTreeStore_DanglingParent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	a := placeUnder(t, s, "A", "")
	placeUnder(t, s, "B", "A")

	s.mu.Lock()
	delete(s.nodes, a.NodeID)
	s.mu.Unlock()

	_, err := s.GetAncestors(ctx, "B")
	assert.ErrorIs(t, err, models.ErrParentNotFound)
}

func TestMemoryTreeStore_Descendants(t *testing.T) {
	ctx := context.Background()
	s := newSteppingTreeStore()
	a := placeUnder(t, s, "A", "")
	placeUnder(t, s, "B", "A") // left
	placeUnder(t, s, "C", "A") // right
	placeUnder(t, s, "D", "B")
	placeUnder(t, s, "E", "C")
	placeUnder(t, s, "F", "D")

	all, err := s.GetDescendants(ctx, a.NodeID, 10)
	require.NoError(t, err)
	got := make([]string, 0, len(all))
	for _, d := range all {
		got = append(got, fmt.Sprintf("%s@%d", d.Node.ParticipantID, d.RelativeLevel))
	}
	assert.Equal(t, []string{"B@1", "C@1", "D@2", "E@2", "F@3"}, got)

	two, err := s.GetDescendants(ctx, a.NodeID, 2)
	require.NoError(t, err)
	assert.Len(t, two, 4)

	none, err := s.GetDescendants(ctx, a.NodeID, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.GetDescendants(ctx, "missing", 3)
	assert.ErrorIs(t, err, models.ErrNotFound)

	children, err := s.GetDirectChildren(ctx, a.NodeID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "B", children[0].ParticipantID)
	assert.Equal(t, models.PositionLeft, *children[0].Position)
	assert.Equal(t, "C", children[1].ParticipantID)
}

func TestMemoryTreeStore_FailedTransactionLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	a := placeUnder(t, s, "A", "")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, tx TreeStore) error {
		pos := models.PositionLeft
		if _, err := tx.InsertNode(ctx, models.NewNodeInput{
			ParticipantID: "B",
			ParentNodeID:  &a.NodeID,
			Level:         2,
			Position:      &pos,
		}); err != nil {
			return err
		}
		if err := tx.IncrementChildCount(ctx, a.NodeID, pos); err != nil {
			return err
		}
		// The write is visible inside the transaction.
		b, err := tx.GetNode(ctx, "B")
		require.NoError(t, err)
		assert.Equal(t, 2, b.Level)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetNode(ctx, "B")
	assert.ErrorIs(t, err, models.ErrNotFound)
	root, err := s.GetNode(ctx, "A")
	require.NoError(t, err)
	assert.Zero(t, root.LeftChildCount)
}

func TestMemoryTreeStore_InvalidNodes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTreeStore()
	a := placeUnder(t, s, "A", "")

	_, err := s.InsertNode(ctx, models.NewNodeInput{ParticipantID: "B", ParentNodeID: &a.NodeID, Level: 2})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "missing position")

	_, err = s.InsertNode(ctx, models.NewNodeInput{
		ParticipantID: "B",
		ParentNodeID:  &a.NodeID,
		Level:         5,
		Position:      models.PositionPtr(models.PositionLeft),
	})
	assert.ErrorIs(t, err, models.ErrInvalidInput, "wrong level")

	err = s.IncrementChildCount(ctx, a.NodeID, models.Position("middle"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = s.IncrementChildCount(ctx, "missing", models.PositionLeft)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
