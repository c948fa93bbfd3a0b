package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/barrim_mlm/models"
)

func TestPlaceParticipant_RootThenRootExists(t *testing.T) {
	f := newFixture(t, "A", "B")

	root := f.place(t, "A", "")
	assert.True(t, root.IsRoot())
	assert.Equal(t, 1, root.Level)

	_, err := f.placement.PlaceParticipant(context.Background(), "B", "")
	assert.ErrorIs(t, err, models.ErrRootExists)
}

func TestPlaceParticipant_SpilloverStaysUnderReferrer(t *testing.T) {
	ids := []string{"A", "C1", "C2", "C3", "C4", "C5"}
	f := newFixture(t, ids...)
	a := f.place(t, "A", "")

	want := []models.Position{
		models.PositionLeft, models.PositionRight, models.PositionLeft, models.PositionRight, models.PositionLeft,
	}
	for i, id := range ids[1:] {
		node := f.place(t, id, "A")
		require.NotNil(t, node.ParentNodeID)
		assert.Equal(t, a.NodeID, *node.ParentNodeID, "%s attaches directly under its referrer", id)
		assert.Equal(t, want[i], *node.Position, id)
		assert.Equal(t, 2, node.Level)
		assert.Equal(t, "A", node.ReferrerParticipantID)
	}

	a, err := f.tree.GetNode(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 3, a.LeftChildCount)
	assert.Equal(t, 2, a.RightChildCount)
}

func TestPlaceParticipant_RootTwoChildrenAndGrandchild(t *testing.T) {
	f := newFixture(t, "R", "A", "B", "C")

	r := f.place(t, "R", "")
	a := f.place(t, "A", "R")
	b := f.place(t, "B", "R")
	c := f.place(t, "C", "A")

	assert.Equal(t, 1, r.Level)
	assert.Nil(t, r.Position)

	assert.Equal(t, r.NodeID, *a.ParentNodeID)
	assert.Equal(t, 2, a.Level)
	assert.Equal(t, models.PositionLeft, *a.Position)

	assert.Equal(t, r.NodeID, *b.ParentNodeID)
	assert.Equal(t, 2, b.Level)
	assert.Equal(t, models.PositionRight, *b.Position)

	assert.Equal(t, a.NodeID, *c.ParentNodeID)
	assert.Equal(t, 3, c.Level)
	assert.Equal(t, models.PositionLeft, *c.Position)

	ctx := context.Background()
	r, err := f.tree.GetNode(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, 1, r.LeftChildCount)
	assert.Equal(t, 1, r.RightChildCount)
	a, err = f.tree.GetNode(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, a.LeftChildCount)
	assert.Equal(t, 0, a.RightChildCount)

	ancestors, err := f.tree.GetAncestors(ctx, "C")
	require.NoError(t, err)
	require.Len(t, ancestors, 2)
	assert.Equal(t, "A", ancestors[0].ParticipantID)
	assert.Equal(t, "R", ancestors[1].ParticipantID)
}

func TestPlaceParticipant_Rejections(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	f.place(t, "A", "")
	f.place(t, "B", "A")
	ctx := context.Background()

	tests := []struct {
		name        string
		participant string
		referrer    string
		want        error
	}{
		{"empty participant", "  ", "A", models.ErrInvalidInput},
		{"self referral", "C", "C", models.ErrInvalidInput},
		{"unknown participant", "ghost", "A", models.ErrNotFound},
		{"referrer not placed", "C", "nobody", models.ErrParentNotFound},
		{"already placed", "B", "A", models.ErrDuplicateNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.placement.PlaceParticipant(ctx, tt.participant, tt.referrer)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, models.IsExpected(err))
		})
	}

	count, err := f.tree.CountNodes(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "rejected placements leave no node behind")
}

func TestPlaceParticipant_ConcurrentUnderOneReferrer(t *testing.T) {
	const n = 50
	ids := []string{"A"}
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("child-%02d", i))
	}
	f := newFixture(t, ids...)
	f.place(t, "A", "")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids[1:] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.placement.PlaceParticipant(context.Background(), id, "A")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	a, err := f.tree.GetNode(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, n, a.LeftChildCount+a.RightChildCount)
	assert.Equal(t, n/2, a.LeftChildCount)
	assert.Equal(t, n/2, a.RightChildCount)

	children, err := f.tree.GetDirectChildren(context.Background(), a.NodeID)
	require.NoError(t, err)
	assert.Len(t, children, n)
}

func TestPlaceParticipant_CanceledCallerPlacesNothing(t *testing.T) {
	f := newFixture(t, "A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.placement.PlaceParticipant(ctx, "A", "")
	assert.ErrorIs(t, err, context.Canceled)

	count, err := f.tree.CountNodes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegisterWithReferralCode(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D")
	f.place(t, "A", "")
	ctx := context.Background()
	_, err := f.directory.AssignReferralCode(ctx, "A", "ALICE234")
	require.NoError(t, err)

	node, err := f.placement.RegisterWithReferralCode(ctx, "B", "  alice234 ")
	require.NoError(t, err)
	assert.Equal(t, "A", node.ReferrerParticipantID)
	assert.Equal(t, 2, node.Level)

	_, err = f.placement.RegisterWithReferralCode(ctx, "C", "NOSUCHCD")
	assert.ErrorIs(t, err, models.ErrNotFound)

	f.register("A", false)
	_, err = f.directory.AssignReferralCode(ctx, "A", "ALICE234")
	require.NoError(t, err)
	_, err = f.placement.RegisterWithReferralCode(ctx, "D", "ALICE234")
	assert.ErrorIs(t, err, models.ErrReferrerInactive)
	assert.Equal(t, models.KindReferrerInactive, models.KindOf(err))
}

func TestPlaceParticipant_InvalidatesUpline(t *testing.T) {
	f := newFixture(t, "A", "B", "C", "D")
	inv := &recordingInvalidator{}
	f.placement.SetInvalidator(inv)

	f.chain(t, "A", "B", "C", "D")

	require.Len(t, inv.ids, 3, "the root placement has no upline to invalidate")
	assert.Equal(t, []string{"C", "B", "A"}, inv.ids[2])
}
