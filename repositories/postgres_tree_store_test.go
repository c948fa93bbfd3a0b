package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/barrim_mlm/models"
)

var nodeRowColumns = []string{
	"node_id", "participant_id", "parent_node_id", "referrer_participant_id",
	"level", "position", "left_child_count", "right_child_count", "created_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestPostgresTreeStore_GetNodeNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresTreeStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM mlm_nodes WHERE participant_id = $1`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns))

	_, err := store.GetNode(context.Background(), "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTreeStore_PlacementTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresTreeStore(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	parentRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(nodeRowColumns).
			AddRow("node-a", "A", nil, "", 1, nil, 1, 0, created)
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE participant_id = $1 FOR UPDATE`)).
		WithArgs("A").
		WillReturnRows(parentRow())
	mock.ExpectQuery(regexp.QuoteMeta(`FROM mlm_nodes WHERE participant_id = $1`)).
		WithArgs("B").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM mlm_nodes WHERE node_id = $1`)).
		WithArgs("node-a").
		WillReturnRows(parentRow())
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mlm_nodes`)).
		WithArgs(sqlmock.AnyArg(), "B", "node-a", "A", 2, "right", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET right_child_count = right_child_count + 1 WHERE node_id = $1`)).
		WithArgs("node-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var node models.TreeNode
	err := store.WithTx(context.Background(), func(ctx context.Context, tx TreeStore) error {
		parent, err := tx.LockNode(ctx, "A")
		if err != nil {
			return err
		}
		// Left side already holds one child, so spillover goes right.
		pos := parent.NextPosition()
		node, err = tx.InsertNode(ctx, models.NewNodeInput{
			ParticipantID:         "B",
			ParentNodeID:          &parent.NodeID,
			ReferrerParticipantID: "A",
			Level:                 parent.Level + 1,
			Position:              &pos,
		})
		if err != nil {
			return err
		}
		return tx.IncrementChildCount(ctx, parent.NodeID, pos)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, node.Level)
	require.NotNil(t, node.Position)
	assert.Equal(t, models.PositionRight, *node.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTreeStore_UniqueViolations(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate participant", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPostgresTreeStore(db)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE participant_id = $1`)).
			WithArgs("A").
			WillReturnRows(sqlmock.NewRows(nodeRowColumns))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mlm_nodes`)).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "mlm_nodes_participant_key"})

		_, err := store.InsertNode(ctx, models.NewNodeInput{ParticipantID: "A", Level: 1})
		assert.ErrorIs(t, err, models.ErrDuplicateNode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second root", func(t *testing.T) {
		db, mock := newMockDB(t)
		store := NewPostgresTreeStore(db)
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE participant_id = $1`)).
			WithArgs("Z").
			WillReturnRows(sqlmock.NewRows(nodeRowColumns))
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mlm_nodes`)).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "mlm_nodes_single_root"})

		_, err := store.InsertNode(ctx, models.NewNodeInput{ParticipantID: "Z", Level: 1})
		assert.ErrorIs(t, err, models.ErrRootExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTreeStore_ConnectionFailureIsUnavailable(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresTreeStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM mlm_nodes`)).
		WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	_, err := store.CountNodes(context.Background())
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.Equal(t, models.KindStorageUnavailable, models.KindOf(err))
}

func TestPostgresTreeStore_FailedTransactionRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresTreeStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns))
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(ctx context.Context, tx TreeStore) error {
		_, err := tx.LockNode(ctx, "missing")
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTreeStore_Descendants(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPostgresTreeStore(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE node_id = $1`)).
		WithArgs("node-a").
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("node-a", "A", nil, "", 1, nil, 1, 1, created))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE parent_node_id = ANY($1)`)).
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("node-c", "C", "node-a", "A", 2, "right", 0, 0, created).
			AddRow("node-b", "B", "node-a", "A", 2, "left", 1, 0, created.Add(time.Second)))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE parent_node_id = ANY($1)`)).
		WillReturnRows(sqlmock.NewRows(nodeRowColumns).
			AddRow("node-d", "D", "node-b", "B", 3, "left", 0, 0, created.Add(2*time.Second)))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE parent_node_id = ANY($1)`)).
		WillReturnRows(sqlmock.NewRows(nodeRowColumns))

	descendants, err := store.GetDescendants(context.Background(), "node-a", 5)
	require.NoError(t, err)
	require.Len(t, descendants, 3)
	assert.Equal(t, "B", descendants[0].Node.ParticipantID)
	assert.Equal(t, "C", descendants[1].Node.ParticipantID)
	assert.Equal(t, "D", descendants[2].Node.ParticipantID)
	assert.Equal(t, 2, descendants[2].RelativeLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
