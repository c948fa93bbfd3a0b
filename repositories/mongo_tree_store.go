package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/HSouheill/barrim_mlm/models"
)

const (
	NodesCollection = "mlm_nodes"

	nodeParticipantIndex = "uniq_participant"
	nodeRootIndex        = "uniq_root"
	nodeParentIndex      = "parent_node"
)

// MongoTreeStore keeps the placement tree in the mlm_nodes collection.
type MongoTreeStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoTreeStore(client *mongo.Client, dbName string) *MongoTreeStore {
	return &MongoTreeStore{
		client:     client,
		collection: client.Database(dbName).Collection(NodesCollection),
	}
}

func (s *MongoTreeStore) GetNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	var node models.TreeNode
	err := s.collection.FindOne(ctx, bson.M{"participantId": participantID}).Decode(&node)
	if err != nil {
		return node, mongoError(fmt.Sprintf("node for participant %s", participantID), err)
	}
	return node, nil
}

func (s *MongoTreeStore) GetNodeByID(ctx context.Context, nodeID string) (models.TreeNode, error) {
	var node models.TreeNode
	err := s.collection.FindOne(ctx, bson.M{"_id": nodeID}).Decode(&node)
	if err != nil {
		return node, mongoError(fmt.Sprintf("node %s", nodeID), err)
	}
	return node, nil
}

// LockNode bumps the node's lockVersion inside the active session so that a
// concurrent transaction touching the same node hits a write conflict, which
// the driver's transaction helper retries.
func (s *MongoTreeStore) LockNode(ctx context.Context, participantID string) (models.TreeNode, error) {
	if mongo.SessionFromContext(ctx) == nil {
		return s.GetNode(ctx, participantID)
	}
	var node models.TreeNode
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"participantId": participantID},
		bson.M{"$inc": bson.M{"lockVersion": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&node)
	if err != nil {
		return node, mongoError(fmt.Sprintf("lock node for participant %s", participantID), err)
	}
	return node, nil
}

func (s *MongoTreeStore) GetAncestors(ctx context.Context, participantID string) ([]models.TreeNode, error) {
	return walkAncestors(ctx, s, participantID)
}

func (s *MongoTreeStore) GetDirectChildren(ctx context.Context, nodeID string) ([]models.TreeNode, error) {
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

func (s *MongoTreeStore) GetDescendants(ctx context.Context, nodeID string, maxDepth int) ([]models.Descendant, error) {
	return walkDescendants(ctx, s, nodeID, maxDepth)
}

func (s *MongoTreeStore) childrenOf(ctx context.Context, parentIDs []string) ([]models.TreeNode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "createdAt", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"parentNodeId": bson.M{"$in": parentIDs}}, opts)
	if err != nil {
		return nil, mongoError("find children", err)
	}
	defer cursor.Close(ctx)

	children := []models.TreeNode{}
	if err := cursor.All(ctx, &children); err != nil {
		return nil, mongoError("decode children", err)
	}
	return children, nil
}

func (s *MongoTreeStore) CountNodes(ctx context.Context) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, mongoError("count nodes", err)
	}
	return n, nil
}

func (s *MongoTreeStore) IncrementChildCount(ctx context.Context, nodeID string, position models.Position) error {
	field, err := childCountField(position)
	if err != nil {
		return err
	}
	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": nodeID}, bson.M{"$inc": bson.M{field: 1}})
	if err != nil {
		return mongoError(fmt.Sprintf("increment %s of %s", field, nodeID), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("increment %s of %s: %w", field, nodeID, models.ErrNotFound)
	}
	return nil
}

func (s *MongoTreeStore) InsertNode(ctx context.Context, in models.NewNodeInput) (models.TreeNode, error) {
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
		NodeID:                primitive.NewObjectID().Hex(),
		ParticipantID:         in.ParticipantID,
		ParentNodeID:          in.ParentNodeID,
		ReferrerParticipantID: in.ReferrerParticipantID,
		Level:                 in.Level,
		Position:              in.Position,
		Root:                  in.ParentNodeID == nil,
		CreatedAt:             time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.collection.InsertOne(ctx, node); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), nodeRootIndex) {
				return models.TreeNode{}, fmt.Errorf("insert root for %s: %w", in.ParticipantID, models.ErrRootExists)
			}
			return models.TreeNode{}, fmt.Errorf("participant %s: %w", in.ParticipantID, models.ErrDuplicateNode)
		}
		return models.TreeNode{}, mongoError(fmt.Sprintf("insert node for %s", in.ParticipantID), err)
	}
	return node, nil
}

// WithTx runs fn inside a multi-document transaction. Transient errors such
// as write conflicts make the driver rerun fn from the start.
func (s *MongoTreeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TreeStore) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return mongoError("start session", err)
	}
	defer session.EndSession(context.Background())

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTreeTx{store: s, sc: sc})
	}, txOpts)
	if err != nil && models.KindOf(err) == models.KindInternal {
		return mongoError("tree transaction", err)
	}
	return err
}

func childCountField(position models.Position) (string, error) {
	switch position {
	case models.PositionLeft:
		return "leftChildCount", nil
	case models.PositionRight:
		return "rightChildCount", nil
	}
	return "", fmt.Errorf("position %q: %w", position, models.ErrInvalidInput)
}

// mongoTreeTx pins every call to the transaction's session context.
type mongoTreeTx struct {
	store *MongoTreeStore
	sc    mongo.SessionContext
}

func (t *mongoTreeTx) GetNode(_ context.Context, participantID string) (models.TreeNode, error) {
	return t.store.GetNode(t.sc, participantID)
}

func (t *mongoTreeTx) GetNodeByID(_ context.Context, nodeID string) (models.TreeNode, error) {
	return t.store.GetNodeByID(t.sc, nodeID)
}

func (t *mongoTreeTx) LockNode(_ context.Context, participantID string) (models.TreeNode, error) {
	return t.store.LockNode(t.sc, participantID)
}

func (t *mongoTreeTx) GetAncestors(_ context.Context, participantID string) ([]models.TreeNode, error) {
	return t.store.GetAncestors(t.sc, participantID)
}

func (t *mongoTreeTx) GetDirectChildren(_ context.Context, nodeID string) ([]models.TreeNode, error) {
	return t.store.GetDirectChildren(t.sc, nodeID)
}

func (t *mongoTreeTx) GetDescendants(_ context.Context, nodeID string, maxDepth int) ([]models.Descendant, error) {
	return t.store.GetDescendants(t.sc, nodeID, maxDepth)
}

func (t *mongoTreeTx) IncrementChildCount(_ context.Context, nodeID string, position models.Position) error {
	return t.store.IncrementChildCount(t.sc, nodeID, position)
}

func (t *mongoTreeTx) InsertNode(_ context.Context, in models.NewNodeInput) (models.TreeNode, error) {
	return t.store.InsertNode(t.sc, in)
}

func (t *mongoTreeTx) CountNodes(_ context.Context) (int64, error) {
	return t.store.CountNodes(t.sc)
}

func (t *mongoTreeTx) WithTx(_ context.Context, fn func(ctx context.Context, tx TreeStore) error) error {
	return fn(t.sc, t)
}

// EnsureMongoIndexes creates the indexes the MLM collections rely on for
// uniqueness and traversal.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	nodeIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participantId", Value: 1}},
			Options: options.Index().SetName(nodeParticipantIndex).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "root", Value: 1}},
			Options: options.Index().SetName(nodeRootIndex).SetUnique(true).
				SetPartialFilterExpression(bson.M{"root": true}),
		},
		{
			Keys:    bson.D{{Key: "parentNodeId", Value: 1}, {Key: "position", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName(nodeParentIndex),
		},
	}
	if _, err := db.Collection(NodesCollection).Indexes().CreateMany(ctx, nodeIndexes); err != nil {
		return fmt.Errorf("create %s indexes: %w", NodesCollection, err)
	}

	commissionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "beneficiaryId", Value: 1}, {Key: "transactionRef", Value: 1}},
			Options: options.Index().SetName(commissionTxIndex).SetUnique(true).
				SetPartialFilterExpression(bson.M{"transactionRef": bson.M{"$type": "string"}}),
		},
		{
			Keys:    bson.D{{Key: "beneficiaryId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("beneficiary_created"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("created"),
		},
	}
	if _, err := db.Collection(CommissionsCollection).Indexes().CreateMany(ctx, commissionIndexes); err != nil {
		return fmt.Errorf("create %s indexes: %w", CommissionsCollection, err)
	}

	referralIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "referralCode", Value: 1}},
		Options: options.Index().SetName("uniq_referral_code").SetUnique(true).
			SetPartialFilterExpression(bson.M{"referralCode": bson.M{"$type": "string"}}),
	}
	if _, err := db.Collection(ParticipantsCollection).Indexes().CreateOne(ctx, referralIndex); err != nil {
		return fmt.Errorf("create %s indexes: %w", ParticipantsCollection, err)
	}
	return nil
}
