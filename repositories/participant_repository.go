package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/barrim_mlm/models"
)

const ParticipantsCollection = "users"

// participantDocument is the subset of a users document the engine reads.
type participantDocument struct {
	ID             primitive.ObjectID `bson:"_id"`
	FullName       string             `bson:"fullName"`
	Email          string             `bson:"email"`
	ReferralCode   string             `bson:"referralCode,omitempty"`
	IsActive       bool               `bson:"isActive"`
	LastActivityAt time.Time          `bson:"lastActivityAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
	CreatedAt      time.Time          `bson:"createdAt"`
}

func (d participantDocument) participant() models.Participant {
	lastActivity := d.LastActivityAt
	if lastActivity.IsZero() {
		// Accounts that never logged activity fall back to their last update.
		lastActivity = d.UpdatedAt
	}
	return models.Participant{
		ID:             d.ID.Hex(),
		FullName:       d.FullName,
		Email:          d.Email,
		ReferralCode:   d.ReferralCode,
		IsActive:       d.IsActive,
		LastActivityAt: lastActivity,
		CreatedAt:      d.CreatedAt,
	}
}

// ParticipantRepository reads participants from the user-management users
// collection. Participant ids are the hex form of the user ObjectID.
type ParticipantRepository struct {
	collection *mongo.Collection
}

func NewParticipantRepository(client *mongo.Client, dbName string) *ParticipantRepository {
	return &ParticipantRepository{
		collection: client.Database(dbName).Collection(ParticipantsCollection),
	}
}

func (r *ParticipantRepository) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	objID, err := primitive.ObjectIDFromHex(participantID)
	if err != nil {
		return models.Participant{}, fmt.Errorf("participant %s: %w", participantID, models.ErrNotFound)
	}
	var doc participantDocument
	opts := options.FindOne().SetProjection(participantProjection)
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}, opts).Decode(&doc); err != nil {
		return models.Participant{}, mongoError(fmt.Sprintf("participant %s", participantID), err)
	}
	return doc.participant(), nil
}

// ResolveByReferralCode returns the owner of code whether or not they are
// active; callers decide what an inactive referrer means.
func (r *ParticipantRepository) ResolveByReferralCode(ctx context.Context, code string) (string, error) {
	var doc participantDocument
	opts := options.FindOne().SetProjection(participantProjection)
	err := r.collection.FindOne(ctx, bson.M{"referralCode": code}, opts).Decode(&doc)
	if err != nil {
		return "", mongoError(fmt.Sprintf("referral code %s", code), err)
	}
	return doc.ID.Hex(), nil
}

func (r *ParticipantRepository) ParticipantExists(ctx context.Context, participantID string) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(participantID)
	if err != nil {
		return false, nil
	}
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": objID}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoError("participant exists", err)
	}
	return n > 0, nil
}

func (r *ParticipantRepository) IsActive(ctx context.Context, participantID string) (bool, error) {
	p, err := r.GetParticipant(ctx, participantID)
	if err != nil {
		return false, err
	}
	return p.IsActive, nil
}

func (r *ParticipantRepository) ReferralCodeInUse(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"referralCode": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoError("referral code in use", err)
	}
	return n > 0, nil
}

func (r *ParticipantRepository) AssignReferralCode(ctx context.Context, participantID, code string) (string, error) {
	objID, err := primitive.ObjectIDFromHex(participantID)
	if err != nil {
		return "", fmt.Errorf("participant %s: %w", participantID, models.ErrNotFound)
	}
	// Matches a missing, null or empty referralCode only.
	filter := bson.M{
		"_id":          objID,
		"referralCode": bson.M{"$in": bson.A{nil, ""}},
	}
	// updatedAt is left alone: it stands in for activity on old accounts.
	update := bson.M{"$set": bson.M{"referralCode": code}}
	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("referral code %s already assigned: %w", code, models.ErrInvalidInput)
		}
		return "", mongoError("assign referral code", err)
	}
	if res.MatchedCount == 1 {
		return code, nil
	}
	p, err := r.GetParticipant(ctx, participantID)
	if err != nil {
		return "", err
	}
	return p.ReferralCode, nil
}

var participantProjection = bson.M{
	"fullName":       1,
	"email":          1,
	"referralCode":   1,
	"isActive":       1,
	"lastActivityAt": 1,
	"updatedAt":      1,
	"createdAt":      1,
}
