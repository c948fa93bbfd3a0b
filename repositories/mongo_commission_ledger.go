package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/HSouheill/barrim_mlm/models"
)

const (
	CommissionsCollection = "mlm_commissions"

	commissionTxIndex = "uniq_beneficiary_transaction"
)

// commissionDocument is the stored shape of a CommissionEntry. Amounts are
// Decimal128 so sums are computed by the server without float rounding.
type commissionDocument struct {
	ID                  string               `bson:"_id"`
	BeneficiaryID       string               `bson:"beneficiaryId"`
	SourceParticipantID string               `bson:"sourceParticipantId"`
	Amount              primitive.Decimal128 `bson:"amount"`
	Rate                primitive.Decimal128 `bson:"rate"`
	Level               int                  `bson:"level"`
	CommissionType      string               `bson:"commissionType"`
	TransactionRef      *string              `bson:"transactionRef,omitempty"`
	CreatedAt           time.Time            `bson:"createdAt"`
}

func (d commissionDocument) entry() (models.CommissionEntry, error) {
	amount, err := decimalFrom128(d.Amount)
	if err != nil {
		return models.CommissionEntry{}, err
	}
	rate, err := decimalFrom128(d.Rate)
	if err != nil {
		return models.CommissionEntry{}, err
	}
	e := models.CommissionEntry{
		EntryID:             d.ID,
		BeneficiaryID:       d.BeneficiaryID,
		SourceParticipantID: d.SourceParticipantID,
		Amount:              amount,
		Rate:                rate,
		Level:               d.Level,
		CommissionType:      models.CommissionType(d.CommissionType),
		CreatedAt:           d.CreatedAt,
	}
	if d.TransactionRef != nil {
		e.TransactionRef = *d.TransactionRef
	}
	return e, nil
}

func decimalTo128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func decimalFrom128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

// MongoCommissionLedger stores commission entries in mlm_commissions.
type MongoCommissionLedger struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoCommissionLedger(client *mongo.Client, dbName string) *MongoCommissionLedger {
	return &MongoCommissionLedger{
		collection: client.Database(dbName).Collection(CommissionsCollection),
		now:        time.Now,
	}
}

func (l *MongoCommissionLedger) RecordCommission(ctx context.Context, entry models.CommissionEntry) (string, error) {
	if err := validateEntry(entry); err != nil {
		return "", err
	}
	amount, err := decimalTo128(entry.Amount)
	if err != nil {
		return "", fmt.Errorf("amount %s: %w", entry.Amount, models.ErrInvalidInput)
	}
	rate, err := decimalTo128(entry.Rate)
	if err != nil {
		return "", fmt.Errorf("rate %s: %w", entry.Rate, models.ErrInvalidInput)
	}

	doc := commissionDocument{
		ID:                  uuid.New().String(),
		BeneficiaryID:       entry.BeneficiaryID,
		SourceParticipantID: entry.SourceParticipantID,
		Amount:              amount,
		Rate:                rate,
		Level:               entry.Level,
		CommissionType:      string(entry.CommissionType),
		CreatedAt:           entry.CreatedAt,
	}
	if entry.TransactionRef != "" {
		ref := entry.TransactionRef
		doc.TransactionRef = &ref
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = l.now().UTC().Truncate(time.Millisecond)
	}

	if _, err := l.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("beneficiary %s, transaction %s: %w", entry.BeneficiaryID, entry.TransactionRef, models.ErrDuplicateCommission)
		}
		return "", mongoError("insert commission", err)
	}
	return doc.ID, nil
}

func commissionQuery(participantID string, filter models.CommissionFilter) bson.M {
	q := bson.M{"beneficiaryId": participantID}
	if filter.Type != nil {
		q["commissionType"] = string(*filter.Type)
	}
	created := bson.M{}
	if filter.From != nil {
		created["$gte"] = *filter.From
	}
	if filter.To != nil {
		created["$lt"] = *filter.To
	}
	if len(created) > 0 {
		q["createdAt"] = created
	}
	return q
}

func (l *MongoCommissionLedger) SumByParticipant(ctx context.Context, participantID string, filter models.CommissionFilter) (models.CommissionSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: commissionQuery(participantID, filter)}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$level",
			"count":  bson.M{"$sum": 1},
			"amount": bson.M{"$sum": "$amount"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cursor, err := l.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return models.CommissionSummary{}, mongoError("sum commissions", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Level  int                  `bson:"_id"`
		Count  int64                `bson:"count"`
		Amount primitive.Decimal128 `bson:"amount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return models.CommissionSummary{}, mongoError("decode commission sums", err)
	}

	summary := models.CommissionSummary{TotalAmount: decimal.Zero, PerLevel: []models.LevelBreakdown{}}
	for _, r := range rows {
		amount, err := decimalFrom128(r.Amount)
		if err != nil {
			return models.CommissionSummary{}, fmt.Errorf("level %d sum: %w", r.Level, err)
		}
		summary.Count += r.Count
		summary.TotalAmount = summary.TotalAmount.Add(amount)
		summary.PerLevel = append(summary.PerLevel, models.LevelBreakdown{Level: r.Level, Count: r.Count, Amount: amount})
	}
	return summary, nil
}

func (l *MongoCommissionLedger) ListByParticipant(ctx context.Context, participantID string, page, pageSize int, filter models.CommissionFilter) (models.CommissionPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	q := commissionQuery(participantID, filter)

	total, err := l.collection.CountDocuments(ctx, q)
	if err != nil {
		return models.CommissionPage{}, mongoError("count commissions", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	entries, err := l.find(ctx, q, opts)
	if err != nil {
		return models.CommissionPage{}, err
	}
	return models.CommissionPage{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

func (l *MongoCommissionLedger) Leaderboard(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	since, ok := period.Since(l.now())
	if !ok {
		return nil, fmt.Errorf("leaderboard period %q: %w", period, models.ErrInvalidInput)
	}
	match := bson.M{}
	if since != nil {
		match["createdAt"] = bson.M{"$gte": *since}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$beneficiaryId",
			"total": bson.M{"$sum": "$amount"},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: clampLimit(limit)}},
	}
	cursor, err := l.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mongoError("leaderboard", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ParticipantID string               `bson:"_id"`
		Total         primitive.Decimal128 `bson:"total"`
		Count         int64                `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, mongoError("decode leaderboard", err)
	}
	out := make([]models.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		total, err := decimalFrom128(r.Total)
		if err != nil {
			return nil, fmt.Errorf("leaderboard total of %s: %w", r.ParticipantID, err)
		}
		out = append(out, models.LeaderboardEntry{ParticipantID: r.ParticipantID, TotalAmount: total, TransactionCount: r.Count})
	}
	return out, nil
}

func (l *MongoCommissionLedger) GetByTransaction(ctx context.Context, transactionRef string) ([]models.CommissionEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "level", Value: 1}})
	return l.find(ctx, bson.M{"transactionRef": transactionRef}, opts)
}

func (l *MongoCommissionLedger) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]models.CommissionEntry, error) {
	cursor, err := l.collection.Find(ctx, q, opts)
	if err != nil {
		return nil, mongoError("find commissions", err)
	}
	defer cursor.Close(ctx)

	var docs []commissionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongoError("decode commissions", err)
	}
	entries := make([]models.CommissionEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.entry()
		if err != nil {
			return nil, fmt.Errorf("commission %s: %w", d.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
