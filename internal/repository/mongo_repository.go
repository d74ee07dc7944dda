package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"momo-payments/internal/domain"
	"momo-payments/internal/errors"
)

const transactionsCollection = "transactions"

type mongoTransactionRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// transactionDocument is the BSON shape of a transaction. The UUID is kept in
// its string form as _id so documents stay readable in the shell.
type transactionDocument struct {
	ID                    string               `bson:"_id"`
	Reference             string               `bson:"reference"`
	Amount                primitive.Decimal128 `bson:"amount"`
	CustomerPhone         string               `bson:"customer_phone"`
	Operator              string               `bson:"operator"`
	MerchantID            string               `bson:"merchant_id"`
	Metadata              bson.M               `bson:"metadata"`
	Status                string               `bson:"status"`
	ProviderTransactionID *string              `bson:"provider_transaction_id"`
	CreatedAt             time.Time            `bson:"created_at"`
	UpdatedAt             time.Time            `bson:"updated_at"`
}

func NewMongoTransactionRepository(db *mongo.Database, logger *slog.Logger) domain.TransactionRepository {
	return &mongoTransactionRepository{
		collection: db.Collection(transactionsCollection),
		logger:     logger,
	}
}

// EnsureMongoIndexes creates the unique reference index and the merchant
// history index.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "reference", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "merchant_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection(transactionsCollection).Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *mongoTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	amount, err := primitive.ParseDecimal128(tx.Amount.String())
	if err != nil {
		return errors.NewAppError(errors.InvalidInput, "amount is not representable").WithDetails(err.Error())
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	metadata := bson.M{}
	for k, v := range tx.Metadata {
		metadata[k] = v
	}

	doc := transactionDocument{
		ID:            tx.ID.String(),
		Reference:     tx.Reference,
		Amount:        amount,
		CustomerPhone: tx.CustomerPhone,
		Operator:      tx.Operator,
		MerchantID:    tx.MerchantID,
		Metadata:      metadata,
		Status:        string(tx.Status),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Warn("Duplicate transaction reference", "reference", tx.Reference)
			return errors.ErrDuplicateReference
		}
		r.logger.Error("Failed to create transaction", "reference", tx.Reference, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create transaction").WithDetails(err.Error())
	}

	tx.CreatedAt = now
	tx.UpdatedAt = now
	r.logger.Info("Transaction created successfully", "transaction_id", tx.ID, "reference", tx.Reference)
	return nil
}

func (r *mongoTransactionRepository) UpdateByID(ctx context.Context, id uuid.UUID, update domain.TransactionUpdate) error {
	filter := bson.M{"_id": id.String(), "status": string(domain.StatusPending)}
	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}

	if update.Status != nil {
		if !domain.StatusPending.CanTransitionTo(*update.Status) {
			return errors.ErrTransactionNotPending.WithDetails("invalid target status " + string(*update.Status))
		}
		set["status"] = string(*update.Status)
	}
	if update.ProviderTransactionID != nil {
		set["provider_transaction_id"] = *update.ProviderTransactionID
		filter["provider_transaction_id"] = nil
	}
	// Dotted paths merge into the stored map instead of replacing it.
	for k, v := range update.Metadata {
		set["metadata."+k] = v
	}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		r.logger.Error("Failed to update transaction", "transaction_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update transaction").WithDetails(err.Error())
	}

	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id.String()})
		if err != nil {
			return errors.NewAppError(errors.InternalError, "failed to check transaction").WithDetails(err.Error())
		}
		if count == 0 {
			r.logger.Warn("No transaction found to update", "transaction_id", id)
			return errors.ErrTransactionNotFound
		}
		r.logger.Warn("Refusing update of settled transaction", "transaction_id", id)
		return errors.ErrTransactionNotPending
	}

	r.logger.Info("Transaction updated", "transaction_id", id)
	return nil
}

func (r *mongoTransactionRepository) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var doc transactionDocument
	if err := r.collection.FindOne(ctx, bson.M{"reference": reference}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction", "reference", reference, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get transaction").WithDetails(err.Error())
	}
	return doc.toDomain()
}

func (r *mongoTransactionRepository) FindByMerchant(ctx context.Context, merchantID string, limit int) ([]*domain.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.collection.Find(ctx, bson.M{"merchant_id": merchantID}, opts)
	if err != nil {
		r.logger.Error("Failed to query merchant transactions", "merchant_id", merchantID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to query transactions").WithDetails(err.Error())
	}
	defer cur.Close(ctx)

	var docs []transactionDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to decode transactions").WithDetails(err.Error())
	}

	transactions := make([]*domain.Transaction, 0, len(docs))
	for i := range docs {
		tx, err := docs[i].toDomain()
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

func (r *mongoTransactionRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

func (d *transactionDocument) toDomain() (*domain.Transaction, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse transaction id").WithDetails(err.Error())
	}
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to parse amount").WithDetails(err.Error())
	}

	metadata := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		metadata[k] = plainValue(v)
	}

	return &domain.Transaction{
		ID:                    id,
		Reference:             d.Reference,
		Amount:                amount,
		CustomerPhone:         d.CustomerPhone,
		Operator:              d.Operator,
		MerchantID:            d.MerchantID,
		Metadata:              metadata,
		Status:                domain.Status(d.Status),
		ProviderTransactionID: d.ProviderTransactionID,
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}, nil
}

// plainValue turns decoded BSON containers back into the map and slice types
// callers sent, so nested metadata reads the same from every store.
func plainValue(v any) any {
	switch val := v.(type) {
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = plainValue(e.Value)
		}
		return out
	case primitive.M:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = plainValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = plainValue(e)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
