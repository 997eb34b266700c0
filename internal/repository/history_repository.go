package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const appendAttempts = 3

var ErrHistoryConflict = errors.New("repository: order history changed concurrently")

// HistoryRepository keeps one order history document per trading account.
type HistoryRepository interface {
	FindByAccount(ctx context.Context, accountID primitive.ObjectID) (*models.OrderHistory, error)
	// ReplaceHistory overwrites the stored orders with a deduplicated copy of orders.
	ReplaceHistory(ctx context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, error)
	// AppendHistory adds orders whose ticket is not stored yet and reports how
	// many were added. Stored orders are left untouched.
	AppendHistory(ctx context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, int, error)
	EnsureIndexes(ctx context.Context) error
}

type MongoHistoryRepository struct {
	collection *mongo.Collection
}

func NewHistoryRepository(client *mongo.Client, dbName, collectionName string) HistoryRepository {
	collection := client.Database(dbName).Collection(collectionName)
	return &MongoHistoryRepository{collection: collection}
}

func (r *MongoHistoryRepository) FindByAccount(ctx context.Context, accountID primitive.ObjectID) (*models.OrderHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var history models.OrderHistory
	err := r.collection.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&history)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *MongoHistoryRepository) ReplaceHistory(ctx context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"orders":     models.DedupOrders(orders),
			"updated_at": now,
		},
		"$inc":         bson.M{"version": 1},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var history models.OrderHistory
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"account_id": accountID}, update, opts).Decode(&history)
	if err != nil {
		return nil, fmt.Errorf("failed to replace order history: %w", err)
	}
	return &history, nil
}

func (r *MongoHistoryRepository) AppendHistory(ctx context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, int, error) {
	for attempt := 0; attempt < appendAttempts; attempt++ {
		existing, err := r.FindByAccount(ctx, accountID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load order history: %w", err)
		}

		if existing == nil {
			history, err := r.insert(ctx, accountID, orders)
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			return history, len(history.Orders), nil
		}

		merged, added := models.MergeOrders(existing.Orders, orders)
		if added == 0 {
			return existing, 0, nil
		}

		ok, err := r.swapOrders(ctx, existing, merged)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			return existing, added, nil
		}
	}
	return nil, 0, ErrHistoryConflict
}

func (r *MongoHistoryRepository) insert(ctx context.Context, accountID primitive.ObjectID, orders []models.Order) (*models.OrderHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	history := &models.OrderHistory{
		ID:        primitive.NewObjectID(),
		AccountID: accountID,
		Orders:    models.DedupOrders(orders),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.collection.InsertOne(ctx, history); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create order history: %w", err)
	}
	return history, nil
}

// swapOrders writes merged only if nobody bumped the version since existing
// was read. On success existing is updated in place.
func (r *MongoHistoryRepository) swapOrders(ctx context.Context, existing *models.OrderHistory, merged []models.Order) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": existing.ID, "version": existing.Version},
		bson.M{
			"$set": bson.M{"orders": merged, "updated_at": now},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to append order history: %w", err)
	}
	if result.MatchedCount == 0 {
		return false, nil
	}
	existing.Orders = merged
	existing.Version++
	existing.UpdatedAt = now
	return true, nil
}

func (r *MongoHistoryRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "account_id", Value: 1}},
		Options: options.Index().SetName("uniq_account").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create order history indexes: %w", err)
	}
	return nil
}
