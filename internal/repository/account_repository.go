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

const opTimeout = 5 * time.Second

var (
	ErrNotFound         = errors.New("repository: document not found")
	ErrDuplicateAccount = errors.New("repository: trading account already registered")
)

// AccountRepository persists trading accounts. Find methods return (nil, nil)
// when nothing matches; updates return ErrNotFound.
type AccountRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.TradingAccount, error)
	FindByHandle(ctx context.Context, sessionID string) (*models.TradingAccount, error)
	FindActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.TradingAccount, error)
	FindActiveByUserAndNumber(ctx context.Context, userID primitive.ObjectID, accountNumber string) (*models.TradingAccount, error)
	Create(ctx context.Context, account *models.TradingAccount) error
	UpdateSession(ctx context.Context, id primitive.ObjectID, sessionID string, status models.ConnectionStatus) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.ConnectionStatus) error
	UpdateSummary(ctx context.Context, id primitive.ObjectID, summary models.AccountSummary, syncedAt time.Time) error
	Deactivate(ctx context.Context, id primitive.ObjectID) error
	EnsureIndexes(ctx context.Context) error
}

type MongoAccountRepository struct {
	collection *mongo.Collection
}

func NewAccountRepository(client *mongo.Client, dbName, collectionName string) AccountRepository {
	collection := client.Database(dbName).Collection(collectionName)
	return &MongoAccountRepository{collection: collection}
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (*models.TradingAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var account models.TradingAccount
	err := r.collection.FindOne(ctx, filter).Decode(&account)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *MongoAccountRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.TradingAccount, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoAccountRepository) FindByHandle(ctx context.Context, sessionID string) (*models.TradingAccount, error) {
	if sessionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"bridge_session_id": sessionID, "is_active": true})
}

func (r *MongoAccountRepository) FindActiveByUserAndNumber(ctx context.Context, userID primitive.ObjectID, accountNumber string) (*models.TradingAccount, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "account_number": accountNumber, "is_active": true})
}

func (r *MongoAccountRepository) FindActiveByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.TradingAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID, "is_active": true}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	accounts := []*models.TradingAccount{}
	if err := cursor.All(ctx, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *models.TradingAccount) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	account.IsActive = true
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, account)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateAccount
	}
	if err != nil {
		return fmt.Errorf("failed to create trading account: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) updateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	fields["updated_at"] = time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update trading account %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("trading account %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// UpdateSession writes the handle and the status in one document update.
func (r *MongoAccountRepository) UpdateSession(ctx context.Context, id primitive.ObjectID, sessionID string, status models.ConnectionStatus) error {
	return r.updateFields(ctx, id, bson.M{
		"bridge_session_id": sessionID,
		"connection_status": status,
	})
}

func (r *MongoAccountRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.ConnectionStatus) error {
	return r.updateFields(ctx, id, bson.M{"connection_status": status})
}

func (r *MongoAccountRepository) UpdateSummary(ctx context.Context, id primitive.ObjectID, summary models.AccountSummary, syncedAt time.Time) error {
	return r.updateFields(ctx, id, bson.M{
		"account_summary": summary,
		"last_sync_at":    syncedAt.UTC(),
	})
}

func (r *MongoAccountRepository) Deactivate(ctx context.Context, id primitive.ObjectID) error {
	return r.updateFields(ctx, id, bson.M{"is_active": false})
}

// EnsureIndexes makes (user_id, account_number) unique among active accounts
// so a soft-deleted account can be registered again.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "account_number", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_user_account").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{
			Keys:    bson.D{{Key: "bridge_session_id", Value: 1}},
			Options: options.Index().SetName("bridge_session_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create trading account indexes: %w", err)
	}
	return nil
}
