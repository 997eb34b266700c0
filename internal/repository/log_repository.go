package repository

import (
	"context"
	"time"

	"github.com/mehrbod2002/mtdesk/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// LogFilter narrows audit log queries. Zero IDs match everything.
type LogFilter struct {
	UserID    primitive.ObjectID
	AccountID primitive.ObjectID
}

func (f LogFilter) query() bson.M {
	q := bson.M{}
	if !f.UserID.IsZero() {
		q["user_id"] = f.UserID
	}
	if !f.AccountID.IsZero() {
		q["account_id"] = f.AccountID
	}
	return q
}

type LogRepository interface {
	SaveLog(ctx context.Context, log *models.LogEntry) error
	FindLogs(ctx context.Context, filter LogFilter, page, limit int) ([]*models.LogEntry, error)
}

type MongoLogRepository struct {
	collection *mongo.Collection
}

func NewLogRepository(client *mongo.Client, dbName, collectionName string) LogRepository {
	collection := client.Database(dbName).Collection(collectionName)
	return &MongoLogRepository{collection: collection}
}

func (r *MongoLogRepository) SaveLog(ctx context.Context, log *models.LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	log.ID = primitive.NewObjectID()
	log.Timestamp = time.Now().UTC()
	_, err := r.collection.InsertOne(ctx, log)
	return err
}

func (r *MongoLogRepository) FindLogs(ctx context.Context, filter LogFilter, page, limit int) ([]*models.LogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	skip := (page - 1) * limit
	findOptions := options.Find().SetSort(bson.M{"timestamp": -1}).SetSkip(int64(skip)).SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, filter.query(), findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []*models.LogEntry{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
