package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stockledger-api/internal/model"
)

// NotificationArchive stores published notifications for later review.
type NotificationArchive interface {
	InsertNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, f ArchiveFilter) ([]model.Notification, int64, error)
	Close() error
}

// ArchiveFilter narrows archived notification listings.
type ArchiveFilter struct {
	Type  *model.NotificationType
	Event string
	Limit int
	Skip  int
}

// MongoNotificationArchive implements NotificationArchive for MongoDB.
type MongoNotificationArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoNotificationArchive connects to MongoDB and ensures the timestamp index.
func NewMongoNotificationArchive(ctx context.Context, uri, dbName, collectionName string) (*MongoNotificationArchive, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	collection := client.Database(dbName).Collection(collectionName)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	return &MongoNotificationArchive{
		client:     client,
		collection: collection,
	}, nil
}

// InsertNotification stores one notification.
func (r *MongoNotificationArchive) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := r.collection.InsertOne(ctx, n)
	return err
}

// ListNotifications returns archived notifications newest first with the total match count.
func (r *MongoNotificationArchive) ListNotifications(ctx context.Context, f ArchiveFilter) ([]model.Notification, int64, error) {
	filter := bson.M{}
	if f.Type != nil {
		filter["type"] = *f.Type
	}
	if f.Event != "" {
		filter["event"] = f.Event
	}

	findOptions := options.Find()
	findOptions.SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if f.Limit > 0 {
		findOptions.SetLimit(int64(f.Limit))
	}
	findOptions.SetSkip(int64(f.Skip))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var notifications []model.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, 0, err
	}

	// Ensure not nil slice for JSON
	if notifications == nil {
		notifications = []model.Notification{}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return notifications, count, nil
}

// Close closes the MongoDB connection
func (r *MongoNotificationArchive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ NotificationArchive = (*MongoNotificationArchive)(nil)
