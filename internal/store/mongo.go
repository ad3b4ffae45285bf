package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/socialgate/internal/apperr"
	"github.com/ayush/socialgate/internal/models"
)

// MongoStore handles post documents in MongoDB.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("posts")}
}

// EnsureIndexes creates the feed ordering index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo index: %w", wrap(err))
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, post *models.Post) (string, error) {
	post.CreatedAt = time.Now().UTC()
	res, err := s.col.InsertOne(ctx, post)
	if err != nil {
		return "", fmt.Errorf("mongo insert: %w", wrap(err))
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("mongo insert: unexpected id type %T", res.InsertedID)
	}
	post.ID = oid
	return oid.Hex(), nil
}

// ListRecent returns up to limit posts, newest first.
func (s *MongoStore) ListRecent(ctx context.Context, limit int64) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := s.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", wrap(err))
	}
	defer cur.Close(ctx)

	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", wrap(err))
	}
	return posts, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (*models.Post, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound("Post not found").Wrap(err)
	}
	var post models.Post
	if err := s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&post); err != nil {
		return nil, fmt.Errorf("mongo find one: %w", wrap(err))
	}
	return &post, nil
}
