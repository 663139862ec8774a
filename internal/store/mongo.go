package store

import (
	"context"
	"errors"
	"fmt"

	config "example.com/livefeed/internal/init"
	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoStore keeps posts and users as documents, matching the shape the feed
// was first modelled on: users carry their post ids in a "posts" array.
type MongoStore struct {
	client *mongo.Client
	posts  *mongo.Collection
	users  *mongo.Collection
}

// NewMongo connects to MongoDB and ensures the feed index exists.
func NewMongo(ctx context.Context, cfg *config.Config) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetConnectTimeout(cfg.MongoTimeout).
		SetTimeout(cfg.MongoTimeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	s := &MongoStore{
		client: client,
		posts:  db.Collection("posts"),
		users:  db.Collection("users"),
	}

	if _, err := s.posts.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create posts index: %w", err)
	}

	logg.Info("store", "Connected to MongoDB", logger.F("database", cfg.MongoDatabase))
	return s, nil
}

// --- User operations ---

func (s *MongoStore) CreateUser(ctx context.Context, name string) (string, error) {
	u := models.User{ID: uuid.NewString(), Name: name, PostIDs: []string{}}
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		logg.Error("store", "Failed to create user", err)
		return "", err
	}
	logg.Info("store", "User created", logger.F("user_id", u.ID))
	return u.ID, nil
}

func (s *MongoStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query user", err)
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) AddUserPost(ctx context.Context, userID, postID string) error {
	return s.updateUser(ctx, userID, bson.M{"$addToSet": bson.M{"posts": postID}})
}

func (s *MongoStore) RemoveUserPost(ctx context.Context, userID, postID string) error {
	return s.updateUser(ctx, userID, bson.M{"$pull": bson.M{"posts": postID}})
}

func (s *MongoStore) updateUser(ctx context.Context, userID string, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		logg.Error("store", "Failed to update user posts", err, logger.F("user_id", userID))
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Post operations ---

func (s *MongoStore) AddPost(ctx context.Context, post models.Post) error {
	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		logg.Error("store", "Failed to add post", err, logger.F("post_id", post.ID))
		return err
	}
	logg.Info("store", "Post added", logger.F("post_id", post.ID))
	return nil
}

func (s *MongoStore) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var p models.Post
	err := s.posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query post", err, logger.F("post_id", postID))
		return nil, err
	}
	return &p, nil
}

func (s *MongoStore) UpdatePost(ctx context.Context, post models.Post) error {
	res, err := s.posts.UpdateOne(ctx, bson.M{"_id": post.ID}, bson.M{"$set": bson.M{
		"title":     post.Title,
		"content":   post.Content,
		"imageUrl":  post.ImageURL,
		"updatedAt": post.UpdatedAt,
	}})
	if err != nil {
		logg.Error("store", "Failed to update post", err, logger.F("post_id", post.ID))
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeletePost(ctx context.Context, postID string) error {
	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": postID})
	if err != nil {
		logg.Error("store", "Failed to delete post", err, logger.F("post_id", postID))
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	logg.Info("store", "Post deleted", logger.F("post_id", postID))
	return nil
}

func (s *MongoStore) CountPosts(ctx context.Context) (int, error) {
	n, err := s.posts.CountDocuments(ctx, bson.D{})
	if err != nil {
		logg.Error("store", "Failed to count posts", err)
		return 0, err
	}
	return int(n), nil
}

func (s *MongoStore) ListPosts(ctx context.Context, offset, limit int) ([]models.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := s.posts.Find(ctx, bson.D{}, opts)
	if err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	var res []models.Post
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Close disconnects the MongoDB client.
func (s *MongoStore) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Disconnect(context.Background()); err != nil {
		logg.Error("store", "Error disconnecting MongoDB", err)
		return
	}
	logg.Info("store", "MongoDB client closed")
}
