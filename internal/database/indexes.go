package database

import (
	"context"
	"fmt"

	"restjam/internal/middleware"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names.
const (
	PostsCollection     = "posts"
	TagsCollection      = "tags"
	PostsTagsCollection = "postsTags"
	UsersCollection     = "users"
	RatingsCollection   = "ratings"
)

// caseInsensitive makes "Sushi" and "sushi" collide in unique indexes.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// Indexes returns the index set every collection must carry.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		PostsCollection: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "author", Value: 1}}},
		},
		TagsCollection: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true).SetCollation(caseInsensitive).SetName("unique_tag_name_ci"),
			},
		},
		PostsTagsCollection: {
			{
				Keys:    bson.D{{Key: "postId", Value: 1}, {Key: "tagId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tagId", Value: 1}}},
		},
		UsersCollection: {
			{
				Keys:    bson.D{{Key: "firebaseUid", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "emailHash", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
		RatingsCollection: {
			{
				Keys:    bson.D{{Key: "type", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}

// EnsureIndexes creates the indexes from Indexes. Creating an existing index is a no-op.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, indexes := range Indexes() {
		if len(indexes) == 0 {
			continue
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", name, err)
		}
	}
	middleware.Logger.Info("mongo indexes ensured")
	return nil
}
