package repository

import (
	"context"

	"restjam/internal/database"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// PostTagRepository manages the post/tag join collection.
type PostTagRepository interface {
	PostIDsForTags(ctx context.Context, tagIDs []bson.ObjectID) ([]bson.ObjectID, error)
	Link(ctx context.Context, postID, tagID bson.ObjectID) error
	Unlink(ctx context.Context, postID, tagID bson.ObjectID) error
	DeleteByPost(ctx context.Context, postID bson.ObjectID) error
}

type postTagRepository struct {
	coll *mongo.Collection
}

func NewPostTagRepository(db *mongo.Database) PostTagRepository {
	return &postTagRepository{coll: db.Collection(database.PostsTagsCollection)}
}

// PostIDsForTags returns the distinct post ids linked to any of tagIDs, in
// first-seen order.
func (r *postTagRepository) PostIDsForTags(ctx context.Context, tagIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "tagId", Value: bson.D{{Key: "$in", Value: tagIDs}}}},
		options.Find().SetProjection(bson.D{{Key: "postId", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		PostID bson.ObjectID `bson:"postId"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	seen := make(map[bson.ObjectID]struct{}, len(rows))
	ids := make([]bson.ObjectID, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.PostID]; ok {
			continue
		}
		seen[row.PostID] = struct{}{}
		ids = append(ids, row.PostID)
	}
	return ids, nil
}

// Link is idempotent.
func (r *postTagRepository) Link(ctx context.Context, postID, tagID bson.ObjectID) error {
	filter := bson.D{{Key: "postId", Value: postID}, {Key: "tagId", Value: tagID}}
	_, err := r.coll.UpdateOne(ctx, filter,
		bson.D{{Key: "$setOnInsert", Value: filter}},
		options.UpdateOne().SetUpsert(true))
	return err
}

func (r *postTagRepository) Unlink(ctx context.Context, postID, tagID bson.ObjectID) error {
	_, err := r.coll.DeleteOne(ctx, bson.D{{Key: "postId", Value: postID}, {Key: "tagId", Value: tagID}})
	return err
}

func (r *postTagRepository) DeleteByPost(ctx context.Context, postID bson.ObjectID) error {
	_, err := r.coll.DeleteMany(ctx, bson.D{{Key: "postId", Value: postID}})
	return err
}
