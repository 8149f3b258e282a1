package repository

import (
	"context"
	"fmt"
	"time"

	"restjam/internal/aggregate"
	"restjam/internal/database"
	"restjam/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Membership names a user-id array on a post together with its counter.
type Membership struct {
	Field   string
	Counter string
}

var (
	Likes     = Membership{Field: "likes", Counter: "likeCount"}
	Attendees = Membership{Field: "attendees", Counter: "attendeeCount"}
	Shares    = Membership{Field: "sharedBy", Counter: "shareCount"}
)

// PostUpdate carries the editable fields of a post; nil fields are left untouched.
type PostUpdate struct {
	Title     *string
	PlaceName *string
	Content   *string
	Location  *string
	ImageURL  *string
	Rating    *bson.ObjectID
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id bson.ObjectID) (*models.Post, error)
	Aggregate(ctx context.Context, p aggregate.Pipeline) ([]*models.PostView, error)
	Update(ctx context.Context, id bson.ObjectID, in PostUpdate) error
	Delete(ctx context.Context, id bson.ObjectID) error
	Toggle(ctx context.Context, id, userID bson.ObjectID, m Membership) (bool, error)
	DeleteOrphaned(ctx context.Context) ([]bson.ObjectID, error)
}

// postRepository implements PostRepository
type postRepository struct {
	coll *mongo.Collection
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *mongo.Database) PostRepository {
	return &postRepository{coll: db.Collection(database.PostsCollection)}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	now := time.Now().UTC()
	if post.ID.IsZero() {
		post.ID = bson.NewObjectID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	if post.Likes == nil {
		post.Likes = []bson.ObjectID{}
	}
	if post.Attendees == nil {
		post.Attendees = []bson.ObjectID{}
	}
	if post.SharedBy == nil {
		post.SharedBy = []bson.ObjectID{}
	}

	_, err := r.coll.InsertOne(ctx, post)
	return err
}

func (r *postRepository) GetByID(ctx context.Context, id bson.ObjectID) (*models.Post, error) {
	var post models.Post
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&post); err != nil {
		return nil, mapErr(err)
	}
	return &post, nil
}

func (r *postRepository) Aggregate(ctx context.Context, p aggregate.Pipeline) ([]*models.PostView, error) {
	cur, err := r.coll.Aggregate(ctx, p.BSON())
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	posts := make([]*models.PostView, 0)
	if err := cur.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) Update(ctx context.Context, id bson.ObjectID, in PostUpdate) error {
	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if in.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *in.Title})
	}
	if in.PlaceName != nil {
		set = append(set, bson.E{Key: "placeName", Value: *in.PlaceName})
	}
	if in.Content != nil {
		set = append(set, bson.E{Key: "content", Value: *in.Content})
	}
	if in.Location != nil {
		set = append(set, bson.E{Key: "location", Value: *in.Location})
	}
	if in.ImageURL != nil {
		set = append(set, bson.E{Key: "imageUrl", Value: *in.ImageURL})
	}
	if in.Rating != nil {
		set = append(set, bson.E{Key: "rating", Value: *in.Rating})
	}

	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id bson.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Toggle adds userID to the membership array when absent and removes it when
// present, moving the counter in the same update. It reports whether the user
// is a member afterwards.
func (r *postRepository) Toggle(ctx context.Context, id, userID bson.ObjectID, m Membership) (bool, error) {
	now := time.Now().UTC()

	added, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: m.Field, Value: bson.D{{Key: "$ne", Value: userID}}}},
		bson.D{
			{Key: "$addToSet", Value: bson.D{{Key: m.Field, Value: userID}}},
			{Key: "$inc", Value: bson.D{{Key: m.Counter, Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		})
	if err != nil {
		return false, fmt.Errorf("toggle %s: %w", m.Field, err)
	}
	if added.ModifiedCount == 1 {
		return true, nil
	}

	removed, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: m.Field, Value: userID}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: m.Field, Value: userID}}},
			{Key: "$inc", Value: bson.D{{Key: m.Counter, Value: -1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		})
	if err != nil {
		return false, fmt.Errorf("toggle %s: %w", m.Field, err)
	}
	if removed.MatchedCount == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// DeleteOrphaned removes posts whose author no longer exists and returns their ids.
func (r *postRepository) DeleteOrphaned(ctx context.Context) ([]bson.ObjectID, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.UsersCollection},
			{Key: "localField", Value: "author"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "authorUser"},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "authorUser", Value: bson.D{{Key: "$size", Value: 0}}}}}},
		{{Key: "$project", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]bson.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	if _, err := r.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}); err != nil {
		return nil, err
	}
	return ids, nil
}
