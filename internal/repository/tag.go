package repository

import (
	"context"
	"regexp"
	"strings"
	"time"

	"restjam/internal/database"
	"restjam/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var tagCollation = &options.Collation{Locale: "en", Strength: 2}

// TagRepository defines the interface for tag data operations
type TagRepository interface {
	FindIDsMatching(ctx context.Context, names []string) ([]bson.ObjectID, error)
	FindByName(ctx context.Context, name string) (*models.Tag, error)
	FindOrCreate(ctx context.Context, name string) (*models.Tag, error)
	List(ctx context.Context, limit int64) ([]models.Tag, error)
}

type tagRepository struct {
	coll *mongo.Collection
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *mongo.Database) TagRepository {
	return &tagRepository{coll: db.Collection(database.TagsCollection)}
}

// FindIDsMatching returns ids of tags whose name contains any of names,
// compared case-insensitively. names are matched literally.
func (r *tagRepository) FindIDsMatching(ctx context.Context, names []string) ([]bson.ObjectID, error) {
	if len(names) == 0 {
		return nil, nil
	}
	patterns := make(bson.A, 0, len(names))
	for _, n := range names {
		patterns = append(patterns, bson.Regex{Pattern: regexp.QuoteMeta(n), Options: "i"})
	}

	cur, err := r.coll.Find(ctx,
		bson.D{{Key: "name", Value: bson.D{{Key: "$in", Value: patterns}}}},
		options.Find().SetProjection(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID bson.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]bson.ObjectID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *tagRepository) FindByName(ctx context.Context, name string) (*models.Tag, error) {
	var tag models.Tag
	err := r.coll.FindOne(ctx,
		bson.D{{Key: "name", Value: strings.TrimSpace(name)}},
		options.FindOne().SetCollation(tagCollation)).Decode(&tag)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tag, nil
}

// FindOrCreate upserts a tag by name. The first spelling wins.
func (r *tagRepository) FindOrCreate(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetCollation(tagCollation).
		SetReturnDocument(options.After)

	var tag models.Tag
	err := r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "name", Value: name}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "name", Value: name},
			{Key: "createdAt", Value: time.Now().UTC()},
		}}},
		opts).Decode(&tag)
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepository) List(ctx context.Context, limit int64) ([]models.Tag, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetCollation(tagCollation)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	tags := make([]models.Tag, 0)
	if err := cur.All(ctx, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
