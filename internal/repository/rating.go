package repository

import (
	"context"

	"restjam/internal/database"
	"restjam/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RatingRepository defines the interface for rating data operations
type RatingRepository interface {
	List(ctx context.Context) ([]models.Rating, error)
	GetByID(ctx context.Context, id bson.ObjectID) (*models.Rating, error)
	Create(ctx context.Context, rating *models.Rating) error
	UpsertByType(ctx context.Context, rating models.Rating) error
}

type ratingRepository struct {
	coll *mongo.Collection
}

func NewRatingRepository(db *mongo.Database) RatingRepository {
	return &ratingRepository{coll: db.Collection(database.RatingsCollection)}
}

func (r *ratingRepository) List(ctx context.Context) ([]models.Rating, error) {
	cur, err := r.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "score", Value: 1}}))
	if err != nil {
		return nil, err
	}
	ratings := make([]models.Rating, 0)
	if err := cur.All(ctx, &ratings); err != nil {
		return nil, err
	}
	return ratings, nil
}

func (r *ratingRepository) GetByID(ctx context.Context, id bson.ObjectID) (*models.Rating, error) {
	var rating models.Rating
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&rating); err != nil {
		return nil, mapErr(err)
	}
	return &rating, nil
}

func (r *ratingRepository) Create(ctx context.Context, rating *models.Rating) error {
	if rating.ID.IsZero() {
		rating.ID = bson.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, rating)
	return err
}

// UpsertByType inserts rating unless one with the same type already exists.
func (r *ratingRepository) UpsertByType(ctx context.Context, rating models.Rating) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "type", Value: rating.Type}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "score", Value: rating.Score},
			{Key: "type", Value: rating.Type},
			{Key: "description", Value: rating.Description},
		}}},
		options.UpdateOne().SetUpsert(true))
	return err
}
