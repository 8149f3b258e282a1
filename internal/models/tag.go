package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Tag is a free-form label, unique by case-insensitive name.
type Tag struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string        `bson:"name" json:"name"`
	CreatedAt time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// Rating is one of the seeded score buckets a post can reference.
type Rating struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Score       int           `bson:"score" json:"score"`
	Type        string        `bson:"type" json:"type"`
	Description string        `bson:"description" json:"description"`
}
