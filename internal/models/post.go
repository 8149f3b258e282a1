// Package models defines the documents stored in MongoDB and the views
// returned by the post aggregation pipeline.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Post is a restaurant recommendation as stored in the posts collection.
// Tags are never embedded; they are joined through PostTag records.
type Post struct {
	ID            bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title         string          `bson:"title" json:"title"`
	PlaceName     string          `bson:"placeName" json:"placeName"`
	Content       string          `bson:"content" json:"content"`
	Location      string          `bson:"location" json:"location"`
	ImageURL      string          `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	Author        bson.ObjectID   `bson:"author" json:"authorId"`
	Rating        *bson.ObjectID  `bson:"rating,omitempty" json:"ratingId,omitempty"`
	Likes         []bson.ObjectID `bson:"likes" json:"-"`
	Attendees     []bson.ObjectID `bson:"attendees" json:"-"`
	SharedBy      []bson.ObjectID `bson:"sharedBy" json:"-"`
	LikeCount     int             `bson:"likeCount" json:"likeCount"`
	AttendeeCount int             `bson:"attendeeCount" json:"attendeeCount"`
	ShareCount    int             `bson:"shareCount" json:"shareCount"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// PostView is a post enriched by the aggregation pipeline with its joined
// documents and viewer-relative flags.
type PostView struct {
	Post `bson:",inline"`

	AuthorUser    *User   `bson:"authorUser,omitempty" json:"author,omitempty"`
	RatingDoc     *Rating `bson:"ratingDoc,omitempty" json:"rating,omitempty"`
	Tags          []Tag   `bson:"tags" json:"tags"`
	LikedBy       []User  `bson:"likedByUsers" json:"likes"`
	AttendeeUsers []User  `bson:"attendeeUsers" json:"attendees"`
	IsLiked       bool    `bson:"isLiked" json:"isLiked"`
	IsWantToGo    bool    `bson:"isWantToGo" json:"isWantToGo"`
	IsOwner       bool    `bson:"isOwner" json:"isOwner"`
}

// PostTag links a post to a tag in the postsTags collection.
type PostTag struct {
	ID     bson.ObjectID `bson:"_id,omitempty"`
	PostID bson.ObjectID `bson:"postId"`
	TagID  bson.ObjectID `bson:"tagId"`
}
