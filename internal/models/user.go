package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User is a Firebase-authenticated account. Email is stored encrypted and
// EmailHash carries a keyed hash for equality lookups.
type User struct {
	ID            bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	FirebaseUID   string          `bson:"firebaseUid" json:"-"`
	DisplayName   string          `bson:"displayName" json:"displayName"`
	PhotoURL      string          `bson:"photoURL,omitempty" json:"photoURL,omitempty"`
	FirstName     string          `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName      string          `bson:"lastName,omitempty" json:"lastName,omitempty"`
	Email         string          `bson:"email,omitempty" json:"email,omitempty"`
	EmailHash     string          `bson:"emailHash,omitempty" json:"-"`
	LikedPosts    []bson.ObjectID `bson:"likedPosts,omitempty" json:"-"`
	WantToGoPosts []bson.ObjectID `bson:"wantToGoPosts,omitempty" json:"-"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time       `bson:"updatedAt" json:"updatedAt"`
}

// UserProfile is the identity data carried by a verified token or a profile update.
type UserProfile struct {
	FirebaseUID string
	DisplayName string
	PhotoURL    string
	FirstName   string
	LastName    string
	Email       string
}
