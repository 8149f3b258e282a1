package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"restjam/internal/database"
	"restjam/internal/encryption"
	"restjam/internal/models"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// User relation arrays mirrored from post interactions.
const (
	LikedPosts    = "likedPosts"
	WantToGoPosts = "wantToGoPosts"
)

// UserRepository defines the interface for user data operations. Emails are
// encrypted on write and decrypted on read.
type UserRepository interface {
	UpsertByFirebaseUID(ctx context.Context, profile models.UserProfile) (*models.User, error)
	GetByID(ctx context.Context, id bson.ObjectID) (*models.User, error)
	GetByFirebaseUID(ctx context.Context, uid string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id bson.ObjectID, profile models.UserProfile) (*models.User, error)
	SetRelation(ctx context.Context, userID bson.ObjectID, field string, postID bson.ObjectID, present bool) error
	PullPostFromAll(ctx context.Context, postID bson.ObjectID) error
}

type userRepository struct {
	coll   *mongo.Collection
	cipher *encryption.Cipher
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *mongo.Database, cipher *encryption.Cipher) UserRepository {
	return &userRepository{coll: db.Collection(database.UsersCollection), cipher: cipher}
}

func (r *userRepository) UpsertByFirebaseUID(ctx context.Context, profile models.UserProfile) (*models.User, error) {
	if profile.FirebaseUID == "" {
		return nil, fmt.Errorf("firebase uid is required")
	}
	now := time.Now().UTC()

	set := bson.D{{Key: "updatedAt", Value: now}}
	set, err := r.appendProfile(set, profile)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var user models.User
	err = r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "firebaseUid", Value: profile.FirebaseUID}},
		bson.D{
			{Key: "$set", Value: set},
			{Key: "$setOnInsert", Value: bson.D{
				{Key: "firebaseUid", Value: profile.FirebaseUID},
				{Key: "createdAt", Value: now},
			}},
		},
		opts).Decode(&user)
	if err != nil {
		return nil, err
	}
	return r.reveal(&user)
}

func (r *userRepository) GetByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *userRepository) GetByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "firebaseUid", Value: uid}})
}

// GetByEmail looks a user up through the keyed email hash.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	hash := r.cipher.CreateHash(normalizeEmail(email))
	if hash == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "emailHash", Value: hash}})
}

func (r *userRepository) UpdateProfile(ctx context.Context, id bson.ObjectID, profile models.UserProfile) (*models.User, error) {
	set, err := r.appendProfile(bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}, profile)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = r.coll.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&user)
	if err != nil {
		return nil, mapErr(err)
	}
	return r.reveal(&user)
}

// SetRelation adds or removes postID from one of the user's post arrays.
func (r *userRepository) SetRelation(ctx context.Context, userID bson.ObjectID, field string, postID bson.ObjectID, present bool) error {
	op := "$pull"
	if present {
		op = "$addToSet"
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}},
		bson.D{{Key: op, Value: bson.D{{Key: field, Value: postID}}}})
	return err
}

func (r *userRepository) PullPostFromAll(ctx context.Context, postID bson.ObjectID) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: LikedPosts, Value: postID}},
			bson.D{{Key: WantToGoPosts, Value: postID}},
		}}},
		bson.D{{Key: "$pull", Value: bson.D{
			{Key: LikedPosts, Value: postID},
			{Key: WantToGoPosts, Value: postID},
		}}})
	return err
}

func (r *userRepository) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	var user models.User
	if err := r.coll.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, mapErr(err)
	}
	return r.reveal(&user)
}

func (r *userRepository) appendProfile(set bson.D, p models.UserProfile) (bson.D, error) {
	if p.DisplayName != "" {
		set = append(set, bson.E{Key: "displayName", Value: p.DisplayName})
	}
	if p.PhotoURL != "" {
		set = append(set, bson.E{Key: "photoURL", Value: p.PhotoURL})
	}
	if p.FirstName != "" {
		set = append(set, bson.E{Key: "firstName", Value: p.FirstName})
	}
	if p.LastName != "" {
		set = append(set, bson.E{Key: "lastName", Value: p.LastName})
	}
	if p.Email != "" {
		email := normalizeEmail(p.Email)
		sealed, err := r.cipher.Encrypt(email)
		if err != nil {
			return nil, fmt.Errorf("encrypt email: %w", err)
		}
		set = append(set,
			bson.E{Key: "email", Value: sealed},
			bson.E{Key: "emailHash", Value: r.cipher.CreateHash(email)})
	}
	return set, nil
}

func (r *userRepository) reveal(u *models.User) (*models.User, error) {
	email, err := r.cipher.Decrypt(u.Email)
	if err != nil {
		return nil, err
	}
	u.Email = email
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
