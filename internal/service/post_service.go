package service

import (
	"context"
	"errors"
	"strings"

	"restjam/internal/aggregate"
	"restjam/internal/cache"
	"restjam/internal/encryption"
	"restjam/internal/models"
	"restjam/internal/notifications"
	"restjam/internal/repository"
	"restjam/internal/validation"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// PostService owns post CRUD, reactions and tagging.
type PostService struct {
	posts   repository.PostRepository
	tags    repository.TagRepository
	links   repository.PostTagRepository
	ratings repository.RatingRepository
	users   repository.UserRepository
	cipher  *encryption.Cipher
	events  notifications.Publisher
}

func NewPostService(
	posts repository.PostRepository,
	tags repository.TagRepository,
	links repository.PostTagRepository,
	ratings repository.RatingRepository,
	users repository.UserRepository,
	cipher *encryption.Cipher,
	events notifications.Publisher,
) *PostService {
	return &PostService{
		posts:   posts,
		tags:    tags,
		links:   links,
		ratings: ratings,
		users:   users,
		cipher:  cipher,
		events:  events,
	}
}

// CreatePostInput is a new post. Tags may be given as a list or as one
// comma-separated string.
type CreatePostInput struct {
	Title     string   `json:"title" validate:"notblank,min=3,max=100"`
	PlaceName string   `json:"placeName" validate:"notblank,max=100"`
	Content   string   `json:"content" validate:"max=5000"`
	Location  string   `json:"location" validate:"notblank"`
	ImageURL  string   `json:"imageUrl" validate:"omitempty,url"`
	RatingID  string   `json:"ratingId" validate:"omitempty,mongodb"`
	Tags      []string `json:"tags" validate:"dive,max=100"`
}

// UpdatePostInput changes only the fields that are set. A non-nil Tags
// replaces the post's tag set.
type UpdatePostInput struct {
	Title     *string   `json:"title" validate:"omitnil,notblank,min=3,max=100"`
	PlaceName *string   `json:"placeName" validate:"omitnil,notblank,max=100"`
	Content   *string   `json:"content" validate:"omitnil,max=5000"`
	Location  *string   `json:"location" validate:"omitnil,notblank"`
	ImageURL  *string   `json:"imageUrl" validate:"omitempty,url"`
	RatingID  *string   `json:"ratingId" validate:"omitempty,mongodb"`
	Tags      *[]string `json:"tags" validate:"omitnil,dive,max=100"`
}

// PostFilter narrows the posts listing.
type PostFilter struct {
	Location  string
	PlaceName string
	RatingID  string
	AuthorID  string
}

// SplitTags accepts "a, b ,c" style input.
func SplitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (in *CreatePostInput) trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.PlaceName = strings.TrimSpace(in.PlaceName)
	in.Content = strings.TrimSpace(in.Content)
	in.Location = strings.TrimSpace(in.Location)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.RatingID = strings.TrimSpace(in.RatingID)
	in.Tags = trimTags(in.Tags)
}

func (in *UpdatePostInput) trim() {
	for _, p := range []*string{in.Title, in.PlaceName, in.Content, in.Location, in.ImageURL, in.RatingID} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if in.Tags != nil {
		tags := trimTags(*in.Tags)
		in.Tags = &tags
	}
}

func trimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// List returns the newest posts matching filter.
func (s *PostService) List(ctx context.Context, filter PostFilter, page aggregate.Page, viewer *bson.ObjectID) ([]*models.PostView, error) {
	match := bson.D{}
	if v := strings.TrimSpace(filter.Location); v != "" {
		match = append(match, bson.E{Key: "location", Value: literalRegex(v)})
	}
	if v := strings.TrimSpace(filter.PlaceName); v != "" {
		match = append(match, bson.E{Key: "placeName", Value: literalRegex(v)})
	}
	if filter.RatingID != "" {
		id, err := ParseID(filter.RatingID, "rating ID")
		if err != nil {
			return nil, err
		}
		match = append(match, bson.E{Key: "rating", Value: id})
	}
	if filter.AuthorID != "" {
		id, err := ParseID(filter.AuthorID, "author ID")
		if err != nil {
			return nil, err
		}
		match = append(match, bson.E{Key: "author", Value: id})
	}
	return s.aggregate(ctx, match, page, viewer)
}

// ListMine returns the viewer's own posts.
func (s *PostService) ListMine(ctx context.Context, page aggregate.Page, viewer *bson.ObjectID) ([]*models.PostView, error) {
	uid, err := requireViewer(viewer)
	if err != nil {
		return nil, err
	}
	return s.aggregate(ctx, bson.D{{Key: "author", Value: uid}}, page, viewer)
}

// GetPost loads one enriched post. Anonymous reads are cached.
func (s *PostService) GetPost(ctx context.Context, id bson.ObjectID, viewer *bson.ObjectID) (*models.PostView, error) {
	if viewer != nil {
		return s.loadView(ctx, id, viewer)
	}

	var view models.PostView
	err := cache.Aside(ctx, cache.PostKey(id.Hex()), &view, cache.PostTTL, func() error {
		loaded, err := s.loadView(ctx, id, nil)
		if err != nil {
			return err
		}
		view = *loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *PostService) CreatePost(ctx context.Context, viewer *bson.ObjectID, in CreatePostInput) (*models.PostView, error) {
	uid, err := requireViewer(viewer)
	if err != nil {
		return nil, err
	}
	in.trim()
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	rating, err := s.resolveRating(ctx, in.RatingID)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:     in.Title,
		PlaceName: in.PlaceName,
		Content:   in.Content,
		Location:  in.Location,
		ImageURL:  in.ImageURL,
		Author:    uid,
		Rating:    rating,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, internal(err)
	}
	if err := s.linkTags(ctx, post.ID, NormalizeTags(in.Tags)); err != nil {
		return nil, err
	}

	view, err := s.loadView(ctx, post.ID, viewer)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notifications.EventPostCreated, view)
	return view, nil
}

func (s *PostService) UpdatePost(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID, in UpdatePostInput) (*models.PostView, error) {
	if _, err := s.ownedPost(ctx, viewer, id); err != nil {
		return nil, err
	}
	in.trim()
	if err := validation.ValidateStruct(in); err != nil {
		return nil, err
	}

	update := repository.PostUpdate{
		Title:     in.Title,
		PlaceName: in.PlaceName,
		Content:   in.Content,
		Location:  in.Location,
		ImageURL:  in.ImageURL,
	}
	if in.RatingID != nil && *in.RatingID != "" {
		rating, err := s.resolveRating(ctx, *in.RatingID)
		if err != nil {
			return nil, err
		}
		update.Rating = rating
	}
	if err := s.posts.Update(ctx, id, update); err != nil {
		return nil, notFoundOr(err, "Post", id.Hex())
	}

	if in.Tags != nil {
		if err := s.links.DeleteByPost(ctx, id); err != nil {
			return nil, internal(err)
		}
		if err := s.linkTags(ctx, id, NormalizeTags(*in.Tags)); err != nil {
			return nil, err
		}
	}

	cache.InvalidatePost(ctx, id.Hex())
	view, err := s.loadView(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notifications.EventPostUpdated, view)
	return view, nil
}

// DeletePost removes the post, its tag links and the users' references to it.
func (s *PostService) DeletePost(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID) error {
	if _, err := s.ownedPost(ctx, viewer, id); err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return notFoundOr(err, "Post", id.Hex())
	}
	if err := s.links.DeleteByPost(ctx, id); err != nil {
		return internal(err)
	}
	if err := s.users.PullPostFromAll(ctx, id); err != nil {
		return internal(err)
	}

	cache.InvalidatePost(ctx, id.Hex())
	s.publish(ctx, notifications.EventPostDeleted, map[string]string{"id": id.Hex()})
	return nil
}

// ToggleLike likes the post if the viewer has not yet, otherwise unlikes it.
func (s *PostService) ToggleLike(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID) (*models.PostView, error) {
	return s.toggle(ctx, viewer, id, repository.Likes, repository.LikedPosts)
}

// ToggleWantToGo marks or unmarks the viewer as wanting to visit the place.
func (s *PostService) ToggleWantToGo(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID) (*models.PostView, error) {
	return s.toggle(ctx, viewer, id, repository.Attendees, repository.WantToGoPosts)
}

// ToggleShare records or withdraws a share by the viewer.
func (s *PostService) ToggleShare(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID) (*models.PostView, error) {
	return s.toggle(ctx, viewer, id, repository.Shares, "")
}

func (s *PostService) toggle(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID, m repository.Membership, relation string) (*models.PostView, error) {
	uid, err := requireViewer(viewer)
	if err != nil {
		return nil, err
	}

	added, err := s.posts.Toggle(ctx, id, uid, m)
	if err != nil {
		return nil, notFoundOr(err, "Post", id.Hex())
	}
	if relation != "" {
		// Not transactional with the post update; a failure leaves the
		// user-side list stale until the next toggle.
		if err := s.users.SetRelation(ctx, uid, relation, id, added); err != nil {
			logWarn(ctx, "failed to mirror reaction on user", "post_id", id.Hex(), "relation", relation, "error", err)
		}
	}

	cache.InvalidatePost(ctx, id.Hex())
	view, err := s.loadView(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notifications.EventPostReactionUpdated, map[string]interface{}{
		"postId":        id.Hex(),
		"likeCount":     view.LikeCount,
		"attendeeCount": view.AttendeeCount,
		"shareCount":    view.ShareCount,
	})
	return view, nil
}

// AddTag attaches a tag, creating it on first use.
func (s *PostService) AddTag(ctx context.Context, viewer *bson.ObjectID, postID bson.ObjectID, name string) (*models.PostView, error) {
	if _, err := s.ownedPost(ctx, viewer, postID); err != nil {
		return nil, err
	}
	names := NormalizeTags([]string{name})
	if len(names) == 0 {
		return nil, models.NewValidationError("Tag name must be 1-100 characters")
	}
	if err := s.linkTags(ctx, postID, names); err != nil {
		return nil, err
	}
	cache.InvalidatePost(ctx, postID.Hex())
	return s.loadView(ctx, postID, viewer)
}

// RemoveTag detaches a tag. Removing a tag the post does not carry is a no-op.
func (s *PostService) RemoveTag(ctx context.Context, viewer *bson.ObjectID, postID bson.ObjectID, name string) (*models.PostView, error) {
	if _, err := s.ownedPost(ctx, viewer, postID); err != nil {
		return nil, err
	}
	tag, err := s.tags.FindByName(ctx, name)
	switch {
	case err == nil:
		if err := s.links.Unlink(ctx, postID, tag.ID); err != nil {
			return nil, internal(err)
		}
		cache.InvalidatePost(ctx, postID.Hex())
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internal(err)
	}
	return s.loadView(ctx, postID, viewer)
}

// ListTags returns tags alphabetically.
func (s *PostService) ListTags(ctx context.Context, limit int) ([]models.Tag, error) {
	if limit <= 0 || limit > aggregate.MaxLimit {
		limit = aggregate.MaxLimit
	}
	tags, err := s.tags.List(ctx, int64(limit))
	return tags, internal(err)
}

func (s *PostService) ownedPost(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID) (*models.Post, error) {
	uid, err := requireViewer(viewer)
	if err != nil {
		return nil, err
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Post", id.Hex())
	}
	if post.Author != uid {
		return nil, models.NewForbiddenError("Only the author can modify this post")
	}
	return post, nil
}

func (s *PostService) resolveRating(ctx context.Context, raw string) (*bson.ObjectID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := ParseID(raw, "rating ID")
	if err != nil {
		return nil, err
	}
	if _, err := s.ratings.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, models.NewValidationError("Rating does not exist")
		}
		return nil, internal(err)
	}
	return &id, nil
}

func (s *PostService) linkTags(ctx context.Context, postID bson.ObjectID, names []string) error {
	for _, name := range names {
		tag, err := s.tags.FindOrCreate(ctx, name)
		if err != nil {
			return internal(err)
		}
		if err := s.links.Link(ctx, postID, tag.ID); err != nil {
			return internal(err)
		}
	}
	return nil
}

func (s *PostService) aggregate(ctx context.Context, match bson.D, page aggregate.Page, viewer *bson.ObjectID) ([]*models.PostView, error) {
	views, err := s.posts.Aggregate(ctx, aggregate.BuildPostPipeline(match, viewer, page))
	if err != nil {
		return nil, internal(err)
	}
	for _, v := range views {
		revealUsers(s.cipher, v)
	}
	return views, nil
}

func (s *PostService) loadView(ctx context.Context, id bson.ObjectID, viewer *bson.ObjectID) (*models.PostView, error) {
	views, err := s.aggregate(ctx, bson.D{{Key: "_id", Value: id}}, aggregate.Page{Limit: 1}, viewer)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, models.NewNotFoundError("Post", id.Hex())
	}
	return views[0], nil
}

func (s *PostService) publish(ctx context.Context, eventType string, payload interface{}) {
	if err := notifications.Publish(ctx, s.events, eventType, payload); err != nil {
		logWarn(ctx, "failed to publish feed event", "event", eventType, "error", err)
	}
}
