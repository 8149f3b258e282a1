package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"restjam/internal/aggregate"
	"restjam/internal/encryption"
	"restjam/internal/models"
	"restjam/internal/notifications"
	"restjam/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type postFixture struct {
	svc     *PostService
	posts   *postRepoStub
	tags    *tagRepoStub
	links   *linkRepoStub
	ratings *ratingRepoStub
	users   *userRepoStub
	events  *publisherStub
	cipher  *encryption.Cipher
	seeded  bson.ObjectID
}

// newPostFixture wires a PostService whose single stored post belongs to author.
func newPostFixture(author bson.ObjectID) *postFixture {
	f := &postFixture{
		posts:   noopPostRepo(),
		tags:    newTagRepoStub(),
		links:   newLinkRepoStub(),
		ratings: &ratingRepoStub{ratings: []models.Rating{{ID: bson.NewObjectID(), Score: 5, Type: "Excellent"}}},
		users:   newUserRepoStub(),
		events:  &publisherStub{},
		cipher:  encryption.New("test-secret", encryption.PassThrough),
	}

	stored := map[bson.ObjectID]*models.Post{}
	f.posts.createFn = func(_ context.Context, p *models.Post) error {
		p.ID = bson.NewObjectID()
		stored[p.ID] = p
		return nil
	}
	f.posts.getByIDFn = func(_ context.Context, id bson.ObjectID) (*models.Post, error) {
		if p, ok := stored[id]; ok {
			return p, nil
		}
		return nil, repository.ErrNotFound
	}
	f.posts.aggregateFn = func(_ context.Context, p aggregate.Pipeline) ([]*models.PostView, error) {
		filter := p[0].(aggregate.Match).Filter
		if len(filter) == 1 && filter[0].Key == "_id" {
			if post, ok := stored[filter[0].Value.(bson.ObjectID)]; ok {
				return []*models.PostView{{Post: *post}}, nil
			}
			return []*models.PostView{}, nil
		}
		return []*models.PostView{}, nil
	}
	f.posts.deleteFn = func(_ context.Context, id bson.ObjectID) error {
		if _, ok := stored[id]; !ok {
			return repository.ErrNotFound
		}
		delete(stored, id)
		return nil
	}

	existing := &models.Post{ID: bson.NewObjectID(), Title: "Noodle Bar", Author: author}
	stored[existing.ID] = existing
	f.seeded = existing.ID

	f.svc = NewPostService(f.posts, f.tags, f.links, f.ratings, f.users, f.cipher, f.events)
	return f
}

func validCreateInput() CreatePostInput {
	return CreatePostInput{
		Title:     "Best Ramen",
		PlaceName: "Kinton",
		Content:   "Rich broth",
		Location:  "Toronto",
		Tags:      []string{"ramen", " Noodles ", "RAMEN", " "},
	}
}

func TestCreatePost_RequiresViewer(t *testing.T) {
	t.Parallel()
	f := newPostFixture(bson.NewObjectID())

	_, err := f.svc.CreatePost(context.Background(), nil, validCreateInput())
	requireCode(t, err, models.CodeUnauthenticated)
}

func TestCreatePost_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CreatePostInput)
	}{
		{"blank title", func(in *CreatePostInput) { in.Title = "   " }},
		{"short title", func(in *CreatePostInput) { in.Title = "ab" }},
		{"long title", func(in *CreatePostInput) { in.Title = strings.Repeat("t", 101) }},
		{"blank place", func(in *CreatePostInput) { in.PlaceName = "" }},
		{"blank location", func(in *CreatePostInput) { in.Location = " " }},
		{"bad image url", func(in *CreatePostInput) { in.ImageURL = "not a url" }},
		{"bad rating id", func(in *CreatePostInput) { in.RatingID = "123" }},
		{"long tag", func(in *CreatePostInput) { in.Tags = []string{strings.Repeat("x", 101)} }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			viewer := bson.NewObjectID()
			f := newPostFixture(viewer)
			in := validCreateInput()
			tt.mutate(&in)

			_, err := f.svc.CreatePost(context.Background(), &viewer, in)
			requireCode(t, err, models.CodeValidation)
			assert.Empty(t, f.events.payloads)
		})
	}
}

func TestCreatePost_UnknownRating(t *testing.T) {
	t.Parallel()
	viewer := bson.NewObjectID()
	f := newPostFixture(viewer)
	in := validCreateInput()
	in.RatingID = bson.NewObjectID().Hex()

	_, err := f.svc.CreatePost(context.Background(), &viewer, in)
	requireCode(t, err, models.CodeValidation)
	assert.Contains(t, err.Error(), "Rating does not exist")
}

func TestCreatePost_LinksDedupedTagsAndPublishes(t *testing.T) {
	t.Parallel()
	viewer := bson.NewObjectID()
	f := newPostFixture(viewer)
	in := validCreateInput()
	in.RatingID = f.ratings.ratings[0].ID.Hex()

	view, err := f.svc.CreatePost(context.Background(), &viewer, in)
	require.NoError(t, err)
	assert.Equal(t, "Best Ramen", view.Title)
	assert.Equal(t, viewer, view.Author)
	require.NotNil(t, view.Rating)
	assert.Equal(t, f.ratings.ratings[0].ID, *view.Rating)

	assert.Equal(t, []string{"ramen", "Noodles"}, f.tags.findOrCalls)
	assert.Len(t, f.links.links[view.ID], 2)

	require.Len(t, f.events.payloads, 1)
	var event notifications.Event
	require.NoError(t, json.Unmarshal([]byte(f.events.payloads[0]), &event))
	assert.Equal(t, notifications.EventPostCreated, event.Type)
}

func TestUpdatePost_OnlyAuthor(t *testing.T) {
	t.Parallel()
	author := bson.NewObjectID()
	f := newPostFixture(author)
	id := firstStoredID(t, f)
	title := "Renamed"

	stranger := bson.NewObjectID()
	_, err := f.svc.UpdatePost(context.Background(), &stranger, id, UpdatePostInput{Title: &title})
	requireCode(t, err, models.CodeForbidden)

	_, err = f.svc.UpdatePost(context.Background(), nil, id, UpdatePostInput{Title: &title})
	requireCode(t, err, models.CodeUnauthenticated)

	missing := bson.NewObjectID()
	_, err = f.svc.UpdatePost(context.Background(), &author, missing, UpdatePostInput{Title: &title})
	requireCode(t, err, models.CodeNotFound)
}

func TestUpdatePost_AppliesSetFieldsAndReplacesTags(t *testing.T) {
	t.Parallel()
	author := bson.NewObjectID()
	f := newPostFixture(author)
	id := firstStoredID(t, f)

	var got repository.PostUpdate
	f.posts.updateFn = func(_ context.Context, _ bson.ObjectID, in repository.PostUpdate) error {
		got = in
		return nil
	}

	title := "  Renamed  "
	tags := []string{"brunch"}
	_, err := f.svc.UpdatePost(context.Background(), &author, id, UpdatePostInput{Title: &title, Tags: &tags})
	require.NoError(t, err)

	require.NotNil(t, got.Title)
	assert.Equal(t, "Renamed", *got.Title)
	assert.Nil(t, got.Content)
	assert.Nil(t, got.Rating)
	assert.Contains(t, f.links.deletedByPost, id)
	assert.Len(t, f.links.links[id], 1)
}

func TestUpdatePost_RejectsBlankTitle(t *testing.T) {
	t.Parallel()
	author := bson.NewObjectID()
	f := newPostFixture(author)
	id := firstStoredID(t, f)
	blank := "  "

	_, err := f.svc.UpdatePost(context.Background(), &author, id, UpdatePostInput{Title: &blank})
	requireCode(t, err, models.CodeValidation)
}

func TestDeletePost_Cascades(t *testing.T) {
	t.Parallel()
	author := bson.NewObjectID()
	f := newPostFixture(author)
	id := firstStoredID(t, f)

	require.NoError(t, f.svc.DeletePost(context.Background(), &author, id))
	assert.Equal(t, []bson.ObjectID{id}, f.links.deletedByPost)
	assert.Equal(t, []bson.ObjectID{id}, f.users.pulled)
	require.Len(t, f.events.payloads, 1)
	assert.Contains(t, f.events.payloads[0], notifications.EventPostDeleted)

	err := f.svc.DeletePost(context.Background(), &author, id)
	requireCode(t, err, models.CodeNotFound)
}

func TestToggle_MirrorsRelationOnUser(t *testing.T) {
	t.Parallel()
	author := bson.NewObjectID()
	f := newPostFixture(author)
	id := firstStoredID(t, f)
	viewer := bson.NewObjectID()

	var memberships []repository.Membership
	added := true
	f.posts.toggleFn = func(_ context.Context, _, _ bson.ObjectID, m repository.Membership) (bool, error) {
		memberships = append(memberships, m)
		defer func() { added = !added }()
		return added, nil
	}

	_, err := f.svc.ToggleLike(context.Background(), &viewer, id)
	require.NoError(t, err)
	_, err = f.svc.ToggleLike(context.Background(), &viewer, id)
	require.NoError(t, err)
	_, err = f.svc.ToggleWantToGo(context.Background(), &viewer, id)
	require.NoError(t, err)
	_, err = f.svc.ToggleShare(context.Background(), &viewer, id)
	require.NoError(t, err)

	assert.Equal(t, []repository.Membership{repository.Likes, repository.Likes, repository.Attendees, repository.Shares}, memberships)
	assert.Equal(t, []relationCall{
		{UserID: viewer, Field: repository.LikedPosts, PostID: id, Present: true},
		{UserID: viewer, Field: repository.LikedPosts, PostID: id, Present: false},
		{UserID: viewer, Field: repository.WantToGoPosts, PostID: id, Present: true},
	}, f.users.relations)
	assert.Len(t, f.events.payloads, 4)
}

func TestToggle_Errors(t *testing.T) {
	t.Parallel()
	f := newPostFixture(bson.NewObjectID())

	_, err := f.svc.ToggleLike(context.Background(), nil, bson.NewObjectID())
	requireCode(t, err, models.CodeUnauthenticated)

	f.posts.toggleFn = func(context.Context, bson.ObjectID, bson.ObjectID, repository.Membership) (bool, error) {
		return false, repository.ErrNotFound
	}
	viewer := bson.NewObjectID()
	_, err = f.svc.ToggleLike(context.Background(), &viewer, bson.NewObjectID())
	requireCode(t, err, models.CodeNotFound)
	assert.Empty(t, f.users.relations)
}

func TestAddAndRemoveTag(t *testing.T) {
	t.Parallel()
	author := bson.NewObjectID()
	f := newPostFixture(author)
	id := firstStoredID(t, f)

	_, err := f.svc.AddTag(context.Background(), &author, id, "  ")
	requireCode(t, err, models.CodeValidation)

	_, err = f.svc.AddTag(context.Background(), &author, id, "Vegan")
	require.NoError(t, err)
	_, err = f.svc.AddTag(context.Background(), &author, id, "vegan")
	require.NoError(t, err)
	assert.Len(t, f.links.links[id], 1)

	_, err = f.svc.RemoveTag(context.Background(), &author, id, "VEGAN")
	require.NoError(t, err)
	assert.Empty(t, f.links.links[id])

	_, err = f.svc.RemoveTag(context.Background(), &author, id, "never-added")
	require.NoError(t, err)

	other := bson.NewObjectID()
	_, err = f.svc.AddTag(context.Background(), &other, id, "vegan")
	requireCode(t, err, models.CodeForbidden)
}

func TestList_FilterAndBadIDs(t *testing.T) {
	t.Parallel()
	f := newPostFixture(bson.NewObjectID())
	var filter bson.D
	f.posts.aggregateFn = func(_ context.Context, p aggregate.Pipeline) ([]*models.PostView, error) {
		filter = p[0].(aggregate.Match).Filter
		return []*models.PostView{}, nil
	}

	author := bson.NewObjectID()
	_, err := f.svc.List(context.Background(), PostFilter{Location: "Toronto", AuthorID: author.Hex()}, aggregate.Page{}, nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "location", Value: bson.Regex{Pattern: "Toronto", Options: "i"}},
		{Key: "author", Value: author},
	}, filter)

	_, err = f.svc.List(context.Background(), PostFilter{RatingID: "nope"}, aggregate.Page{}, nil)
	requireCode(t, err, models.CodeValidation)

	_, err = f.svc.ListMine(context.Background(), aggregate.Page{}, nil)
	requireCode(t, err, models.CodeUnauthenticated)
}

func TestRevealUsers_DecryptsAuthorOnly(t *testing.T) {
	t.Parallel()
	f := newPostFixture(bson.NewObjectID())
	enc, err := f.cipher.Encrypt("author@example.com")
	require.NoError(t, err)

	view := &models.PostView{
		AuthorUser: &models.User{Email: enc},
		LikedBy:    []models.User{{Email: "liker@example.com"}},
	}
	revealUsers(f.cipher, view)
	assert.Equal(t, "author@example.com", view.AuthorUser.Email)
	assert.Empty(t, view.LikedBy[0].Email)
}

func TestSplitTags(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SplitTags("  "))
	assert.Equal(t, []string{"a", " b ", "c"}, SplitTags("a, b ,c"))
}

func firstStoredID(t *testing.T, f *postFixture) bson.ObjectID {
	t.Helper()
	require.False(t, f.seeded.IsZero())
	return f.seeded
}
