package graph

import (
	"context"
	"errors"

	"restjam/internal/aggregate"
	"restjam/internal/auth"
	"restjam/internal/middleware"
	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/graph-gophers/graphql-go"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Resolver is the root Query and Mutation resolver.
type Resolver struct {
	posts   *service.PostService
	search  *service.SearchService
	ratings *service.RatingService
	users   *service.UserService
}

func NewResolver(posts *service.PostService, search *service.SearchService, ratings *service.RatingService, users *service.UserService) *Resolver {
	return &Resolver{posts: posts, search: search, ratings: ratings, users: users}
}

// PostFilter mirrors the PostFilter input.
type PostFilter struct {
	Location  *string
	PlaceName *string
	RatingID  *graphql.ID
	AuthorID  *graphql.ID
}

type CreatePostInput struct {
	Title     string
	PlaceName string
	Content   *string
	Location  string
	ImageURL  *string
	RatingID  *graphql.ID
	Tags      *[]string
}

type UpdatePostInput struct {
	Title     *string
	PlaceName *string
	Content   *string
	Location  *string
	ImageURL  *string
	RatingID  *graphql.ID
	Tags      *[]string
}

type UpdateProfileInput struct {
	DisplayName *string
	PhotoURL    *string
	FirstName   *string
	LastName    *string
	Email       *string
}

type pageArgs struct {
	Limit  *int32
	Offset *int32
}

func (a pageArgs) page() aggregate.Page {
	var p aggregate.Page
	if a.Limit != nil {
		p.Limit = int(*a.Limit)
	}
	if a.Offset != nil {
		p.Offset = int(*a.Offset)
	}
	return p
}

func viewerID(ctx context.Context) *bson.ObjectID {
	return auth.ViewerFrom(ctx).ID()
}

// Queries

func (r *Resolver) Posts(ctx context.Context, args struct {
	pageArgs
	Filter *PostFilter
}) ([]*PostResolver, error) {
	var filter service.PostFilter
	if f := args.Filter; f != nil {
		filter.Location = deref(f.Location)
		filter.PlaceName = deref(f.PlaceName)
		filter.RatingID = derefID(f.RatingID)
		filter.AuthorID = derefID(f.AuthorID)
	}
	views, err := r.posts.List(ctx, filter, args.page(), viewerID(ctx))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return newPosts(views), nil
}

func (r *Resolver) MyPosts(ctx context.Context, args pageArgs) ([]*PostResolver, error) {
	views, err := r.posts.ListMine(ctx, args.page(), viewerID(ctx))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return newPosts(views), nil
}

func (r *Resolver) Post(ctx context.Context, args struct{ ID graphql.ID }) (*PostResolver, error) {
	id, err := service.ParseID(string(args.ID), "post ID")
	if err != nil {
		return nil, fail(ctx, err)
	}
	view, err := r.posts.GetPost(ctx, id, viewerID(ctx))
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return nil, nil
		}
		return nil, fail(ctx, err)
	}
	return &PostResolver{v: view}, nil
}

func (r *Resolver) SearchPosts(ctx context.Context, args struct {
	pageArgs
	SearchTerm *string
	Tags       *[]string
	Location   *string
}) ([]*PostResolver, error) {
	in := service.SearchInput{
		Term:     deref(args.SearchTerm),
		Location: deref(args.Location),
		Page:     args.page(),
		Viewer:   viewerID(ctx),
	}
	if args.Tags != nil {
		in.Tags = expandTags(*args.Tags)
	}
	views, err := r.search.Search(ctx, in)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return newPosts(views), nil
}

func (r *Resolver) SearchPostsByTags(ctx context.Context, args struct {
	pageArgs
	Tags []string
}) ([]*PostResolver, error) {
	views, err := r.search.SearchByTags(ctx, expandTags(args.Tags), args.page(), viewerID(ctx))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return newPosts(views), nil
}

func (r *Resolver) BasicSearch(ctx context.Context, args struct {
	pageArgs
	SearchTerm string
}) ([]*PostResolver, error) {
	views, err := r.search.TextSearch(ctx, args.SearchTerm, args.page(), viewerID(ctx))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return newPosts(views), nil
}

func (r *Resolver) Me(ctx context.Context) (*UserResolver, error) {
	user, err := r.users.Me(ctx, auth.ViewerFrom(ctx))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &UserResolver{u: user}, nil
}

func (r *Resolver) Ratings(ctx context.Context) ([]*RatingResolver, error) {
	ratings, err := r.ratings.List(ctx)
	if err != nil {
		return nil, fail(ctx, err)
	}
	out := make([]*RatingResolver, 0, len(ratings))
	for _, rt := range ratings {
		out = append(out, &RatingResolver{r: rt})
	}
	return out, nil
}

func (r *Resolver) Tags(ctx context.Context, args struct{ Limit *int32 }) ([]*TagResolver, error) {
	limit := 0
	if args.Limit != nil {
		limit = int(*args.Limit)
	}
	tags, err := r.posts.ListTags(ctx, limit)
	if err != nil {
		return nil, fail(ctx, err)
	}
	out := make([]*TagResolver, 0, len(tags))
	for _, t := range tags {
		out = append(out, &TagResolver{t: t})
	}
	return out, nil
}

// Mutations

func (r *Resolver) CreatePost(ctx context.Context, args struct{ Input CreatePostInput }) (*PostResolver, error) {
	in := args.Input
	req := service.CreatePostInput{
		Title:     in.Title,
		PlaceName: in.PlaceName,
		Content:   deref(in.Content),
		Location:  in.Location,
		ImageURL:  deref(in.ImageURL),
		RatingID:  derefID(in.RatingID),
	}
	if in.Tags != nil {
		req.Tags = expandTags(*in.Tags)
	}
	view, err := r.posts.CreatePost(ctx, viewerID(ctx), req)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &PostResolver{v: view}, nil
}

func (r *Resolver) UpdatePost(ctx context.Context, args struct {
	ID    graphql.ID
	Input UpdatePostInput
}) (*PostResolver, error) {
	id, err := service.ParseID(string(args.ID), "post ID")
	if err != nil {
		return nil, fail(ctx, err)
	}
	in := args.Input
	req := service.UpdatePostInput{
		Title:     in.Title,
		PlaceName: in.PlaceName,
		Content:   in.Content,
		Location:  in.Location,
		ImageURL:  in.ImageURL,
	}
	if in.RatingID != nil {
		s := string(*in.RatingID)
		req.RatingID = &s
	}
	if in.Tags != nil {
		tags := expandTags(*in.Tags)
		req.Tags = &tags
	}
	view, err := r.posts.UpdatePost(ctx, viewerID(ctx), id, req)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &PostResolver{v: view}, nil
}

func (r *Resolver) DeletePost(ctx context.Context, args struct{ ID graphql.ID }) (bool, error) {
	id, err := service.ParseID(string(args.ID), "post ID")
	if err != nil {
		return false, fail(ctx, err)
	}
	if err := r.posts.DeletePost(ctx, viewerID(ctx), id); err != nil {
		return false, fail(ctx, err)
	}
	return true, nil
}

type postIDArgs struct {
	PostID graphql.ID
}

func (r *Resolver) ToggleLike(ctx context.Context, args postIDArgs) (*PostResolver, error) {
	return r.toggle(ctx, args.PostID, r.posts.ToggleLike)
}

func (r *Resolver) ToggleWantToGo(ctx context.Context, args postIDArgs) (*PostResolver, error) {
	return r.toggle(ctx, args.PostID, r.posts.ToggleWantToGo)
}

func (r *Resolver) ToggleShare(ctx context.Context, args postIDArgs) (*PostResolver, error) {
	return r.toggle(ctx, args.PostID, r.posts.ToggleShare)
}

type toggleFunc func(ctx context.Context, viewer *bson.ObjectID, id bson.ObjectID) (*models.PostView, error)

func (r *Resolver) toggle(ctx context.Context, rawID graphql.ID, fn toggleFunc) (*PostResolver, error) {
	id, err := service.ParseID(string(rawID), "post ID")
	if err != nil {
		return nil, fail(ctx, err)
	}
	view, err := fn(ctx, viewerID(ctx), id)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &PostResolver{v: view}, nil
}

type tagArgs struct {
	PostID  graphql.ID
	TagName string
}

func (r *Resolver) AddTagToPost(ctx context.Context, args tagArgs) (*PostResolver, error) {
	id, err := service.ParseID(string(args.PostID), "post ID")
	if err != nil {
		return nil, fail(ctx, err)
	}
	view, err := r.posts.AddTag(ctx, viewerID(ctx), id, args.TagName)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &PostResolver{v: view}, nil
}

func (r *Resolver) RemoveTagFromPost(ctx context.Context, args tagArgs) (*PostResolver, error) {
	id, err := service.ParseID(string(args.PostID), "post ID")
	if err != nil {
		return nil, fail(ctx, err)
	}
	view, err := r.posts.RemoveTag(ctx, viewerID(ctx), id, args.TagName)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &PostResolver{v: view}, nil
}

func (r *Resolver) UpdateProfile(ctx context.Context, args struct{ Input UpdateProfileInput }) (*UserResolver, error) {
	in := args.Input
	user, err := r.users.UpdateProfile(ctx, auth.ViewerFrom(ctx), service.UpdateProfileInput{
		DisplayName: deref(in.DisplayName),
		PhotoURL:    deref(in.PhotoURL),
		FirstName:   deref(in.FirstName),
		LastName:    deref(in.LastName),
		Email:       deref(in.Email),
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &UserResolver{u: user}, nil
}

// fail hides internal causes from clients and logs them.
func fail(ctx context.Context, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		middleware.Logger.ErrorContext(ctx, "graphql resolver failed", "error", err)
		return &models.AppError{Code: models.CodeInternal, Message: "Internal server error"}
	}
	if appErr.Code == models.CodeInternal {
		middleware.Logger.ErrorContext(ctx, "graphql resolver failed", "error", err)
		return &models.AppError{Code: appErr.Code, Message: appErr.Message}
	}
	if appErr.Err != nil {
		return &models.AppError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	}
	return appErr
}

// expandTags accepts list entries that are themselves comma-separated.
func expandTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		out = append(out, service.SplitTags(t)...)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefID(id *graphql.ID) string {
	if id == nil {
		return ""
	}
	return string(*id)
}
