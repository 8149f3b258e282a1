package graph

import (
	"time"

	"restjam/internal/models"

	"github.com/graph-gophers/graphql-go"
)

// PostResolver resolves the Post type from an aggregated view.
type PostResolver struct {
	v *models.PostView
}

func newPosts(views []*models.PostView) []*PostResolver {
	out := make([]*PostResolver, 0, len(views))
	for _, v := range views {
		out = append(out, &PostResolver{v: v})
	}
	return out
}

func (p *PostResolver) ID() graphql.ID       { return graphql.ID(p.v.ID.Hex()) }
func (p *PostResolver) Title() string        { return p.v.Title }
func (p *PostResolver) PlaceName() string    { return p.v.PlaceName }
func (p *PostResolver) Content() string      { return p.v.Content }
func (p *PostResolver) Location() string     { return p.v.Location }
func (p *PostResolver) ImageURL() *string    { return optional(p.v.ImageURL) }
func (p *PostResolver) CreatedAt() string    { return timestamp(p.v.CreatedAt) }
func (p *PostResolver) UpdatedAt() string    { return timestamp(p.v.UpdatedAt) }
func (p *PostResolver) ShareCount() int32    { return int32(p.v.ShareCount) }
func (p *PostResolver) LikeCount() int32     { return int32(p.v.LikeCount) }
func (p *PostResolver) AttendeeCount() int32 { return int32(p.v.AttendeeCount) }
func (p *PostResolver) IsLiked() bool        { return p.v.IsLiked }
func (p *PostResolver) IsWantToGo() bool     { return p.v.IsWantToGo }
func (p *PostResolver) IsOwner() bool        { return p.v.IsOwner }

func (p *PostResolver) Author() *UserResolver {
	if p.v.AuthorUser == nil {
		return nil
	}
	return &UserResolver{u: p.v.AuthorUser}
}

func (p *PostResolver) Rating() *RatingResolver {
	if p.v.RatingDoc == nil {
		return nil
	}
	return &RatingResolver{r: *p.v.RatingDoc}
}

func (p *PostResolver) Tags() []*TagResolver {
	out := make([]*TagResolver, 0, len(p.v.Tags))
	for _, t := range p.v.Tags {
		out = append(out, &TagResolver{t: t})
	}
	return out
}

func (p *PostResolver) Likes() []*UserResolver     { return newUsers(p.v.LikedBy) }
func (p *PostResolver) Attendees() []*UserResolver { return newUsers(p.v.AttendeeUsers) }

// UserResolver resolves the User type.
type UserResolver struct {
	u *models.User
}

func newUsers(users []models.User) []*UserResolver {
	out := make([]*UserResolver, 0, len(users))
	for i := range users {
		out = append(out, &UserResolver{u: &users[i]})
	}
	return out
}

func (u *UserResolver) ID() graphql.ID      { return graphql.ID(u.u.ID.Hex()) }
func (u *UserResolver) DisplayName() string { return u.u.DisplayName }
func (u *UserResolver) PhotoURL() *string   { return optional(u.u.PhotoURL) }
func (u *UserResolver) FirstName() *string  { return optional(u.u.FirstName) }
func (u *UserResolver) LastName() *string   { return optional(u.u.LastName) }
func (u *UserResolver) Email() *string      { return optional(u.u.Email) }

func (u *UserResolver) CreatedAt() *string {
	if u.u.CreatedAt.IsZero() {
		return nil
	}
	s := timestamp(u.u.CreatedAt)
	return &s
}

type TagResolver struct {
	t models.Tag
}

func (t *TagResolver) ID() graphql.ID { return graphql.ID(t.t.ID.Hex()) }
func (t *TagResolver) Name() string   { return t.t.Name }

type RatingResolver struct {
	r models.Rating
}

func (r *RatingResolver) ID() graphql.ID       { return graphql.ID(r.r.ID.Hex()) }
func (r *RatingResolver) Score() int32         { return int32(r.r.Score) }
func (r *RatingResolver) Type() string         { return r.r.Type }
func (r *RatingResolver) Description() *string { return optional(r.r.Description) }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
