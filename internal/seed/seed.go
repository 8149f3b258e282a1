// Package seed provides the startup maintenance tasks and demo data used in
// development.
package seed

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"restjam/internal/encryption"
	"restjam/internal/middleware"
	"restjam/internal/models"
	"restjam/internal/repository"
	"restjam/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Stores are the repositories the seeder writes to.
type Stores struct {
	Posts    repository.PostRepository
	Tags     repository.TagRepository
	PostTags repository.PostTagRepository
	Ratings  repository.RatingRepository
	Users    repository.UserRepository
}

// Seeder runs idempotent boot tasks and generates demo content.
type Seeder struct {
	stores  Stores
	ratings *service.RatingService
	posts   *service.PostService
}

func NewSeeder(stores Stores, cipher *encryption.Cipher) *Seeder {
	return &Seeder{
		stores:  stores,
		ratings: service.NewRatingService(stores.Ratings),
		posts: service.NewPostService(stores.Posts, stores.Tags, stores.PostTags,
			stores.Ratings, stores.Users, cipher, nil),
	}
}

// EnsureDefaultRatings upserts the five built-in ratings.
func (s *Seeder) EnsureDefaultRatings(ctx context.Context) error {
	if err := s.ratings.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("ensure default ratings: %w", err)
	}
	return nil
}

// CleanupOrphanedPosts deletes posts whose author no longer exists, along
// with their tag links and the user relations pointing at them.
func (s *Seeder) CleanupOrphanedPosts(ctx context.Context) (int, error) {
	removed, err := s.stores.Posts.DeleteOrphaned(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete orphaned posts: %w", err)
	}
	for _, id := range removed {
		if err := s.stores.PostTags.DeleteByPost(ctx, id); err != nil {
			return 0, fmt.Errorf("delete tag links of %s: %w", id.Hex(), err)
		}
		if err := s.stores.Users.PullPostFromAll(ctx, id); err != nil {
			return 0, fmt.Errorf("pull post %s from users: %w", id.Hex(), err)
		}
	}
	if len(removed) > 0 {
		middleware.Logger.Info("removed orphaned posts", "count", len(removed))
	}
	return len(removed), nil
}

// Options sizes a demo run. A zero Seed picks a random one.
type Options struct {
	Users int
	Posts int
	Seed  int64
}

// Result counts what a demo run created.
type Result struct {
	Users     int
	Posts     int
	Reactions int
}

var demoTags = []string{
	"pizza", "ramen", "tacos", "brunch", "vegan", "bbq", "sushi",
	"dessert", "coffee", "Late Night", "date night", "cheap eats",
}

// Demo creates fake users and posts through the post service so tags,
// counters and user relations are linked the same way real traffic does.
func (s *Seeder) Demo(ctx context.Context, opts Options) (Result, error) {
	var res Result
	if opts.Users <= 0 {
		return res, fmt.Errorf("demo seeding needs at least one user")
	}
	if err := s.EnsureDefaultRatings(ctx); err != nil {
		return res, err
	}
	ratings, err := s.ratings.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list ratings: %w", err)
	}

	faker := gofakeit.New(opts.Seed)

	users := make([]bson.ObjectID, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		first, last := faker.FirstName(), faker.LastName()
		user, err := s.stores.Users.UpsertByFirebaseUID(ctx, models.UserProfile{
			FirebaseUID: "seed-" + faker.UUID(),
			DisplayName: first + " " + last,
			FirstName:   first,
			LastName:    last,
			Email:       strings.ToLower(first+"."+last) + "@example.com",
			PhotoURL:    fmt.Sprintf("https://picsum.photos/seed/%s/200/200", faker.UUID()),
		})
		if err != nil {
			return res, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user.ID)
	}
	res.Users = len(users)

	for i := 0; i < opts.Posts; i++ {
		author := users[faker.Number(0, len(users)-1)]
		in := buildPost(faker)
		if len(ratings) > 0 {
			in.RatingID = ratings[faker.Number(0, len(ratings)-1)].ID.Hex()
		}

		post, err := s.posts.CreatePost(ctx, &author, in)
		if err != nil {
			return res, fmt.Errorf("create post: %w", err)
		}
		res.Posts++

		for _, uid := range users {
			if faker.Number(1, 100) > 30 {
				continue
			}
			if _, err := s.posts.ToggleLike(ctx, &uid, post.ID); err != nil {
				return res, fmt.Errorf("like post: %w", err)
			}
			res.Reactions++
			if faker.Bool() {
				if _, err := s.posts.ToggleWantToGo(ctx, &uid, post.ID); err != nil {
					return res, fmt.Errorf("mark want to go: %w", err)
				}
				res.Reactions++
			}
		}
	}

	middleware.Logger.Info("demo data seeded", "users", res.Users, "posts", res.Posts, "reactions", res.Reactions)
	return res, nil
}

func buildPost(faker *gofakeit.Faker) service.CreatePostInput {
	place := truncate(faker.Company(), 100)
	tags := make([]string, 0, 3)
	for n := faker.Number(1, 3); len(tags) < n; {
		tags = append(tags, faker.RandomString(demoTags))
	}
	return service.CreatePostInput{
		Title:     truncate(faker.Dinner()+" at "+place, 100),
		PlaceName: place,
		Content:   faker.Paragraph(1, 3, 12, " "),
		Location:  faker.City(),
		ImageURL:  fmt.Sprintf("https://picsum.photos/seed/%s/800/600", faker.UUID()),
		Tags:      tags,
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}
