package service

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"restjam/internal/aggregate"
	"restjam/internal/encryption"
	"restjam/internal/models"
	"restjam/internal/observability"
	"restjam/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel/attribute"
)

const (
	MaxTagLength  = 100
	MaxTermLength = 500
)

// Fields scanned by text search.
var textSearchFields = []string{"title", "content", "placeName", "location"}

// SearchService finds posts by tag names or free text.
type SearchService struct {
	posts  repository.PostRepository
	tags   repository.TagRepository
	links  repository.PostTagRepository
	cipher *encryption.Cipher
}

func NewSearchService(posts repository.PostRepository, tags repository.TagRepository, links repository.PostTagRepository, cipher *encryption.Cipher) *SearchService {
	return &SearchService{posts: posts, tags: tags, links: links, cipher: cipher}
}

// SearchInput combines the searchPosts arguments. Term wins over Tags;
// Location narrows either.
type SearchInput struct {
	Term     string
	Tags     []string
	Location string
	Page     aggregate.Page
	Viewer   *bson.ObjectID
}

// SearchByTags returns posts carrying any tag whose name contains one of
// tags, compared case-insensitively.
func (s *SearchService) SearchByTags(ctx context.Context, tags []string, page aggregate.Page, viewer *bson.ObjectID) (posts []*models.PostView, err error) {
	ctx, span := observability.StartSpan(ctx, "service", "SearchByTags", attribute.Int("tags.count", len(tags)))
	defer func() { observability.EndSpan(span, err) }()
	observability.SearchRequests.WithLabelValues("tags").Inc()

	filter, ok, err := s.tagFilter(ctx, tags)
	if err != nil {
		return nil, err
	}
	if !ok {
		return empty(), nil
	}
	return s.run(ctx, "tags", filter, page, viewer)
}

// TextSearch returns posts whose title, content, place name or location
// contains term, compared case-insensitively.
func (s *SearchService) TextSearch(ctx context.Context, term string, page aggregate.Page, viewer *bson.ObjectID) (posts []*models.PostView, err error) {
	ctx, span := observability.StartSpan(ctx, "service", "TextSearch")
	defer func() { observability.EndSpan(span, err) }()
	observability.SearchRequests.WithLabelValues("text").Inc()

	filter, ok := textFilter([]string{term})
	if !ok {
		return empty(), nil
	}
	return s.run(ctx, "text", filter, page, viewer)
}

// KeywordSearch is TextSearch over several terms, matching any of them.
func (s *SearchService) KeywordSearch(ctx context.Context, keywords []string, page aggregate.Page, viewer *bson.ObjectID) (posts []*models.PostView, err error) {
	ctx, span := observability.StartSpan(ctx, "service", "KeywordSearch", attribute.Int("keywords.count", len(keywords)))
	defer func() { observability.EndSpan(span, err) }()
	observability.SearchRequests.WithLabelValues("ai").Inc()

	filter, ok := textFilter(keywords)
	if !ok {
		return empty(), nil
	}
	return s.run(ctx, "ai", filter, page, viewer)
}

// Search serves the combined searchPosts query.
func (s *SearchService) Search(ctx context.Context, in SearchInput) ([]*models.PostView, error) {
	location := strings.TrimSpace(in.Location)
	if utf8.RuneCountInString(location) > MaxTermLength {
		location = ""
	}

	var filter bson.D
	switch {
	case strings.TrimSpace(in.Term) != "":
		if location == "" {
			return s.TextSearch(ctx, in.Term, in.Page, in.Viewer)
		}
		f, ok := textFilter([]string{in.Term})
		if !ok {
			return empty(), nil
		}
		filter = f
	case len(in.Tags) > 0:
		if location == "" {
			return s.SearchByTags(ctx, in.Tags, in.Page, in.Viewer)
		}
		f, ok, err := s.tagFilter(ctx, in.Tags)
		if err != nil {
			return nil, err
		}
		if !ok {
			return empty(), nil
		}
		filter = f
	case location != "":
		filter = bson.D{}
	default:
		return empty(), nil
	}

	observability.SearchRequests.WithLabelValues("location").Inc()
	narrowed := bson.D{{Key: "$and", Value: bson.A{
		filter,
		bson.D{{Key: "location", Value: literalRegex(location)}},
	}}}
	return s.run(ctx, "location", narrowed, in.Page, in.Viewer)
}

func (s *SearchService) tagFilter(ctx context.Context, tags []string) (bson.D, bool, error) {
	names := NormalizeTags(tags)
	if len(names) == 0 {
		observability.SearchShortCircuits.WithLabelValues("tags", "no_usable_tags").Inc()
		return nil, false, nil
	}

	tagIDs, err := s.tags.FindIDsMatching(ctx, names)
	if err != nil {
		return nil, false, internal(err)
	}
	if len(tagIDs) == 0 {
		observability.SearchShortCircuits.WithLabelValues("tags", "no_matching_tags").Inc()
		return nil, false, nil
	}

	postIDs, err := s.links.PostIDsForTags(ctx, tagIDs)
	if err != nil {
		return nil, false, internal(err)
	}
	if len(postIDs) == 0 {
		observability.SearchShortCircuits.WithLabelValues("tags", "no_tagged_posts").Inc()
		return nil, false, nil
	}

	return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: postIDs}}}}, true, nil
}

func (s *SearchService) run(ctx context.Context, kind string, filter bson.D, page aggregate.Page, viewer *bson.ObjectID) ([]*models.PostView, error) {
	posts, err := s.posts.Aggregate(ctx, aggregate.BuildPostPipeline(filter, viewer, page))
	if err != nil {
		return nil, internal(err)
	}
	for _, v := range posts {
		revealUsers(s.cipher, v)
	}
	observability.SearchResults.WithLabelValues(kind).Observe(float64(len(posts)))
	return posts, nil
}

// NormalizeTags trims tags, drops blank and over-long ones and removes
// case-insensitive duplicates, keeping the first spelling.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || utf8.RuneCountInString(t) > MaxTagLength {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// textFilter ORs a literal case-insensitive match of every usable term over
// the text fields. ok is false when no term is usable.
func textFilter(terms []string) (bson.D, bool) {
	clauses := bson.A{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" || utf8.RuneCountInString(term) > MaxTermLength {
			continue
		}
		re := literalRegex(term)
		for _, field := range textSearchFields {
			clauses = append(clauses, bson.D{{Key: field, Value: re}})
		}
	}
	if len(clauses) == 0 {
		observability.SearchShortCircuits.WithLabelValues("text", "no_usable_term").Inc()
		return nil, false
	}
	return bson.D{{Key: "$or", Value: clauses}}, true
}

func literalRegex(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func empty() []*models.PostView {
	return []*models.PostView{}
}
