package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"restjam/internal/aggregate"
	"restjam/internal/auth"
	"restjam/internal/featureflags"
	"restjam/internal/models"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

const maxKeywords = 8

// ErrAIDisabled is returned when AI search is unconfigured or switched off.
var ErrAIDisabled = models.NewConfigError("AI search service is not available", "")

// KeywordExtractor turns a natural-language query into search keywords.
type KeywordExtractor interface {
	Keywords(ctx context.Context, query string) ([]string, error)
}

type geminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor returns a Gemini-backed extractor, or nil when apiKey is empty.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (KeywordExtractor, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiExtractor{client: client, model: model}, nil
}

const keywordPrompt = `You help people search restaurant recommendations.
Extract up to %d short search keywords (dish, cuisine, place name, city or neighbourhood)
from the request below. Reply with the keywords only, comma-separated, no explanations.

Request: %s`

func (g *geminiExtractor) Keywords(ctx context.Context, query string) ([]string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(fmt.Sprintf(keywordPrompt, maxKeywords, query)), nil)
	if err != nil {
		return nil, err
	}
	return ParseKeywords(resp.Text()), nil
}

// ParseKeywords splits a model reply on commas and newlines, strips list
// markers and quotes, and dedupes case-insensitively.
func ParseKeywords(reply string) []string {
	fields := strings.FieldsFunc(reply, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(strings.TrimSpace(f), "-*•\"'`. ")
		if f == "" || utf8.RuneCountInString(f) > MaxTagLength {
			continue
		}
		key := strings.ToLower(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

// AISearchResult is the REST payload of an AI search.
type AISearchResult struct {
	Success        bool               `json:"success"`
	Query          string             `json:"query"`
	Keywords       []string           `json:"keywords"`
	Results        []*models.PostView `json:"results"`
	Count          int                `json:"count"`
	ProcessingTime int64              `json:"processingTime"`
}

type AISearchService struct {
	extractor KeywordExtractor
	search    *SearchService
	flags     *featureflags.Manager
	breaker   *gobreaker.CircuitBreaker[[]string]
}

func NewAISearchService(extractor KeywordExtractor, search *SearchService, flags *featureflags.Manager) *AISearchService {
	return &AISearchService{
		extractor: extractor,
		search:    search,
		flags:     flags,
		breaker:   newBreaker[[]string]("gemini"),
	}
}

// Available reports whether AI search can run for viewer.
func (s *AISearchService) Available(viewer *auth.Viewer) bool {
	return s.extractor != nil && s.flags.EnabledByDefault(featureflags.AISearch, viewer.Key())
}

func (s *AISearchService) Search(ctx context.Context, query string, page aggregate.Page, viewer *auth.Viewer) (*AISearchResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("Query is required")
	}
	if utf8.RuneCountInString(query) > MaxTermLength {
		return nil, models.NewValidationError(fmt.Sprintf("Query must be at most %d characters", MaxTermLength))
	}
	if !s.Available(viewer) {
		return nil, ErrAIDisabled
	}

	keywords, err := s.breaker.Execute(func() ([]string, error) {
		return s.extractor.Keywords(ctx, query)
	})
	if err != nil {
		if breakerOpen(err) {
			return nil, models.NewConfigError("AI search is temporarily unavailable", "circuit open")
		}
		return nil, &models.AppError{Code: models.CodeInternal, Message: "AI search failed", Err: err}
	}
	if len(keywords) == 0 {
		keywords = []string{query}
	}

	posts, err := s.search.KeywordSearch(ctx, keywords, page, viewer.ID())
	if err != nil {
		return nil, err
	}

	return &AISearchResult{
		Success:        true,
		Query:          query,
		Keywords:       keywords,
		Results:        posts,
		Count:          len(posts),
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}
