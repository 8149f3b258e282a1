package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"restjam/internal/aggregate"
	"restjam/internal/auth"
	"restjam/internal/featureflags"
	"restjam/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type extractorStub struct {
	calls    int
	keywords []string
	err      error
}

func (e *extractorStub) Keywords(_ context.Context, _ string) ([]string, error) {
	e.calls++
	return e.keywords, e.err
}

func newAIFixture(extractor KeywordExtractor, flags string) (*AISearchService, *[]aggregate.Pipeline) {
	posts, seen := capturingPosts(&models.PostView{Post: models.Post{ID: bson.NewObjectID(), Title: "Tacos"}})
	search := NewSearchService(posts, newTagRepoStub(), newLinkRepoStub(), nil)
	return NewAISearchService(extractor, search, featureflags.NewManager(flags)), seen
}

func TestAISearch_RejectsBadQueries(t *testing.T) {
	t.Parallel()
	extractor := &extractorStub{keywords: []string{"tacos"}}
	svc, seen := newAIFixture(extractor, "")

	_, err := svc.Search(context.Background(), "   ", aggregate.Page{}, nil)
	requireCode(t, err, models.CodeValidation)
	assert.Contains(t, err.Error(), "Query is required")

	_, err = svc.Search(context.Background(), strings.Repeat("q", MaxTermLength+1), aggregate.Page{}, nil)
	requireCode(t, err, models.CodeValidation)

	assert.Zero(t, extractor.calls)
	assert.Empty(t, *seen)
}

func TestAISearch_Disabled(t *testing.T) {
	t.Parallel()

	t.Run("no extractor", func(t *testing.T) {
		t.Parallel()
		svc, _ := newAIFixture(nil, "")
		assert.False(t, svc.Available(nil))

		_, err := svc.Search(context.Background(), "cheap tacos", aggregate.Page{}, nil)
		assert.ErrorIs(t, err, ErrAIDisabled)
		assert.Equal(t, 503, models.StatusFor(err))
	})

	t.Run("flag off", func(t *testing.T) {
		t.Parallel()
		extractor := &extractorStub{keywords: []string{"tacos"}}
		svc, _ := newAIFixture(extractor, "ai_search=off")

		_, err := svc.Search(context.Background(), "cheap tacos", aggregate.Page{}, &auth.Viewer{UserID: bson.NewObjectID()})
		assert.ErrorIs(t, err, ErrAIDisabled)
		assert.Zero(t, extractor.calls)
	})
}

func TestAISearch_UsesExtractedKeywords(t *testing.T) {
	t.Parallel()
	extractor := &extractorStub{keywords: []string{"tacos", "Kensington"}}
	svc, seen := newAIFixture(extractor, "ai_search=on")

	res, err := svc.Search(context.Background(), " cheap tacos near Kensington ", aggregate.Page{Limit: 20}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "cheap tacos near Kensington", res.Query)
	assert.Equal(t, []string{"tacos", "Kensington"}, res.Keywords)
	assert.Equal(t, 1, res.Count)
	assert.GreaterOrEqual(t, res.ProcessingTime, int64(0))

	require.Len(t, *seen, 1)
	clauses := matchFilter(t, (*seen)[0])[0].Value.(bson.A)
	assert.Len(t, clauses, 2*len(textSearchFields))
	assert.Equal(t, aggregate.Limit{N: 20}, (*seen)[0][3])
}

func TestAISearch_FallsBackToQuery(t *testing.T) {
	t.Parallel()
	svc, seen := newAIFixture(&extractorStub{}, "")

	res, err := svc.Search(context.Background(), "dim sum", aggregate.Page{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dim sum"}, res.Keywords)
	require.Len(t, *seen, 1)
}

func TestAISearch_ExtractorFailure(t *testing.T) {
	t.Parallel()
	extractor := &extractorStub{err: errors.New("quota exceeded")}
	svc, seen := newAIFixture(extractor, "")

	for i := 0; i < 5; i++ {
		_, err := svc.Search(context.Background(), "pho", aggregate.Page{}, nil)
		requireCode(t, err, models.CodeInternal)
		assert.Contains(t, err.Error(), "AI search failed")
	}

	_, err := svc.Search(context.Background(), "pho", aggregate.Page{}, nil)
	requireCode(t, err, models.CodeConfig)
	assert.Equal(t, 5, extractor.calls)
	assert.Empty(t, *seen)
}

func TestParseKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"comma separated", "tacos, cheap, Toronto", []string{"tacos", "cheap", "Toronto"}},
		{"list markers and quotes", "- \"ramen\"\n* Noodles.\n• broth", []string{"ramen", "Noodles", "broth"}},
		{"dedupes case-insensitively", "Sushi, sushi; SUSHI", []string{"Sushi"}},
		{"empty", "  \n , ", []string{}},
		{"caps at eight", "a,b,c,d,e,f,g,h,i,j", []string{"a", "b", "c", "d", "e", "f", "g", "h"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseKeywords(tt.reply))
		})
	}
}

func TestNewGeminiExtractor_EmptyKey(t *testing.T) {
	t.Parallel()
	extractor, err := NewGeminiExtractor(context.Background(), "", "gemini-1.5-flash")
	require.NoError(t, err)
	assert.Nil(t, extractor)
}
