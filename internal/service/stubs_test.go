package service

import (
	"context"
	"strings"
	"sync"

	"restjam/internal/aggregate"
	"restjam/internal/models"
	"restjam/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn         func(context.Context, *models.Post) error
	getByIDFn        func(context.Context, bson.ObjectID) (*models.Post, error)
	aggregateFn      func(context.Context, aggregate.Pipeline) ([]*models.PostView, error)
	updateFn         func(context.Context, bson.ObjectID, repository.PostUpdate) error
	deleteFn         func(context.Context, bson.ObjectID) error
	toggleFn         func(context.Context, bson.ObjectID, bson.ObjectID, repository.Membership) (bool, error)
	deleteOrphanedFn func(context.Context) ([]bson.ObjectID, error)
}

func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id bson.ObjectID) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) Aggregate(ctx context.Context, p aggregate.Pipeline) ([]*models.PostView, error) {
	return s.aggregateFn(ctx, p)
}
func (s *postRepoStub) Update(ctx context.Context, id bson.ObjectID, in repository.PostUpdate) error {
	return s.updateFn(ctx, id, in)
}
func (s *postRepoStub) Delete(ctx context.Context, id bson.ObjectID) error {
	return s.deleteFn(ctx, id)
}
func (s *postRepoStub) Toggle(ctx context.Context, id, userID bson.ObjectID, m repository.Membership) (bool, error) {
	return s.toggleFn(ctx, id, userID, m)
}
func (s *postRepoStub) DeleteOrphaned(ctx context.Context) ([]bson.ObjectID, error) {
	return s.deleteOrphanedFn(ctx)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:  func(_ context.Context, p *models.Post) error { p.ID = bson.NewObjectID(); return nil },
		getByIDFn: func(_ context.Context, _ bson.ObjectID) (*models.Post, error) { return nil, repository.ErrNotFound },
		aggregateFn: func(_ context.Context, _ aggregate.Pipeline) ([]*models.PostView, error) {
			return []*models.PostView{}, nil
		},
		updateFn: func(_ context.Context, _ bson.ObjectID, _ repository.PostUpdate) error { return nil },
		deleteFn: func(_ context.Context, _ bson.ObjectID) error { return nil },
		toggleFn: func(_ context.Context, _, _ bson.ObjectID, _ repository.Membership) (bool, error) {
			return true, nil
		},
		deleteOrphanedFn: func(_ context.Context) ([]bson.ObjectID, error) { return nil, nil },
	}
}

// tagRepoStub keeps tags in memory, unique by lowercased name.
type tagRepoStub struct {
	mu          sync.Mutex
	byName      map[string]models.Tag
	matchCalls  int
	matchFn     func([]string) []bson.ObjectID
	findOrCalls []string
}

func newTagRepoStub() *tagRepoStub {
	return &tagRepoStub{byName: map[string]models.Tag{}}
}

func (s *tagRepoStub) FindIDsMatching(_ context.Context, names []string) ([]bson.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchCalls++
	if s.matchFn != nil {
		return s.matchFn(names), nil
	}
	return nil, nil
}

func (s *tagRepoStub) FindByName(_ context.Context, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byName[lower(name)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *tagRepoStub) FindOrCreate(_ context.Context, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findOrCalls = append(s.findOrCalls, name)
	if t, ok := s.byName[lower(name)]; ok {
		return &t, nil
	}
	t := models.Tag{ID: bson.NewObjectID(), Name: name}
	s.byName[lower(name)] = t
	return &t, nil
}

func (s *tagRepoStub) List(_ context.Context, _ int64) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tag, 0, len(s.byName))
	for _, t := range s.byName {
		out = append(out, t)
	}
	return out, nil
}

// linkRepoStub records join-table calls.
type linkRepoStub struct {
	mu            sync.Mutex
	links         map[bson.ObjectID][]bson.ObjectID
	postIDsCalls  int
	postIDsFn     func([]bson.ObjectID) []bson.ObjectID
	deletedByPost []bson.ObjectID
}

func newLinkRepoStub() *linkRepoStub {
	return &linkRepoStub{links: map[bson.ObjectID][]bson.ObjectID{}}
}

func (s *linkRepoStub) PostIDsForTags(_ context.Context, tagIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postIDsCalls++
	if s.postIDsFn != nil {
		return s.postIDsFn(tagIDs), nil
	}
	return nil, nil
}

func (s *linkRepoStub) Link(_ context.Context, postID, tagID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.links[postID] {
		if id == tagID {
			return nil
		}
	}
	s.links[postID] = append(s.links[postID], tagID)
	return nil
}

func (s *linkRepoStub) Unlink(_ context.Context, postID, tagID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.links[postID][:0]
	for _, id := range s.links[postID] {
		if id != tagID {
			kept = append(kept, id)
		}
	}
	s.links[postID] = kept
	return nil
}

func (s *linkRepoStub) DeleteByPost(_ context.Context, postID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, postID)
	s.deletedByPost = append(s.deletedByPost, postID)
	return nil
}

// ratingRepoStub serves a fixed set of ratings.
type ratingRepoStub struct {
	ratings   []models.Rating
	listCalls int
	upserts   []string
}

func (s *ratingRepoStub) List(_ context.Context) ([]models.Rating, error) {
	s.listCalls++
	return s.ratings, nil
}

func (s *ratingRepoStub) GetByID(_ context.Context, id bson.ObjectID) (*models.Rating, error) {
	for _, r := range s.ratings {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *ratingRepoStub) Create(_ context.Context, r *models.Rating) error {
	r.ID = bson.NewObjectID()
	s.ratings = append(s.ratings, *r)
	return nil
}

func (s *ratingRepoStub) UpsertByType(_ context.Context, r models.Rating) error {
	for _, t := range s.upserts {
		if t == r.Type {
			return nil
		}
	}
	s.upserts = append(s.upserts, r.Type)
	return nil
}

type relationCall struct {
	UserID  bson.ObjectID
	Field   string
	PostID  bson.ObjectID
	Present bool
}

// userRepoStub records relation writes.
type userRepoStub struct {
	mu        sync.Mutex
	users     map[bson.ObjectID]*models.User
	relations []relationCall
	pulled    []bson.ObjectID
}

func newUserRepoStub() *userRepoStub {
	return &userRepoStub{users: map[bson.ObjectID]*models.User{}}
}

func (s *userRepoStub) UpsertByFirebaseUID(_ context.Context, p models.UserProfile) (*models.User, error) {
	u := &models.User{ID: bson.NewObjectID(), FirebaseUID: p.FirebaseUID, Email: p.Email}
	s.users[u.ID] = u
	return u, nil
}

func (s *userRepoStub) GetByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) GetByFirebaseUID(_ context.Context, _ string) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) GetByEmail(_ context.Context, _ string) (*models.User, error) {
	return nil, repository.ErrNotFound
}

func (s *userRepoStub) UpdateProfile(_ context.Context, id bson.ObjectID, p models.UserProfile) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.DisplayName != "" {
		u.DisplayName = p.DisplayName
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	return u, nil
}

func (s *userRepoStub) SetRelation(_ context.Context, userID bson.ObjectID, field string, postID bson.ObjectID, present bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations = append(s.relations, relationCall{UserID: userID, Field: field, PostID: postID, Present: present})
	return nil
}

func (s *userRepoStub) PullPostFromAll(_ context.Context, postID bson.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulled = append(s.pulled, postID)
	return nil
}

// publisherStub captures feed events.
type publisherStub struct {
	mu       sync.Mutex
	payloads []string
}

func (p *publisherStub) PublishBroadcast(_ context.Context, payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

// memoryStore is an in-memory storage.ObjectStore.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, key, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (m *memoryStore) Name() string { return "memory" }

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
