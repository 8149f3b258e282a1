package testutil

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"restjam/internal/aggregate"
	"restjam/internal/models"
	"restjam/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryDB is an in-memory stand-in for the MongoDB repositories. Aggregate
// understands the filters the services build: equality and $in on ids,
// case-insensitive regexes on string fields, and $or / $and.
type MemoryDB struct {
	mu      sync.Mutex
	posts   map[bson.ObjectID]*models.Post
	tags    map[bson.ObjectID]*models.Tag
	links   []models.PostTag
	ratings map[bson.ObjectID]*models.Rating
	users   map[bson.ObjectID]*models.User
}

// NewMemoryDB returns an empty store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		posts:   map[bson.ObjectID]*models.Post{},
		tags:    map[bson.ObjectID]*models.Tag{},
		ratings: map[bson.ObjectID]*models.Rating{},
		users:   map[bson.ObjectID]*models.User{},
	}
}

func (m *MemoryDB) Posts() repository.PostRepository { return memPosts{m} }
func (m *MemoryDB) Tags() repository.TagRepository { return memTags{m} }
func (m *MemoryDB) PostTags() repository.PostTagRepository { return memLinks{m} }
func (m *MemoryDB) Ratings() repository.RatingRepository { return memRatings{m} }
func (m *MemoryDB) Users() repository.UserRepository { return memUsers{m} }

// AddUser stores u, assigning an id when missing.
func (m *MemoryDB) AddUser(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	m.users[u.ID] = &u
	return &u
}

// AddRating stores r, assigning an id when missing.
func (m *MemoryDB) AddRating(r models.Rating) *models.Rating {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = bson.NewObjectID()
	}
	m.ratings[r.ID] = &r
	return &r
}

// PostCount reports how many posts are stored.
func (m *MemoryDB) PostCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts)
}

// LinkCount reports how many post-tag links are stored.
func (m *MemoryDB) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

type memPosts struct{ m *MemoryDB }

func (r memPosts) Create(_ context.Context, post *models.Post) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := time.Now().UTC()
	if post.ID.IsZero() {
		post.ID = bson.NewObjectID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now
	cp := *post
	r.m.posts[post.ID] = &cp
	return nil
}

func (r memPosts) GetByID(_ context.Context, id bson.ObjectID) (*models.Post, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPosts) Update(_ context.Context, id bson.ObjectID, in repository.PostUpdate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.posts[id]
	if !ok {
		return repository.ErrNotFound
	}
	setIf(&p.Title, in.Title)
	setIf(&p.PlaceName, in.PlaceName)
	setIf(&p.Content, in.Content)
	setIf(&p.Location, in.Location)
	setIf(&p.ImageURL, in.ImageURL)
	if in.Rating != nil {
		id := *in.Rating
		p.Rating = &id
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (r memPosts) Delete(_ context.Context, id bson.ObjectID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.posts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.m.posts, id)
	return nil
}

func (r memPosts) Toggle(_ context.Context, id, userID bson.ObjectID, mb repository.Membership) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.posts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	var list *[]bson.ObjectID
	var counter *int
	switch mb {
	case repository.Likes:
		list, counter = &p.Likes, &p.LikeCount
	case repository.Attendees:
		list, counter = &p.Attendees, &p.AttendeeCount
	case repository.Shares:
		list, counter = &p.SharedBy, &p.ShareCount
	default:
		return false, fmt.Errorf("unknown membership %q", mb.Field)
	}
	for i, u := range *list {
		if u == userID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			*counter--
			return false, nil
		}
	}
	*list = append(*list, userID)
	*counter++
	return true, nil
}

func (r memPosts) DeleteOrphaned(_ context.Context) ([]bson.ObjectID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var removed []bson.ObjectID
	for id, p := range r.m.posts {
		if _, ok := r.m.users[p.Author]; !ok {
			removed = append(removed, id)
			delete(r.m.posts, id)
		}
	}
	return removed, nil
}

func (r memPosts) Aggregate(_ context.Context, p aggregate.Pipeline) ([]*models.PostView, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var (
		filter bson.D
		skip   int64
		limit  int64 = -1
		viewer *bson.ObjectID
	)
	for _, stage := range p {
		switch s := stage.(type) {
		case aggregate.Match:
			filter = s.Filter
		case aggregate.Skip:
			skip = s.N
		case aggregate.Limit:
			limit = s.N
		case aggregate.AddFields:
			viewer = viewerFromFields(s.Fields)
		}
	}

	var matched []*models.Post
	for _, post := range r.m.posts {
		ok, err := matchDoc(post, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, post)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.Hex() > matched[j].ID.Hex()
	})

	if skip >= int64(len(matched)) {
		return []*models.PostView{}, nil
	}
	matched = matched[skip:]
	if limit >= 0 && limit < int64(len(matched)) {
		matched = matched[:limit]
	}

	views := make([]*models.PostView, 0, len(matched))
	for _, post := range matched {
		views = append(views, r.m.enrich(post, viewer))
	}
	return views, nil
}

func (m *MemoryDB) enrich(p *models.Post, viewer *bson.ObjectID) *models.PostView {
	v := &models.PostView{Post: *p, Tags: []models.Tag{}, LikedBy: []models.User{}, AttendeeUsers: []models.User{}}
	v.LikeCount = len(p.Likes)
	v.AttendeeCount = len(p.Attendees)
	if u, ok := m.users[p.Author]; ok {
		cp := *u
		v.AuthorUser = &cp
	}
	if p.Rating != nil {
		if rt, ok := m.ratings[*p.Rating]; ok {
			cp := *rt
			v.RatingDoc = &cp
		}
	}
	for _, l := range m.links {
		if l.PostID == p.ID {
			if t, ok := m.tags[l.TagID]; ok {
				v.Tags = append(v.Tags, *t)
			}
		}
	}
	for _, id := range p.Likes {
		if u, ok := m.users[id]; ok {
			v.LikedBy = append(v.LikedBy, *u)
		}
	}
	for _, id := range p.Attendees {
		if u, ok := m.users[id]; ok {
			v.AttendeeUsers = append(v.AttendeeUsers, *u)
		}
	}
	if viewer != nil {
		v.IsLiked = containsID(p.Likes, *viewer)
		v.IsWantToGo = containsID(p.Attendees, *viewer)
		v.IsOwner = p.Author == *viewer
	}
	return v
}

// viewerFromFields recovers the viewer id from the isOwner expression.
func viewerFromFields(fields bson.D) *bson.ObjectID {
	for _, f := range fields {
		if f.Key != "isOwner" {
			continue
		}
		expr, ok := f.Value.(bson.D)
		if !ok || len(expr) == 0 {
			return nil
		}
		args, ok := expr[0].Value.(bson.A)
		if !ok || len(args) != 2 {
			return nil
		}
		if id, ok := args[1].(bson.ObjectID); ok {
			return &id
		}
	}
	return nil
}

func containsID(ids []bson.ObjectID, id bson.ObjectID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func matchDoc(p *models.Post, filter bson.D) (bool, error) {
	for _, e := range filter {
		ok, err := matchElem(p, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElem(p *models.Post, e bson.E) (bool, error) {
	switch e.Key {
	case "$or", "$and":
		clauses, ok := e.Value.(bson.A)
		if !ok {
			return false, fmt.Errorf("memrepo: %s needs bson.A", e.Key)
		}
		for _, c := range clauses {
			d, ok := c.(bson.D)
			if !ok {
				return false, fmt.Errorf("memrepo: %s clause must be bson.D", e.Key)
			}
			hit, err := matchDoc(p, d)
			if err != nil {
				return false, err
			}
			if e.Key == "$or" && hit {
				return true, nil
			}
			if e.Key == "$and" && !hit {
				return false, nil
			}
		}
		return e.Key == "$and", nil
	case "_id":
		return matchID(p.ID, e.Value)
	case "author":
		return matchID(p.Author, e.Value)
	case "rating":
		if p.Rating == nil {
			return false, nil
		}
		return matchID(*p.Rating, e.Value)
	case "title":
		return matchString(p.Title, e.Value)
	case "content":
		return matchString(p.Content, e.Value)
	case "placeName":
		return matchString(p.PlaceName, e.Value)
	case "location":
		return matchString(p.Location, e.Value)
	}
	return false, fmt.Errorf("memrepo: unsupported filter key %q", e.Key)
}

func matchID(id bson.ObjectID, v interface{}) (bool, error) {
	switch want := v.(type) {
	case bson.ObjectID:
		return id == want, nil
	case bson.D:
		if len(want) == 1 && want[0].Key == "$in" {
			if ids, ok := want[0].Value.([]bson.ObjectID); ok {
				return containsID(ids, id), nil
			}
		}
	}
	return false, fmt.Errorf("memrepo: unsupported id condition %T", v)
}

func matchString(s string, v interface{}) (bool, error) {
	switch want := v.(type) {
	case string:
		return s == want, nil
	case bson.Regex:
		pattern := want.Pattern
		if strings.Contains(want.Options, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("memrepo: unsupported string condition %T", v)
}

type memTags struct{ m *MemoryDB }

func (r memTags) FindIDsMatching(_ context.Context, names []string) ([]bson.ObjectID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []bson.ObjectID
	for id, t := range r.m.tags {
		for _, n := range names {
			if strings.Contains(strings.ToLower(t.Name), strings.ToLower(n)) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (r memTags) FindByName(_ context.Context, name string) (*models.Tag, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, t := range r.m.tags {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memTags) FindOrCreate(ctx context.Context, name string) (*models.Tag, error) {
	if t, err := r.FindByName(ctx, name); err == nil {
		return t, nil
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	t := &models.Tag{ID: bson.NewObjectID(), Name: strings.TrimSpace(name), CreatedAt: time.Now().UTC()}
	r.m.tags[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r memTags) List(_ context.Context, limit int64) ([]models.Tag, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]models.Tag, 0, len(r.m.tags))
	for _, t := range r.m.tags {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memLinks struct{ m *MemoryDB }

func (r memLinks) PostIDsForTags(_ context.Context, tagIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []bson.ObjectID
	for _, l := range r.m.links {
		if containsID(tagIDs, l.TagID) && !containsID(out, l.PostID) {
			out = append(out, l.PostID)
		}
	}
	return out, nil
}

func (r memLinks) Link(_ context.Context, postID, tagID bson.ObjectID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.links {
		if l.PostID == postID && l.TagID == tagID {
			return nil
		}
	}
	r.m.links = append(r.m.links, models.PostTag{ID: bson.NewObjectID(), PostID: postID, TagID: tagID})
	return nil
}

func (r memLinks) Unlink(_ context.Context, postID, tagID bson.ObjectID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.links = filterLinks(r.m.links, func(l models.PostTag) bool { return l.PostID != postID || l.TagID != tagID })
	return nil
}

func (r memLinks) DeleteByPost(_ context.Context, postID bson.ObjectID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.links = filterLinks(r.m.links, func(l models.PostTag) bool { return l.PostID != postID })
	return nil
}

func filterLinks(links []models.PostTag, keep func(models.PostTag) bool) []models.PostTag {
	out := links[:0]
	for _, l := range links {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

type memRatings struct{ m *MemoryDB }

func (r memRatings) List(_ context.Context) ([]models.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]models.Rating, 0, len(r.m.ratings))
	for _, rt := range r.m.ratings {
		out = append(out, *rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out, nil
}

func (r memRatings) GetByID(_ context.Context, id bson.ObjectID) (*models.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rt, ok := r.m.ratings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (r memRatings) Create(_ context.Context, rating *models.Rating) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rating.ID = bson.NewObjectID()
	cp := *rating
	r.m.ratings[rating.ID] = &cp
	return nil
}

func (r memRatings) UpsertByType(_ context.Context, rating models.Rating) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, rt := range r.m.ratings {
		if rt.Type == rating.Type {
			return nil
		}
	}
	rating.ID = bson.NewObjectID()
	r.m.ratings[rating.ID] = &rating
	return nil
}

type memUsers struct{ m *MemoryDB }

func (r memUsers) UpsertByFirebaseUID(_ context.Context, p models.UserProfile) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.FirebaseUID == p.FirebaseUID {
			applyProfile(u, p)
			cp := *u
			return &cp, nil
		}
	}
	u := &models.User{ID: bson.NewObjectID(), FirebaseUID: p.FirebaseUID, CreatedAt: time.Now().UTC()}
	applyProfile(u, p)
	r.m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByID(_ context.Context, id bson.ObjectID) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if u.FirebaseUID == uid {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) UpdateProfile(_ context.Context, id bson.ObjectID, p models.UserProfile) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	applyProfile(u, p)
	cp := *u
	return &cp, nil
}

func applyProfile(u *models.User, p models.UserProfile) {
	for dst, v := range map[*string]string{
		&u.DisplayName: p.DisplayName,
		&u.PhotoURL:    p.PhotoURL,
		&u.FirstName:   p.FirstName,
		&u.LastName:    p.LastName,
		&u.Email:       strings.ToLower(strings.TrimSpace(p.Email)),
	} {
		if v != "" {
			*dst = v
		}
	}
	u.UpdatedAt = time.Now().UTC()
}

func (r memUsers) SetRelation(_ context.Context, userID bson.ObjectID, field string, postID bson.ObjectID, present bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.users[userID]
	if !ok {
		return nil
	}
	var list *[]bson.ObjectID
	switch field {
	case repository.LikedPosts:
		list = &u.LikedPosts
	case repository.WantToGoPosts:
		list = &u.WantToGoPosts
	default:
		return fmt.Errorf("unknown relation %q", field)
	}
	*list = removeID(*list, postID)
	if present {
		*list = append(*list, postID)
	}
	return nil
}

func (r memUsers) PullPostFromAll(_ context.Context, postID bson.ObjectID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.users {
		u.LikedPosts = removeID(u.LikedPosts, postID)
		u.WantToGoPosts = removeID(u.WantToGoPosts, postID)
	}
	return nil
}

func removeID(ids []bson.ObjectID, id bson.ObjectID) []bson.ObjectID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
