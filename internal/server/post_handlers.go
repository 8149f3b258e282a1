package server

import (
	"encoding/json"
	"strings"

	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetPosts handles GET /api/posts
//
//	@Summary	List posts, newest first
//	@Tags		posts
//	@Param		limit		query	int		false	"page size (max 100)"
//	@Param		offset		query	int		false	"items to skip"
//	@Param		location	query	string	false	"location contains"
//	@Param		placeName	query	string	false	"place name contains"
//	@Success	200			{array}	models.PostView
//	@Router		/posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c)
	filter := service.PostFilter{
		Location:  c.Query("location"),
		PlaceName: c.Query("placeName"),
		RatingID:  c.Query("ratingId"),
		AuthorID:  c.Query("authorId"),
	}

	posts, err := s.postService.List(c.UserContext(), filter, page, viewerOf(c).ID())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// SearchPosts handles GET /api/posts/search?q=...
//
//	@Summary	Search posts by text
//	@Tags		posts
//	@Param		q	query	string	true	"search term"
//	@Success	200	{array}	models.PostView
//	@Router		/posts/search [get]
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Search query is required"))
	}

	posts, err := s.searchService.Search(c.UserContext(), service.SearchInput{
		Term:     q,
		Location: c.Query("location"),
		Page:     parsePagination(c),
		Viewer:   viewerOf(c).ID(),
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetPostsByTags handles GET /api/posts/tags?tags=a,b
//
//	@Summary	Posts carrying any of the tags
//	@Tags		posts
//	@Param		tags	query	string	true	"comma-separated tag names"
//	@Success	200		{array}	models.PostView
//	@Router		/posts/tags [get]
func (s *Server) GetPostsByTags(c *fiber.Ctx) error {
	posts, err := s.searchService.SearchByTags(c.UserContext(),
		service.SplitTags(c.Query("tags")), parsePagination(c), viewerOf(c).ID())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(posts)
}

// GetPost handles GET /api/posts/:id
//
//	@Summary	Get one post
//	@Tags		posts
//	@Param		id	path		string	true	"post id"
//	@Success	200	{object}	models.PostView
//	@Failure	404	{object}	models.ErrorResponse
//	@Router		/posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postService.GetPost(c.UserContext(), id, viewerOf(c).ID())
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.JSON(post)
}

type createPostRequest struct {
	service.CreatePostInput
	// Tags accepts either a list or one comma-separated string.
	Tags json.RawMessage `json:"tags"`
}

func (r createPostRequest) tags() ([]string, error) {
	raw := strings.TrimSpace(string(r.Tags))
	if raw == "" || raw == "null" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "\"") {
		var joined string
		if err := json.Unmarshal(r.Tags, &joined); err != nil {
			return nil, err
		}
		return service.SplitTags(joined), nil
	}
	var list []string
	if err := json.Unmarshal(r.Tags, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// CreatePost handles POST /api/posts
//
//	@Summary	Create a post
//	@Tags		posts
//	@Security	BearerAuth
//	@Success	201	{object}	models.PostView
//	@Failure	400	{object}	models.ErrorResponse
//	@Router		/posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	tags, err := req.tags()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("tags must be a list or a comma-separated string"))
	}
	in := req.CreatePostInput
	in.Tags = tags

	post, err := s.postService.CreatePost(c.UserContext(), viewerOf(c).ID(), in)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}
