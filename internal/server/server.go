// Package server contains the HTTP, GraphQL and WebSocket endpoints of the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "restjam/docs" // swagger docs
	"restjam/internal/auth"
	"restjam/internal/cache"
	"restjam/internal/config"
	"restjam/internal/database"
	"restjam/internal/encryption"
	"restjam/internal/featureflags"
	"restjam/internal/graph"
	"restjam/internal/middleware"
	"restjam/internal/models"
	"restjam/internal/notifications"
	"restjam/internal/repository"
	"restjam/internal/seed"
	"restjam/internal/service"
	"restjam/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/graph-gophers/graphql-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories are the stores the server reads and writes.
type Repositories struct {
	Posts    repository.PostRepository
	Tags     repository.TagRepository
	PostTags repository.PostTagRepository
	Ratings  repository.RatingRepository
	Users    repository.UserRepository
}

// NewRepositories builds the MongoDB repositories.
func NewRepositories(db *mongo.Database, cipher *encryption.Cipher) Repositories {
	return Repositories{
		Posts:    repository.NewPostRepository(db),
		Tags:     repository.NewTagRepository(db),
		PostTags: repository.NewPostTagRepository(db),
		Ratings:  repository.NewRatingRepository(db),
		Users:    repository.NewUserRepository(db, cipher),
	}
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *mongo.Database
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	repos          Repositories
	cipher         *encryption.Cipher
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	authenticator  *auth.Authenticator
	schema         *graphql.Schema
	mediaDir       string

	postService     *service.PostService
	searchService   *service.SearchService
	ratingService   *service.RatingService
	userService     *service.UserService
	imageService    *service.ImageService
	paymentService  *service.PaymentService
	aiSearchService *service.AISearchService
}

// NewServer connects MongoDB and Redis from cfg and builds the server.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.EnsureIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this when a bootstrap layer establishes MongoDB and Redis itself.
func NewServerWithDeps(cfg *config.Config, db *mongo.Database, redisClient *redis.Client) (*Server, error) {
	cipher := encryption.New(cfg.EffectiveEncryptionKey(), encryption.ParsePolicy(cfg.DecryptPolicy))
	s, err := newServer(cfg, NewRepositories(db, cipher), cipher, redisClient)
	if err != nil {
		return nil, err
	}
	s.db = db
	s.promMiddleware = middleware.InitMetrics("restjam-api")
	return s, nil
}

func newServer(cfg *config.Config, repos Repositories, cipher *encryption.Cipher, redisClient *redis.Client) (*Server, error) {
	store, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("image store: %w", err)
	}

	extractor, err := service.NewGeminiExtractor(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		middleware.Logger.Warn("gemini client unavailable, AI search disabled", "error", err)
		extractor = nil
	}

	s := &Server{
		config:       cfg,
		redis:        redisClient,
		repos:        repos,
		cipher:       cipher,
		hub:          notifications.NewHub(),
		featureFlags: featureflags.NewManager(cfg.FeatureFlags),
	}
	if local, ok := store.(*storage.LocalStore); ok {
		s.mediaDir = local.Dir()
	}

	// Feed events go through Redis when it is available so every instance
	// sees them; otherwise they only reach this instance's hub.
	var events notifications.Publisher = s.hub
	if redisClient != nil {
		s.notifier = notifications.NewNotifier(redisClient)
		events = s.notifier
	}

	verifier := auth.NewVerifier(cfg.FirebaseProjectID, auth.NewCertSource(auth.GoogleCertsURL, nil))
	s.authenticator = auth.NewAuthenticator(verifier, repos.Users)

	s.postService = service.NewPostService(repos.Posts, repos.Tags, repos.PostTags, repos.Ratings, repos.Users, cipher, events)
	s.searchService = service.NewSearchService(repos.Posts, repos.Tags, repos.PostTags, cipher)
	s.ratingService = service.NewRatingService(repos.Ratings)
	s.userService = service.NewUserService(repos.Users)
	s.imageService = service.NewImageService(store, cfg)
	s.paymentService = service.NewPaymentService(cfg, nil)
	s.aiSearchService = service.NewAISearchService(extractor, s.searchService, s.featureFlags)
	s.schema = graph.NewSchema(graph.NewResolver(s.postService, s.searchService, s.ratingService, s.userService))
	return s, nil
}

// Bootstrap ensures the default ratings and removes posts left behind by
// deleted users. It runs once before Start.
func (s *Server) Bootstrap(ctx context.Context) error {
	seeder := seed.NewSeeder(seed.Stores(s.repos), s.cipher)
	if err := seeder.EnsureDefaultRatings(ctx); err != nil {
		return err
	}
	if _, err := seeder.CleanupOrphanedPosts(ctx); err != nil {
		return err
	}
	return nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
}

// apiLimiter applies RATE_LIMIT_MAX_REQUESTS per RATE_LIMIT_WINDOW_MS per IP.
func (s *Server) apiLimiter() fiber.Handler {
	maxRequests := s.config.RateLimitMaxRequests
	if maxRequests <= 0 {
		maxRequests = 100
	}
	window := time.Duration(s.config.RateLimitWindowMS) * time.Millisecond
	if window <= 0 {
		window = 15 * time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	})
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if s.mediaDir != "" {
		app.Static(s.mediaURLPrefix(), s.mediaDir, fiber.Static{MaxAge: 31536000})
	}

	gql := app.Group("/graphql", s.apiLimiter(), s.OptionalAuth())
	gql.Get("/", graph.Handler(s.schema))
	gql.Post("/", graph.Handler(s.schema))

	api := app.Group("/api", s.apiLimiter())
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "RestJAM API Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Post("/upload-image", s.AuthRequired(), middleware.RateLimit(
		s.redis, 20, 10*time.Minute, "upload_image"), s.UploadImage)

	ratings := api.Group("/ratings")
	ratings.Get("/", s.GetRatings)
	ratings.Post("/", s.AuthRequired(), s.CreateRating)

	// Specific /search and /tags routes before generic /:id
	posts := api.Group("/posts", s.OptionalAuth())
	posts.Get("/", s.GetPosts)
	posts.Get("/search", middleware.RateLimit(
		s.redis, 30, time.Minute, "search"), s.SearchPosts)
	posts.Get("/tags", middleware.RateLimit(
		s.redis, 30, time.Minute, "search"), s.GetPostsByTags)
	posts.Get("/:id", s.GetPost)
	posts.Post("/", s.AuthRequired(), middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)

	api.Post("/payment/create-checkout-session", middleware.RateLimit(
		s.redis, 5, time.Minute, "checkout"), s.CreateCheckoutSession)

	api.Post("/ai-search", s.OptionalAuth(), middleware.RateLimit(
		s.redis, 10, time.Minute, "ai_search"), s.AISearch)

	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	ws := api.Group("/ws", s.WSTicketAuth())
	ws.Get("/feed", s.FeedHandler())
}

func (s *Server) mediaURLPrefix() string {
	prefix := s.config.ImagePublicURL
	if prefix == "" || prefix[0] != '/' {
		return "/media"
	}
	return prefix
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis == nil {
		redisStatus = "unavailable"
	} else if err := s.redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unhealthy"
	}

	// Redis is optional: the API degrades to no cache and local-only feed.
	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName:   "RestJAM API",
		BodyLimit: int(s.imageService.MaxUploadSizeBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
				code := models.CodeValidation
				if fe.Code == fiber.StatusNotFound {
					code = models.CodeNotFound
				}
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message, Code: code})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if s.notifier != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start feed wiring", "error", err)
			}
		}()
	}

	middleware.Logger.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down feed hub", "error", err)
	}

	if s.db != nil {
		if err := database.Close(ctx, s.db); err != nil {
			middleware.Logger.Error("error closing mongo client", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", "error", err)
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
