// Command seed fills a development database with demo users and posts.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"restjam/internal/config"
	"restjam/internal/database"
	"restjam/internal/encryption"
	"restjam/internal/seed"
	"restjam/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 60, "Number of posts to create")
	randSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	ratingsOnly := flag.Bool("ratings-only", false, "Only ensure the default ratings")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to read .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed demo data with APP_ENV=production")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(context.Background(), db) }()

	if err := database.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	cipher := encryption.New(cfg.EffectiveEncryptionKey(), encryption.ParsePolicy(cfg.DecryptPolicy))
	seeder := seed.NewSeeder(seed.Stores(server.NewRepositories(db, cipher)), cipher)

	if *ratingsOnly {
		if err := seeder.EnsureDefaultRatings(ctx); err != nil {
			log.Fatalf("Rating seeding failed: %v", err)
		}
		log.Println("Default ratings ensured")
		return
	}

	log.Printf("Target: %d users, %d posts", *numUsers, *numPosts)
	res, err := seeder.Demo(ctx, seed.Options{Users: *numUsers, Posts: *numPosts, Seed: *randSeed})
	if err != nil {
		log.Fatalf("Demo seeding failed: %v", err)
	}
	log.Printf("Created %d users, %d posts and %d reactions", res.Users, res.Posts, res.Reactions)
}
