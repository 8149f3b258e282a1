package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	PostKeyPrefix         = "post:%s"
	FirebaseUserKeyPrefix = "user:fb:%s"
	RatingsKey            = "ratings:all"
)

const (
	PostTTL    = 5 * time.Minute
	UserTTL    = 30 * time.Minute
	RatingsTTL = time.Hour
)

// PostKey caches the anonymous view of a post; viewer-specific flags are never cached.
func PostKey(postID string) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

func FirebaseUserKey(uid string) string {
	return fmt.Sprintf(FirebaseUserKeyPrefix, uid)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidatePost(ctx context.Context, postID string) {
	Invalidate(ctx, PostKey(postID))
}
