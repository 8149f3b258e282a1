package aggregate

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Collection names joined by the post pipeline.
const (
	UsersCollection     = "users"
	RatingsCollection   = "ratings"
	PostsTagsCollection = "postsTags"
	TagsCollection      = "tags"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is a limit/offset window over the sorted result.
type Page struct {
	Limit  int
	Offset int
}

// Normalize applies the default limit, caps it and clamps a negative offset.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// BuildPostPipeline returns the pipeline that reads posts matching filter,
// newest first, paginated, and enriched with author, rating, tags, liker and
// attendee users plus the viewer-relative flags. A nil viewer yields literal
// false flags.
//
// Pagination runs before the joins; the sort keys are base-document fields so
// the page is the same as paginating the joined result.
func BuildPostPipeline(filter bson.D, viewer *bson.ObjectID, page Page) Pipeline {
	page = page.Normalize()

	return Pipeline{
		Match{Filter: filter},
		Sort{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		Skip{N: int64(page.Offset)},
		Limit{N: int64(page.Limit)},
		Lookup{From: UsersCollection, LocalField: "author", ForeignField: "_id", As: "authorUser"},
		Lookup{From: RatingsCollection, LocalField: "rating", ForeignField: "_id", As: "ratingDoc"},
		Lookup{From: PostsTagsCollection, LocalField: "_id", ForeignField: "postId", As: "postTags"},
		Lookup{From: TagsCollection, LocalField: "postTags.tagId", ForeignField: "_id", As: "tags"},
		Lookup{From: UsersCollection, LocalField: "likes", ForeignField: "_id", As: "likedByUsers"},
		Lookup{From: UsersCollection, LocalField: "attendees", ForeignField: "_id", As: "attendeeUsers"},
		AddFields{Fields: enrichFields(viewer)},
		Project{Exclude: []string{"postTags"}},
	}
}

func enrichFields(viewer *bson.ObjectID) bson.D {
	fields := bson.D{
		{Key: "authorUser", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$authorUser", 0}}}},
		{Key: "ratingDoc", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$ratingDoc", 0}}}},
		{Key: "likeCount", Value: sizeOf("$likes")},
		{Key: "attendeeCount", Value: sizeOf("$attendees")},
	}

	if viewer == nil {
		return append(fields,
			bson.E{Key: "isLiked", Value: false},
			bson.E{Key: "isWantToGo", Value: false},
			bson.E{Key: "isOwner", Value: false},
		)
	}

	id := *viewer
	return append(fields,
		bson.E{Key: "isLiked", Value: bson.D{{Key: "$in", Value: bson.A{id, orEmpty("$likes")}}}},
		bson.E{Key: "isWantToGo", Value: bson.D{{Key: "$in", Value: bson.A{id, orEmpty("$attendees")}}}},
		bson.E{Key: "isOwner", Value: bson.D{{Key: "$eq", Value: bson.A{"$author", id}}}},
	)
}

func orEmpty(field string) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{field, bson.A{}}}}
}

func sizeOf(field string) bson.D {
	return bson.D{{Key: "$size", Value: orEmpty(field)}}
}
