// Package auth verifies Firebase ID tokens and carries the request viewer.
package auth

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Viewer is the authenticated caller of a request. A nil *Viewer is an
// anonymous caller.
type Viewer struct {
	UserID      bson.ObjectID
	FirebaseUID string
	Email       string
}

type viewerKey struct{}

// WithViewer returns a copy of ctx carrying v.
func WithViewer(ctx context.Context, v *Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFrom returns the viewer stored in ctx, or nil.
func ViewerFrom(ctx context.Context) *Viewer {
	v, _ := ctx.Value(viewerKey{}).(*Viewer)
	return v
}

// ID returns the viewer's user id, or nil for anonymous callers.
func (v *Viewer) ID() *bson.ObjectID {
	if v == nil {
		return nil
	}
	id := v.UserID
	return &id
}

// Key is a stable string for rate limiting and rollouts; empty when anonymous.
func (v *Viewer) Key() string {
	if v == nil {
		return ""
	}
	return v.UserID.Hex()
}
