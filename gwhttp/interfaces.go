// Package gwhttp is the HTTP boundary the core sits behind (spec.md
// §6): a gorilla/mux router translating REST calls into
// Archiver/Retriever/Destroyer transactions. The external
// collaborators spec.md §1 says are "specified only by their
// interfaces" — collection storage, authentication, usage accounting,
// and metadata/key listing — are Go interfaces here, each with one
// thin in-memory reference implementation (memstore.go) sufficient to
// exercise the boundary end to end; spec.md's Non-goals explicitly
// exclude building out the real versions of these.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package gwhttp

import (
	"context"
	"net/http"
	"time"
)

// Collection is one customer collection (bucket), per spec.md §6's
// `GET .../collections` response shape ([name, iso8601_created]).
type Collection struct {
	Name      string
	CreatedAt time.Time
	Default   bool
}

// CollectionStore lists/creates/deletes collections and resolves the
// collection a request's Host targets (spec.md §6: "host selects
// collection").
type CollectionStore interface {
	ListCollections(ctx context.Context, user string) ([]Collection, error)
	CreateCollection(ctx context.Context, user, name string) error
	DeleteCollection(ctx context.Context, user, name string) error
	// ResolveHost maps the request Host header to a collection id,
	// for the data-plane endpoints that don't name a collection
	// explicitly.
	ResolveHost(ctx context.Context, user, host string) (collectionID uint32, err error)
}

// Authenticator is the HTTP auth boundary: it identifies the
// requesting user (or rejects the request) from request credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (user string, err error)
}

// UsageAccounting records bytes added per collection and answers
// space-usage queries (spec.md §6's `action=space_usage`).
type UsageAccounting interface {
	Added(ctx context.Context, collectionID uint32, timestamp time.Time, bytes int64)
	Removed(ctx context.Context, collectionID uint32, timestamp time.Time, bytes int64)
	SpaceUsage(ctx context.Context, collectionID uint32) (int64, error)
}

// KeyIndex tracks which unified_id is currently live for a
// (collection, key), and supports prefix listing (spec.md §6's
// `GET /data/?prefix=...`).
type KeyIndex interface {
	Put(ctx context.Context, collectionID uint32, key string, unifiedID uint64)
	Remove(ctx context.Context, collectionID uint32, key string)
	Resolve(ctx context.Context, collectionID uint32, key string) (unifiedID uint64, found bool)
	ListPrefix(ctx context.Context, collectionID uint32, prefix string) ([]string, error)
}
