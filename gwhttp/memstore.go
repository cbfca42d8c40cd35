package gwhttp

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbus-io/gateway/cmn"
)

// MemCollectionStore is the one reference CollectionStore: an
// in-process map, good enough to exercise the HTTP boundary in tests
// (spec.md's Non-goals exclude a real collection/user database).
// Every user gets an implicit "default" collection that cannot be
// deleted, and every request Host resolves to that user's default
// collection. Collection ids come from one store-wide counter, so the
// default collection's id is 1 only for the first user seen.
type MemCollectionStore struct {
	mu          sync.Mutex
	nextID      uint32
	collections map[string]map[string]*memCollection // user -> name -> collection
}

type memCollection struct {
	id        uint32
	createdAt time.Time
	isDefault bool
}

func NewMemCollectionStore() *MemCollectionStore {
	return &MemCollectionStore{nextID: 1, collections: make(map[string]map[string]*memCollection)}
}

func (s *MemCollectionStore) ensureUser(user string) map[string]*memCollection {
	byName, ok := s.collections[user]
	if !ok {
		byName = map[string]*memCollection{
			"default": {id: s.allocID(), createdAt: time.Unix(0, 0), isDefault: true},
		}
		s.collections[user] = byName
	}
	return byName
}

func (s *MemCollectionStore) allocID() uint32 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *MemCollectionStore) ListCollections(ctx context.Context, user string) ([]Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.ensureUser(user)
	out := make([]Collection, 0, len(byName))
	for name, c := range byName {
		out = append(out, Collection{Name: name, CreatedAt: c.createdAt, Default: c.isDefault})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemCollectionStore) CreateCollection(ctx context.Context, user, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.ensureUser(user)
	if _, exists := byName[name]; exists {
		return nil
	}
	byName[name] = &memCollection{id: s.allocID(), createdAt: time.Now()}
	return nil
}

func (s *MemCollectionStore) DeleteCollection(ctx context.Context, user, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.ensureUser(user)
	c, ok := byName[name]
	if !ok {
		return cmn.ErrNotFound
	}
	if c.isDefault {
		return cmn.ErrServiceUnavailable // default collection cannot be deleted (spec.md §6)
	}
	delete(byName, name)
	return nil
}

func (s *MemCollectionStore) ResolveHost(ctx context.Context, user, host string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName := s.ensureUser(user)
	// The reference store doesn't model host->collection vhost
	// routing; every host resolves to the user's default collection.
	return byName["default"].id, nil
}

// MemUsageAccounting tracks bytes added/removed per collection.
type MemUsageAccounting struct {
	mu    sync.Mutex
	bytes map[uint32]int64
}

func NewMemUsageAccounting() *MemUsageAccounting {
	return &MemUsageAccounting{bytes: make(map[uint32]int64)}
}

func (a *MemUsageAccounting) Added(ctx context.Context, collectionID uint32, timestamp time.Time, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bytes[collectionID] += n
}

func (a *MemUsageAccounting) Removed(ctx context.Context, collectionID uint32, timestamp time.Time, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bytes[collectionID] -= n
}

func (a *MemUsageAccounting) SpaceUsage(ctx context.Context, collectionID uint32) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bytes[collectionID], nil
}

// MemKeyIndex is an in-process (collectionID, key) -> unified_id map
// with prefix listing.
type MemKeyIndex struct {
	mu   sync.Mutex
	keys map[uint32]map[string]uint64
}

func NewMemKeyIndex() *MemKeyIndex {
	return &MemKeyIndex{keys: make(map[uint32]map[string]uint64)}
}

func (k *MemKeyIndex) Put(ctx context.Context, collectionID uint32, key string, unifiedID uint64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	byKey, ok := k.keys[collectionID]
	if !ok {
		byKey = make(map[string]uint64)
		k.keys[collectionID] = byKey
	}
	byKey[key] = unifiedID
}

func (k *MemKeyIndex) Remove(ctx context.Context, collectionID uint32, key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys[collectionID], key)
}

func (k *MemKeyIndex) Resolve(ctx context.Context, collectionID uint32, key string) (uint64, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	unifiedID, ok := k.keys[collectionID][key]
	return unifiedID, ok
}

func (k *MemKeyIndex) ListPrefix(ctx context.Context, collectionID uint32, prefix string) ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []string
	for key := range k.keys[collectionID] {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemAuthenticator accepts any request carrying a non-empty
// "X-Nimbusio-User" header, using its value as the authenticated
// user. Real signature-based auth is a spec.md Non-goal; this is
// deliberately the thinnest boundary that still lets every handler
// exercise an authenticated user identity.
type MemAuthenticator struct{}

func NewMemAuthenticator() *MemAuthenticator { return &MemAuthenticator{} }

func (a *MemAuthenticator) Authenticate(r *http.Request) (string, error) {
	user := r.Header.Get("X-Nimbusio-User")
	if user == "" {
		return "", cmn.ErrUnauthorized
	}
	return user, nil
}
