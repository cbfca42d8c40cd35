// Package gwhttp wires the core (archiver/retriever/destroyer) behind
// the REST boundary of spec.md §6, translating each endpoint into one
// transaction against the cluster and mapping the resulting error kind
// onto an HTTP status code. Grounded on the teacher's ais/prxtarget.go
// request handlers, which do the identical job for AIStore's own REST
// surface: parse the request, run a transaction against the cluster,
// map the outcome onto a status code and body.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package gwhttp

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/nimbus-io/gateway/archiver"
	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/destroyer"
	"github.com/nimbus-io/gateway/ec"
	"github.com/nimbus-io/gateway/gwlog"
	"github.com/nimbus-io/gateway/retriever"
	"github.com/nimbus-io/gateway/stats"
	"github.com/nimbus-io/gateway/transport"
)

var log = gwlog.New("gwhttp")

// Server holds everything a request handler needs to run a transaction
// against the cluster and reach the external collaborators (spec.md
// §1's "specified only by their interfaces").
type Server struct {
	topo *cluster.Topology
	pool *transport.Pool
	seg  *ec.Segmenter
	k    int

	Collections CollectionStore
	Auth        Authenticator
	Usage       UsageAccounting
	Keys        KeyIndex
	Stats       *stats.Gateway
}

// NewServer builds a Server. seg and k must agree with the cluster's
// fixed erasure scheme (spec.md §4.2: "fixed per cluster").
func NewServer(topo *cluster.Topology, pool *transport.Pool, seg *ec.Segmenter, k int, collections CollectionStore, auth Authenticator, usage UsageAccounting, keys KeyIndex, st *stats.Gateway) *Server {
	return &Server{
		topo:        topo,
		pool:        pool,
		seg:         seg,
		k:           k,
		Collections: collections,
		Auth:        auth,
		Usage:       usage,
		Keys:        keys,
		Stats:       st,
	}
}

// Router builds the gorilla/mux router for every endpoint in spec.md §6.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/customers/{user}/collections", s.authenticated(s.listCollections)).Methods(http.MethodGet)
	r.HandleFunc("/customers/{user}/collections/{name}", s.authenticated(s.collectionAction)).Methods(http.MethodGet)
	r.HandleFunc("/customers/{user}/collections/{name}", s.authenticated(s.createCollection)).Methods(http.MethodPost)
	r.HandleFunc("/customers/{user}/collections/{name}", s.authenticated(s.deleteCollection)).Methods(http.MethodDelete)
	r.HandleFunc("/data/", s.authenticated(s.listPrefix)).Methods(http.MethodGet)
	r.HandleFunc("/data/{key}", s.authenticated(s.archiveKey)).Methods(http.MethodPost)
	r.HandleFunc("/data/{key}", s.authenticated(s.retrieveKey)).Methods(http.MethodGet)
	r.HandleFunc("/data/{key}", s.authenticated(s.headKey)).Methods(http.MethodHead)
	r.HandleFunc("/data/{key}", s.authenticated(s.destroyKey)).Methods(http.MethodDelete)
	return r
}

// authenticated wraps h, rejecting the request with 401 before h ever
// sees it if Auth refuses to identify a user (spec.md §7: "authorization
// rejection → 401").
func (s *Server) authenticated(h func(w http.ResponseWriter, r *http.Request, user string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Stats != nil && s.Stats.IsDraining() {
			writeError(w, cmn.ErrServiceUnavailable)
			return
		}
		user, err := s.Auth.Authenticate(r)
		if err != nil {
			writeError(w, cmn.ErrUnauthorized)
			return
		}
		h(w, r, user)
	}
}

// resolveCollection maps the request to a collection id the way
// spec.md §6 says data-plane requests do it: "host selects collection."
func (s *Server) resolveCollection(r *http.Request, user string) (uint32, error) {
	return s.Collections.ResolveHost(r.Context(), user, r.Host)
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request, user string) {
	cols, err := s.Collections.ListCollections(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	// Each entry is a [name, iso8601_created] pair.
	out := make([][2]string, len(cols))
	for i, c := range cols {
		out[i] = [2]string{c.Name, c.CreatedAt.UTC().Format(time.RFC3339)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request, user string) {
	name := mux.Vars(r)["name"]
	if err := s.Collections.CreateCollection(r.Context(), user, name); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request, user string) {
	name := mux.Vars(r)["name"]
	if err := s.Collections.DeleteCollection(r.Context(), user, name); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

// collectionAction serves GET .../collections/{name}?action=space_usage
// (spec.md §6). The action query parameter is not inspected: every
// request reports the space_usage of the collection ResolveHost maps
// name to.
func (s *Server) collectionAction(w http.ResponseWriter, r *http.Request, user string) {
	name := mux.Vars(r)["name"]
	collectionID, err := s.Collections.ResolveHost(r.Context(), user, name)
	if err != nil {
		writeError(w, err)
		return
	}
	usage, err := s.Usage.SpaceUsage(r.Context(), collectionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"space_usage": usage})
}

func (s *Server) listPrefix(w http.ResponseWriter, r *http.Request, user string) {
	collectionID, err := s.resolveCollection(r, user)
	if err != nil {
		writeError(w, err)
		return
	}
	keys, err := s.Keys.ListPrefix(r.Context(), collectionID, r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// archiveKey implements POST /data/{key}: mints a new unified_id,
// erasure-codes the request body slice by slice, and drives one
// Archiver transaction end to end (spec.md §4.6).
func (s *Server) archiveKey(w http.ResponseWriter, r *http.Request, user string) {
	ctx := r.Context()
	key := mux.Vars(r)["key"]

	collectionID, err := s.resolveCollection(r, user)
	if err != nil {
		writeError(w, err)
		return
	}

	adapters, err := archiver.AssembleWriteAdapters(s.topo, s.pool)
	if err != nil {
		writeError(w, err)
		return
	}

	obj := cluster.ObjectID{CollectionID: collectionID, Key: key, UnifiedID: cluster.NewUnifiedID()}
	arc, err := archiver.New(obj, s.seg, adapters)
	if err != nil {
		writeError(w, err)
		return
	}

	meta := extractMeta(r.URL.Query())
	if err := arc.Start(ctx, meta, r.ContentLength); err != nil {
		writeError(w, err)
		return
	}

	slicer := ec.NewSlicer(r.Body, r.ContentLength, ec.DefaultSliceSize)
	for {
		chunk, last, err := slicer.Next()
		if err != nil {
			arc.Abort(ctx)
			writeError(w, err)
			return
		}
		adler, md5hex := cmn.SliceCksum(chunk)
		if err := arc.StreamSlice(ctx, chunk, adler, md5hex); err != nil {
			arc.Abort(ctx)
			writeError(w, err)
			return
		}
		if last {
			break
		}
	}

	if err := arc.Finalize(ctx); err != nil {
		writeError(w, err)
		return
	}

	s.Keys.Put(ctx, collectionID, key, obj.UnifiedID)
	s.Usage.Added(ctx, collectionID, time.Now(), r.ContentLength)
	if s.Stats != nil {
		s.Stats.ArchivesTotal.WithLabelValues("ok").Inc()
		s.Stats.BytesArchived.Add(float64(r.ContentLength))
	}
	writeText(w, http.StatusOK, "OK")
}

// retrieveKey implements GET /data/{key}: resolves the live unified_id,
// then streams the reassembled object (spec.md §4.7).
func (s *Server) retrieveKey(w http.ResponseWriter, r *http.Request, user string) {
	ctx := r.Context()
	key := mux.Vars(r)["key"]

	collectionID, err := s.resolveCollection(r, user)
	if err != nil {
		writeError(w, err)
		return
	}
	unifiedID, found := s.Keys.Resolve(ctx, collectionID, key)
	if !found {
		writeError(w, cmn.ErrNotFound)
		return
	}

	obj := cluster.ObjectID{CollectionID: collectionID, Key: key, UnifiedID: unifiedID}
	ret, err := retriever.New(obj, s.seg, s.nodeClients(), s.k)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ret.Start(ctx); err != nil {
		writeError(w, err)
		return
	}

	for name, value := range ret.Meta {
		w.Header().Set("X-Nimbusio-"+name, value)
	}
	w.WriteHeader(http.StatusOK)
	for {
		chunk, last, err := ret.Next(ctx)
		if err != nil {
			log.Warningf("retrieve %s: aborting mid-stream: %v", obj, err)
			return
		}
		if _, werr := w.Write(chunk); werr != nil {
			log.Warningf("retrieve %s: client disconnected mid-stream", obj)
			return
		}
		if last {
			break
		}
	}
	ret.Finalize(ctx)
	if s.Stats != nil {
		s.Stats.RetrievesTotal.WithLabelValues("ok").Inc()
	}
}

// headKey implements HEAD /data/{key}: size + base64 MD5 in
// Content-MD5, without transferring the body (spec.md §6).
func (s *Server) headKey(w http.ResponseWriter, r *http.Request, user string) {
	ctx := r.Context()
	key := mux.Vars(r)["key"]

	collectionID, err := s.resolveCollection(r, user)
	if err != nil {
		writeError(w, err)
		return
	}
	unifiedID, found := s.Keys.Resolve(ctx, collectionID, key)
	if !found {
		writeError(w, cmn.ErrNotFound)
		return
	}

	obj := cluster.ObjectID{CollectionID: collectionID, Key: key, UnifiedID: unifiedID}
	ret, err := retriever.New(obj, s.seg, s.nodeClients(), s.k)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := ret.Start(ctx); err != nil {
		writeError(w, err)
		return
	}
	defer ret.Finalize(ctx)

	cksum := cmn.NewCksum()
	for {
		chunk, last, err := ret.Next(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		cksum.Write(chunk)
		if last {
			break
		}
	}
	w.Header().Set("Content-Length", strconv.FormatInt(ret.FileSize(), 10))
	w.Header().Set("Content-MD5", cksum.MD5Base64())
	w.WriteHeader(http.StatusOK)
}

// destroyKey implements DELETE /data/{key}: tombstones the live
// unified_id (spec.md §4.8).
func (s *Server) destroyKey(w http.ResponseWriter, r *http.Request, user string) {
	ctx := r.Context()
	key := mux.Vars(r)["key"]

	collectionID, err := s.resolveCollection(r, user)
	if err != nil {
		writeError(w, err)
		return
	}
	unifiedID, found := s.Keys.Resolve(ctx, collectionID, key)
	if !found {
		writeError(w, cmn.ErrNotFound)
		return
	}

	obj := cluster.ObjectID{CollectionID: collectionID, Key: key, UnifiedID: unifiedID}
	dest := destroyer.New(s.nodeClients())
	size, err := dest.Destroy(ctx, obj, unifiedID)
	if err != nil {
		writeError(w, err)
		return
	}

	s.Keys.Remove(ctx, collectionID, key)
	s.Usage.Removed(ctx, collectionID, time.Now(), size)
	if s.Stats != nil {
		s.Stats.DestroysTotal.WithLabelValues("ok").Inc()
	}
	writeText(w, http.StatusOK, "OK")
}

// nodeClients returns the pool's NodeClients in the fixed segment-number
// order the topology defines (spec.md §3's permanent binding).
func (s *Server) nodeClients() []*transport.NodeClient {
	out := make([]*transport.NodeClient, len(s.topo.Nodes))
	for i, node := range s.topo.Nodes {
		out[i] = s.pool.Client(node)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(cmn.MustMarshal(v))
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}

// writeError maps an error kind onto a status code exactly per spec.md
// §7's table: NotConnected/ServiceUnavailable -> 503; NotFound -> 404;
// TruncatedInput -> 400 (client under-sent the declared body);
// OversizedInput -> 403 (client tried to smuggle extra bytes past the
// declared length); ArchiveFailed/RetrieveFailed/DestroyFailed -> 500;
// authorization rejection -> 401.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case cmn.IsUnauthorized(err):
		status = http.StatusUnauthorized
	case cmn.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, cmn.ErrTruncatedInput):
		status = http.StatusBadRequest
	case errors.Is(err, cmn.ErrOversizedInput):
		status = http.StatusForbidden
	case cmn.IsNotConnected(err), cmn.IsServiceUnavailable(err):
		status = http.StatusServiceUnavailable
	case cmn.IsTransactionFailed(err):
		status = http.StatusInternalServerError
	}
	writeText(w, status, err.Error())
}
