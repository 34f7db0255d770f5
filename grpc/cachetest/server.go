// Package cachetest runs an in-memory cache service over bufconn for tests.
// It implements listener subscriptions, map events and paged key/entry
// enumeration with the same wire behaviour as a cluster proxy.
package cachetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	cachegrpc "github.com/oracle/coherence-js-client-sub001/grpc"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// Server is an in-memory cache service. The zero value is not usable; call New.
type Server struct {
	cachegrpc.UnimplementedNamedCacheServer

	// PageSize is the number of rows per page
	PageSize int
	// Reject, when set, may fail a listener request with the returned error
	Reject func(*cachegrpc.MapListenerRequest) *cachegrpc.ErrorResponse
	// Match decides whether a filter subscription sees an entry. Nil matches all.
	Match func(filter, key, value []byte) bool

	ser      encoding.Serializer
	listener *bufconn.Listener
	grpcSrv  *grpc.Server

	mu           sync.Mutex
	caches       map[string]map[string]entry
	sessions     map[*session]struct{}
	requests     []*cachegrpc.MapListenerRequest
	pageRequests []*cachegrpc.PageRequest
	infos        []cachegrpc.SessionInfo
	nextFilterID int64
}

type entry struct {
	key   []byte
	value []byte
}

type filterSub struct {
	cache  string
	filter []byte
	lite   bool
}

type session struct {
	stream grpc.BidiStreamingServer[cachegrpc.MapListenerRequest, cachegrpc.MapListenerResponse]
	sendMu sync.Mutex
	kill   chan struct{}
	once   sync.Once

	// Guarded by Server.mu
	keySubs    map[string]map[string]bool // cache -> canonical key -> lite
	filterSubs map[int64]filterSub
}

// New starts a server for values serialized with format and stops it when
// the test ends.
func New(t testing.TB, format string) *Server {
	t.Helper()
	ser, err := encoding.Lookup(format)
	if err != nil {
		t.Fatalf("cachetest: %v", err)
	}

	s := &Server{
		PageSize: 2,
		ser:      ser,
		listener: bufconn.Listen(bufSize),
		grpcSrv:  grpc.NewServer(),
		caches:   make(map[string]map[string]entry),
		sessions: make(map[*session]struct{}),
	}
	cachegrpc.RegisterNamedCacheServer(s.grpcSrv, s)

	go func() {
		if err := s.grpcSrv.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error().Err(err).Msg("cachetest server stopped")
		}
	}()
	t.Cleanup(s.Stop)
	return s
}

// Stop disconnects every client and stops the server
func (s *Server) Stop() {
	s.Disconnect()
	s.grpcSrv.Stop()
}

// DialOption routes a client connection to this server. Use it with the
// target "passthrough:///bufnet".
func (s *Server) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return s.listener.DialContext(ctx)
	})
}

// Target is the dial target matching DialOption
const Target = "passthrough:///bufnet"

// Dial connects a client to this server with the standard client options.
func (s *Server) Dial(info cachegrpc.SessionInfo) (*grpc.ClientConn, error) {
	return cachegrpc.Dial(Target, info, s.DialOption())
}

// Put stores value under key and emits an insert or update event.
func (s *Server) Put(cache string, key, value any) error {
	k, v, err := s.encode(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cacheLocked(cache)
	old, existed := entries[string(k)]
	entries[string(k)] = entry{key: k, value: v}

	msg := &cachegrpc.MapEventMessage{ID: cachegrpc.EventInserted, Key: k, NewValue: v}
	if existed {
		msg.ID = cachegrpc.EventUpdated
		msg.OldValue = old.value
	}
	s.publishLocked(cache, msg)
	return nil
}

// Remove deletes key and emits a delete event. Missing keys are ignored.
func (s *Server) Remove(cache string, key any) error {
	k, err := s.ser.Serialize(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cacheLocked(cache)
	old, ok := entries[string(k)]
	if !ok {
		return nil
	}
	delete(entries, string(k))
	s.publishLocked(cache, &cachegrpc.MapEventMessage{ID: cachegrpc.EventDeleted, Key: k, OldValue: old.value})
	return nil
}

// Truncate removes every entry without per-entry events.
func (s *Server) Truncate(cache string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[cache] = make(map[string]entry)
	s.broadcastLocked(cache, &cachegrpc.MapListenerResponse{Truncated: &cachegrpc.Truncated{Cache: cache}})
}

// Destroy drops the cache and notifies its listeners.
func (s *Server) Destroy(cache string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.caches, cache)
	s.broadcastLocked(cache, &cachegrpc.MapListenerResponse{Destroyed: &cachegrpc.Destroyed{Cache: cache}})
}

// Disconnect fails every open events stream with codes.Unavailable.
func (s *Server) Disconnect() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.once.Do(func() { close(sess.kill) })
	}
}

// Requests returns listener requests received so far, INIT included
func (s *Server) Requests() []*cachegrpc.MapListenerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*cachegrpc.MapListenerRequest(nil), s.requests...)
}

// PageRequests returns page requests received so far
func (s *Server) PageRequests() []*cachegrpc.PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*cachegrpc.PageRequest(nil), s.pageRequests...)
}

// Sessions returns the metadata of every events stream opened so far
func (s *Server) Sessions() []cachegrpc.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cachegrpc.SessionInfo(nil), s.infos...)
}

// Subscriptions returns the number of live key and filter subscriptions
func (s *Server) Subscriptions() (keys, filters int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		for _, subs := range sess.keySubs {
			keys += len(subs)
		}
		filters += len(sess.filterSubs)
	}
	return keys, filters
}

func (s *Server) encode(key, value any) ([]byte, []byte, error) {
	k, err := s.ser.Serialize(key)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize key: %w", err)
	}
	v, err := s.ser.Serialize(value)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize value: %w", err)
	}
	return k, v, nil
}

func (s *Server) cacheLocked(cache string) map[string]entry {
	entries, ok := s.caches[cache]
	if !ok {
		entries = make(map[string]entry)
		s.caches[cache] = entries
	}
	return entries
}

func (s *Server) publishLocked(cache string, msg *cachegrpc.MapEventMessage) {
	value := msg.NewValue
	if value == nil {
		value = msg.OldValue
	}

	for sess := range s.sessions {
		full := false
		matched := false
		if lite, ok := sess.keySubs[cache][string(msg.Key)]; ok {
			matched = true
			full = full || !lite
		}
		var ids []int64
		for fid, sub := range sess.filterSubs {
			if sub.cache != cache {
				continue
			}
			if s.Match != nil && !s.Match(sub.filter, msg.Key, value) {
				continue
			}
			ids = append(ids, fid)
			matched = true
			full = full || !sub.lite
		}
		if !matched {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		out := *msg
		out.FilterIDs = ids
		if !full {
			out.OldValue, out.NewValue = nil, nil
		}
		sess.send(&cachegrpc.MapListenerResponse{Event: &out})
	}
}

func (s *Server) broadcastLocked(cache string, resp *cachegrpc.MapListenerResponse) {
	for sess := range s.sessions {
		if _, ok := sess.keySubs[cache]; ok {
			sess.send(resp)
			continue
		}
		for _, sub := range sess.filterSubs {
			if sub.cache == cache {
				sess.send(resp)
				break
			}
		}
	}
}

func (sess *session) send(resp *cachegrpc.MapListenerResponse) {
	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()
	if err := sess.stream.Send(resp); err != nil {
		log.Debug().Err(err).Msg("cachetest send failed")
	}
}

// Events implements cachegrpc.NamedCacheServer
func (s *Server) Events(stream grpc.BidiStreamingServer[cachegrpc.MapListenerRequest, cachegrpc.MapListenerResponse]) error {
	sess := &session{
		stream:     stream,
		kill:       make(chan struct{}),
		keySubs:    make(map[string]map[string]bool),
		filterSubs: make(map[int64]filterSub),
	}
	info, _ := cachegrpc.SessionFromIncoming(stream.Context())

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.infos = append(s.infos, info)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		for {
			req, err := stream.Recv()
			if err != nil {
				errCh <- err
				return
			}
			s.handle(sess, req)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	case <-sess.kill:
		return status.Error(codes.Unavailable, "cachetest: disconnected")
	}
}

func (s *Server) handle(sess *session, req *cachegrpc.MapListenerRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if s.Reject != nil {
		if e := s.Reject(req); e != nil {
			e.UID = req.UID
			sess.send(&cachegrpc.MapListenerResponse{Error: e})
			return
		}
	}

	switch req.Type {
	case cachegrpc.RequestInit:
		sess.send(subscribed(req.UID, 0))
	case cachegrpc.RequestKey:
		subs, ok := sess.keySubs[req.Cache]
		if !ok {
			subs = make(map[string]bool)
			sess.keySubs[req.Cache] = subs
		}
		if req.Subscribe {
			subs[string(req.Key)] = req.Lite
			sess.send(subscribed(req.UID, 0))
			return
		}
		delete(subs, string(req.Key))
		sess.send(unsubscribed(req.UID))
	case cachegrpc.RequestFilter:
		if req.Subscribe {
			s.nextFilterID++
			sess.filterSubs[s.nextFilterID] = filterSub{cache: req.Cache, filter: req.Filter, lite: req.Lite}
			sess.send(subscribed(req.UID, s.nextFilterID))
			return
		}
		delete(sess.filterSubs, req.FilterID)
		sess.send(unsubscribed(req.UID))
	default:
		sess.send(&cachegrpc.MapListenerResponse{Error: &cachegrpc.ErrorResponse{
			UID:     req.UID,
			Code:    int32(codes.InvalidArgument),
			Message: "unknown request type " + strconv.Itoa(int(req.Type)),
		}})
	}
}

func subscribed(uid string, filterID int64) *cachegrpc.MapListenerResponse {
	return &cachegrpc.MapListenerResponse{Subscribed: &cachegrpc.Subscribed{UID: uid, FilterID: filterID}}
}

func unsubscribed(uid string) *cachegrpc.MapListenerResponse {
	return &cachegrpc.MapListenerResponse{Unsubscribed: &cachegrpc.Unsubscribed{UID: uid}}
}

// NextKeySetPage implements cachegrpc.NamedCacheServer
func (s *Server) NextKeySetPage(req *cachegrpc.PageRequest, stream grpc.ServerStreamingServer[cachegrpc.PageFrame]) error {
	return s.page(req, stream, false)
}

// NextEntrySetPage implements cachegrpc.NamedCacheServer
func (s *Server) NextEntrySetPage(req *cachegrpc.PageRequest, stream grpc.ServerStreamingServer[cachegrpc.PageFrame]) error {
	return s.page(req, stream, true)
}

// page serves rows in key order. The cookie is the decimal offset of the
// next page.
func (s *Server) page(req *cachegrpc.PageRequest, stream grpc.ServerStreamingServer[cachegrpc.PageFrame], values bool) error {
	start := 0
	if len(req.Cookie) > 0 {
		n, err := strconv.Atoi(string(req.Cookie))
		if err != nil || n < 0 {
			return status.Errorf(codes.InvalidArgument, "bad cookie %q", req.Cookie)
		}
		start = n
	}

	s.mu.Lock()
	s.pageRequests = append(s.pageRequests, req)
	entries := s.caches[req.Cache]
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	end := min(start+s.PageSize, len(keys))
	start = min(start, end)
	rows := make([]entry, 0, end-start)
	for _, k := range keys[start:end] {
		rows = append(rows, entries[k])
	}
	s.mu.Unlock()

	var cookie []byte
	if end < len(keys) {
		cookie = []byte(strconv.Itoa(end))
	}
	if err := stream.Send(&cachegrpc.PageFrame{Cookie: cookie}); err != nil {
		return err
	}
	for _, e := range rows {
		frame := &cachegrpc.PageFrame{Key: e.key}
		if values {
			frame.Value = e.value
		}
		if err := stream.Send(frame); err != nil {
			return err
		}
	}
	return nil
}
