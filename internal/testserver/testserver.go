// Package testserver implements a small in-memory push service with the same
// HTTP contract as the system under test. It backs package tests and the
// pushserver demo binary.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBuffer = 64

// SendRequest is the body accepted by POST /api/send.
type SendRequest struct {
	ChannelID string          `json:"channel_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Option customizes a Service.
type Option func(*Service)

// WithConnectStatus makes /sse/connect answer with code instead of a stream.
func WithConnectStatus(code int) Option {
	return func(s *Service) { s.connectStatus = code }
}

// WithUnhealthy makes /health answer 503.
func WithUnhealthy() Option {
	return func(s *Service) { s.unhealthy = true }
}

// WithCloseAfter ends every stream after d.
func WithCloseAfter(d time.Duration) Option {
	return func(s *Service) { s.closeAfter = d }
}

// WithConnectDelay delays the stream response headers by d.
func WithConnectDelay(d time.Duration) Option {
	return func(s *Service) { s.connectDelay = d }
}

// WithHeartbeat writes a comment line every d on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Service) { s.heartbeat = d }
}

// WithGreeting sends one data event to each stream right after it opens.
func WithGreeting() Option {
	return func(s *Service) { s.greeting = true }
}

type subscriber struct {
	frames chan []byte
}

// Service is an http.Handler serving /health, /api/stats, /sse/connect and
// /api/send.
type Service struct {
	connectStatus int
	unhealthy     bool
	closeAfter    time.Duration
	connectDelay  time.Duration
	heartbeat     time.Duration
	greeting      bool

	mux       *http.ServeMux
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	channels map[string]map[*subscriber]struct{}

	active   atomic.Int64
	accepted atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
}

// New builds a Service.
func New(opts ...Option) *Service {
	s := &Service{
		channels: make(map[string]map[*subscriber]struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /sse/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/send", s.handleSend)
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close ends every open stream and makes new streams end right after their
// first flush. httptest.Server.Close and http.Server.Shutdown wait for
// handlers, so call it first.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Subscribers returns the number of open streams on channel.
func (s *Service) Subscribers(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels[channel])
}

// ActiveConnections returns the number of open streams.
func (s *Service) ActiveConnections() int64 {
	return s.active.Load()
}

// AcceptedConnections returns how many streams were ever opened.
func (s *Service) AcceptedConnections() int64 {
	return s.accepted.Load()
}

// Sent returns the number of accepted publishes.
func (s *Service) Sent() int64 {
	return s.sent.Load()
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.unhealthy {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	channels := len(s.channels)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]any{
		"total_connections": s.active.Load(),
		"channels":          channels,
		"messages_sent":     s.sent.Load(),
		"messages_dropped":  s.dropped.Load(),
	})
}

func (s *Service) handleConnect(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel_id")
	if channel == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "channel_id is required"})
		return
	}
	if s.connectStatus != 0 {
		respondJSON(w, s.connectStatus, map[string]any{"error": "rejected"})
		return
	}
	if s.connectDelay > 0 {
		select {
		case <-time.After(s.connectDelay):
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := &subscriber{frames: make(chan []byte, subscriberBuffer)}
	s.subscribe(channel, sub)
	defer s.unsubscribe(channel, sub)

	fmt.Fprintf(w, ": connected %s\n\n", channel)
	if s.greeting {
		fmt.Fprintf(w, "event: connected\ndata: {\"channel_id\":%s}\n\n", strconv.Quote(channel))
	}
	flusher.Flush()

	var closeTimer <-chan time.Time
	if s.closeAfter > 0 {
		t := time.NewTimer(s.closeAfter)
		defer t.Stop()
		closeTimer = t.C
	}
	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-closeTimer:
			return
		case <-heartbeat:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case frame := <-sub.frames:
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.ChannelID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "channel_id is required"})
		return
	}
	if len(req.Data) == 0 {
		req.Data = json.RawMessage("null")
	}

	frame := encodeFrame(req.EventType, req.Data)
	delivered := s.publish(req.ChannelID, frame)
	s.sent.Add(1)
	respondJSON(w, http.StatusOK, map[string]any{"status": "sent", "delivered": delivered})
}

func encodeFrame(eventType string, data json.RawMessage) []byte {
	var compact []byte
	if buf, err := json.Marshal(data); err == nil {
		compact = buf
	} else {
		compact = data
	}
	if eventType == "" {
		return fmt.Appendf(nil, "data: %s\n\n", compact)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", eventType, compact)
}

func (s *Service) subscribe(channel string, sub *subscriber) {
	s.mu.Lock()
	subs, ok := s.channels[channel]
	if !ok {
		subs = make(map[*subscriber]struct{})
		s.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	s.mu.Unlock()
	s.active.Add(1)
	s.accepted.Add(1)
}

func (s *Service) unsubscribe(channel string, sub *subscriber) {
	s.mu.Lock()
	subs := s.channels[channel]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(s.channels, channel)
	}
	s.mu.Unlock()
	s.active.Add(-1)
}

func (s *Service) publish(channel string, frame []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivered := 0
	for sub := range s.channels[channel] {
		select {
		case sub.frames <- frame:
			delivered++
		default:
			s.dropped.Add(1)
		}
	}
	return delivered
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
