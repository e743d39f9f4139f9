// Package stream pushes live prices to browsers over websockets.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

// Tracker reports whether a symbol has live prices. Implemented by
// *portfolio.Service.
type Tracker interface {
	IsTracked(symbol string) bool
}

// Snapshotter returns the latest known prices, used to prime new
// subscriptions. Implemented by *portfolio.Service and *cache.PriceCache.
type Snapshotter interface {
	Latest(ctx context.Context, symbols []string) (map[string]model.PriceUpdate, error)
}

// Config holds per-connection limits.
type Config struct {
	SendBuffer     int           // Outbound messages buffered per client (default: 256)
	WriteWait      time.Duration // Deadline for one write (default: 10s)
	PongWait       time.Duration // Read deadline refreshed by each pong (default: 60s)
	PingPeriod     time.Duration // Must be less than PongWait (default: 50s)
	MaxMessageSize int64         // Largest accepted client message (default: 4096)
	SnapshotWait   time.Duration // Timeout for the snapshot lookup (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     50 * time.Second,
		MaxMessageSize: 4096,
		SnapshotWait:   5 * time.Second,
	}
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Clients       int   `json:"clients"`
	Subscriptions int   `json:"subscriptions"`
	Broadcasts    int64 `json:"broadcasts"`
	Dropped       int64 `json:"dropped"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithConfig overrides the connection limits. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(h *Hub) {
		def := DefaultConfig()
		if cfg.SendBuffer <= 0 {
			cfg.SendBuffer = def.SendBuffer
		}
		if cfg.WriteWait <= 0 {
			cfg.WriteWait = def.WriteWait
		}
		if cfg.PongWait <= 0 {
			cfg.PongWait = def.PongWait
		}
		if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
			cfg.PingPeriod = cfg.PongWait * 9 / 10
		}
		if cfg.MaxMessageSize <= 0 {
			cfg.MaxMessageSize = def.MaxMessageSize
		}
		if cfg.SnapshotWait <= 0 {
			cfg.SnapshotWait = def.SnapshotWait
		}
		h.cfg = cfg
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins.
// An empty list or "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			if o == "*" {
				h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
				return
			}
			allowed[o] = true
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// Hub tracks websocket clients and their symbol subscriptions.
type Hub struct {
	cfg       Config
	tracker   Tracker
	snapshots Snapshotter
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu          sync.RWMutex
	clients     map[*Client]map[string]struct{}
	subscribers map[string]map[*Client]struct{}

	broadcasts atomic.Int64
	dropped    atomic.Int64
}

// NewHub creates a new Hub. snapshots may be nil.
func NewHub(tracker Tracker, snapshots Snapshotter, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cfg:       DefaultConfig(),
		tracker:   tracker,
		snapshots: snapshots,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:     make(map[*Client]map[string]struct{}),
		subscribers: make(map[string]map[*Client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn, h)
	h.mu.Lock()
	h.clients[c] = make(map[string]struct{})
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "remote", c.id, "clients", n)

	go c.writePump()
	c.readPump()
}

// OnPrice broadcasts a price change to subscribed clients.
func (h *Hub) OnPrice(update model.PriceUpdate) {
	h.Broadcast(update)
}

// Broadcast sends update to every client subscribed to its symbol.
func (h *Hub) Broadcast(update model.PriceUpdate) {
	h.mu.RLock()
	subs := h.subscribers[update.Symbol]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	msg, err := json.Marshal(Response{Type: TypePrice, Data: update})
	if err != nil {
		h.logger.Error("encode price message", "symbol", update.Symbol, "err", err)
		return
	}

	h.broadcasts.Add(1)
	for _, c := range targets {
		c.send(msg)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := 0
	for _, s := range h.clients {
		subs += len(s)
	}
	return Stats{
		Clients:       len(h.clients),
		Subscriptions: subs,
		Broadcasts:    h.broadcasts.Load(),
		Dropped:       h.dropped.Load(),
	}
}

func (h *Hub) handle(c *Client, req Request) {
	for i, s := range req.Symbols {
		req.Symbols[i] = model.NormalizeSymbol(s)
	}

	switch req.Action {
	case ActionSubscribe:
		h.subscribe(c, req)
	case ActionUnsubscribe:
		h.unsubscribe(c, req)
	case ActionUnsubscribeAll:
		removed := h.removeAll(c)
		c.sendJSON(Response{Type: TypeAck, ID: req.ID, Message: "unsubscribed from all symbols", Symbols: removed})
	default:
		c.sendJSON(Response{Type: TypeError, ID: req.ID, Message: fmt.Sprintf("unknown action %q", req.Action)})
	}
}

func (h *Hub) subscribe(c *Client, req Request) {
	var added, rejected []string
	for _, sym := range req.Symbols {
		if sym == "" || h.tracker == nil || !h.tracker.IsTracked(sym) {
			rejected = append(rejected, sym)
			continue
		}
		added = append(added, sym)
	}

	if len(added) > 0 {
		h.mu.Lock()
		subs, ok := h.clients[c]
		if !ok {
			h.mu.Unlock()
			return
		}
		for _, sym := range added {
			subs[sym] = struct{}{}
			if h.subscribers[sym] == nil {
				h.subscribers[sym] = make(map[*Client]struct{})
			}
			h.subscribers[sym][c] = struct{}{}
		}
		h.mu.Unlock()
	}

	if len(rejected) > 0 {
		c.sendJSON(Response{Type: TypeError, ID: req.ID, Message: "symbols not tracked", Symbols: rejected})
	}
	if len(added) == 0 {
		if len(rejected) == 0 {
			c.sendJSON(Response{Type: TypeError, ID: req.ID, Message: "no symbols given"})
		}
		return
	}
	c.sendJSON(Response{Type: TypeAck, ID: req.ID, Message: "subscribed", Symbols: added})

	h.sendSnapshots(c, added)
}

// sendSnapshots primes a new subscription with the latest known prices.
func (h *Hub) sendSnapshots(c *Client, symbols []string) {
	if h.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SnapshotWait)
	defer cancel()

	latest, err := h.snapshots.Latest(ctx, symbols)
	if err != nil {
		h.logger.Warn("snapshot lookup failed", "symbols", symbols, "err", err)
		return
	}
	for _, sym := range symbols {
		if u, ok := latest[sym]; ok {
			c.sendJSON(Response{Type: TypePrice, Data: u})
		}
	}
}

func (h *Hub) unsubscribe(c *Client, req Request) {
	var removed []string

	h.mu.Lock()
	if subs, ok := h.clients[c]; ok {
		for _, sym := range req.Symbols {
			if _, ok := subs[sym]; !ok {
				continue
			}
			delete(subs, sym)
			h.dropSubscriber(sym, c)
			removed = append(removed, sym)
		}
	}
	h.mu.Unlock()

	if len(removed) == 0 {
		c.sendJSON(Response{Type: TypeError, ID: req.ID, Message: "not subscribed", Symbols: req.Symbols})
		return
	}
	c.sendJSON(Response{Type: TypeAck, ID: req.ID, Message: "unsubscribed", Symbols: removed})
}

// removeAll drops every subscription of c and returns the symbols removed.
func (h *Hub) removeAll(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.clients[c]
	removed := make([]string, 0, len(subs))
	for sym := range subs {
		h.dropSubscriber(sym, c)
		removed = append(removed, sym)
	}
	if subs != nil {
		h.clients[c] = make(map[string]struct{})
	}
	sort.Strings(removed)
	return removed
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	for sym := range h.clients[c] {
		h.dropSubscriber(sym, c)
	}
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client disconnected", "remote", c.id, "clients", n)
}

// dropSubscriber must be called with mu held.
func (h *Hub) dropSubscriber(sym string, c *Client) {
	delete(h.subscribers[sym], c)
	if len(h.subscribers[sym]) == 0 {
		delete(h.subscribers, sym)
	}
}
