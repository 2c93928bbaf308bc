// Package wshost bridges a remote host runtime over a websocket.
//
// The remote side (typically a headless game client) connects to the
// handler, pushes its roster and events as JSON envelopes and receives chat
// envelopes back. Events are posted to the room loop so the engine is only
// touched from the loop goroutine.
package wshost

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/ports"
)

// ErrNotConnected is returned when chat is sent with no host attached.
var ErrNotConnected = errors.New("wshost: no host connected")

// Host event names that change the roster.
const (
	eventPlayerJoin  = "playerJoin"
	eventPlayerLeave = "playerLeave"
)

const writeTimeout = 5 * time.Second

// Dispatcher delivers a host event to the room.
type Dispatcher func(ctx context.Context, event string, args ...any) bool

// Poster schedules work on the room loop.
type Poster interface {
	Post(task loop.Task)
}

// Options configures a Host.
type Options struct {
	Loop   Poster
	Logger zerolog.Logger

	// Token, when set, must be presented as a bearer token or a "token"
	// query parameter.
	Token string

	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool

	// OnRoster is called with the roster size after it changes.
	OnRoster func(n int)

	// OnConnection is called when a host attaches or detaches.
	OnConnection func(connected bool)
}

// Host is a ports.Host backed by a remote runtime. At most one runtime is
// attached at a time.
type Host struct {
	loop     Poster
	logger   zerolog.Logger
	token    string
	upgrader websocket.Upgrader
	onRoster func(int)
	onConn   func(bool)

	mu       sync.RWMutex
	players  map[int]ports.Player
	order    []int
	conn     *websocket.Conn
	dispatch Dispatcher

	writeMu sync.Mutex
}

// New creates a detached host.
func New(opts Options) *Host {
	h := &Host{
		loop:     opts.Loop,
		logger:   opts.Logger,
		token:    opts.Token,
		onRoster: opts.OnRoster,
		onConn:   opts.OnConnection,
		players:  make(map[int]ports.Player),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: opts.CheckOrigin}
	if h.upgrader.CheckOrigin == nil {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	if h.onRoster == nil {
		h.onRoster = func(int) {}
	}
	if h.onConn == nil {
		h.onConn = func(bool) {}
	}
	return h
}

// SetDispatcher routes incoming events. Until it is called events are
// dropped.
func (h *Host) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	h.dispatch = d
	h.mu.Unlock()
}

// Connected reports whether a runtime is attached.
func (h *Host) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

// Player implements ports.Host.
func (h *Host) Player(id int) (ports.Player, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.players[id]
	return p, ok
}

// Players implements ports.Host.
func (h *Host) Players() []ports.Player {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ports.Player, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.players[id])
	}
	return out
}

// Broadcast implements ports.Host.
func (h *Host) Broadcast(message string) error {
	target := Everyone
	return h.send(Envelope{Type: TypeChat, Message: message, Target: &target})
}

// Whisper implements ports.Host.
func (h *Host) Whisper(id int, message string) error {
	return h.send(Envelope{Type: TypeChat, Message: message, Target: &id})
}

func (h *Host) send(env Envelope) error {
	h.mu.RLock()
	conn := h.conn
	h.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

// ServeHTTP upgrades the request and serves the runtime until it
// disconnects.
func (h *Host) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if h.Connected() {
		http.Error(w, "host already connected", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("host upgrade failed")
		return
	}

	if !h.attach(conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "host already connected"))
		_ = conn.Close()
		return
	}
	h.logger.Info().Str("remote", r.RemoteAddr).Msg("host connected")
	h.onConn(true)

	defer func() {
		h.detach(conn)
		_ = conn.Close()
		h.logger.Info().Str("remote", r.RemoteAddr).Msg("host disconnected")
		h.onConn(false)
	}()

	ctx := context.WithoutCancel(r.Context())
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Msg("host read ended")
			}
			return
		}
		h.handle(ctx, env)
	}
}

func (h *Host) authorized(r *http.Request) bool {
	if r.Header.Get("Authorization") == "Bearer "+h.token {
		return true
	}
	return r.URL.Query().Get("token") == h.token
}

func (h *Host) attach(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		return false
	}
	h.conn = conn
	return true
}

// detach drops the connection and tells the room every remaining player
// left, so their records are released.
func (h *Host) detach(conn *websocket.Conn) {
	h.mu.Lock()
	if h.conn != conn {
		h.mu.Unlock()
		return
	}
	h.conn = nil
	gone := make([]ports.Player, 0, len(h.order))
	for _, id := range h.order {
		gone = append(gone, h.players[id])
	}
	h.players = make(map[int]ports.Player)
	h.order = nil
	h.mu.Unlock()

	h.onRoster(0)
	for _, p := range gone {
		h.post(context.Background(), eventPlayerLeave, []any{p}, 0)
	}
}

func (h *Host) handle(ctx context.Context, env Envelope) {
	switch env.Type {
	case TypeSync:
		h.replaceRoster(ctx, env.Players)

	case TypeEvent:
		if env.Name == "" {
			h.logger.Warn().Msg("event envelope without name dropped")
			return
		}
		args, err := decodeArgs(env.Args)
		if err != nil {
			h.logger.Warn().Err(err).Str("event", env.Name).Msg("event envelope dropped")
			return
		}
		h.track(env.Name, args)
		h.post(ctx, env.Name, args, env.Seq)

	default:
		h.logger.Warn().Str("type", env.Type).Msg("unknown envelope type")
	}
}

// replaceRoster swaps in a full roster. Players missing from it are
// reported as having left.
func (h *Host) replaceRoster(ctx context.Context, list []ports.Player) {
	h.mu.Lock()
	previous, prevOrder := h.players, h.order
	h.players = make(map[int]ports.Player, len(list))
	h.order = make([]int, 0, len(list))
	for _, p := range list {
		if _, dup := h.players[p.ID]; !dup {
			h.order = append(h.order, p.ID)
		}
		h.players[p.ID] = p
	}
	var gone []ports.Player
	for _, id := range prevOrder {
		if _, still := h.players[id]; !still {
			gone = append(gone, previous[id])
		}
	}
	n := len(h.order)
	h.mu.Unlock()

	h.onRoster(n)
	for _, p := range gone {
		h.post(ctx, eventPlayerLeave, []any{p}, 0)
	}
}

// track mirrors the roster: joins add, leaves remove, and any other event
// refreshes the snapshots of known players it carries.
func (h *Host) track(event string, args []any) {
	h.mu.Lock()
	changed := false
	for i, arg := range args {
		p, ok := arg.(ports.Player)
		if !ok {
			continue
		}
		_, known := h.players[p.ID]
		switch {
		case event == eventPlayerLeave && i == 0:
			if known {
				delete(h.players, p.ID)
				h.order = slices.DeleteFunc(h.order, func(id int) bool { return id == p.ID })
				changed = true
			}
		case event == eventPlayerJoin && i == 0 && !known:
			h.players[p.ID] = p
			h.order = append(h.order, p.ID)
			changed = true
		case known:
			h.players[p.ID] = p
		}
	}
	n := len(h.order)
	h.mu.Unlock()

	if changed {
		h.onRoster(n)
	}
}

func (h *Host) post(ctx context.Context, event string, args []any, seq uint64) {
	h.mu.RLock()
	dispatch := h.dispatch
	h.mu.RUnlock()
	if dispatch == nil || h.loop == nil {
		return
	}

	h.loop.Post(func() {
		ok := dispatch(ctx, event, args...)
		if seq == 0 {
			return
		}
		if err := h.send(Envelope{Type: TypeResult, Seq: seq, Name: event, OK: &ok}); err != nil && !errors.Is(err, ErrNotConnected) {
			h.logger.Warn().Err(err).Str("event", event).Msg("failed to send event result")
		}
	})
}

// Ensure interface compliance.
var _ ports.Host = (*Host)(nil)
