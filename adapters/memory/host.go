package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/artpar/roomkit/ports"
)

// Everyone is the Message.To value of a broadcast.
const Everyone = -1

// Message is a chat line sent through the host.
type Message struct {
	To   int
	Text string
}

// Host is an in-memory room runtime. It is what the REPL drives and what
// tests use in place of a real game server.
type Host struct {
	mu      sync.RWMutex
	players map[int]ports.Player
	order   []int
	nextID  int
	chat    []Message
}

// NewHost creates an empty host.
func NewHost() *Host {
	return &Host{
		players: make(map[int]ports.Player),
		nextID:  1,
	}
}

// Join adds a player with the next free id and returns its snapshot.
func (h *Host) Join(name, auth string) ports.Player {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := ports.Player{ID: h.nextID, Name: name, Auth: auth, Team: ports.TeamSpectators}
	h.addLocked(p)
	return p
}

// Add inserts or replaces a snapshot verbatim.
func (h *Host) Add(p ports.Player) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.addLocked(p)
}

func (h *Host) addLocked(p ports.Player) {
	if _, exists := h.players[p.ID]; !exists {
		h.order = append(h.order, p.ID)
	}
	h.players[p.ID] = p
	if p.ID >= h.nextID {
		h.nextID = p.ID + 1
	}
}

// Remove drops a player and returns its last snapshot.
func (h *Host) Remove(id int) (ports.Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.players[id]
	if !ok {
		return ports.Player{}, false
	}
	delete(h.players, id)
	h.order = slices.DeleteFunc(h.order, func(v int) bool { return v == id })
	return p, true
}

// SetTeam moves a player and returns the updated snapshot.
func (h *Host) SetTeam(id, team int) (ports.Player, bool) {
	return h.update(id, func(p *ports.Player) { p.Team = team })
}

// SetAdmin changes a player's admin flag and returns the updated snapshot.
func (h *Host) SetAdmin(id int, admin bool) (ports.Player, bool) {
	return h.update(id, func(p *ports.Player) { p.Admin = admin })
}

func (h *Host) update(id int, fn func(*ports.Player)) (ports.Player, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.players[id]
	if !ok {
		return ports.Player{}, false
	}
	fn(&p)
	h.players[id] = p
	return p, true
}

// Player returns the snapshot for id.
func (h *Host) Player(id int) (ports.Player, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	p, ok := h.players[id]
	return p, ok
}

// Players returns snapshots in join order.
func (h *Host) Players() []ports.Player {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]ports.Player, 0, len(h.order))
	for _, id := range h.order {
		result = append(result, h.players[id])
	}
	return result
}

// Broadcast records a message to everyone.
func (h *Host) Broadcast(message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.chat = append(h.chat, Message{To: Everyone, Text: message})
	return nil
}

// Whisper records a message to one player.
func (h *Host) Whisper(id int, message string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.players[id]; !ok {
		return fmt.Errorf("whisper to player %d: %w", id, ports.ErrNotFound)
	}
	h.chat = append(h.chat, Message{To: id, Text: message})
	return nil
}

// Messages returns every chat line sent so far.
func (h *Host) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return slices.Clone(h.chat)
}

// Drain returns and clears the chat log.
func (h *Host) Drain() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.chat
	h.chat = nil
	return out
}

// Ensure interface compliance.
var _ ports.Host = (*Host)(nil)
