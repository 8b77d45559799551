package transport

import (
	"encoding/json"
	"log/slog"
	"sync"

	"uisync/internal/broadcast"
	"uisync/internal/metrics"
	"uisync/internal/protocol"
)

// Hub tracks open connections and room membership. Every send is a non-blocking
// enqueue onto the target connection's outbound queue, so callers may hold locks.
// A connection receives no room or global broadcast until it has been sent its first
// direct message.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*peer
	rooms map[string]map[string]*peer
}

func NewHub() *Hub {
	return &Hub{
		peers: make(map[string]*peer),
		rooms: make(map[string]map[string]*peer),
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.id] = p
	metrics.ConnectionsActive.Set(float64(len(h.peers)))
}

// unregister forgets the connection, drops it from every room and closes its queue.
func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.peers[connID]
	if !ok {
		return
	}
	delete(h.peers, connID)
	for room, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	p.closeQueue()
	metrics.ConnectionsActive.Set(float64(len(h.peers)))
}

func (h *Hub) Join(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.peers[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*peer)
		h.rooms[room] = members
	}
	members[connID] = p
}

func (h *Hub) Leave(room, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Send(connID string, ev broadcast.Event) {
	msg, ok := encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if p, ok := h.peers[connID]; ok {
		p.enqueue(msg)
	}
}

func (h *Hub) Publish(room string, ev broadcast.Event, exclude string) {
	msg, ok := encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, p := range h.rooms[room] {
		if id != exclude {
			p.enqueueBroadcast(msg)
		}
	}
}

func (h *Hub) PublishAll(ev broadcast.Event, exclude string) {
	msg, ok := encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, p := range h.peers {
		if id != exclude {
			p.enqueueBroadcast(msg)
		}
	}
}

func (h *Hub) members(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		out = append(out, id)
	}
	return out
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// CloseAll closes every open connection; their read loops then run the normal disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		p.close("shutdown")
	}
}

func encode(ev broadcast.Event) ([]byte, bool) {
	frame := protocol.Frame{Event: ev.Name}
	if ev.Data != nil {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			slog.Error("failed to encode event payload", "event", ev.Name, "error", err)
			return nil, false
		}
		frame.Data = data
	}

	msg, err := json.Marshal(frame)
	if err != nil {
		slog.Error("failed to encode frame", "event", ev.Name, "error", err)
		return nil, false
	}
	return msg, true
}

var _ broadcast.Transport = (*Hub)(nil)
