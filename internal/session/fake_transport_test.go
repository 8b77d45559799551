package session

import (
	"sync"

	"uisync/internal/broadcast"
	"uisync/internal/registry"
	"uisync/internal/storage"
)

type fakeTransport struct {
	mu    sync.Mutex
	conns map[string]bool
	rooms map[string]map[string]bool
	inbox map[string][]broadcast.Event
}

func newFakeTransport(conns ...string) *fakeTransport {
	f := &fakeTransport{
		conns: make(map[string]bool),
		rooms: make(map[string]map[string]bool),
		inbox: make(map[string][]broadcast.Event),
	}
	for _, c := range conns {
		f.conns[c] = true
	}
	return f
}

func (f *fakeTransport) Join(room, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[room] == nil {
		f.rooms[room] = make(map[string]bool)
	}
	f.rooms[room][connID] = true
}

func (f *fakeTransport) Leave(room, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[room], connID)
}

func (f *fakeTransport) Send(connID string, ev broadcast.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conns[connID] {
		f.inbox[connID] = append(f.inbox[connID], ev)
	}
}

func (f *fakeTransport) Publish(room string, ev broadcast.Event, exclude string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.rooms[room] {
		if c != exclude && f.conns[c] {
			f.inbox[c] = append(f.inbox[c], ev)
		}
	}
}

func (f *fakeTransport) PublishAll(ev broadcast.Event, exclude string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		if c != exclude {
			f.inbox[c] = append(f.inbox[c], ev)
		}
	}
}

// disconnect mimics the transport forgetting a closed connection before notifying the service.
func (f *fakeTransport) disconnect(connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, connID)
	for _, members := range f.rooms {
		delete(members, connID)
	}
}

func (f *fakeTransport) members(room string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for c := range f.rooms[room] {
		out = append(out, c)
	}
	return out
}

func (f *fakeTransport) events(connID string) []broadcast.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast.Event(nil), f.inbox[connID]...)
}

func (f *fakeTransport) names(connID string) []string {
	var out []string
	for _, ev := range f.events(connID) {
		out = append(out, ev.Name)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = make(map[string][]broadcast.Event)
}

func newTestService(conns ...string) (*Service, *fakeTransport) {
	tr := newFakeTransport(conns...)
	svc := NewService(storage.NewStore(), registry.New(), broadcast.NewGateway(tr))
	return svc, tr
}
