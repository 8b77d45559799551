package session

import (
	"fmt"
	"log/slog"
	"sync"

	"uisync/internal/broadcast"
	"uisync/internal/metrics"
	"uisync/internal/protocol"
	"uisync/internal/registry"
	"uisync/internal/storage"
	"uisync/internal/types"
)

// Broadcaster is the delivery surface the service emits through.
type Broadcaster interface {
	Join(site, connID string)
	Leave(site, connID string)
	ToConnection(connID string, ev broadcast.Event)
	ToRoom(site string, ev broadcast.Event)
	ToRoomExcluding(site, connID string, ev broadcast.Event)
	ToAllExcluding(connID string, ev broadcast.Event)
}

type Option func(*Service)

// WithoutEcho stops ApplyStateMutation from sending new_state back to the connection that made the change.
func WithoutEcho() Option {
	return func(s *Service) {
		s.suppressEcho = true
	}
}

// Service owns leadership, follower bookkeeping and state propagation for every site.
//
// All operations run under one lock and emit while holding it, so every room observes
// snapshots and incremental updates in the order the state changed.
//
// A connection is a member of a site room exactly while it leads or follows that site.
type Service struct {
	store        *storage.Store
	registry     *registry.Registry
	out          Broadcaster
	suppressEcho bool
	mu           sync.Mutex
}

// NewService builds a service over an empty store and registry.
func NewService(store *storage.Store, reg *registry.Registry, out Broadcaster, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: reg,
		out:      out,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleConnect greets a new connection with the current leader directory.
func (s *Service) HandleConnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out.ToConnection(connID, broadcast.Event{
		Name: protocol.EventConfirmConnect,
		Data: protocol.Directory{Leaders: s.store.Leaders()},
	})
}

// RegisterLeader makes connID the leader of site, replacing any current leader.
func (s *Service) RegisterLeader(leader types.Leader, site string, snapshot types.State, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, replaced := s.store.Put(site, leader, snapshot, connID)
	if replaced {
		metrics.LeaderChangesTotal.WithLabelValues("handoff").Inc()
		slog.Info("leader replaced", "site", site, "previous", prev.Leader.Name(), "leader", leader.Name(), "conn", connID)
	} else {
		metrics.LeaderChangesTotal.WithLabelValues("start").Inc()
		slog.Info("new leader", "site", site, "leader", leader.Name(), "conn", connID)
	}

	s.out.Join(site, connID)

	entry, _ := s.store.Get(site)
	s.out.ToRoom(site, snapshotEvent(entry))
	if replaced && prev.LeaderConnID != connID {
		s.releaseRoom(site, prev.LeaderConnID)
	}
	s.out.ToConnection(connID, broadcast.Event{
		Name: protocol.EventConfirmLeaderStart,
		Data: protocol.SiteAck{Site: site},
	})
	s.out.ToAllExcluding(connID, s.directoryEvent())
}

// RegisterFollower subscribes connID to site and catches it up if the site is led.
// A connection follows one site at a time; following another site leaves the previous room.
func (s *Service) RegisterFollower(site, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, had := s.registry.Associate(connID, site); had && prev != site {
		s.releaseRoom(prev, connID)
		slog.Debug("follower switched site", "conn", connID, "from", prev, "to", site)
	}
	s.out.Join(site, connID)

	if entry, ok := s.store.Get(site); ok {
		s.out.ToConnection(connID, snapshotEvent(entry))
	}

	slog.Info("new follower", "site", site, "conn", connID, "site_followers", len(s.registry.Followers(site)), "followers", s.registry.Len())
	s.out.ToConnection(connID, broadcast.Event{
		Name: protocol.EventConfirmFollowerStart,
		Data: protocol.SiteAck{Site: site},
	})
}

// UnregisterFollower is idempotent: leaving a site that was never followed still confirms.
func (s *Service) UnregisterFollower(site, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.registry.Lookup(connID); ok && current == site {
		s.registry.Dissociate(connID)
	}
	s.releaseRoom(site, connID)

	slog.Info("follower left", "site", site, "conn", connID, "followers", s.registry.Len())
	s.out.ToConnection(connID, broadcast.Event{
		Name: protocol.EventConfirmFollowerEnd,
		Data: protocol.SiteAck{Site: site},
	})
}

// UnregisterLeader ends leadership of site on request of connID.
func (s *Service) UnregisterLeader(site, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.unregisterLeader(site, connID, true); err != nil {
		return err
	}
	metrics.LeaderChangesTotal.WithLabelValues("end").Inc()
	return nil
}

// ApplyStateMutation sets key on site and sends the change to the whole room. The
// connection that made the change is included unless the service runs WithoutEcho.
func (s *Service) ApplyStateMutation(site, key string, value types.Value, connID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetKey(site, key, value); err != nil {
		metrics.MutationsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.MutationsTotal.WithLabelValues("applied").Inc()

	ev := broadcast.Event{
		Name: protocol.EventNewState,
		Data: protocol.NewState{Key: key, NewVal: value.Clone()},
	}
	if s.suppressEcho {
		s.out.ToRoomExcluding(site, connID, ev)
	} else {
		s.out.ToRoom(site, ev)
	}
	return nil
}

// HandleDisconnect releases every site led by connID and drops its follower association.
func (s *Service) HandleDisconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		site, ok := s.store.FindByLeaderConnection(connID)
		if !ok {
			break
		}
		slog.Info("leader disconnected", "site", site, "conn", connID)
		if err := s.unregisterLeader(site, connID, false); err != nil {
			slog.Error("leader cleanup failed", "site", site, "conn", connID, "error", err)
			break
		}
		metrics.LeaderChangesTotal.WithLabelValues("disconnect").Inc()
	}

	if site, ok := s.registry.Dissociate(connID); ok {
		s.releaseRoom(site, connID)
		slog.Info("follower disconnected", "site", site, "conn", connID)
	}
}

// Directory returns the display name of the leader of every led site.
func (s *Service) Directory() map[string]string {
	return s.store.Leaders()
}

func (s *Service) unregisterLeader(site, connID string, confirm bool) error {
	entry, ok := s.store.Delete(site)
	if !ok {
		return fmt.Errorf("remove leader of %q: %w", site, storage.ErrUnknownSite)
	}

	slog.Info("leader removed", "site", site, "leader", entry.Leader.Name(), "conn", connID)

	if confirm {
		s.out.ToConnection(connID, broadcast.Event{
			Name: protocol.EventConfirmLeaderEnd,
			Data: protocol.SiteAck{Site: site},
		})
	}
	s.out.ToRoom(site, broadcast.Event{
		Name: protocol.EventNoMoreLeader,
		Data: protocol.NoMoreLeader{Site: site, LeaderName: entry.Leader.Name()},
	})
	s.releaseRoom(site, entry.LeaderConnID)
	s.out.ToAllExcluding(connID, s.directoryEvent())
	return nil
}

// releaseRoom takes connID out of the site room unless it still follows or leads site.
func (s *Service) releaseRoom(site, connID string) {
	if followed, ok := s.registry.Lookup(connID); ok && followed == site {
		return
	}
	if leaderConn, ok := s.store.LeaderConnection(site); ok && leaderConn == connID {
		return
	}
	s.out.Leave(site, connID)
}

func (s *Service) directoryEvent() broadcast.Event {
	return broadcast.Event{
		Name: protocol.EventAllLeaders,
		Data: protocol.Directory{Leaders: s.store.Leaders()},
	}
}

func snapshotEvent(e storage.Entry) broadcast.Event {
	return broadcast.Event{
		Name: protocol.EventFullStateSnapshot,
		Data: protocol.FullStateSnapshot{StateSnapshot: e.State, Leader: e.Leader},
	}
}
