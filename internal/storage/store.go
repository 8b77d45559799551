package storage

import (
	"errors"
	"fmt"
	"sync"

	"uisync/internal/metrics"
	"uisync/internal/types"
)

var ErrUnknownSite = errors.New("unknown site")

// Entry is one led site. Entries returned by the store are deep copies.
type Entry struct {
	Site         string
	Leader       types.Leader
	State        types.State
	LeaderConnID string
}

func (e Entry) clone() Entry {
	return Entry{
		Site:         e.Site,
		Leader:       e.Leader.Clone(),
		State:        e.State.Clone(),
		LeaderConnID: e.LeaderConnID,
	}
}

// Store holds the authoritative state of every site that currently has a leader.
type Store struct {
	sites map[string]*Entry
	mu    sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		sites: make(map[string]*Entry),
	}
}

// Put creates or replaces the entry for site and returns the replaced one, if any.
func (s *Store) Put(site string, leader types.Leader, snapshot types.State, leaderConnID string) (Entry, bool) {
	metrics.StorageOperationsTotal.WithLabelValues("put").Inc()

	next := &Entry{
		Site:         site,
		Leader:       leader.Clone(),
		State:        snapshot.Clone(),
		LeaderConnID: leaderConnID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.sites[site]
	s.sites[site] = next
	metrics.SitesLed.Set(float64(len(s.sites)))

	if !existed {
		return Entry{}, false
	}
	return *prev, true
}

// Get returns a deep copy of the entry for site.
func (s *Store) Get(site string) (Entry, bool) {
	metrics.StorageOperationsTotal.WithLabelValues("get").Inc()

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sites[site]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Delete removes site and hands the removed entry to the caller.
func (s *Store) Delete(site string) (Entry, bool) {
	metrics.StorageOperationsTotal.WithLabelValues("delete").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sites[site]
	if !ok {
		return Entry{}, false
	}
	delete(s.sites, site)
	metrics.SitesLed.Set(float64(len(s.sites)))
	return *e, true
}

// SetKey writes one key of the site's state. It fails with ErrUnknownSite when site has no leader.
func (s *Store) SetKey(site, key string, value types.Value) error {
	metrics.StorageOperationsTotal.WithLabelValues("set_key").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sites[site]
	if !ok {
		return fmt.Errorf("set %q on site %q: %w", key, site, ErrUnknownSite)
	}
	e.State.Set(key, value.Clone())
	return nil
}

// LeaderConnection reports which connection leads site.
func (s *Store) LeaderConnection(site string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sites[site]
	if !ok {
		return "", false
	}
	return e.LeaderConnID, true
}

// FindByLeaderConnection scans every site for the one led by connID.
func (s *Store) FindByLeaderConnection(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for site, e := range s.sites {
		if e.LeaderConnID == connID {
			return site, true
		}
	}
	return "", false
}

// Leaders returns the display name of the leader of every led site.
func (s *Store) Leaders() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.sites))
	for site, e := range s.sites {
		out[site] = e.Leader.Name()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites)
}
