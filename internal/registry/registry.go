package registry

import (
	"sort"
	"sync"

	"uisync/internal/metrics"
)

// Registry indexes which site each connection follows. A connection follows at most one site.
type Registry struct {
	follows map[string]string
	mu      sync.RWMutex
}

func New() *Registry {
	return &Registry{follows: make(map[string]string)}
}

// Associate records that connID follows site and returns the site it followed before, if any.
func (r *Registry) Associate(connID, site string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.follows[connID]
	r.follows[connID] = site
	metrics.Followers.Set(float64(len(r.follows)))
	return prev, ok
}

// Dissociate is a no-op for connections that follow nothing.
func (r *Registry) Dissociate(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	site, ok := r.follows[connID]
	if !ok {
		return "", false
	}
	delete(r.follows, connID)
	metrics.Followers.Set(float64(len(r.follows)))
	return site, true
}

func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	site, ok := r.follows[connID]
	return site, ok
}

// Followers lists the connections following site, sorted.
func (r *Registry) Followers(site string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for conn, s := range r.follows {
		if s == site {
			out = append(out, conn)
		}
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.follows)
}
