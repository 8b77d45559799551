// Package app wires the synchronization service to its transport and admin surfaces.
package app

import (
	"context"
	"errors"
	"log/slog"

	"uisync/internal/admin"
	"uisync/internal/broadcast"
	"uisync/internal/configuration"
	"uisync/internal/dispatch"
	"uisync/internal/metrics"
	"uisync/internal/registry"
	"uisync/internal/session"
	"uisync/internal/storage"
	"uisync/internal/transport"
)

type Services struct {
	Store      *storage.Store
	Registry   *registry.Registry
	Hub        *transport.Hub
	Gateway    *broadcast.Gateway
	Session    *session.Service
	Dispatcher *dispatch.Dispatcher
	Transport  *transport.Server
	Metrics    *metrics.Server
	Admin      *admin.Server
}

// NewServices builds the object graph. Metrics and admin servers are nil when disabled.
func NewServices(cfg *configuration.Properties) *Services {
	store := storage.NewStore()
	reg := registry.New()
	hub := transport.NewHub()
	gateway := broadcast.NewGateway(hub)
	var opts []session.Option
	if cfg.Session.SuppressEcho {
		opts = append(opts, session.WithoutEcho())
	}
	svc := session.NewService(store, reg, gateway, opts...)
	dispatcher := dispatch.New(svc, gateway)

	s := &Services{
		Store:      store,
		Registry:   reg,
		Hub:        hub,
		Gateway:    gateway,
		Session:    svc,
		Dispatcher: dispatcher,
		Transport:  transport.NewServer(&cfg.Transport, hub, dispatcher),
	}
	if cfg.Metrics.Enabled {
		s.Metrics = metrics.NewServer(cfg.Metrics.Address)
	}
	if cfg.Admin.Enabled {
		s.Admin = admin.NewServer(cfg.Admin.Address)
	}
	return s
}

// Start brings up the metrics and admin servers before accepting websocket traffic.
// On failure everything already started is stopped again.
func (s *Services) Start() error {
	if s.Metrics != nil {
		if err := s.Metrics.Start(); err != nil {
			return err
		}
	}
	if s.Admin != nil {
		if err := s.Admin.Start(); err != nil {
			s.stopMetrics()
			return err
		}
	}
	if err := s.Transport.Start(); err != nil {
		s.stopAdmin()
		s.stopMetrics()
		return err
	}

	if s.Admin != nil {
		s.Admin.SetServing(true)
	}
	slog.Info("UI sync ready", "addr", s.Transport.Addr())
	return nil
}

func (s *Services) Stop(ctx context.Context) error {
	if s.Admin != nil {
		s.Admin.SetServing(false)
	}

	var errs []error
	if err := s.Transport.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	s.stopAdmin()
	s.stopMetrics()

	slog.Info("UI sync stopped", "sites", s.Store.Len(), "followers", s.Registry.Len())
	return errors.Join(errs...)
}

func (s *Services) stopAdmin() {
	if s.Admin != nil {
		s.Admin.Stop()
	}
}

func (s *Services) stopMetrics() {
	if s.Metrics != nil {
		s.Metrics.Stop()
	}
}
