// Package dispatch routes inbound websocket events to the synchronization service.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"uisync/internal/broadcast"
	"uisync/internal/metrics"
	"uisync/internal/protocol"
	"uisync/internal/storage"
	"uisync/internal/types"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownEvent     = errors.New("unknown event")
)

type Session interface {
	HandleConnect(connID string)
	HandleDisconnect(connID string)
	RegisterLeader(leader types.Leader, site string, snapshot types.State, connID string)
	UnregisterLeader(site, connID string) error
	RegisterFollower(site, connID string)
	UnregisterFollower(site, connID string)
	ApplyStateMutation(site, key string, value types.Value, connID string) error
}

type Replier interface {
	ToConnection(connID string, ev broadcast.Event)
}

type handlerFunc func(connID string, data json.RawMessage) error

type Dispatcher struct {
	session  Session
	reply    Replier
	tracer   trace.Tracer
	handlers map[string]handlerFunc
}

func New(session Session, reply Replier) *Dispatcher {
	d := &Dispatcher{
		session: session,
		reply:   reply,
		tracer:  otel.Tracer("uisync/dispatch"),
	}
	d.handlers = map[string]handlerFunc{
		protocol.EventNewLeader:    d.newLeader,
		protocol.EventRemoveLeader: d.removeLeader,
		protocol.EventJoinRoom:     d.joinRoom,
		protocol.EventLeaveRoom:    d.leaveRoom,
		protocol.EventUIChange:     d.uiChange,
		protocol.EventPing:         d.ping,
	}
	return d
}

func (d *Dispatcher) HandleConnect(connID string) {
	d.observe(protocol.EventConnect, connID, func() error {
		d.session.HandleConnect(connID)
		return nil
	})
}

func (d *Dispatcher) HandleDisconnect(connID string) {
	d.observe(protocol.EventDisconnect, connID, func() error {
		d.session.HandleDisconnect(connID)
		return nil
	})
}

func (d *Dispatcher) HandleFrame(connID string, frame protocol.Frame) {
	h, ok := d.handlers[frame.Event]
	if !ok {
		metrics.EventsTotal.WithLabelValues("unknown", "rejected").Inc()
		slog.Info("unknown event", "conn", connID, "event", frame.Event)
		d.replyError(connID, frame.Event, protocol.CodeUnknownEvent,
			fmt.Sprintf("%s: %q", ErrUnknownEvent, frame.Event))
		return
	}
	d.observe(frame.Event, connID, func() error {
		return h(connID, frame.Data)
	})
}

// observe runs fn inside a span with metrics, error mapping and panic recovery.
func (d *Dispatcher) observe(event, connID string, fn func() error) {
	start := time.Now()
	status := "ok"

	_, span := d.tracer.Start(context.Background(), "event "+event,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("uisync.event", event),
			attribute.String("uisync.conn", connID),
		),
	)

	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			slog.Error("event handler panicked", "event", event, "conn", connID, "panic", r)
			d.replyError(connID, event, protocol.CodeInternal, "internal error")
		}
		metrics.EventsTotal.WithLabelValues(event, status).Inc()
		metrics.EventDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())

		span.SetAttributes(attribute.String("uisync.status", status))
		if status == "panic" || status == "error" {
			span.SetStatus(codes.Error, status)
		}
		span.End()
	}()

	err := fn()
	if err != nil {
		span.RecordError(err)
	}
	switch {
	case err == nil:
		slog.Debug("event handled", "event", event, "conn", connID)
	case errors.Is(err, storage.ErrUnknownSite):
		status = "skipped"
		slog.Warn("event skipped", "event", event, "conn", connID, "error", err)
	case errors.Is(err, ErrMalformedPayload):
		status = "rejected"
		slog.Info("event rejected", "event", event, "conn", connID, "error", err)
		d.replyError(connID, event, protocol.CodeMalformedPayload, err.Error())
	default:
		status = "error"
		slog.Error("event failed", "event", event, "conn", connID, "error", err)
		d.replyError(connID, event, protocol.CodeInternal, "internal error")
	}
}

func (d *Dispatcher) replyError(connID, event, code, message string) {
	d.reply.ToConnection(connID, broadcast.Event{
		Name: protocol.EventError,
		Data: protocol.Error{Event: event, Code: code, Message: message},
	})
}

func (d *Dispatcher) newLeader(connID string, data json.RawMessage) error {
	data, err := unwrapString(data)
	if err != nil {
		return err
	}

	var req protocol.NewLeader
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.Leader.IsZero() {
		return fmt.Errorf("%w: leader is required", ErrMalformedPayload)
	}
	if req.Site == "" {
		return fmt.Errorf("%w: site is required", ErrMalformedPayload)
	}

	d.session.RegisterLeader(req.Leader, req.Site, req.FullStateSnapshot, connID)
	return nil
}

func (d *Dispatcher) removeLeader(connID string, data json.RawMessage) error {
	site, err := decodeSite(data)
	if err != nil {
		return err
	}
	return d.session.UnregisterLeader(site, connID)
}

func (d *Dispatcher) joinRoom(connID string, data json.RawMessage) error {
	site, err := decodeSite(data)
	if err != nil {
		return err
	}
	d.session.RegisterFollower(site, connID)
	return nil
}

func (d *Dispatcher) leaveRoom(connID string, data json.RawMessage) error {
	site, err := decodeSite(data)
	if err != nil {
		return err
	}
	d.session.UnregisterFollower(site, connID)
	return nil
}

func (d *Dispatcher) uiChange(connID string, data json.RawMessage) error {
	var req protocol.UIChange
	if err := decode(data, &req); err != nil {
		return err
	}
	switch {
	case req.Site == "":
		return fmt.Errorf("%w: site is required", ErrMalformedPayload)
	case req.MutationName == "":
		return fmt.Errorf("%w: mutation_name is required", ErrMalformedPayload)
	case req.NewVal.IsZero():
		return fmt.Errorf("%w: new_val is required", ErrMalformedPayload)
	}
	return d.session.ApplyStateMutation(req.Site, req.MutationName, req.NewVal, connID)
}

func (d *Dispatcher) ping(connID string, _ json.RawMessage) error {
	d.reply.ToConnection(connID, broadcast.Event{Name: protocol.EventPong})
	return nil
}

func decodeSite(data json.RawMessage) (string, error) {
	var req protocol.SiteRequest
	if err := decode(data, &req); err != nil {
		return "", err
	}
	if req.Site == "" {
		return "", fmt.Errorf("%w: site is required", ErrMalformedPayload)
	}
	return req.Site, nil
}

func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// unwrapString accepts a payload sent as a JSON string holding the JSON object.
func unwrapString(data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return data, nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return json.RawMessage(inner), nil
}
