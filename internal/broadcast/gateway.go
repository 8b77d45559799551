package broadcast

import (
	"uisync/internal/metrics"
)

// Event is one outbound message; Data is encoded as the frame payload.
type Event struct {
	Name string
	Data any
}

// Transport is the room based publish/subscribe surface of the connection layer.
// An empty exclude means nobody is excluded.
type Transport interface {
	Join(room, connID string)
	Leave(room, connID string)
	Send(connID string, ev Event)
	Publish(room string, ev Event, exclude string)
	PublishAll(ev Event, exclude string)
}

const (
	intentConnection    = "connection"
	intentRoom          = "room"
	intentRoomExcluding = "room_excluding"
	intentAllExcluding  = "all_excluding"
)

// Gateway maps delivery intents onto the transport. It never buffers, reorders or drops.
type Gateway struct {
	transport Transport
}

func NewGateway(t Transport) *Gateway {
	return &Gateway{transport: t}
}

func (g *Gateway) Join(site, connID string) {
	g.transport.Join(site, connID)
}

func (g *Gateway) Leave(site, connID string) {
	g.transport.Leave(site, connID)
}

func (g *Gateway) ToConnection(connID string, ev Event) {
	metrics.EmitsTotal.WithLabelValues(intentConnection, ev.Name).Inc()
	g.transport.Send(connID, ev)
}

func (g *Gateway) ToRoom(site string, ev Event) {
	metrics.EmitsTotal.WithLabelValues(intentRoom, ev.Name).Inc()
	g.transport.Publish(site, ev, "")
}

func (g *Gateway) ToRoomExcluding(site, connID string, ev Event) {
	metrics.EmitsTotal.WithLabelValues(intentRoomExcluding, ev.Name).Inc()
	g.transport.Publish(site, ev, connID)
}

func (g *Gateway) ToAllExcluding(connID string, ev Event) {
	metrics.EmitsTotal.WithLabelValues(intentAllExcluding, ev.Name).Inc()
	g.transport.PublishAll(ev, connID)
}
