package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type call struct {
	op      string
	target  string
	exclude string
	event   string
}

type recordingTransport struct {
	calls []call
}

func (r *recordingTransport) Join(room, connID string) {
	r.calls = append(r.calls, call{op: "join", target: room, exclude: connID})
}

func (r *recordingTransport) Leave(room, connID string) {
	r.calls = append(r.calls, call{op: "leave", target: room, exclude: connID})
}

func (r *recordingTransport) Send(connID string, ev Event) {
	r.calls = append(r.calls, call{op: "send", target: connID, event: ev.Name})
}

func (r *recordingTransport) Publish(room string, ev Event, exclude string) {
	r.calls = append(r.calls, call{op: "publish", target: room, exclude: exclude, event: ev.Name})
}

func (r *recordingTransport) PublishAll(ev Event, exclude string) {
	r.calls = append(r.calls, call{op: "publish_all", exclude: exclude, event: ev.Name})
}

func TestGateway_MapsIntentsInOrder(t *testing.T) {
	tr := &recordingTransport{}
	g := NewGateway(tr)

	g.Join("mrc1", "c1")
	g.ToConnection("c1", Event{Name: "a"})
	g.ToRoom("mrc1", Event{Name: "b"})
	g.ToRoomExcluding("mrc1", "c1", Event{Name: "c"})
	g.ToAllExcluding("c1", Event{Name: "d"})
	g.Leave("mrc1", "c1")

	require.Equal(t, []call{
		{op: "join", target: "mrc1", exclude: "c1"},
		{op: "send", target: "c1", event: "a"},
		{op: "publish", target: "mrc1", event: "b"},
		{op: "publish", target: "mrc1", exclude: "c1", event: "c"},
		{op: "publish_all", exclude: "c1", event: "d"},
		{op: "leave", target: "mrc1", exclude: "c1"},
	}, tr.calls)
}

func TestGateway_DoesNotDeduplicate(t *testing.T) {
	tr := &recordingTransport{}
	g := NewGateway(tr)

	ev := Event{Name: "new_state", Data: map[string]any{"key": "x"}}
	g.ToRoom("mrc1", ev)
	g.ToRoom("mrc1", ev)

	require.Len(t, tr.calls, 2)
}
