package transport

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"uisync/internal/metrics"
)

type peer struct {
	id           string
	ws           *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration
	done         chan struct{}

	queueMu     sync.Mutex
	queueClosed bool
	greeted     bool
	closeOnce   sync.Once
	closeReason string
}

func newPeer(id string, ws *websocket.Conn, queueSize int, writeTimeout time.Duration) *peer {
	return &peer{
		id:           id,
		ws:           ws,
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// enqueue queues a message addressed to this connection alone. The first such
// message is the greeting and opens the connection to broadcasts.
func (p *peer) enqueue(msg []byte) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	p.greeted = true
	p.push(msg)
}

// enqueueBroadcast drops broadcasts sent before the greeting; the greeting already
// reflects everything they carried.
func (p *peer) enqueueBroadcast(msg []byte) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	if !p.greeted {
		return
	}
	p.push(msg)
}

// push never blocks. A peer that cannot keep up is closed. Callers hold queueMu.
func (p *peer) push(msg []byte) {
	if p.queueClosed {
		return
	}
	select {
	case p.send <- msg:
	default:
		slog.Warn("outbound queue full, closing connection", "conn", p.id, "queued", len(p.send))
		go p.close("slow_consumer")
	}
}

func (p *peer) closeQueue() {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	if !p.queueClosed {
		p.queueClosed = true
		close(p.send)
	}
}

func (p *peer) close(reason string) {
	p.closeOnce.Do(func() {
		p.queueMu.Lock()
		p.closeReason = reason
		p.queueMu.Unlock()
		_ = p.ws.Close()
	})
}

func (p *peer) reason(fallback string) string {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	if p.closeReason != "" {
		return p.closeReason
	}
	return fallback
}

func (p *peer) writeLoop() {
	defer close(p.done)

	for msg := range p.send {
		if p.writeTimeout > 0 {
			_ = p.ws.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		}
		if err := websocket.Message.Send(p.ws, string(msg)); err != nil {
			slog.Debug("websocket write failed", "conn", p.id, "error", err)
			p.close("write_error")
			for range p.send {
			}
			return
		}
		metrics.FramesTotal.WithLabelValues("out").Inc()
	}
}
