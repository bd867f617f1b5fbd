// Package sse streams vault changes to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gpabois/emerald/internal/index"
	"github.com/gpabois/emerald/internal/vault"
)

// Event types emitted by the broker.
const (
	ShardCreated = "shard.created"
	ShardUpdated = "shard.updated"
	ShardDeleted = "shard.deleted"
	LinkChanged  = "link.changed"
	IndexUpdated = "index.updated"
)

// historySize bounds the frames kept for Last-Event-ID replay.
const historySize = 256

// clientBuffer holds a full replay plus a margin of live frames.
const clientBuffer = historySize + 64

// Event is one broadcast. Path scopes it for prefix subscribers; events
// without a path reach every client.
type Event struct {
	Type string
	Path string
	Data any
}

type frame struct {
	id   uint64
	path string
	raw  []byte
}

type subscriber struct {
	ch     chan []byte
	prefix string
	after  uint64
}

// Broker fans events out to subscribed clients.
//
// A single loop goroutine owns the subscribers, the sequence, the replay
// history and the index.updated throttle.
type Broker struct {
	indexMin  time.Duration
	keepAlive time.Duration

	subscribeCh   chan subscriber
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker that emits index.updated at most once per
// indexThrottle.
func NewBroker(indexThrottle time.Duration) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}
	b := &Broker{
		indexMin:      indexThrottle,
		keepAlive:     15 * time.Second,
		subscribeCh:   make(chan subscriber),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

// within reports whether path lies in the subtree rooted at prefix.
func within(prefix, path string) bool {
	if prefix == "" || path == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	history := make([]frame, 0, historySize)
	var lastIndex time.Time
	var seq uint64

	deliver := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}

	broadcast := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{id: seq, path: ev.Path, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, ev.Type, payload)}
		if len(history) == historySize {
			history = history[1:]
		}
		history = append(history, f)
		for ch, prefix := range clients {
			if within(prefix, f.path) {
				deliver(ch, f.raw)
			}
		}
	}

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.prefix
			if sub.after == 0 {
				continue
			}
			for _, f := range history {
				if f.id > sub.after && within(sub.prefix, f.path) {
					deliver(sub.ch, f.raw)
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			broadcast(ev)
			if ev.Type == IndexUpdated || ev.Path == "" {
				continue
			}
			if now := time.Now(); now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				broadcast(Event{Type: IndexUpdated, Data: struct{}{}})
			}

		case <-ping.C:
			for ch := range clients {
				deliver(ch, []byte(": ping\n\n"))
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for events under prefix ("" for all). A
// non-zero after replays retained events with a greater id.
func (b *Broker) Subscribe(prefix string, after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	if prefix != "" {
		prefix = vault.Path(prefix).Clean().String()
	}
	select {
	case b.subscribeCh <- subscriber{ch: ch, prefix: prefix, after: after}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues an event for broadcast. Events carrying a path also
// trigger the throttled index.updated.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishChange translates an index change into its event. It has the
// index.EventCallback signature.
func (b *Broker) PublishChange(c index.Change) {
	var typ string
	switch c.Kind {
	case index.Created:
		typ = ShardCreated
	case index.Updated:
		typ = ShardUpdated
	case index.Deleted:
		typ = ShardDeleted
	case index.Relinked:
		typ = LinkChanged
	default:
		return
	}
	b.Publish(Event{Type: typ, Path: c.Path, Data: map[string]string{"path": c.Path}})
}

// ServeHTTP is the SSE endpoint (GET /events). The optional prefix query
// parameter restricts the stream to a subtree; Last-Event-ID resumes it.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var after uint64
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			http.Error(w, "invalid Last-Event-ID", http.StatusBadRequest)
			return
		}
		after = n
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("prefix"), after)
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
