// Package sse streams editor session events to browsers as Server-Sent
// Events.
//
// Every session event is sent as doc.<kind> with a DocEvent payload. Events
// that change the document list are followed by folio.updated, at most once
// per throttle window; a change inside the window is reported when the
// window closes. A client that connects mid-session first receives
// doc.current naming the open document.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/contextpad/internal/session"
)

// Event types not derived from a session event kind.
const (
	TypeCurrent = "doc.current"
	TypeFolio   = "folio.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// DocEvent is the payload of a doc.<kind> event. Only the field matching
// the kind is set besides DocID.
type DocEvent struct {
	DocID string `json:"doc_id"`
	// Target is where a save went: local or remote.
	Target string `json:"target,omitempty"`
	// PreviousID is the placeholder replaced by id_assigned.
	PreviousID string `json:"previous_id,omitempty"`
	// Level is the level that lifts upgrade_required, or the current level
	// for quota_reached.
	Level *int   `json:"level,omitempty"`
	Error string `json:"error,omitempty"`
	// Reason qualifies links_updated and loaded.
	Reason string `json:"reason,omitempty"`
}

func docEvent(e session.Event) Event {
	d := DocEvent{DocID: e.DocID}
	switch e.Kind {
	case session.EventSaved:
		d.Target = e.Detail
	case session.EventIDAssigned:
		d.PreviousID = e.Detail
	case session.EventUpgradeRequired, session.EventQuotaReached:
		if n, err := strconv.Atoi(e.Detail); err == nil {
			d.Level = &n
		}
	case session.EventSaveFailed, session.EventAnalysisFailed:
		d.Error = e.Detail
	default:
		d.Reason = e.Detail
	}
	return Event{Type: "doc." + e.Kind, Data: d}
}

func changesFolio(kind string) bool {
	switch kind {
	case session.EventSaved, session.EventCreated, session.EventIDAssigned:
		return true
	}
	return false
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the clients, the open document id and the
// folio throttle. Publishing never blocks: when the loop falls behind,
// events are dropped.
type Broker struct {
	folioMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	sessionCh     chan session.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given folio.updated throttle
// interval.
func NewBroker(folioThrottle time.Duration) *Broker {
	if folioThrottle <= 0 {
		folioThrottle = 2 * time.Second
	}

	b := &Broker{
		folioMin:      folioThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		sessionCh:     make(chan session.Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) []byte {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		currentDoc string
		lastFolio  time.Time
		folioDue   <-chan time.Time
	)

	broadcast := func(event Event) {
		raw := encode(event)
		if raw == nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}
	folio := func() {
		lastFolio = time.Now()
		broadcast(Event{Type: TypeFolio, Data: map[string]string{}})
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if currentDoc != "" {
				ch <- encode(Event{Type: TypeCurrent, Data: DocEvent{DocID: currentDoc}})
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case e := <-b.sessionCh:
			currentDoc = e.DocID
			broadcast(docEvent(e))
			if !changesFolio(e.Kind) || folioDue != nil {
				continue
			}
			if wait := b.folioMin - time.Since(lastFolio); wait > 0 {
				folioDue = time.After(wait)
				continue
			}
			folio()

		case <-folioDue:
			folioDue = nil
			folio()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	default:
	}
}

// Notify forwards a session event. It has the signature of a session
// notifier and never blocks the session loop.
func (b *Broker) Notify(e session.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sessionCh <- e:
	case <-b.stopped:
	default:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /session/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
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
