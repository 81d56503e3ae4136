// Package sse pushes index changes and new notifications to browsers as
// Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/agora/internal/index"
	"github.com/starford/agora/internal/records"
)

// Topics a client can filter on with ?topics=a,b. The topic of an event is
// the part of its type before the first dot.
const (
	TopicNotification = "notification"
	TopicProfile      = "profile"
	TopicPost         = "post"
	TopicVote         = "vote"
	TopicFeed         = "feed"
)

const clientBuffer = 64

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (e Event) topic() string {
	t, _, _ := strings.Cut(e.Type, ".")
	return t
}

type subscriber struct {
	ch     chan []byte
	topics map[string]bool // nil means every topic
}

func (s *subscriber) wants(topic string) bool {
	return s.topics == nil || s.topics[topic]
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often ServeHTTP writes a comment line to keep idle
// connections open through proxies. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// Broker fans events out to SSE clients.
//
// One event loop goroutine owns the subscriber set, the event id counter and
// the feed throttle; public methods talk to it over channels.
type Broker struct {
	feedMin   time.Duration
	keepAlive time.Duration

	subscribeCh   chan *subscriber
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	indexEventCh  chan index.Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits feed.updated at most once per
// feedThrottle.
func NewBroker(feedThrottle time.Duration, opts ...Option) *Broker {
	if feedThrottle <= 0 {
		feedThrottle = 2 * time.Second
	}

	b := &Broker{
		feedMin:       feedThrottle,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan *subscriber),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		indexEventCh:  make(chan index.Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}

	go b.run()
	return b
}

// translate maps an index change onto the events clients see. Notification
// events carry the full entry; record events carry only the URL.
func translate(ev index.Event) (Event, bool) {
	if ev.Kind == index.EventNotification {
		return Event{Type: TopicNotification + ".created", Data: ev.Notification}, true
	}
	if ev.Record == records.KindUnknown {
		return Event{}, false
	}
	return Event{
		Type: string(ev.Record) + "." + ev.Kind,
		Data: map[string]string{"url": ev.URL},
	}, true
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan []byte]*subscriber)
	var (
		seq      uint64
		lastFeed time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		topic := event.topic()
		for ch, s := range subs {
			if !s.wants(topic) {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall everyone else.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s.ch] = s

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case ev := <-b.indexEventCh:
			event, ok := translate(ev)
			if !ok {
				continue
			}
			broadcast(event)

			// Post and vote changes alter listings; clients refetch at most
			// once per feedMin.
			if ev.Record != records.KindPost && ev.Record != records.KindVote {
				continue
			}
			if now := time.Now(); now.Sub(lastFeed) >= b.feedMin {
				lastFeed = now
				broadcast(Event{Type: TopicFeed + ".updated", Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the event loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client interested in topics (all topics when none are
// given) and returns its message channel. After Close it returns a closed
// channel.
func (b *Broker) Subscribe(topics ...string) chan []byte {
	s := &subscriber{ch: make(chan []byte, clientBuffer)}
	if len(topics) > 0 {
		s.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			s.topics[t] = true
		}
	}
	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(s.ch)
	}
	return s.ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
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

// Publish sends an event to every interested client.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishIndexEvent forwards an index change. It has the shape of an
// index.EventCallback so it can be handed to the indexer directly.
func (b *Broker) PublishIndexEvent(ev index.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.indexEventCh <- ev:
	case <-b.stopped:
	}
}

// parseTopics reads ?topics=notification,post.
func parseTopics(r *http.Request) []string {
	var out []string
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
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

	ch := b.Subscribe(parseTopics(r)...)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
