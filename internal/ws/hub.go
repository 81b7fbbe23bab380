package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10

	// queueDepth is the number of frames buffered per subscriber. A
	// subscriber whose queue is full is disconnected.
	queueDepth = 32
)

// Stream events.
const (
	EventVessel = "vessel"
	EventLost   = "lost"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Feed supplies the current frames. *StoreFeed implements it.
type Feed interface {
	Frames() []Frame
}

// Message is the JSON envelope of every stream message. Frame is nil for
// EventLost.
type Message struct {
	Event  string `json:"event"`
	Source string `json:"source"`
	Frame  *Frame `json:"frame,omitempty"`
}

// Hub streams vessel frames to WebSocket subscribers. A frame is sent when a
// source's state changes, and a lost event when a source stops being live.
// New subscribers first receive the latest frame of every live source.
type Hub struct {
	feed     Feed
	interval time.Duration

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	latest map[string]cached // by source id
}

type cached struct {
	data []byte
	msg  *websocket.PreparedMessage
}

type update struct {
	source string
	msg    *websocket.PreparedMessage
}

// New creates a Hub that polls feed every interval.
func New(feed Feed, interval time.Duration) *Hub {
	return &Hub{
		feed:     feed,
		interval: interval,
		subs:     make(map[*subscriber]struct{}),
		latest:   make(map[string]cached),
	}
}

// Run publishes changes immediately and then every interval. It blocks until
// ctx is cancelled and then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	h.publish()
	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			return
		case <-t.C:
			h.publish()
		}
	}
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away. The optional ?source= query parameter limits the stream to one source.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s := newSubscriber(conn, source)
	h.subscribe(s)
	go s.writeLoop()
	s.readLoop()
	h.unsubscribe(s)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// subscribe registers s and queues the latest frame of every source it
// wants. Holding h.mu keeps s from missing or duplicating a publish.
func (h *Hub) subscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}

	ids := make([]string, 0, len(h.latest))
	for id := range h.latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s.wants(id) {
			s.offer(h.latest[id].msg)
		}
	}
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.stop()
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()
	for s := range subs {
		s.stop()
	}
}

// publish diffs the feed against the latest frames and sends what changed.
func (h *Hub) publish() {
	frames := h.feed.Frames()

	h.mu.Lock()
	ups := h.diff(frames)
	targets := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	if len(ups) == 0 {
		return
	}
	for _, s := range targets {
		for _, u := range ups {
			if s.wants(u.source) && !s.offer(u.msg) {
				slog.Debug("ws: subscriber too slow, disconnecting", "remote", s.conn.RemoteAddr().String())
				h.unsubscribe(s)
				break
			}
		}
	}
}

// diff updates h.latest from frames and returns the messages to send.
// Callers hold h.mu.
func (h *Hub) diff(frames []Frame) []update {
	var ups []update
	live := make(map[string]bool, len(frames))
	for i := range frames {
		f := &frames[i]
		live[f.Source] = true
		data, err := json.Marshal(Message{Event: EventVessel, Source: f.Source, Frame: f})
		if err != nil {
			slog.Warn("ws: encode frame", "source", f.Source, "err", err)
			continue
		}
		if prev, ok := h.latest[f.Source]; ok && bytes.Equal(prev.data, data) {
			continue
		}
		msg, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
		if err != nil {
			slog.Warn("ws: prepare frame", "source", f.Source, "err", err)
			continue
		}
		h.latest[f.Source] = cached{data: data, msg: msg}
		ups = append(ups, update{source: f.Source, msg: msg})
	}

	var lost []string
	for id := range h.latest {
		if !live[id] {
			lost = append(lost, id)
		}
	}
	sort.Strings(lost)
	for _, id := range lost {
		delete(h.latest, id)
		data, _ := json.Marshal(Message{Event: EventLost, Source: id})
		msg, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
		if err != nil {
			continue
		}
		ups = append(ups, update{source: id, msg: msg})
	}
	return ups
}

// subscriber is one WebSocket connection. writeLoop is the only writer of
// data frames; pings go through WriteControl.
type subscriber struct {
	conn   *websocket.Conn
	source string // empty for every source
	queue  chan *websocket.PreparedMessage
	done   chan struct{}
	once   sync.Once
}

func newSubscriber(conn *websocket.Conn, source string) *subscriber {
	return &subscriber{
		conn:   conn,
		source: source,
		queue:  make(chan *websocket.PreparedMessage, queueDepth),
		done:   make(chan struct{}),
	}
}

func (s *subscriber) wants(source string) bool {
	return s.source == "" || s.source == source
}

// offer queues msg without blocking. It reports false when the queue is full.
func (s *subscriber) offer(msg *websocket.PreparedMessage) bool {
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			bye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, bye, time.Now().Add(writeTimeout))
			return
		case msg := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WritePreparedMessage(msg); err != nil {
				return
			}
		case <-ping.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop discards client messages and returns once the connection fails
// or the pong deadline passes.
func (s *subscriber) readLoop() {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
