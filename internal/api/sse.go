package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyuha/orbit/internal/ai"
	"github.com/vyuha/orbit/internal/session"
)

// Event names pushed on /api/events. ai:* names come from the job queue.
const (
	eventGraphUpdated = "graph:updated"
	eventLayoutRelax  = "layout:relax"
	eventLayoutCenter = "layout:center"
	eventLayoutFit    = "layout:fit"
	eventLayoutFreeze = "layout:freeze"
	eventHeartbeat    = "heartbeat"
)

const (
	clientBuffer      = 64
	heartbeatInterval = 30 * time.Second
)

// SSEEvent is one frame on the event stream.
type SSEEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// eventKind groups an event name for logging: graph, layout, ai or other.
func eventKind(name string) string {
	if i := strings.IndexByte(name, ':'); i > 0 {
		return name[:i]
	}
	return "other"
}

// ---------------------------------------------------------------------------
// Hub
// ---------------------------------------------------------------------------

// SSEBroadcaster is the hub behind /api/events. Every connected surface
// gets its own bounded queue; a surface that falls behind loses frames
// rather than stalling the session.
type SSEBroadcaster struct {
	mu     sync.RWMutex
	queues map[string]chan SSEEvent
}

func NewSSEBroadcaster() *SSEBroadcaster {
	return &SSEBroadcaster{queues: map[string]chan SSEEvent{}}
}

// Subscribe attaches a surface under id and returns its queue.
func (b *SSEBroadcaster) Subscribe(id string) chan SSEEvent {
	q := make(chan SSEEvent, clientBuffer)

	b.mu.Lock()
	b.queues[id] = q
	n := len(b.queues)
	b.mu.Unlock()

	slog.Debug("surface attached", "surface", id, "surfaces", n)
	return q
}

// Unsubscribe detaches a surface and closes its queue. Unknown ids are
// ignored.
func (b *SSEBroadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	q, ok := b.queues[id]
	if ok {
		delete(b.queues, id)
		close(q)
	}
	n := len(b.queues)
	b.mu.Unlock()

	if ok {
		slog.Debug("surface detached", "surface", id, "surfaces", n)
	}
}

// Broadcast queues event for every attached surface without blocking.
func (b *SSEBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, q := range b.queues {
		select {
		case q <- event:
		default:
			slog.Warn("surface queue full, frame dropped",
				"surface", id, "event", event.Event, "kind", eventKind(event.Event))
		}
	}
}

// ClientCount reports how many surfaces are attached.
func (b *SSEBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queues)
}

// ---------------------------------------------------------------------------
// Graph feed
// ---------------------------------------------------------------------------

// graphFeed turns session views into graph:updated frames. Listeners of
// concurrent commits can run out of order, so a view whose version is not
// newer than the last one published is dropped.
type graphFeed struct {
	hub *SSEBroadcaster

	mu   sync.Mutex
	last uint64
}

func (f *graphFeed) publish(v session.View) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v.Version <= f.last {
		slog.Debug("stale view skipped", "version", v.Version, "published", f.last)
		return false
	}
	f.last = v.Version
	f.hub.Broadcast(SSEEvent{Event: eventGraphUpdated, Data: v})
	return true
}

// ---------------------------------------------------------------------------
// Layout directives
// ---------------------------------------------------------------------------

// sseLayout forwards settle-window directives to the browser, which runs
// the force simulation.
type sseLayout struct {
	hub *SSEBroadcaster
}

// NewSSELayout returns a session.Layout that broadcasts layout:* events.
func NewSSELayout(hub *SSEBroadcaster) session.Layout {
	return &sseLayout{hub: hub}
}

func (l *sseLayout) Relax(ticks int) {
	l.hub.Broadcast(SSEEvent{Event: eventLayoutRelax, Data: map[string]int{"ticks": ticks}})
}

func (l *sseLayout) FitView() {
	l.hub.Broadcast(SSEEvent{Event: eventLayoutFit, Data: struct{}{}})
}

func (l *sseLayout) CenterAt(x, y, zoom float64) {
	l.hub.Broadcast(SSEEvent{Event: eventLayoutCenter, Data: map[string]float64{"x": x, "y": y, "zoom": zoom}})
}

func (l *sseLayout) Freeze() {
	l.hub.Broadcast(SSEEvent{Event: eventLayoutFreeze, Data: struct{}{}})
}

// ---------------------------------------------------------------------------
// Job progress
// ---------------------------------------------------------------------------

type aiEvents struct {
	hub *SSEBroadcaster
}

func (a aiEvents) Broadcast(event ai.BroadcastEvent) {
	a.hub.Broadcast(SSEEvent{Event: event.Event, Data: event.Data})
}

// NewAIBroadcaster lets the job queue report progress on the event stream.
// The queue is built before the Server, so main wires it with this.
func NewAIBroadcaster(hub *SSEBroadcaster) ai.Broadcaster {
	return aiEvents{hub: hub}
}

// ---------------------------------------------------------------------------
// GET /api/events
// ---------------------------------------------------------------------------

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SSE_NOT_SUPPORTED", "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id := uuid.NewString()
	queue := s.sse.Subscribe(id)
	defer s.sse.Unsubscribe(id)

	// A new surface starts from the current view, then follows the feed.
	if err := writeSSEEvent(w, flusher, SSEEvent{Event: eventGraphUpdated, Data: s.session.View()}); err != nil {
		return
	}

	beat := time.NewTicker(heartbeatInterval)
	defer beat.Stop()

	for {
		var evt SSEEvent
		select {
		case <-r.Context().Done():
			return
		case e, open := <-queue:
			if !open {
				return
			}
			evt = e
		case now := <-beat.C:
			evt = SSEEvent{Event: eventHeartbeat, Data: map[string]int64{"t": now.Unix()}}
		}
		if err := writeSSEEvent(w, flusher, evt); err != nil {
			slog.Debug("event stream closed", "surface", id, "error", err)
			return
		}
	}
}

// writeSSEEvent writes evt as one "event:/data:" frame and flushes it.
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, evt SSEEvent) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("api: encode %s: %w", evt.Event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
