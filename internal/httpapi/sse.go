package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const keepaliveInterval = 30 * time.Second

// Broadcaster fans reconciled events out to SSE subscribers. Slow
// subscribers lose events rather than stalling the pipeline.
type Broadcaster struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]chan []byte
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:  log,
		subs: make(map[string]chan []byte),
	}
}

// Publish marshals payload and queues it for every subscriber.
func (b *Broadcaster) Publish(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("event marshal failed", "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- data:
		default:
			b.log.Debug("subscriber lagging, event dropped", "subscriber", id)
		}
	}
}

func (b *Broadcaster) subscribe() (string, chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// SubscriberCount returns the number of connected SSE clients.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// ServeHTTP streams reconciled events as SSE until the client leaves.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id, ch := b.subscribe()
	defer b.unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected","subscriberId":"`+id+`"}`)
	flusher.Flush()
	b.log.Debug("event subscriber connected", "subscriber", id)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			b.log.Debug("event subscriber disconnected", "subscriber", id)
			return
		case data := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, "data: %s\n\n", `{"type":"keepalive"}`)
			flusher.Flush()
		}
	}
}
