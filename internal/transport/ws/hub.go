package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"voxelpush.ai/internal/sim/stage"
)

// Hub fans stage records out to connected sessions as EVENT messages. It
// is a stage.Observer, so its callbacks run on the stage goroutine; sends
// never block and a session whose queue is full misses the message.
type Hub struct {
	stage.NopObserver

	// View, when set, is called on the stage goroutine after LOAD, RESTART
	// and UNDO records so sessions get a fresh STATE.
	View func() stage.View

	mu       sync.Mutex
	sessions map[string]chan []byte
	info     stage.LevelInfo
	// controller is the session holding the controller role, if any.
	controller string

	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{sessions: map[string]chan []byte{}}
}

func (h *Hub) join(id string, out chan []byte) {
	h.mu.Lock()
	h.sessions[id] = out
	h.mu.Unlock()
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	if h.controller == id {
		h.controller = ""
	}
	h.mu.Unlock()
}

// claimController gives id the controller role unless another session
// holds it.
func (h *Hub) claimController(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.controller != "" && h.controller != id {
		return false
	}
	h.controller = id
	return true
}

// Level is the last loaded level.
func (h *Hub) Level() stage.LevelInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dropped counts messages lost to full session queues.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) OnLevelLoaded(info stage.LevelInfo) {
	h.mu.Lock()
	h.info = info
	h.mu.Unlock()
}

func (h *Hub) OnRecord(r stage.Record) {
	b, err := json.Marshal(eventMsg(r))
	if err != nil {
		return
	}
	h.broadcast(b)
	if r.Kind == stage.RecordTurn || h.View == nil {
		return
	}
	if b, err := json.Marshal(stateMsg(h.View())); err == nil {
		h.broadcast(b)
	}
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.sessions {
		select {
		case out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}
