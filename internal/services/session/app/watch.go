package server

import (
	"context"
	"errors"
	"sync"

	"github.com/louisbranch/sessionhub/internal/services/session/storage"
)

// Change carries one session row transition for live query subscribers.
type Change struct {
	SessionID string
	Old       storage.SessionRecord
	New       storage.SessionRecord
}

// Watcher fans projection changes out to per-session subscribers. A slow
// subscriber never blocks the write path: each subscription buffers at most
// one pending change, and a newer change coalesces with an undelivered one by
// keeping the oldest Old and the newest New.
type Watcher struct {
	engine *Engine

	mu          sync.Mutex
	subscribers map[string]map[int]chan Change
	nextID      int
	closed      bool
}

// NewWatcher creates a watcher that reads initial values through the engine.
func NewWatcher(engine *Engine) (*Watcher, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	return &Watcher{
		engine:      engine,
		subscribers: make(map[string]map[int]chan Change),
	}, nil
}

// Subscribe registers for one session's changes. It returns the current row,
// a change channel, and a cancel function. The channel closes on cancel or
// watcher shutdown. Absent sessions read as the synthesized default row.
func (w *Watcher) Subscribe(ctx context.Context, sessionID string) (storage.SessionRecord, <-chan Change, func(), error) {
	if w == nil {
		return storage.SessionRecord{}, nil, nil, errors.New("watcher is not configured")
	}
	// Subscriptions key on the bare id so publishes from the projection
	// reach subscribers that addressed the session by resource name.
	sessionID, err := parseSessionName(sessionID)
	if err != nil {
		return storage.SessionRecord{}, nil, nil, err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return storage.SessionRecord{}, nil, nil, errors.New("watcher is shut down")
	}
	id := w.nextID
	w.nextID++
	ch := make(chan Change, 1)
	if w.subscribers[sessionID] == nil {
		w.subscribers[sessionID] = make(map[int]chan Change)
	}
	w.subscribers[sessionID][id] = ch
	w.mu.Unlock()

	cancel := func() { w.unsubscribe(sessionID, id) }

	// Registration happens before the initial read, so a change landing in
	// between is delivered rather than missed. Subscribers may therefore
	// see the initial value repeated as a change.
	record, err := w.engine.CurrentSession(ctx, sessionID)
	if err != nil {
		cancel()
		return storage.SessionRecord{}, nil, nil, err
	}
	return record, ch, cancel, nil
}

// PublishChange delivers a row transition to every subscriber of the session.
// It implements the projection publisher and never blocks.
func (w *Watcher) PublishChange(sessionID string, oldRecord, newRecord storage.SessionRecord) {
	if w == nil {
		return
	}
	change := Change{SessionID: sessionID, Old: oldRecord, New: newRecord}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for _, ch := range w.subscribers[sessionID] {
		deliver := change
		select {
		case ch <- deliver:
		default:
			// Coalesce with the undelivered change.
			select {
			case pending := <-ch:
				deliver.Old = pending.Old
			default:
			}
			select {
			case ch <- deliver:
			default:
			}
		}
	}
}

// Shutdown closes every subscription channel and rejects new subscribers.
func (w *Watcher) Shutdown() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, subs := range w.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	w.subscribers = nil
}

func (w *Watcher) unsubscribe(sessionID string, id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	subs := w.subscribers[sessionID]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(w.subscribers, sessionID)
	}
	close(ch)
}
