package server

import (
	"sync"
	"time"

	"github.com/jianli1806/Autotok/types"
)

// Registry keeps the most recent runs and fans their progress out to
// subscribers.
type Registry struct {
	mu    sync.RWMutex
	runs  map[string]*entry
	order []string
	limit int
}

type entry struct {
	record types.RunRecord
	subs   map[chan types.ProgressEvent]struct{}
	done   bool
}

// NewRegistry returns a Registry that remembers at most limit runs
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = 50
	}
	return &Registry{runs: make(map[string]*entry), limit: limit}
}

// Create records a new run
func (r *Registry) Create(id, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[id] = &entry{
		record: types.RunRecord{
			ID:        id,
			Topic:     topic,
			Stage:     types.StagePlanning,
			StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
		},
		subs: make(map[chan types.ProgressEvent]struct{}),
	}
	r.order = append(r.order, id)
	r.evict()
}

// evict drops the oldest finished runs beyond the limit. Callers hold mu.
func (r *Registry) evict() {
	for len(r.order) > r.limit {
		victim := -1
		for i, id := range r.order {
			if r.runs[id].done {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		delete(r.runs, r.order[victim])
		r.order = append(r.order[:victim], r.order[victim+1:]...)
	}
}

// Append adds a progress event to a run and forwards it to subscribers
func (r *Registry) Append(id string, stage types.Stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[id]
	if !ok || e.done {
		return
	}
	ev := types.ProgressEvent{Stage: stage, Message: message, At: time.Now().UTC()}
	e.record.Stage = stage
	e.record.Events = append(e.record.Events, ev)
	e.publish(ev)
}

// Finish stores the run's result, emits a final event and closes every
// subscriber channel.
func (r *Registry) Finish(id string, res *types.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[id]
	if !ok || e.done {
		return
	}
	msg := "Video ready: " + res.OutputPath
	if !res.OK() {
		msg = "Failed: " + res.Error
	}
	ev := types.ProgressEvent{Stage: res.Stage, Message: msg, At: time.Now().UTC()}

	e.record.Stage = res.Stage
	e.record.OutputPath = res.OutputPath
	e.record.Script = res.Script
	e.record.Error = res.Error
	e.record.CompletedAt = ev.At.Format(time.RFC3339Nano)
	e.record.Events = append(e.record.Events, ev)
	e.publish(ev)

	e.done = true
	for ch := range e.subs {
		close(ch)
	}
	e.subs = nil
	r.evict()
}

func (e *entry) publish(ev types.ProgressEvent) {
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; it still gets the full history on reconnect
		}
	}
}

// Get returns a copy of a run's record
func (r *Registry) Get(id string) (types.RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.runs[id]
	if !ok {
		return types.RunRecord{}, false
	}
	rec := e.record
	rec.Events = append([]types.ProgressEvent(nil), e.record.Events...)
	return rec, true
}

// List returns every remembered run, newest first
func (r *Registry) List() []types.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.RunRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.runs[id].record
		rec.Events = nil
		out = append(out, rec)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Subscribe returns the run's history so far and a channel of later events.
// The channel is nil when the run has already finished and is closed when
// it finishes. cancel must be called when the subscriber goes away.
func (r *Registry) Subscribe(id string) (history []types.ProgressEvent, events <-chan types.ProgressEvent, cancel func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.runs[id]
	if !found {
		return nil, nil, func() {}, false
	}
	history = append([]types.ProgressEvent(nil), e.record.Events...)
	if e.done {
		return history, nil, func() {}, true
	}

	ch := make(chan types.ProgressEvent, 16)
	e.subs[ch] = struct{}{}
	cancel = func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, live := e.subs[ch]; live {
			delete(e.subs, ch)
			close(ch)
		}
	}
	return history, ch, cancel, true
}
