package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jianli1806/Autotok/engine"
	"github.com/jianli1806/Autotok/types"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Starter launches a pipeline run in the background
type Starter interface {
	Start(ctx context.Context, topic string, progress engine.ProgressFunc) (string, <-chan *types.Result, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler exposes video generation over HTTP
type Handler struct {
	engine Starter
	runs   *Registry
	log    *slog.Logger

	// runs outlive the request that started them
	baseCtx context.Context
}

// NewHandler returns a Handler whose runs are bound to ctx rather than to
// the request that started them.
func NewHandler(ctx context.Context, eng Starter, runs *Registry, log *slog.Logger) *Handler {
	return &Handler{
		engine:  eng,
		runs:    runs,
		log:     log.With("component", "server"),
		baseCtx: ctx,
	}
}

type createResponse struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateVideo handles POST /videos. Body: {"topic": "..."}.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req types.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "topic is required"})
		return
	}

	var id string
	registered := make(chan struct{})
	progress := func(stage types.Stage, msg string) {
		<-registered
		h.runs.Append(id, stage, msg)
	}

	id, done, err := h.engine.Start(h.baseCtx, topic, progress)
	if errors.Is(err, engine.ErrBusy) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.log.Error("start run failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not start run"})
		return
	}
	h.runs.Create(id, topic)
	close(registered)

	go func() {
		res := <-done
		h.runs.Finish(id, res)
	}()

	h.log.Info("run accepted", slog.String("run_id", id), slog.String("topic", topic))
	writeJSON(w, http.StatusAccepted, createResponse{
		ID:        id,
		StatusURL: "/videos/" + id,
		EventsURL: "/videos/" + id + "/events",
	})
}

// ListVideos handles GET /videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runs.List())
}

// GetVideo handles GET /videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DownloadVideo handles GET /videos/{id}/file
func (h *Handler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.runs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	switch {
	case rec.Stage == types.StageFailed:
		writeJSON(w, http.StatusGone, errorResponse{Error: rec.Error})
		return
	case rec.Stage != types.StageDone || rec.OutputPath == "":
		writeJSON(w, http.StatusConflict, errorResponse{Error: "video not ready"})
		return
	}

	fi, err := os.Stat(rec.OutputPath)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "video file missing"})
		return
	}
	// Output names depend only on the topic; a later run may have reused it.
	if replacedAfter(fi.ModTime(), rec.CompletedAt) {
		writeJSON(w, http.StatusGone, errorResponse{Error: "video was replaced by a later run with the same file name"})
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, rec.OutputPath)
}

func replacedAfter(modTime time.Time, completedAt string) bool {
	done, err := time.Parse(time.RFC3339Nano, completedAt)
	if err != nil {
		return false
	}
	return modTime.After(done)
}

// StreamEvents handles GET /videos/{id}/events as a websocket. Past events
// are replayed first; the socket closes once the run has finished.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	history, events, cancel, ok := h.runs.Subscribe(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// Read until the client goes away; nothing is expected from it.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	send := func(ev types.ProgressEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev) == nil
	}

	for _, ev := range history {
		if !send(ev) {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for events != nil {
		select {
		case ev, open := <-events:
			if !open {
				events = nil
				continue
			}
			if !send(ev) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(writeWait))
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
