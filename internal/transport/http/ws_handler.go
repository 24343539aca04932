package http

import (
	"log/slog"
	"net/http"

	"code-exam-service/internal/app"
	"code-exam-service/internal/domain"
	"github.com/gorilla/websocket"
)

// WSHandler streams generation job progress over a websocket. Clients connect
// with ?jobId= and receive one JSON message per status transition; the
// connection closes after a terminal status.
type WSHandler struct {
	generation *app.GenerationService
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewWSHandler(generation *app.GenerationService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		generation: generation,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type jobUpdateMessage struct {
	Type string               `json:"type"`
	Job  domain.GenerationJob `json:"job"`
}

// ServeWS upgrades the request and forwards job transitions until the job
// reaches a terminal status or the client goes away.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "missing jobId", http.StatusBadRequest)
		return
	}

	job, err := h.generation.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so no transition is missed in between.
	updates, cancel := h.generation.Watch(jobID)
	defer cancel()

	if err := conn.WriteJSON(jobUpdateMessage{Type: "job", Job: job}); err != nil {
		return
	}
	if job.Status.Terminal() {
		return
	}

	// Reader goroutine only detects the client closing.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(jobUpdateMessage{Type: "job", Job: update}); err != nil {
				h.logger.Warn("ws write failed", "jobId", jobID, "error", err)
				return
			}
			if update.Status.Terminal() {
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
