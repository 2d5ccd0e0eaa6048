package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// StreamReader reads the execution journal.
type StreamReader interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler replays the execution journal so clients that missed
// WebSocket frames can catch up.
type EventHandler struct {
	streams StreamReader
	logger  *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(streams StreamReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{streams: streams, logger: logger}
}

type journalEntry struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

type listEventsResponse struct {
	Events []journalEntry `json:"events"`
	// Next is the id to pass as ?after= on the following call.
	Next string `json:"next"`
}

// ListExecutions returns journal entries after the given id, oldest first.
// GET /api/executions?after=0&limit=100
func (h *EventHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	opts := parseListOpts(r)

	msgs, err := h.streams.StreamRead(r.Context(), domain.StreamExecutions, after, opts.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "read executions failed", err)
		return
	}

	resp := listEventsResponse{Events: make([]journalEntry, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		resp.Events = append(resp.Events, journalEntry{ID: m.ID, Event: m.Payload})
		resp.Next = m.ID
	}
	writeJSON(w, http.StatusOK, resp)
}
