package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"stack-queue-parking/internal/journal"
	"stack-queue-parking/internal/parking"
)

const (
	maxBodyBytes    = 1 << 20
	maxHistoryLimit = 500
)

// History is the read side of the operation journal.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Event, error)
}

type Handler struct {
	lot         *parking.InstrumentedLot
	history     History
	serviceName string
	logger      *slog.Logger
}

// NewHandler wires the routes to lot. history may be nil when the journal is
// disabled.
func NewHandler(lot *parking.InstrumentedLot, history History, serviceName string, logger *slog.Logger) *Handler {
	return &Handler{
		lot:         lot,
		history:     history,
		serviceName: serviceName,
		logger:      logger,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Meta:    extractMeta(r.Context()),
	})
}

// GetState returns the snapshot. An optional max_spots query parameter pads
// both sections to that many entries without changing the capacity. It may
// not exceed the lot's view limit.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	spots := 0
	if raw := r.URL.Query().Get("max_spots"); raw != "" {
		limit := h.lot.ViewLimit()
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > limit {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("max_spots must be an integer between 1 and %d", limit))
			return
		}
		spots = n
	}
	WriteJSON(w, http.StatusOK, h.lot.View(r.Context(), spots))
}

func (h *Handler) ParkStack(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePark(w, r)
	if !ok {
		return
	}
	state, err := h.lot.ParkStack(r.Context(), req)
	h.respond(w, r, state, err)
}

func (h *Handler) ParkQueue(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePark(w, r)
	if !ok {
		return
	}
	state, err := h.lot.ParkQueue(r.Context(), req)
	h.respond(w, r, state, err)
}

func (h *Handler) RemoveStack(w http.ResponseWriter, r *http.Request) {
	state, err := h.lot.RemoveStack(r.Context())
	h.respond(w, r, state, err)
}

func (h *Handler) RemoveQueue(w http.ResponseWriter, r *http.Request) {
	state, err := h.lot.RemoveQueue(r.Context())
	h.respond(w, r, state, err)
}

func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	state, err := h.lot.ClearAll(r.Context())
	h.respond(w, r, state, err)
}

// History lists journalled operations, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := journal.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	if h.history == nil {
		WriteJSON(w, http.StatusOK, []journal.Event{})
		return
	}

	events, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "history query failed", "err", err)
		WriteError(w, http.StatusInternalServerError, "Server error: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, events)
}

// decodePark reads a park body. A missing body, null or an empty object is
// "No data provided"; anything else that is not a park object is "Invalid
// request body".
func (h *Handler) decodePark(w http.ResponseWriter, r *http.Request) (parking.ParkRequest, bool) {
	var fields map[string]json.RawMessage
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields)
	switch {
	case errors.Is(err, io.EOF):
		WriteError(w, http.StatusBadRequest, "No data provided")
		return parking.ParkRequest{}, false
	case err != nil:
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return parking.ParkRequest{}, false
	case len(fields) == 0:
		WriteError(w, http.StatusBadRequest, "No data provided")
		return parking.ParkRequest{}, false
	}

	var req parking.ParkRequest
	if err := remarshal(fields, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return parking.ParkRequest{}, false
	}
	return req, true
}

func remarshal(fields map[string]json.RawMessage, v any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// respond writes the full state on success. Capacity and empty-section
// failures are ordinary outcomes and keep status 200 with an error body.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, state parking.State, err error) {
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, state)
	case errors.Is(err, parking.ErrCapacityExceeded), errors.Is(err, parking.ErrEmpty):
		WriteError(w, http.StatusOK, err.Error())
	case errors.Is(err, parking.ErrInvalidColor):
		WriteError(w, http.StatusBadRequest, "Invalid color: expected #rrggbb")
	default:
		h.logger.ErrorContext(r.Context(), "parking operation failed", "path", r.URL.Path, "err", err)
		WriteError(w, http.StatusInternalServerError, "Server error: "+err.Error())
	}
}
