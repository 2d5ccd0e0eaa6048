package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/twapbot/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	GetPositionsByAccount(ctx context.Context, accountID string) (map[string]domain.PositionView, error)
	UpdatePosition(ctx context.Context, accountID, positionID string, delta domain.PositionDelta) (domain.Position, error)
	ClosePosition(ctx context.Context, accountID, positionID string, info domain.CloseInfo) (domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions map[string]domain.PositionView `json:"positions"`
}

// updatePositionBody is the PATCH payload. Absent fields are left alone.
type updatePositionBody struct {
	Token             *string                `json:"token"`
	SourceAmountSpent *decimal.Decimal       `json:"source_amount_spent"`
	AcquiredAmount    *decimal.Decimal       `json:"acquired_amount"`
	ExitConditions    *domain.ExitThresholds `json:"exit_conditions"`
	Attributes        map[string]any         `json:"attributes"`
}

func (b updatePositionBody) delta() domain.PositionDelta {
	return domain.PositionDelta{
		Token:             fromPtr(b.Token),
		SourceAmountSpent: fromPtr(b.SourceAmountSpent),
		AcquiredAmount:    fromPtr(b.AcquiredAmount),
		ExitConditions:    fromPtr(b.ExitConditions),
		Attributes:        b.Attributes,
	}
}

// closePositionBody is the close payload.
type closePositionBody struct {
	Reason        string           `json:"reason"`
	ExitPrice     *decimal.Decimal `json:"exit_price"`
	TransactionID string           `json:"transaction_id"`
}

// ListPositions returns every position of an account keyed by position id.
// GET /api/accounts/{id}/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.GetPositionsByAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions failed", err)
		return
	}
	if positions == nil {
		positions = map[string]domain.PositionView{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// UpdatePosition shallow-merges the body into the position.
// PATCH /api/accounts/{id}/positions/{pid}
func (h *PositionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var body updatePositionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	delta := body.delta()
	if delta.IsEmpty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	pos, err := h.positions.UpdatePosition(r.Context(), r.PathValue("id"), r.PathValue("pid"), delta)
	if err != nil {
		writeServiceError(w, r, h.logger, "update position failed", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ClosePosition records a close event. Closing twice is a conflict.
// POST /api/accounts/{id}/positions/{pid}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var body closePositionBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.positions.ClosePosition(r.Context(), r.PathValue("id"), r.PathValue("pid"), domain.CloseInfo{
		Reason:        strings.TrimSpace(body.Reason),
		ExitPrice:     body.ExitPrice,
		TransactionID: body.TransactionID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "close position failed", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func fromPtr[T any](p *T) optional.Option[T] {
	if p == nil {
		return optional.None[T]()
	}
	return optional.Some(*p)
}
