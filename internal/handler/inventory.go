package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/engine/internal/inventory"
	"github.com/kiwari-pos/engine/internal/service"
	"go.uber.org/zap"
)

// AvailabilityChecker is satisfied by *service.OrderService.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, lines []service.CartLine) ([]inventory.Warning, error)
}

// InventoryHandler serves the pre-checkout stock check.
type InventoryHandler struct {
	svc    AvailabilityChecker
	logger *zap.Logger
}

func NewInventoryHandler(svc AvailabilityChecker, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{svc: svc, logger: logger}
}

func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/inventory/availability", h.Availability)
}

type availabilityRequest struct {
	Items []createOrderItemRequest `json:"items"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
}

// Availability handles POST /inventory/availability. It never changes stock.
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	lines := make([]service.CartLine, len(req.Items))
	for i, item := range req.Items {
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			badRequest(w, fmt.Sprintf("items[%d]: invalid menu_item_id", i))
			return
		}
		addons, err := toSelections(item.Addons)
		if err != nil {
			badRequest(w, fmt.Sprintf("items[%d]: %v", i, err))
			return
		}
		lines[i] = service.CartLine{MenuItemID: menuItemID, Quantity: item.Quantity, Addons: addons}
	}

	warnings, err := h.svc.CheckAvailability(r.Context(), lines)
	if err != nil {
		writeServiceError(w, h.logger, "check availability", err)
		return
	}

	writeData(w, http.StatusOK, availabilityResponse{Available: len(warnings) == 0}, warnings)
}
