package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/engine/internal/middleware"
	"github.com/kiwari-pos/engine/internal/service"
	"go.uber.org/zap"
)

// AddonServicer is satisfied by *service.AddonService.
type AddonServicer interface {
	Attach(ctx context.Context, req service.AttachRequest) (*service.ItemChangeResult, error)
	Detach(ctx context.Context, req service.DetachRequest) (*service.DetachResult, error)
}

// AddonHandler handles add-on attachment on order items.
type AddonHandler struct {
	svc    AddonServicer
	logger *zap.Logger
}

func NewAddonHandler(svc AddonServicer, logger *zap.Logger) *AddonHandler {
	return &AddonHandler{svc: svc, logger: logger}
}

// RegisterRoutes expects to be mounted at /orders.
func (h *AddonHandler) RegisterRoutes(r chi.Router) {
	r.Post("/{id}/items/{itemID}/addons", h.Attach)
	r.Delete("/{id}/items/{itemID}/addons/{addonID}", h.Detach)
}

type attachRequest struct {
	Addons []addonSelectionRequest `json:"addons"`
}

type detachResponse struct {
	itemChangeResponse
	Removed bool `json:"removed"`
}

// Attach handles POST /orders/{id}/items/{itemID}/addons.
func (h *AddonHandler) Attach(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		unauthorized(w, "not authenticated")
		return
	}

	orderID, ok := urlUUID(r, "id")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}
	itemID, ok := urlUUID(r, "itemID")
	if !ok {
		badRequest(w, "invalid item ID")
		return
	}

	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	selections, err := toSelections(req.Addons)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.svc.Attach(r.Context(), service.AttachRequest{
		OrderID:    orderID,
		ItemID:     itemID,
		Selections: selections,
		Actor:      claims.StaffID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "attach add-ons", err)
		return
	}

	writeData(w, http.StatusOK, toItemChangeResponse(result), result.Warnings)
}

// Detach handles DELETE /orders/{id}/items/{itemID}/addons/{addonID}.
func (h *AddonHandler) Detach(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		unauthorized(w, "not authenticated")
		return
	}

	orderID, ok := urlUUID(r, "id")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}
	itemID, ok := urlUUID(r, "itemID")
	if !ok {
		badRequest(w, "invalid item ID")
		return
	}
	addonID, ok := urlUUID(r, "addonID")
	if !ok {
		badRequest(w, "invalid add-on ID")
		return
	}

	result, err := h.svc.Detach(r.Context(), service.DetachRequest{
		OrderID: orderID,
		ItemID:  itemID,
		AddonID: addonID,
		Actor:   claims.StaffID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "detach add-on", err)
		return
	}

	writeData(w, http.StatusOK, detachResponse{
		itemChangeResponse: toItemChangeResponse(&result.ItemChangeResult),
		Removed:            result.Removed,
	}, result.Warnings)
}
