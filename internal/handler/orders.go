package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/middleware"
	"github.com/kiwari-pos/engine/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*service.StatusResult, error)
	CancelOrder(ctx context.Context, orderID, actor uuid.UUID) (*service.StatusResult, error)
	UpdateItemQuantity(ctx context.Context, req service.UpdateItemQuantityRequest) (*service.ItemChangeResult, error)
}

// AuditStore reads the audit trail of one order.
// Satisfied by *database.Queries.
type AuditStore interface {
	ListAuditLogByOrder(ctx context.Context, orderID pgtype.UUID) ([]database.AuditLog, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	audit  AuditStore
	logger *zap.Logger
}

func NewOrderHandler(svc OrderServicer, audit AuditStore, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, audit: audit, logger: logger}
}

// RegisterRoutes registers the order reads and status moves every role may
// use. Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// RegisterEntryRoutes registers the order-entry mutations.
func (h *OrderHandler) RegisterEntryRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Delete("/{id}", h.Cancel)
	r.Patch("/{id}/items/{itemID}", h.UpdateItemQuantity)
}

// RegisterAuditRoutes registers the audit trail read; mount behind a manager role check.
func (h *OrderHandler) RegisterAuditRoutes(r chi.Router) {
	r.Get("/{id}/audit", h.Audit)
}

// --- Request / Response types ---

type createOrderRequest struct {
	OrderType       string                   `json:"order_type"`
	Draft           bool                     `json:"draft"`
	TableID         string                   `json:"table_id"`
	CustomerName    string                   `json:"customer_name"`
	CustomerPhone   string                   `json:"customer_phone"`
	DeliveryAddress string                   `json:"delivery_address"`
	Notes           string                   `json:"notes"`
	DeliveryFee     string                   `json:"delivery_fee"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	MenuItemID string                  `json:"menu_item_id"`
	Quantity   int32                   `json:"quantity"`
	Notes      string                  `json:"notes"`
	Addons     []addonSelectionRequest `json:"addons"`
}

type addonSelectionRequest struct {
	AddonID   string  `json:"addon_id"`
	Quantity  int32   `json:"quantity"`
	UnitPrice *string `json:"unit_price"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateQuantityRequest struct {
	Quantity int32 `json:"quantity"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	OrderType       string              `json:"order_type"`
	TableID         *uuid.UUID          `json:"table_id"`
	CustomerName    *string             `json:"customer_name"`
	CustomerPhone   *string             `json:"customer_phone"`
	DeliveryAddress *string             `json:"delivery_address"`
	Notes           *string             `json:"notes"`
	Subtotal        string              `json:"subtotal"`
	TaxAmount       string              `json:"tax_amount"`
	DeliveryFee     string              `json:"delivery_fee"`
	TotalAmount     string              `json:"total_amount"`
	CreatedBy       *uuid.UUID          `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	CompletedAt     *time.Time          `json:"completed_at"`
	CancelledAt     *time.Time          `json:"cancelled_at"`
	Items           []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID           uuid.UUID                `json:"id"`
	MenuItemID   uuid.UUID                `json:"menu_item_id"`
	MenuItemName string                   `json:"menu_item_name"`
	Quantity     int32                    `json:"quantity"`
	UnitPrice    string                   `json:"unit_price"`
	TotalPrice   string                   `json:"total_price"`
	Notes        *string                  `json:"notes"`
	Addons       []orderItemAddonResponse `json:"addons"`
}

type orderItemAddonResponse struct {
	ID         uuid.UUID `json:"id"`
	AddonID    uuid.UUID `json:"addon_id"`
	AddonName  string    `json:"addon_name"`
	Quantity   int32     `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
	TotalPrice string    `json:"total_price"`
}

type statusResponse struct {
	Order   orderResponse `json:"order"`
	From    string        `json:"from"`
	Changed bool          `json:"changed"`
}

type itemChangeResponse struct {
	Order orderResponse     `json:"order"`
	Item  orderItemResponse `json:"item"`
}

type auditEntryResponse struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	TableName string          `json:"table_name"`
	RecordID  *uuid.UUID      `json:"record_id"`
	OldValues json.RawMessage `json:"old_values,omitempty"`
	NewValues json.RawMessage `json:"new_values,omitempty"`
	Detail    *string         `json:"detail"`
	ActorID   *uuid.UUID      `json:"actor_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		unauthorized(w, "not authenticated")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	svcReq, err := req.toService(claims.StaffID)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, h.logger, "create order", err)
		return
	}

	writeData(w, http.StatusCreated, toOrderResponse(result.Order, result.Items), result.Warnings)
}

func (req createOrderRequest) toService(actor uuid.UUID) (service.CreateOrderRequest, error) {
	tableID, err := optionalUUID(req.TableID)
	if err != nil {
		return service.CreateOrderRequest{}, fmt.Errorf("invalid table_id")
	}
	fee, err := optionalDecimal(req.DeliveryFee)
	if err != nil {
		return service.CreateOrderRequest{}, fmt.Errorf("invalid delivery_fee")
	}

	items := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return service.CreateOrderRequest{}, fmt.Errorf("items[%d]: invalid menu_item_id", i)
		}
		addons, err := toSelections(item.Addons)
		if err != nil {
			return service.CreateOrderRequest{}, fmt.Errorf("items[%d]: %w", i, err)
		}
		items[i] = service.CreateOrderItemRequest{
			MenuItemID: menuItemID,
			Quantity:   item.Quantity,
			Notes:      item.Notes,
			Addons:     addons,
		}
	}

	return service.CreateOrderRequest{
		CreatedBy:       actor,
		OrderType:       req.OrderType,
		Draft:           req.Draft,
		TableID:         tableID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		DeliveryFee:     fee,
		Items:           items,
	}, nil
}

func toSelections(reqs []addonSelectionRequest) ([]service.AddonSelection, error) {
	out := make([]service.AddonSelection, len(reqs))
	for i, a := range reqs {
		id, err := uuid.Parse(a.AddonID)
		if err != nil {
			return nil, fmt.Errorf("addons[%d]: invalid addon_id", i)
		}
		sel := service.AddonSelection{AddonID: id, Quantity: a.Quantity}
		if a.UnitPrice != nil {
			p, err := decimal.NewFromString(*a.UnitPrice)
			if err != nil {
				return nil, fmt.Errorf("addons[%d]: invalid unit_price", i)
			}
			sel.UnitPrice = &p
		}
		out[i] = sel
	}
	return out, nil
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := urlUUID(r, "id")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}

	result, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		writeServiceError(w, h.logger, "get order", err)
		return
	}

	writeData(w, http.StatusOK, toOrderResponse(result.Order, result.Items), nil)
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Status == "" {
		badRequest(w, "status is required")
		return
	}

	result, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		OrderID: orderID,
		Status:  req.Status,
		Actor:   claims.StaffID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "update order status", err)
		return
	}

	writeData(w, http.StatusOK, toStatusResponse(result), nil)
}

// Cancel handles DELETE /orders/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.svc.CancelOrder(r.Context(), orderID, claims.StaffID)
	if err != nil {
		writeServiceError(w, h.logger, "cancel order", err)
		return
	}

	writeData(w, http.StatusOK, toStatusResponse(result), nil)
}

// UpdateItemQuantity handles PATCH /orders/{id}/items/{itemID}.
func (h *OrderHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
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

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	result, err := h.svc.UpdateItemQuantity(r.Context(), service.UpdateItemQuantityRequest{
		OrderID:  orderID,
		ItemID:   itemID,
		Quantity: req.Quantity,
		Actor:    claims.StaffID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "update item quantity", err)
		return
	}

	writeData(w, http.StatusOK, toItemChangeResponse(result), result.Warnings)
}

// Audit handles GET /orders/{id}/audit.
func (h *OrderHandler) Audit(w http.ResponseWriter, r *http.Request) {
	orderID, ok := urlUUID(r, "id")
	if !ok {
		badRequest(w, "invalid order ID")
		return
	}

	entries, err := h.audit.ListAuditLogByOrder(r.Context(), pgtype.UUID{Bytes: orderID, Valid: true})
	if err != nil {
		h.logger.Error("list audit log failed", zap.String("order_id", orderID.String()), zap.Error(err))
		internalError(w)
		return
	}

	resp := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = auditEntryResponse{
			ID:        e.ID,
			Action:    e.Action,
			TableName: e.TableName,
			RecordID:  uuidPtr(e.RecordID),
			OldValues: e.OldValues,
			NewValues: e.NewValues,
			Detail:    textPtr(e.Detail),
			ActorID:   uuidPtr(e.ActorID),
			CreatedAt: e.CreatedAt,
		}
	}
	writeData(w, http.StatusOK, resp, nil)
}

// --- Helpers ---

func toOrderResponse(o database.Order, items []service.ItemResult) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		OrderType:       string(o.OrderType),
		TableID:         uuidPtr(o.TableID),
		CustomerName:    textPtr(o.CustomerName),
		CustomerPhone:   textPtr(o.CustomerPhone),
		DeliveryAddress: textPtr(o.DeliveryAddress),
		Notes:           textPtr(o.Notes),
		Subtotal:        money(o.Subtotal),
		TaxAmount:       money(o.TaxAmount),
		DeliveryFee:     money(o.DeliveryFee),
		TotalAmount:     money(o.TotalAmount),
		CreatedBy:       uuidPtr(o.CreatedBy),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.CompletedAt.Valid {
		resp.CompletedAt = &o.CompletedAt.Time
	}
	if o.CancelledAt.Valid {
		resp.CancelledAt = &o.CancelledAt.Time
	}
	for _, it := range items {
		resp.Items = append(resp.Items, toItemResponse(it))
	}
	return resp
}

func toItemResponse(it service.ItemResult) orderItemResponse {
	addons := make([]orderItemAddonResponse, len(it.Addons))
	for i, a := range it.Addons {
		addons[i] = orderItemAddonResponse{
			ID:         a.ID,
			AddonID:    a.AddonID,
			AddonName:  a.AddonName,
			Quantity:   a.Quantity,
			UnitPrice:  money(a.UnitPrice),
			TotalPrice: money(a.TotalPrice),
		}
	}
	return orderItemResponse{
		ID:           it.Item.ID,
		MenuItemID:   it.Item.MenuItemID,
		MenuItemName: it.Item.MenuItemName,
		Quantity:     it.Item.Quantity,
		UnitPrice:    money(it.Item.UnitPrice),
		TotalPrice:   money(it.Item.TotalPrice),
		Notes:        textPtr(it.Item.Notes),
		Addons:       addons,
	}
}

func toStatusResponse(res *service.StatusResult) statusResponse {
	return statusResponse{
		Order:   toOrderResponse(res.Order, nil),
		From:    string(res.From),
		Changed: res.Changed,
	}
}

func toItemChangeResponse(res *service.ItemChangeResult) itemChangeResponse {
	return itemChangeResponse{
		Order: toOrderResponse(res.Order, nil),
		Item:  toItemResponse(res.Item),
	}
}
