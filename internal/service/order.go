package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/inventory"
	"github.com/kiwari-pos/engine/internal/notify"
	"github.com/kiwari-pos/engine/internal/recipe"
	"github.com/kiwari-pos/engine/internal/txn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxOrderNumberRetries = 3
	orderNumberConstraint = "orders_order_number_key"
)

// statusRank orders the non-cancelled lifecycle. Orders only move forward,
// possibly skipping steps.
var statusRank = map[database.OrderStatus]int{
	database.OrderStatusDRAFT:     0,
	database.OrderStatusPENDING:   1,
	database.OrderStatusPREPARING: 2,
	database.OrderStatusREADY:     3,
	database.OrderStatusSERVED:    4,
	database.OrderStatusCOMPLETED: 5,
}

var (
	ErrTerminalTransition = coded(ErrInvalidTransition, CodeInvalidTransition, "order is already completed or cancelled")
	ErrBackwardTransition = coded(ErrConflict, CodeInvalidTransition, "order status can only move forward")
)

// CreateOrderRequest is the input for creating an order.
type CreateOrderRequest struct {
	CreatedBy       uuid.UUID
	OrderType       string
	Draft           bool
	TableID         uuid.UUID
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	Notes           string
	DeliveryFee     decimal.Decimal
	Items           []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line of a new order.
type CreateOrderItemRequest struct {
	MenuItemID uuid.UUID
	Quantity   int32
	Notes      string
	Addons     []AddonSelection
}

// AddonSelection picks an add-on for one line item. Quantity is per unit of
// the line item. A nil UnitPrice means the catalog price.
type AddonSelection struct {
	AddonID   uuid.UUID
	Quantity  int32
	UnitPrice *decimal.Decimal
}

// ItemResult is a line item with its add-ons.
type ItemResult struct {
	Item   database.OrderItem        `json:"item"`
	Addons []database.OrderItemAddon `json:"addons"`
}

// OrderResult is an order with its line items. Warnings lists stock
// shortfalls the operation ran into without being blocked by them.
type OrderResult struct {
	Order    database.Order      `json:"order"`
	Items    []ItemResult        `json:"items"`
	Warnings []inventory.Warning `json:"-"`
}

// UpdateStatusRequest moves an order to a new status.
type UpdateStatusRequest struct {
	OrderID uuid.UUID
	Status  string
	Actor   uuid.UUID
}

// StatusResult reports a transition. Changed is false for a no-op.
type StatusResult struct {
	Order   database.Order       `json:"order"`
	From    database.OrderStatus `json:"from"`
	Changed bool                 `json:"changed"`
}

// UpdateItemQuantityRequest sets a new quantity on a line item.
type UpdateItemQuantityRequest struct {
	OrderID  uuid.UUID
	ItemID   uuid.UUID
	Quantity int32
	Actor    uuid.UUID
}

// ItemChangeResult is a changed line item and its re-totalled order.
type ItemChangeResult struct {
	Order    database.Order      `json:"order"`
	Item     ItemResult          `json:"item"`
	Warnings []inventory.Warning `json:"-"`
}

// CartLine is a prospective order line for an availability check.
type CartLine struct {
	MenuItemID uuid.UUID
	Quantity   int32
	Addons     []AddonSelection
}

// OrderService drives the order lifecycle: creation, status transitions,
// cancellation, completion and line quantity changes.
type OrderService struct {
	engine
	addons *AddonService
}

// NewOrderService creates a new OrderService.
func NewOrderService(runner *txn.Runner, newStore NewStore, addons *AddonService, pub notify.Publisher, logger *zap.Logger) *OrderService {
	return &OrderService{
		engine: newEngine(runner, newStore, pub, logger),
		addons: addons,
	}
}

// CreateOrder validates, snapshots catalog prices, consumes stock and creates
// an order atomically. Retries up to maxOrderNumberRetries times on
// order_number unique constraint violations.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	orderType, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req, orderType)
		if err == nil {
			s.publish(ctx, enum.EventOrderCreated, enum.RoomOrders, result.Order.ID, result)
			s.publishWarnings(ctx, result.Order.ID, result.Warnings)
			return result, nil
		}
		if isUniqueViolation(err, orderNumberConstraint) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func validateCreate(req CreateOrderRequest) (database.OrderType, error) {
	orderType := database.OrderType(req.OrderType)
	switch orderType {
	case database.OrderTypeDINEIN, database.OrderTypeTAKEOUT, database.OrderTypeDELIVERY:
	default:
		return "", ErrInvalidOrderType
	}
	if len(req.Items) == 0 {
		return "", ErrEmptyItems
	}
	if req.DeliveryFee.IsNegative() {
		return "", detailed(ErrInvalidAmount, "delivery_fee must be >= 0")
	}
	if !database.IsMoney(req.DeliveryFee) {
		return "", detailed(ErrInvalidAmount, "delivery_fee must have at most 2 decimals and be below %s", database.MaxMoney)
	}
	for i, it := range req.Items {
		if it.MenuItemID == uuid.Nil {
			return "", detailed(ErrMenuItemNotFound, "items[%d]: missing menu_item_id", i)
		}
		if it.Quantity <= 0 {
			return "", detailed(ErrInvalidQuantity, "items[%d]", i)
		}
		if err := validateSelections(it.Addons); err != nil {
			return "", fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return orderType, nil
}

// pricedLine is a line item resolved against the catalog, ready to insert.
type pricedLine struct {
	req    CreateOrderItemRequest
	menu   database.MenuItem
	addons []pricedAddon
	total  decimal.Decimal
}

type pricedAddon struct {
	addon     database.Addon
	quantity  int32
	unitPrice decimal.Decimal
}

func (p pricedAddon) total() decimal.Decimal {
	return p.unitPrice.Mul(decimal.NewFromInt32(p.quantity))
}

func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, orderType database.OrderType) (*OrderResult, error) {
	var result *OrderResult
	_, err := s.mutate(ctx, mutation{op: "create_order", actor: req.CreatedBy}, func(u *unit) error {
		r, err := s.create(ctx, u, req, orderType)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *OrderService) create(ctx context.Context, u *unit, req CreateOrderRequest, orderType database.OrderType) (*OrderResult, error) {
	// --- Resolve catalog snapshots ---
	lines := make([]pricedLine, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, it := range req.Items {
		menu, err := u.store.GetMenuItemForOrder(ctx, it.MenuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, detailed(ErrMenuItemNotFound, "%s", it.MenuItemID)
			}
			return nil, fmt.Errorf("get menu item: %w", err)
		}
		line := pricedLine{req: it, menu: menu}
		perUnit := make([]decimal.Decimal, 0, len(it.Addons))
		for _, sel := range it.Addons {
			pa, err := resolveSelection(ctx, u.store, sel)
			if err != nil {
				return nil, err
			}
			line.addons = append(line.addons, pa)
			perUnit = append(perUnit, pa.total())
		}
		line.total = lineTotal(database.ToDecimal(menu.Price), perUnit, it.Quantity)
		subtotal = subtotal.Add(line.total)
		lines = append(lines, line)
	}

	// --- Order number ---
	prefix := "ORD-" + s.now().Format("20060102")
	seq, err := u.store.GetNextOrderNumber(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	status := database.OrderStatusPENDING
	if req.Draft {
		status = database.OrderStatusDRAFT
	}
	order, err := u.store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:     fmt.Sprintf("%s-%04d", prefix, seq),
		Status:          status,
		OrderType:       orderType,
		TableID:         pgUUID(req.TableID),
		CustomerName:    pgText(req.CustomerName),
		CustomerPhone:   pgText(req.CustomerPhone),
		DeliveryAddress: pgText(req.DeliveryAddress),
		Notes:           pgText(req.Notes),
		Subtotal:        database.MoneyToNumeric(subtotal),
		TaxAmount:       database.MoneyToNumeric(decimal.Zero),
		DeliveryFee:     database.MoneyToNumeric(req.DeliveryFee),
		TotalAmount:     database.MoneyToNumeric(subtotal.Add(req.DeliveryFee)),
		CreatedBy:       pgUUID(req.CreatedBy),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	u.orderID = order.ID

	// --- Lines, add-ons and their stock requirements ---
	result := &OrderResult{Order: order}
	var claims []claim
	for _, line := range lines {
		item, err := u.store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:      order.ID,
			MenuItemID:   line.menu.ID,
			MenuItemName: line.menu.Name,
			Quantity:     line.req.Quantity,
			UnitPrice:    line.menu.Price,
			TotalPrice:   database.MoneyToNumeric(line.total),
			Notes:        pgText(line.req.Notes),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}

		components, err := u.recipes.MenuItem(ctx, line.menu.ID)
		if err != nil {
			return nil, err
		}
		qty := decimal.NewFromInt32(line.req.Quantity)
		claims = append(claims, claimsOf(source{itemID: item.ID}, recipe.Scale(components, qty))...)

		ir := ItemResult{Item: item, Addons: []database.OrderItemAddon{}}
		for _, pa := range line.addons {
			row, err := u.store.CreateOrderItemAddon(ctx, database.CreateOrderItemAddonParams{
				OrderItemID: item.ID,
				AddonID:     pa.addon.ID,
				AddonName:   pa.addon.Name,
				Quantity:    pa.quantity,
				UnitPrice:   database.MoneyToNumeric(pa.unitPrice),
				TotalPrice:  database.MoneyToNumeric(pa.total()),
			})
			if err != nil {
				return nil, fmt.Errorf("create order item addon: %w", err)
			}
			ir.Addons = append(ir.Addons, row)

			components, err := u.recipes.Addon(ctx, pa.addon.ID)
			if err != nil {
				return nil, err
			}
			src := source{itemID: item.ID, addonID: pa.addon.ID}
			claims = append(claims, claimsOf(src, recipe.Scale(components, decimal.NewFromInt32(pa.quantity).Mul(qty)))...)
		}
		result.Items = append(result.Items, ir)
	}

	// Shared ingredients are summed across lines and decremented once.
	if err := u.apply(ctx, order.ID, claims, enum.MovementOrderCreated); err != nil {
		return nil, err
	}

	if err := u.setTable(ctx, s.logger, order.TableID, database.TableStatusOCCUPIED); err != nil {
		return nil, err
	}

	result.Warnings = u.warnings
	return result, nil
}

// resolveSelection loads an active add-on and settles its unit price.
func resolveSelection(ctx context.Context, store Store, sel AddonSelection) (pricedAddon, error) {
	addon, err := store.GetAddonForOrder(ctx, sel.AddonID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pricedAddon{}, detailed(ErrAddonNotFound, "%s", sel.AddonID)
		}
		return pricedAddon{}, fmt.Errorf("get addon: %w", err)
	}
	price := database.ToDecimal(addon.Price)
	if sel.UnitPrice != nil {
		price = *sel.UnitPrice
	}
	return pricedAddon{addon: addon, quantity: sel.Quantity, unitPrice: price}, nil
}

// UpdateStatus applies a status transition. Setting the current status is a
// no-op. CANCELLED and COMPLETED dispatch to CancelOrder and CompleteOrder.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*StatusResult, error) {
	target := database.OrderStatus(req.Status)
	switch target {
	case database.OrderStatusCANCELLED:
		return s.CancelOrder(ctx, req.OrderID, req.Actor)
	case database.OrderStatusCOMPLETED:
		return s.CompleteOrder(ctx, req.OrderID, req.Actor)
	}
	if _, ok := statusRank[target]; !ok {
		return nil, detailed(ErrInvalidStatus, "%q", req.Status)
	}

	var result StatusResult
	_, err := s.mutate(ctx, mutation{op: "update_status", orderID: req.OrderID, actor: req.Actor}, func(u *unit) error {
		order, from, changed, err := s.transition(ctx, u, req.OrderID, target)
		result = StatusResult{Order: order, From: from, Changed: changed}
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Changed {
		s.publish(ctx, enum.EventOrderStatusChanged, enum.RoomOrders, result.Order.ID, result)
	}
	return &result, nil
}

// transition locks the order and moves it to target. It returns changed=false
// when the order already has that status.
func (s *OrderService) transition(ctx context.Context, u *unit, orderID uuid.UUID, target database.OrderStatus) (database.Order, database.OrderStatus, bool, error) {
	order, err := u.store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, "", false, detailed(ErrOrderNotFound, "%s", orderID)
		}
		return database.Order{}, "", false, fmt.Errorf("get order: %w", err)
	}
	from := order.Status
	if isTerminal(from) {
		return database.Order{}, from, false, detailed(ErrTerminalTransition, "%s is %s", order.OrderNumber, from)
	}
	if from == target {
		return order, from, false, nil
	}
	if target != database.OrderStatusCANCELLED && statusRank[target] < statusRank[from] {
		return database.Order{}, from, false, detailed(ErrBackwardTransition, "%s -> %s", from, target)
	}

	params := database.UpdateOrderStatusParams{ID: order.ID, Status: target}
	switch target {
	case database.OrderStatusCANCELLED:
		params.CancelledAt = pgTime(s.now())
	case database.OrderStatusCOMPLETED:
		params.CompletedAt = pgTime(s.now())
	}
	updated, err := u.store.UpdateOrderStatus(ctx, params)
	if err != nil {
		return database.Order{}, from, false, fmt.Errorf("update order status: %w", err)
	}
	if err := u.trail.StatusChanged(ctx, order.ID, u.actor, from, target); err != nil {
		return database.Order{}, from, false, err
	}
	return updated, from, true, nil
}

// CancelOrder gives back every ingredient the order has consumed, releases
// its table and marks it CANCELLED. The give-back is the negated net of the
// order's recorded stock movements, so it is the exact inverse of consumption
// even if recipes changed since. Any failure rolls back the whole
// cancellation and is written to the audit trail.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actor uuid.UUID) (*StatusResult, error) {
	var (
		result   StatusResult
		restored []inventory.Requirement
	)
	_, err := s.mutate(ctx, mutation{op: "cancel_order", orderID: orderID, actor: actor}, func(u *unit) error {
		order, err := u.store.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return detailed(ErrOrderNotFound, "%s", orderID)
			}
			return fmt.Errorf("get order: %w", err)
		}
		if isTerminal(order.Status) {
			return detailed(ErrTerminalTransition, "%s is %s", order.OrderNumber, order.Status)
		}

		net, err := u.store.SumStockMovementsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("sum stock movements: %w", err)
		}
		// A net stock delta of -x means x was consumed; a requirement of -x
		// gives it back.
		restored = restored[:0]
		for _, row := range net {
			restored = append(restored, inventory.Requirement{
				IngredientID: row.IngredientID,
				Quantity:     database.ToDecimal(row.QuantityDelta),
			})
		}
		if err := u.apply(ctx, order.ID, claimsOf(source{}, restored), enum.MovementOrderCancelled); err != nil {
			return err
		}

		if err := u.setTable(ctx, s.logger, order.TableID, database.TableStatusAVAILABLE); err != nil {
			return err
		}

		updated, from, _, err := s.transition(ctx, u, order.ID, database.OrderStatusCANCELLED)
		result = StatusResult{Order: updated, From: from, Changed: true}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", orderID.String()),
		zap.Int("ingredients_restored", len(inventory.Aggregate(restored))),
	)
	s.publish(ctx, enum.EventOrderCancelled, enum.RoomOrders, orderID, result)
	return &result, nil
}

// CompleteOrder releases the table and marks the order COMPLETED. Stock was
// settled when the order was created.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, actor uuid.UUID) (*StatusResult, error) {
	var result StatusResult
	_, err := s.mutate(ctx, mutation{op: "complete_order", orderID: orderID, actor: actor}, func(u *unit) error {
		updated, from, _, err := s.transition(ctx, u, orderID, database.OrderStatusCOMPLETED)
		if err != nil {
			return err
		}
		result = StatusResult{Order: updated, From: from, Changed: true}
		return u.setTable(ctx, s.logger, updated.TableID, database.TableStatusAVAILABLE)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, enum.EventOrderCompleted, enum.RoomOrders, orderID, result)
	return &result, nil
}

// UpdateItemQuantity changes a line item's quantity. Growing consumes the
// menu item's and every attached add-on's current recipe for the difference;
// shrinking gives back the matching share of what the movement ledger
// recorded. The line and order totals are recomputed in the same
// transaction.
func (s *OrderService) UpdateItemQuantity(ctx context.Context, req UpdateItemQuantityRequest) (*ItemChangeResult, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	var result ItemChangeResult
	_, err := s.mutate(ctx, mutation{op: "update_item_quantity", orderID: req.OrderID, actor: req.Actor}, func(u *unit) error {
		item, order, err := u.lockItem(ctx, req.OrderID, req.ItemID)
		if err != nil {
			return err
		}
		u.orderID = order.ID

		delta := req.Quantity - item.Quantity
		src := source{itemID: item.ID}
		var claims []claim
		switch {
		case delta > 0:
			components, err := u.recipes.MenuItem(ctx, item.MenuItemID)
			if err != nil {
				return err
			}
			claims = claimsOf(src, recipe.Scale(components, decimal.NewFromInt32(delta)))
		case delta < 0:
			claims, err = u.giveBack(ctx, src, -delta, item.Quantity)
			if err != nil {
				return err
			}
		}

		updated, addons, err := s.addons.rescale(ctx, u, item, delta, claims)
		if err != nil {
			return err
		}
		order, err = u.retotalOrder(ctx, order)
		if err != nil {
			return err
		}
		result = ItemChangeResult{
			Order:    order,
			Item:     ItemResult{Item: updated, Addons: addons},
			Warnings: u.warnings,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, enum.EventOrderItemUpdated, enum.RoomOrders, result.Order.ID, result)
	s.publishWarnings(ctx, result.Order.ID, result.Warnings)
	return &result, nil
}

// CheckAvailability reports the stock shortfalls a prospective cart would
// cause. It never mutates and never blocks a later CreateOrder.
func (s *OrderService) CheckAvailability(ctx context.Context, lines []CartLine) ([]inventory.Warning, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, detailed(ErrInvalidQuantity, "lines[%d]", i)
		}
		if err := validateSelections(l.Addons); err != nil {
			return nil, fmt.Errorf("lines[%d]: %w", i, err)
		}
	}

	var warnings []inventory.Warning
	err := s.read(ctx, func(store Store) error {
		resolver := recipe.NewResolver(store)
		var reqs []inventory.Requirement
		for _, l := range lines {
			if _, err := store.GetMenuItemForOrder(ctx, l.MenuItemID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return detailed(ErrMenuItemNotFound, "%s", l.MenuItemID)
				}
				return fmt.Errorf("get menu item: %w", err)
			}
			components, err := resolver.MenuItem(ctx, l.MenuItemID)
			if err != nil {
				return err
			}
			qty := decimal.NewFromInt32(l.Quantity)
			reqs = append(reqs, recipe.Scale(components, qty)...)
			for _, sel := range l.Addons {
				if _, err := resolveSelection(ctx, store, sel); err != nil {
					return err
				}
				components, err := resolver.Addon(ctx, sel.AddonID)
				if err != nil {
					return err
				}
				reqs = append(reqs, recipe.Scale(components, decimal.NewFromInt32(sel.Quantity).Mul(qty))...)
			}
		}
		w, err := inventory.NewLedger(store, s.logger).CheckAvailability(ctx, reqs)
		if errors.Is(err, inventory.ErrIngredientNotFound) {
			return detailed(ErrIngredientNotFound, "%v", err)
		}
		warnings = w
		return err
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// GetOrder returns an order with its line items and add-ons.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderResult, error) {
	var result OrderResult
	err := s.read(ctx, func(store Store) error {
		order, err := store.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return detailed(ErrOrderNotFound, "%s", orderID)
			}
			return fmt.Errorf("get order: %w", err)
		}
		items, err := store.ListOrderItemsByOrder(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("list order items: %w", err)
		}
		result = OrderResult{Order: order, Items: make([]ItemResult, 0, len(items))}
		for _, it := range items {
			addons, err := store.ListOrderItemAddons(ctx, it.ID)
			if err != nil {
				return fmt.Errorf("list item addons: %w", err)
			}
			result.Items = append(result.Items, ItemResult{Item: it, Addons: addons})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// validateSelections checks add-on selections before any transaction opens.
func validateSelections(sels []AddonSelection) error {
	seen := make([]uuid.UUID, 0, len(sels))
	for i, sel := range sels {
		if sel.AddonID == uuid.Nil {
			return detailed(ErrAddonNotFound, "addons[%d]: missing addon_id", i)
		}
		if sel.Quantity <= 0 {
			return detailed(ErrInvalidQuantity, "addons[%d]", i)
		}
		if sel.UnitPrice != nil {
			if sel.UnitPrice.IsNegative() {
				return detailed(ErrInvalidAmount, "addons[%d]: unit_price must be >= 0", i)
			}
			if !database.IsMoney(*sel.UnitPrice) {
				return detailed(ErrInvalidAmount, "addons[%d]: unit_price must have at most 2 decimals and be below %s", i, database.MaxMoney)
			}
		}
		if slices.Contains(seen, sel.AddonID) {
			return detailed(ErrDuplicateSelected, "%s", sel.AddonID)
		}
		seen = append(seen, sel.AddonID)
	}
	return nil
}
