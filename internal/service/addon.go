package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/notify"
	"github.com/kiwari-pos/engine/internal/recipe"
	"github.com/kiwari-pos/engine/internal/txn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const addonAssignmentConstraint = "order_item_addons_item_addon_key"

// AttachRequest attaches add-ons to one line item. OrderID is optional and,
// when set, must be the item's order.
type AttachRequest struct {
	OrderID    uuid.UUID
	ItemID     uuid.UUID
	Selections []AddonSelection
	Actor      uuid.UUID
}

// DetachRequest removes one add-on from a line item.
type DetachRequest struct {
	OrderID uuid.UUID
	ItemID  uuid.UUID
	AddonID uuid.UUID
	Actor   uuid.UUID
}

// DetachResult reports whether an assignment was removed. Removed is false
// when the add-on was not attached; nothing changes in that case.
type DetachResult struct {
	ItemChangeResult
	Removed bool `json:"removed"`
}

// AddonService attaches, detaches and rescales add-ons on order line items,
// keeping ingredient stock and line totals consistent.
type AddonService struct {
	engine
}

// NewAddonService creates a new AddonService.
func NewAddonService(runner *txn.Runner, newStore NewStore, pub notify.Publisher, logger *zap.Logger) *AddonService {
	return &AddonService{engine: newEngine(runner, newStore, pub, logger)}
}

// Attach adds every selection to the line item or none of them. Ingredients
// are consumed for addon quantity x item quantity; the assignment stores the
// per-unit quantity and price.
func (s *AddonService) Attach(ctx context.Context, req AttachRequest) (*ItemChangeResult, error) {
	if len(req.Selections) == 0 {
		return nil, ErrEmptySelections
	}
	if err := validateSelections(req.Selections); err != nil {
		return nil, err
	}

	var result ItemChangeResult
	_, err := s.mutate(ctx, mutation{op: "attach_addons", orderID: req.OrderID, actor: req.Actor}, func(u *unit) error {
		item, order, err := u.lockItem(ctx, req.OrderID, req.ItemID)
		if err != nil {
			return err
		}
		u.orderID = order.ID
		qty := decimal.NewFromInt32(item.Quantity)

		for _, sel := range req.Selections {
			pa, err := resolveSelection(ctx, u.store, sel)
			if err != nil {
				return err
			}
			_, err = u.store.GetOrderItemAddon(ctx, database.GetOrderItemAddonParams{OrderItemID: item.ID, AddonID: sel.AddonID})
			if err == nil {
				return detailed(ErrAddonAlreadyAdded, "%s", pa.addon.Name)
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("get order item addon: %w", err)
			}

			components, err := u.recipes.Addon(ctx, pa.addon.ID)
			if err != nil {
				return err
			}
			reqs := recipe.Scale(components, decimal.NewFromInt32(pa.quantity).Mul(qty))
			src := source{itemID: item.ID, addonID: pa.addon.ID}
			if err := u.apply(ctx, order.ID, claimsOf(src, reqs), enum.MovementAddonAttached); err != nil {
				return err
			}

			_, err = u.store.CreateOrderItemAddon(ctx, database.CreateOrderItemAddonParams{
				OrderItemID: item.ID,
				AddonID:     pa.addon.ID,
				AddonName:   pa.addon.Name,
				Quantity:    pa.quantity,
				UnitPrice:   database.MoneyToNumeric(pa.unitPrice),
				TotalPrice:  database.MoneyToNumeric(pa.total()),
			})
			if err != nil {
				if isUniqueViolation(err, addonAssignmentConstraint) {
					return detailed(ErrAddonAlreadyAdded, "%s", pa.addon.Name)
				}
				return fmt.Errorf("create order item addon: %w", err)
			}
		}

		r, err := s.settle(ctx, u, item, order, item.Quantity)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, enum.EventOrderItemUpdated, enum.RoomOrders, result.Order.ID, result)
	s.publishWarnings(ctx, result.Order.ID, result.Warnings)
	return &result, nil
}

// Detach is the inverse of Attach for one add-on: the net stock it consumed,
// as recorded in the order's movement ledger, is given back and the line
// total is recomputed without it.
func (s *AddonService) Detach(ctx context.Context, req DetachRequest) (*DetachResult, error) {
	if req.AddonID == uuid.Nil {
		return nil, detailed(ErrAddonNotFound, "missing addon_id")
	}

	var result DetachResult
	_, err := s.mutate(ctx, mutation{op: "detach_addon", orderID: req.OrderID, actor: req.Actor}, func(u *unit) error {
		item, order, err := u.lockItem(ctx, req.OrderID, req.ItemID)
		if err != nil {
			return err
		}
		u.orderID = order.ID

		assignment, err := u.store.GetOrderItemAddon(ctx, database.GetOrderItemAddonParams{OrderItemID: item.ID, AddonID: req.AddonID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				addons, err := u.store.ListOrderItemAddons(ctx, item.ID)
				if err != nil {
					return fmt.Errorf("list item addons: %w", err)
				}
				result = DetachResult{ItemChangeResult: ItemChangeResult{Order: order, Item: ItemResult{Item: item, Addons: addons}}}
				return nil
			}
			return fmt.Errorf("get order item addon: %w", err)
		}

		// Everything this assignment consumed, however the recipe has changed
		// since, goes back.
		claims, err := u.giveBack(ctx, source{itemID: item.ID, addonID: assignment.AddonID}, item.Quantity, item.Quantity)
		if err != nil {
			return err
		}
		if err := u.apply(ctx, order.ID, claims, enum.MovementAddonDetached); err != nil {
			return err
		}

		if err := u.store.DeleteOrderItemAddon(ctx, assignment.ID); err != nil {
			return fmt.Errorf("delete order item addon: %w", err)
		}

		r, err := s.settle(ctx, u, item, order, item.Quantity)
		result = DetachResult{ItemChangeResult: r, Removed: true}
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.Removed {
		s.publish(ctx, enum.EventOrderItemUpdated, enum.RoomOrders, result.Order.ID, result)
	}
	return &result, nil
}

// rescale runs inside a quantity change of the parent line item, in the
// caller's transaction. Per-unit add-on quantities stay as stored. Growing
// consumes addon quantity x delta at the current recipe; shrinking gives back
// the matching share of what each add-on has consumed so far. The parent's
// own claims are applied with the add-ons' so every ingredient moves once,
// and the line total is derived fresh for the new quantity.
func (s *AddonService) rescale(ctx context.Context, u *unit, item database.OrderItem, delta int32, claims []claim) (database.OrderItem, []database.OrderItemAddon, error) {
	newQty := item.Quantity + delta
	if newQty <= 0 {
		return database.OrderItem{}, nil, ErrInvalidQuantity
	}

	if delta != 0 {
		addons, err := u.store.ListOrderItemAddons(ctx, item.ID)
		if err != nil {
			return database.OrderItem{}, nil, fmt.Errorf("list item addons: %w", err)
		}
		for _, a := range addons {
			src := source{itemID: item.ID, addonID: a.AddonID}
			if delta < 0 {
				back, err := u.giveBack(ctx, src, -delta, item.Quantity)
				if err != nil {
					return database.OrderItem{}, nil, err
				}
				claims = append(claims, back...)
				continue
			}
			components, err := u.recipes.Addon(ctx, a.AddonID)
			if err != nil {
				return database.OrderItem{}, nil, err
			}
			factor := decimal.NewFromInt32(a.Quantity).Mul(decimal.NewFromInt32(delta))
			claims = append(claims, claimsOf(src, recipe.Scale(components, factor))...)
		}
		if err := u.apply(ctx, item.OrderID, claims, enum.MovementQuantityChanged); err != nil {
			return database.OrderItem{}, nil, err
		}
	}

	return u.repriceItem(ctx, item, newQty)
}

// settle reprices the item at quantity and re-totals its order.
func (s *AddonService) settle(ctx context.Context, u *unit, item database.OrderItem, order database.Order, quantity int32) (ItemChangeResult, error) {
	updated, addons, err := u.repriceItem(ctx, item, quantity)
	if err != nil {
		return ItemChangeResult{}, err
	}
	order, err = u.retotalOrder(ctx, order)
	if err != nil {
		return ItemChangeResult{}, err
	}
	return ItemChangeResult{
		Order:    order,
		Item:     ItemResult{Item: updated, Addons: addons},
		Warnings: u.warnings,
	}, nil
}
