package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/engine/internal/audit"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/inventory"
	"github.com/kiwari-pos/engine/internal/recipe"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store defines every DB method the engine uses.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	inventory.Store
	recipe.Store
	audit.Store

	GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	GetAddonForOrder(ctx context.Context, id uuid.UUID) (database.Addon, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (database.DiningTable, error)

	GetNextOrderNumber(ctx context.Context, prefix string) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)

	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderItemForUpdate(ctx context.Context, id uuid.UUID) (database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderItemPricing(ctx context.Context, arg database.UpdateOrderItemPricingParams) (database.OrderItem, error)

	CreateOrderItemAddon(ctx context.Context, arg database.CreateOrderItemAddonParams) (database.OrderItemAddon, error)
	GetOrderItemAddon(ctx context.Context, arg database.GetOrderItemAddonParams) (database.OrderItemAddon, error)
	ListOrderItemAddons(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemAddon, error)
	DeleteOrderItemAddon(ctx context.Context, id uuid.UUID) error

	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.OrderStockMovement, error)
	SumStockMovementsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.SumStockMovementsByOrderRow, error)
	SumStockMovementsBySource(ctx context.Context, arg database.SumStockMovementsBySourceParams) ([]database.SumStockMovementsBySourceRow, error)
}

// NewStore creates a Store from a DBTX (pool or tx).
// This allows the services to create store instances from transactions.
type NewStore func(db database.DBTX) Store

// unit is the transaction-scoped set of collaborators for one attempt of an
// engine operation. A fresh unit is built for every transaction attempt.
type unit struct {
	store   Store
	ledger  *inventory.Ledger
	recipes *recipe.Resolver
	trail   *audit.Trail
	actor   uuid.UUID
	orderID uuid.UUID

	warnings []inventory.Warning
	// applied counts ledger movements written so far, for failure reports.
	applied int
	planned int
}

func newUnit(db database.DBTX, newStore NewStore, logger *zap.Logger, actor uuid.UUID) *unit {
	store := newStore(db)
	return &unit{
		store:   store,
		ledger:  inventory.NewLedger(store, logger),
		recipes: recipe.NewResolver(store),
		trail:   audit.NewTrail(store, logger),
		actor:   actor,
	}
}

// source tags ledger movements with the line item and add-on that caused
// them. Zero values are stored as NULL.
type source struct {
	itemID  uuid.UUID
	addonID uuid.UUID
}

// claim is a stock requirement attributed to its source.
type claim struct {
	src source
	inventory.Requirement
}

func claimsOf(src source, reqs []inventory.Requirement) []claim {
	out := make([]claim, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, claim{src: src, Requirement: r})
	}
	return out
}

// apply moves stock for the claims. A positive quantity is consumption
// (decrement), a negative one is a give-back (increment). Stock and the
// audit trail change once per ingredient; the order's movement ledger gets
// one row per source and ingredient, summing to the same change.
func (u *unit) apply(ctx context.Context, orderID uuid.UUID, claims []claim, reason string) error {
	reqs := make([]inventory.Requirement, 0, len(claims))
	for _, c := range claims {
		reqs = append(reqs, c.Requirement)
	}
	agg := inventory.Aggregate(reqs)
	u.planned += len(agg)
	for _, r := range agg {
		var (
			m   inventory.Movement
			err error
		)
		if r.Quantity.IsPositive() {
			var w *inventory.Warning
			m, w, err = u.ledger.Decrement(ctx, r.IngredientID, r.Quantity)
			if w != nil {
				u.warnings = append(u.warnings, *w)
			}
		} else {
			m, err = u.ledger.Increment(ctx, r.IngredientID, r.Quantity.Neg())
		}
		if err != nil {
			if errors.Is(err, inventory.ErrIngredientNotFound) {
				return detailed(ErrIngredientNotFound, "%s", r.IngredientID)
			}
			return err
		}
		if err := u.trail.StockChanged(ctx, orderID, u.actor, m, reason); err != nil {
			return err
		}
		u.applied++
	}

	for _, c := range bySource(claims) {
		if _, err := u.store.CreateStockMovement(ctx, database.CreateStockMovementParams{
			OrderID:       orderID,
			OrderItemID:   pgUUID(c.src.itemID),
			AddonID:       pgUUID(c.src.addonID),
			IngredientID:  c.IngredientID,
			QuantityDelta: database.ToNumeric(c.Quantity.Neg()),
			Reason:        reason,
		}); err != nil {
			return fmt.Errorf("record stock movement: %w", err)
		}
	}
	return nil
}

// bySource sums claims per source and ingredient in first-seen order,
// dropping zero totals.
func bySource(claims []claim) []claim {
	type key struct {
		src        source
		ingredient uuid.UUID
	}
	index := make(map[key]int, len(claims))
	var out []claim
	for _, c := range claims {
		k := key{src: c.src, ingredient: c.IngredientID}
		if i, ok := index[k]; ok {
			out[i].Quantity = out[i].Quantity.Add(c.Quantity)
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	return slices.DeleteFunc(out, func(c claim) bool { return c.Quantity.IsZero() })
}

// giveBack returns claims that restore units/of of what src has consumed
// net so far, as recorded in the movement ledger. units == of gives back
// everything, exactly.
func (u *unit) giveBack(ctx context.Context, src source, units, of int32) ([]claim, error) {
	rows, err := u.store.SumStockMovementsBySource(ctx, database.SumStockMovementsBySourceParams{
		OrderItemID: pgUUID(src.itemID),
		AddonID:     pgUUID(src.addonID),
	})
	if err != nil {
		return nil, fmt.Errorf("sum stock movements: %w", err)
	}
	out := make([]claim, 0, len(rows))
	for _, row := range rows {
		// A net delta of -x means x was consumed; a claim of -x returns it.
		q := database.ToDecimal(row.QuantityDelta)
		if units != of {
			q = q.Mul(decimal.NewFromInt32(units)).DivRound(decimal.NewFromInt32(of), database.StockScale)
		}
		out = append(out, claim{src: src, Requirement: inventory.Requirement{IngredientID: row.IngredientID, Quantity: q}})
	}
	return out, nil
}

func (u *unit) progress() string {
	return fmt.Sprintf("applied %d of %d stock movements", u.applied, u.planned)
}

// lockOpenOrder locks the order row and rejects orders in a terminal state.
func (u *unit) lockOpenOrder(ctx context.Context, orderID uuid.UUID) (database.Order, error) {
	order, err := u.store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, detailed(ErrOrderNotFound, "%s", orderID)
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if isTerminal(order.Status) {
		return database.Order{}, detailed(ErrOrderClosed, "%s is %s", order.OrderNumber, order.Status)
	}
	return order, nil
}

// lockItem locks a line item and its open parent order. orderID may be
// uuid.Nil when the caller does not know the parent.
func (u *unit) lockItem(ctx context.Context, orderID, itemID uuid.UUID) (database.OrderItem, database.Order, error) {
	item, err := u.store.GetOrderItemForUpdate(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, database.Order{}, detailed(ErrOrderItemNotFound, "%s", itemID)
		}
		return database.OrderItem{}, database.Order{}, fmt.Errorf("get order item: %w", err)
	}
	if orderID != uuid.Nil && item.OrderID != orderID {
		return database.OrderItem{}, database.Order{}, detailed(ErrOrderItemNotFound, "%s not in order %s", itemID, orderID)
	}
	order, err := u.lockOpenOrder(ctx, item.OrderID)
	if err != nil {
		return database.OrderItem{}, database.Order{}, err
	}
	return item, order, nil
}

// repriceItem persists quantity and a line total derived fresh from the
// per-unit prices: unit_price*qty + sum(addon.total_price)*qty.
func (u *unit) repriceItem(ctx context.Context, item database.OrderItem, quantity int32) (database.OrderItem, []database.OrderItemAddon, error) {
	addons, err := u.store.ListOrderItemAddons(ctx, item.ID)
	if err != nil {
		return database.OrderItem{}, nil, fmt.Errorf("list item addons: %w", err)
	}
	perUnit := make([]decimal.Decimal, 0, len(addons))
	for _, a := range addons {
		perUnit = append(perUnit, database.ToDecimal(a.TotalPrice))
	}
	total := lineTotal(database.ToDecimal(item.UnitPrice), perUnit, quantity)

	updated, err := u.store.UpdateOrderItemPricing(ctx, database.UpdateOrderItemPricingParams{
		ID:         item.ID,
		Quantity:   quantity,
		TotalPrice: database.MoneyToNumeric(total),
	})
	if err != nil {
		return database.OrderItem{}, nil, fmt.Errorf("update order item pricing: %w", err)
	}
	return updated, addons, nil
}

// retotalOrder recomputes subtotal from the stored line totals and keeps
// total = subtotal + delivery_fee.
func (u *unit) retotalOrder(ctx context.Context, order database.Order) (database.Order, error) {
	items, err := u.store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return database.Order{}, fmt.Errorf("list order items: %w", err)
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(database.ToDecimal(it.TotalPrice))
	}
	updated, err := u.store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:          order.ID,
		Subtotal:    database.MoneyToNumeric(subtotal),
		TotalAmount: database.MoneyToNumeric(subtotal.Add(database.ToDecimal(order.DeliveryFee))),
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("update order totals: %w", err)
	}
	return updated, nil
}

// setTable flips a table's status. A table that has since been deactivated
// is skipped with a log line when releasing.
func (u *unit) setTable(ctx context.Context, logger *zap.Logger, tableID pgtype.UUID, status database.TableStatus) error {
	if !tableID.Valid {
		return nil
	}
	_, err := u.store.SetTableStatus(ctx, database.SetTableStatusParams{ID: tableID.Bytes, Status: status})
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if status == database.TableStatusAVAILABLE {
			logger.Warn("table not found on release", zap.String("table_id", uuid.UUID(tableID.Bytes).String()))
			return nil
		}
		return detailed(ErrTableNotFound, "%s", uuid.UUID(tableID.Bytes))
	}
	return fmt.Errorf("set table status: %w", err)
}

// lineTotal is unit*qty + sum(addonPerUnit)*qty.
func lineTotal(unitPrice decimal.Decimal, addonPerUnit []decimal.Decimal, quantity int32) decimal.Decimal {
	perUnit := unitPrice
	for _, a := range addonPerUnit {
		perUnit = perUnit.Add(a)
	}
	return perUnit.Mul(decimal.NewFromInt32(quantity))
}

func isTerminal(s database.OrderStatus) bool {
	return s == database.OrderStatusCOMPLETED || s == database.OrderStatusCANCELLED
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// pgUUID maps uuid.Nil to NULL.
func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func pgTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}
