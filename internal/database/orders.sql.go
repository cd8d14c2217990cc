package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, status, order_type, table_id, customer_name, customer_phone,
    delivery_address, notes, subtotal, tax_amount, delivery_fee, total_amount, created_by,
    created_at, updated_at, completed_at, cancelled_at`

func scanOrder(s scanner) (Order, error) {
	var i Order
	err := s.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.Status,
		&i.OrderType,
		&i.TableID,
		&i.CustomerName,
		&i.CustomerPhone,
		&i.DeliveryAddress,
		&i.Notes,
		&i.Subtotal,
		&i.TaxAmount,
		&i.DeliveryFee,
		&i.TotalAmount,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.CompletedAt,
		&i.CancelledAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT (COALESCE(MAX(split_part(order_number, '-', 3)::int), 0) + 1)::int4
FROM orders
WHERE order_number LIKE $1 || '-%'
`

// GetNextOrderNumber returns the next sequence for a prefix such as "ORD-20260101".
func (q *Queries) GetNextOrderNumber(ctx context.Context, prefix string) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber, prefix)
	var next int32
	err := row.Scan(&next)
	return next, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    order_number, status, order_type, table_id, customer_name, customer_phone,
    delivery_address, notes, subtotal, tax_amount, delivery_fee, total_amount, created_by
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber     string         `json:"order_number"`
	Status          OrderStatus    `json:"status"`
	OrderType       OrderType      `json:"order_type"`
	TableID         pgtype.UUID    `json:"table_id"`
	CustomerName    pgtype.Text    `json:"customer_name"`
	CustomerPhone   pgtype.Text    `json:"customer_phone"`
	DeliveryAddress pgtype.Text    `json:"delivery_address"`
	Notes           pgtype.Text    `json:"notes"`
	Subtotal        pgtype.Numeric `json:"subtotal"`
	TaxAmount       pgtype.Numeric `json:"tax_amount"`
	DeliveryFee     pgtype.Numeric `json:"delivery_fee"`
	TotalAmount     pgtype.Numeric `json:"total_amount"`
	CreatedBy       pgtype.UUID    `json:"created_by"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber,
		arg.Status,
		arg.OrderType,
		arg.TableID,
		arg.CustomerName,
		arg.CustomerPhone,
		arg.DeliveryAddress,
		arg.Notes,
		arg.Subtotal,
		arg.TaxAmount,
		arg.DeliveryFee,
		arg.TotalAmount,
		arg.CreatedBy,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE
`

// GetOrderForUpdate locks the order row for the rest of the transaction.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2,
    completed_at = COALESCE($3, completed_at),
    cancelled_at = COALESCE($4, cancelled_at),
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID          uuid.UUID          `json:"id"`
	Status      OrderStatus        `json:"status"`
	CompletedAt pgtype.Timestamptz `json:"completed_at"`
	CancelledAt pgtype.Timestamptz `json:"cancelled_at"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.CompletedAt, arg.CancelledAt)
	return scanOrder(row)
}

const updateOrderTotals = `-- name: UpdateOrderTotals :one
UPDATE orders
SET subtotal = $2, total_amount = $3, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID          uuid.UUID      `json:"id"`
	Subtotal    pgtype.Numeric `json:"subtotal"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals, arg.ID, arg.Subtotal, arg.TotalAmount)
	return scanOrder(row)
}

const orderItemColumns = `id, order_id, menu_item_id, menu_item_name, quantity, unit_price, total_price, notes, created_at, updated_at`

func scanOrderItem(s scanner) (OrderItem, error) {
	var i OrderItem
	err := s.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.MenuItemName,
		&i.Quantity,
		&i.UnitPrice,
		&i.TotalPrice,
		&i.Notes,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, menu_item_id, menu_item_name, quantity, unit_price, total_price, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderItemColumns

type CreateOrderItemParams struct {
	OrderID      uuid.UUID      `json:"order_id"`
	MenuItemID   uuid.UUID      `json:"menu_item_id"`
	MenuItemName string         `json:"menu_item_name"`
	Quantity     int32          `json:"quantity"`
	UnitPrice    pgtype.Numeric `json:"unit_price"`
	TotalPrice   pgtype.Numeric `json:"total_price"`
	Notes        pgtype.Text    `json:"notes"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.MenuItemName,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalPrice,
		arg.Notes,
	)
	return scanOrderItem(row)
}

const getOrderItemForUpdate = `-- name: GetOrderItemForUpdate :one
SELECT ` + orderItemColumns + ` FROM order_items WHERE id = $1 FOR UPDATE
`

func (q *Queries) GetOrderItemForUpdate(ctx context.Context, id uuid.UUID) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItemForUpdate, id))
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY created_at, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderItemPricing = `-- name: UpdateOrderItemPricing :one
UPDATE order_items
SET quantity = $2, total_price = $3, updated_at = now()
WHERE id = $1
RETURNING ` + orderItemColumns

type UpdateOrderItemPricingParams struct {
	ID         uuid.UUID      `json:"id"`
	Quantity   int32          `json:"quantity"`
	TotalPrice pgtype.Numeric `json:"total_price"`
}

func (q *Queries) UpdateOrderItemPricing(ctx context.Context, arg UpdateOrderItemPricingParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, updateOrderItemPricing, arg.ID, arg.Quantity, arg.TotalPrice)
	return scanOrderItem(row)
}

const orderItemAddonColumns = `id, order_item_id, addon_id, addon_name, quantity, unit_price, total_price, created_at`

func scanOrderItemAddon(s scanner) (OrderItemAddon, error) {
	var i OrderItemAddon
	err := s.Scan(
		&i.ID,
		&i.OrderItemID,
		&i.AddonID,
		&i.AddonName,
		&i.Quantity,
		&i.UnitPrice,
		&i.TotalPrice,
		&i.CreatedAt,
	)
	return i, err
}

const createOrderItemAddon = `-- name: CreateOrderItemAddon :one
INSERT INTO order_item_addons (order_item_id, addon_id, addon_name, quantity, unit_price, total_price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderItemAddonColumns

type CreateOrderItemAddonParams struct {
	OrderItemID uuid.UUID      `json:"order_item_id"`
	AddonID     uuid.UUID      `json:"addon_id"`
	AddonName   string         `json:"addon_name"`
	Quantity    int32          `json:"quantity"`
	UnitPrice   pgtype.Numeric `json:"unit_price"`
	TotalPrice  pgtype.Numeric `json:"total_price"`
}

func (q *Queries) CreateOrderItemAddon(ctx context.Context, arg CreateOrderItemAddonParams) (OrderItemAddon, error) {
	row := q.db.QueryRow(ctx, createOrderItemAddon,
		arg.OrderItemID,
		arg.AddonID,
		arg.AddonName,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalPrice,
	)
	return scanOrderItemAddon(row)
}

const getOrderItemAddon = `-- name: GetOrderItemAddon :one
SELECT ` + orderItemAddonColumns + ` FROM order_item_addons
WHERE order_item_id = $1 AND addon_id = $2
`

type GetOrderItemAddonParams struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	AddonID     uuid.UUID `json:"addon_id"`
}

func (q *Queries) GetOrderItemAddon(ctx context.Context, arg GetOrderItemAddonParams) (OrderItemAddon, error) {
	return scanOrderItemAddon(q.db.QueryRow(ctx, getOrderItemAddon, arg.OrderItemID, arg.AddonID))
}

const listOrderItemAddons = `-- name: ListOrderItemAddons :many
SELECT ` + orderItemAddonColumns + ` FROM order_item_addons
WHERE order_item_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderItemAddons(ctx context.Context, orderItemID uuid.UUID) ([]OrderItemAddon, error) {
	rows, err := q.db.Query(ctx, listOrderItemAddons, orderItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItemAddon{}
	for rows.Next() {
		i, err := scanOrderItemAddon(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteOrderItemAddon = `-- name: DeleteOrderItemAddon :exec
DELETE FROM order_item_addons WHERE id = $1
`

func (q *Queries) DeleteOrderItemAddon(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderItemAddon, id)
	return err
}
