package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const adjustIngredientStock = `-- name: AdjustIngredientStock :one
UPDATE ingredients
SET current_stock = current_stock + $2, updated_at = now()
WHERE id = $1
RETURNING id, name, unit, current_stock, minimum_stock
`

type AdjustIngredientStockParams struct {
	ID    uuid.UUID      `json:"id"`
	Delta pgtype.Numeric `json:"delta"`
}

type AdjustIngredientStockRow struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Unit         string         `json:"unit"`
	CurrentStock pgtype.Numeric `json:"current_stock"`
	MinimumStock pgtype.Numeric `json:"minimum_stock"`
}

// AdjustIngredientStock applies a signed delta in a single statement. There is
// no lower bound: stock is allowed to go negative.
func (q *Queries) AdjustIngredientStock(ctx context.Context, arg AdjustIngredientStockParams) (AdjustIngredientStockRow, error) {
	row := q.db.QueryRow(ctx, adjustIngredientStock, arg.ID, arg.Delta)
	var i AdjustIngredientStockRow
	err := row.Scan(&i.ID, &i.Name, &i.Unit, &i.CurrentStock, &i.MinimumStock)
	return i, err
}

const createStockMovement = `-- name: CreateStockMovement :one
INSERT INTO order_stock_movements (order_id, order_item_id, addon_id, ingredient_id, quantity_delta, reason)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, order_item_id, addon_id, ingredient_id, quantity_delta, reason, created_at
`

type CreateStockMovementParams struct {
	OrderID       uuid.UUID      `json:"order_id"`
	OrderItemID   pgtype.UUID    `json:"order_item_id"`
	AddonID       pgtype.UUID    `json:"addon_id"`
	IngredientID  uuid.UUID      `json:"ingredient_id"`
	QuantityDelta pgtype.Numeric `json:"quantity_delta"`
	Reason        string         `json:"reason"`
}

func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (OrderStockMovement, error) {
	row := q.db.QueryRow(ctx, createStockMovement,
		arg.OrderID,
		arg.OrderItemID,
		arg.AddonID,
		arg.IngredientID,
		arg.QuantityDelta,
		arg.Reason,
	)
	var i OrderStockMovement
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.OrderItemID,
		&i.AddonID,
		&i.IngredientID,
		&i.QuantityDelta,
		&i.Reason,
		&i.CreatedAt,
	)
	return i, err
}

const sumStockMovementsByOrder = `-- name: SumStockMovementsByOrder :many
SELECT ingredient_id, SUM(quantity_delta)::numeric AS quantity_delta
FROM order_stock_movements
WHERE order_id = $1
GROUP BY ingredient_id
ORDER BY ingredient_id
`

type SumStockMovementsByOrderRow struct {
	IngredientID  uuid.UUID      `json:"ingredient_id"`
	QuantityDelta pgtype.Numeric `json:"quantity_delta"`
}

// SumStockMovementsByOrder returns the net stock delta per ingredient that an
// order has caused so far.
func (q *Queries) SumStockMovementsByOrder(ctx context.Context, orderID uuid.UUID) ([]SumStockMovementsByOrderRow, error) {
	rows, err := q.db.Query(ctx, sumStockMovementsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SumStockMovementsByOrderRow{}
	for rows.Next() {
		var i SumStockMovementsByOrderRow
		if err := rows.Scan(&i.IngredientID, &i.QuantityDelta); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const sumStockMovementsBySource = `-- name: SumStockMovementsBySource :many
SELECT ingredient_id, SUM(quantity_delta)::numeric AS quantity_delta
FROM order_stock_movements
WHERE order_item_id = $1 AND addon_id IS NOT DISTINCT FROM $2
GROUP BY ingredient_id
ORDER BY ingredient_id
`

type SumStockMovementsBySourceParams struct {
	OrderItemID pgtype.UUID `json:"order_item_id"`
	AddonID     pgtype.UUID `json:"addon_id"`
}

type SumStockMovementsBySourceRow struct {
	IngredientID  uuid.UUID      `json:"ingredient_id"`
	QuantityDelta pgtype.Numeric `json:"quantity_delta"`
}

// SumStockMovementsBySource returns the net stock delta per ingredient caused
// by one line item (AddonID NULL) or by one add-on on that line item.
func (q *Queries) SumStockMovementsBySource(ctx context.Context, arg SumStockMovementsBySourceParams) ([]SumStockMovementsBySourceRow, error) {
	rows, err := q.db.Query(ctx, sumStockMovementsBySource, arg.OrderItemID, arg.AddonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SumStockMovementsBySourceRow{}
	for rows.Next() {
		var i SumStockMovementsBySourceRow
		if err := rows.Scan(&i.IngredientID, &i.QuantityDelta); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createAuditLog = `-- name: CreateAuditLog :one
INSERT INTO audit_log (action, table_name, record_id, order_id, old_values, new_values, detail, actor_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`

type CreateAuditLogParams struct {
	Action    string      `json:"action"`
	TableName string      `json:"table_name"`
	RecordID  pgtype.UUID `json:"record_id"`
	OrderID   pgtype.UUID `json:"order_id"`
	OldValues []byte      `json:"old_values"`
	NewValues []byte      `json:"new_values"`
	Detail    pgtype.Text `json:"detail"`
	ActorID   pgtype.UUID `json:"actor_id"`
}

func (q *Queries) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) (int64, error) {
	row := q.db.QueryRow(ctx, createAuditLog,
		arg.Action,
		arg.TableName,
		arg.RecordID,
		arg.OrderID,
		arg.OldValues,
		arg.NewValues,
		arg.Detail,
		arg.ActorID,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listAuditLogByOrder = `-- name: ListAuditLogByOrder :many
SELECT id, action, table_name, record_id, order_id, old_values, new_values, detail, actor_id, created_at
FROM audit_log
WHERE order_id = $1
ORDER BY id
`

func (q *Queries) ListAuditLogByOrder(ctx context.Context, orderID pgtype.UUID) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []AuditLog{}
	for rows.Next() {
		var i AuditLog
		if err := rows.Scan(
			&i.ID,
			&i.Action,
			&i.TableName,
			&i.RecordID,
			&i.OrderID,
			&i.OldValues,
			&i.NewValues,
			&i.Detail,
			&i.ActorID,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
