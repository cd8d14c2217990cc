package database

import (
	"context"

	"github.com/google/uuid"
)

const getMenuItemForOrder = `-- name: GetMenuItemForOrder :one
SELECT id, name, price, is_active FROM menu_items
WHERE id = $1 AND is_active = TRUE
`

// GetMenuItemForOrder returns only active menu items.
func (q *Queries) GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItemForOrder, id)
	var i MenuItem
	err := row.Scan(&i.ID, &i.Name, &i.Price, &i.IsActive)
	return i, err
}

const getAddonForOrder = `-- name: GetAddonForOrder :one
SELECT a.id, a.group_id, a.name, a.price, a.is_active
FROM addons a
JOIN addon_groups g ON g.id = a.group_id
WHERE a.id = $1 AND a.is_active = TRUE AND g.is_active = TRUE
`

// GetAddonForOrder returns an add-on only when both it and its group are active.
func (q *Queries) GetAddonForOrder(ctx context.Context, id uuid.UUID) (Addon, error) {
	row := q.db.QueryRow(ctx, getAddonForOrder, id)
	var i Addon
	err := row.Scan(&i.ID, &i.GroupID, &i.Name, &i.Price, &i.IsActive)
	return i, err
}

const listMenuItemIngredients = `-- name: ListMenuItemIngredients :many
SELECT mi.ingredient_id, mi.quantity
FROM menu_item_ingredients mi
JOIN ingredients i ON i.id = mi.ingredient_id
WHERE mi.menu_item_id = $1 AND i.is_active = TRUE
ORDER BY mi.ingredient_id
`

func (q *Queries) ListMenuItemIngredients(ctx context.Context, menuItemID uuid.UUID) ([]RecipeComponent, error) {
	return q.listRecipe(ctx, listMenuItemIngredients, menuItemID)
}

const listAddonIngredients = `-- name: ListAddonIngredients :many
SELECT ai.ingredient_id, ai.quantity
FROM addon_ingredients ai
JOIN ingredients i ON i.id = ai.ingredient_id
WHERE ai.addon_id = $1 AND i.is_active = TRUE
ORDER BY ai.ingredient_id
`

func (q *Queries) ListAddonIngredients(ctx context.Context, addonID uuid.UUID) ([]RecipeComponent, error) {
	return q.listRecipe(ctx, listAddonIngredients, addonID)
}

func (q *Queries) listRecipe(ctx context.Context, query string, id uuid.UUID) ([]RecipeComponent, error) {
	rows, err := q.db.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RecipeComponent{}
	for rows.Next() {
		var i RecipeComponent
		if err := rows.Scan(&i.IngredientID, &i.Quantity); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listIngredientsByIDs = `-- name: ListIngredientsByIDs :many
SELECT id, name, unit, current_stock, minimum_stock, cost_per_unit, is_active, updated_at
FROM ingredients
WHERE id = ANY($1::uuid[])
ORDER BY name
`

func (q *Queries) ListIngredientsByIDs(ctx context.Context, ids []string) ([]Ingredient, error) {
	rows, err := q.db.Query(ctx, listIngredientsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Ingredient{}
	for rows.Next() {
		i, err := scanIngredient(rows)
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

func scanIngredient(s scanner) (Ingredient, error) {
	var i Ingredient
	err := s.Scan(
		&i.ID,
		&i.Name,
		&i.Unit,
		&i.CurrentStock,
		&i.MinimumStock,
		&i.CostPerUnit,
		&i.IsActive,
		&i.UpdatedAt,
	)
	return i, err
}

const setTableStatus = `-- name: SetTableStatus :one
UPDATE dining_tables SET status = $2, updated_at = now()
WHERE id = $1 AND is_active = TRUE
RETURNING id, label, status, is_active, updated_at
`

type SetTableStatusParams struct {
	ID     uuid.UUID   `json:"id"`
	Status TableStatus `json:"status"`
}

func (q *Queries) SetTableStatus(ctx context.Context, arg SetTableStatusParams) (DiningTable, error) {
	row := q.db.QueryRow(ctx, setTableStatus, arg.ID, arg.Status)
	var i DiningTable
	err := row.Scan(&i.ID, &i.Label, &i.Status, &i.IsActive, &i.UpdatedAt)
	return i, err
}

const getStaffByUsername = `-- name: GetStaffByUsername :one
SELECT id, username, full_name, role, hashed_password, is_active, created_at
FROM staff
WHERE username = $1 AND is_active = TRUE
`

func (q *Queries) GetStaffByUsername(ctx context.Context, username string) (Staff, error) {
	row := q.db.QueryRow(ctx, getStaffByUsername, username)
	var i Staff
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.FullName,
		&i.Role,
		&i.HashedPassword,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}
