package recipe

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/inventory"
	"github.com/shopspring/decimal"
)

// Store defines the DB methods needed to read recipe links.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	ListMenuItemIngredients(ctx context.Context, menuItemID uuid.UUID) ([]database.RecipeComponent, error)
	ListAddonIngredients(ctx context.Context, addonID uuid.UUID) ([]database.RecipeComponent, error)
}

// Component is the amount of one ingredient consumed per unit of a menu item
// or add-on.
type Component struct {
	IngredientID    uuid.UUID
	QuantityPerUnit decimal.Decimal
}

// Resolver reads recipes through its store. Results are memoized for the
// lifetime of the Resolver, so build one per transaction.
type Resolver struct {
	store     Store
	menuItems map[uuid.UUID][]Component
	addons    map[uuid.UUID][]Component
}

func NewResolver(store Store) *Resolver {
	return &Resolver{
		store:     store,
		menuItems: make(map[uuid.UUID][]Component),
		addons:    make(map[uuid.UUID][]Component),
	}
}

// MenuItem returns the recipe of one menu item. An item without ingredient
// links has an empty recipe.
func (r *Resolver) MenuItem(ctx context.Context, id uuid.UUID) ([]Component, error) {
	if c, ok := r.menuItems[id]; ok {
		return c, nil
	}
	rows, err := r.store.ListMenuItemIngredients(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve menu item %s recipe: %w", id, err)
	}
	c := toComponents(rows)
	r.menuItems[id] = c
	return c, nil
}

// Addon returns the recipe of one add-on.
func (r *Resolver) Addon(ctx context.Context, id uuid.UUID) ([]Component, error) {
	if c, ok := r.addons[id]; ok {
		return c, nil
	}
	rows, err := r.store.ListAddonIngredients(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve addon %s recipe: %w", id, err)
	}
	c := toComponents(rows)
	r.addons[id] = c
	return c, nil
}

func toComponents(rows []database.RecipeComponent) []Component {
	out := make([]Component, 0, len(rows))
	for _, row := range rows {
		out = append(out, Component{
			IngredientID:    row.IngredientID,
			QuantityPerUnit: database.ToDecimal(row.Quantity),
		})
	}
	return out
}

// Scale multiplies every component by factor. factor may be negative, which
// yields negative requirements (stock to give back).
func Scale(components []Component, factor decimal.Decimal) []inventory.Requirement {
	out := make([]inventory.Requirement, 0, len(components))
	for _, c := range components {
		out = append(out, inventory.Requirement{
			IngredientID: c.IngredientID,
			Quantity:     c.QuantityPerUnit.Mul(factor),
		})
	}
	return out
}
