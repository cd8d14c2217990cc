package recipe

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/shopspring/decimal"
)

type mockStore struct {
	menuItemCalls int
	addonCalls    int
	menuItems     map[uuid.UUID][]database.RecipeComponent
	addons        map[uuid.UUID][]database.RecipeComponent
	err           error
}

func (m *mockStore) ListMenuItemIngredients(ctx context.Context, id uuid.UUID) ([]database.RecipeComponent, error) {
	m.menuItemCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.menuItems[id], nil
}

func (m *mockStore) ListAddonIngredients(ctx context.Context, id uuid.UUID) ([]database.RecipeComponent, error) {
	m.addonCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.addons[id], nil
}

func TestMenuItem_ConvertsAndMemoizes(t *testing.T) {
	burger, bun := uuid.New(), uuid.New()
	store := &mockStore{menuItems: map[uuid.UUID][]database.RecipeComponent{
		burger: {{IngredientID: bun, Quantity: database.ToNumeric(decimal.RequireFromString("1.25"))}},
	}}
	r := NewResolver(store)

	for i := 0; i < 3; i++ {
		got, err := r.MenuItem(context.Background(), burger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].IngredientID != bun || !got[0].QuantityPerUnit.Equal(decimal.RequireFromString("1.25")) {
			t.Fatalf("components: got %+v", got)
		}
	}
	if store.menuItemCalls != 1 {
		t.Errorf("store calls: got %d, want 1", store.menuItemCalls)
	}
}

func TestAddon_EmptyRecipe(t *testing.T) {
	store := &mockStore{}
	r := NewResolver(store)

	got, err := r.Addon(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty recipe, got %+v", got)
	}
}

func TestResolver_StoreError(t *testing.T) {
	dbErr := errors.New("db down")
	r := NewResolver(&mockStore{err: dbErr})

	if _, err := r.MenuItem(context.Background(), uuid.New()); !errors.Is(err, dbErr) {
		t.Errorf("menu item: expected wrapped db error, got %v", err)
	}
	if _, err := r.Addon(context.Background(), uuid.New()); !errors.Is(err, dbErr) {
		t.Errorf("addon: expected wrapped db error, got %v", err)
	}
}

func TestScale(t *testing.T) {
	cheese := uuid.New()
	components := []Component{{IngredientID: cheese, QuantityPerUnit: decimal.NewFromInt(2)}}

	tests := []struct {
		name   string
		factor decimal.Decimal
		want   string
	}{
		{"addon qty 1 on item qty 2", decimal.NewFromInt(2), "4"},
		{"quantity delta +1", decimal.NewFromInt(1), "2"},
		{"quantity delta -2", decimal.NewFromInt(-2), "-4"},
		{"fractional", decimal.RequireFromString("0.5"), "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Scale(components, tt.factor)
			if len(got) != 1 || got[0].IngredientID != cheese {
				t.Fatalf("requirements: got %+v", got)
			}
			if !got[0].Quantity.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("quantity: got %s, want %s", got[0].Quantity, tt.want)
			}
		})
	}
}
