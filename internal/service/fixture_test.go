package service

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/notify"
	"github.com/kiwari-pos/engine/internal/txn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	events []notify.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e notify.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// fixture is a small restaurant catalog over a memDB with both services wired.
type fixture struct {
	t        *testing.T
	db       *memDB
	beginner *memBeginner
	pub      *recordingPublisher
	orders   *OrderService
	addons   *AddonService
	staff    uuid.UUID
	table    uuid.UUID

	bun, beef, cheese, bacon, potato uuid.UUID

	burger, cheeseFries, grilledCheese, retired uuid.UUID

	extraCheese, baconAddon, truffle uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newMemDB()
	f := &fixture{
		t:        t,
		db:       db,
		beginner: &memBeginner{db: db},
		pub:      &recordingPublisher{},
		staff:    uuid.New(),
	}

	f.bun = f.ingredient("Bun", "50", "10")
	f.beef = f.ingredient("Beef Patty", "20", "5")
	f.cheese = f.ingredient("Cheese", "100", "10")
	f.bacon = f.ingredient("Bacon", "10", "2")
	f.potato = f.ingredient("Potato", "40", "0")

	f.burger = f.menuItem("Burger", "10.00", true, comp(f.bun, "1"), comp(f.beef, "1"))
	f.cheeseFries = f.menuItem("Cheese Fries", "3.50", true, comp(f.potato, "1"), comp(f.cheese, "2"))
	f.grilledCheese = f.menuItem("Grilled Cheese", "6.00", true, comp(f.bun, "2"), comp(f.cheese, "3"))
	f.retired = f.menuItem("Retired Special", "9.00", false)

	f.extraCheese = f.addon("Extra Cheese", "1.50", true, comp(f.cheese, "2"))
	f.baconAddon = f.addon("Bacon", "2.00", true, comp(f.bacon, "1"))
	f.truffle = f.addon("Truffle", "5.00", false)

	f.table = uuid.New()
	db.tables[f.table] = database.DiningTable{ID: f.table, Label: "T1", Status: database.TableStatusAVAILABLE, IsActive: true}

	runner, err := txn.NewRunner(f.beginner, "serializable", 2, zap.NewNop(),
		txn.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	newStore := func(database.DBTX) Store { return &memStore{db: db} }
	f.addons = NewAddonService(runner, newStore, f.pub, zap.NewNop())
	f.orders = NewOrderService(runner, newStore, f.addons, f.pub, zap.NewNop())
	clock := func() time.Time { return fixedNow }
	f.addons.now = clock
	f.orders.now = clock
	return f
}

func comp(ingredientID uuid.UUID, qty string) database.RecipeComponent {
	return database.RecipeComponent{IngredientID: ingredientID, Quantity: database.ToNumeric(dec(qty))}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) ingredient(name, stock, minimum string) uuid.UUID {
	id := uuid.New()
	f.db.ingredients[id] = database.Ingredient{
		ID:           id,
		Name:         name,
		Unit:         "pcs",
		CurrentStock: database.ToNumeric(dec(stock)),
		MinimumStock: database.ToNumeric(dec(minimum)),
		IsActive:     true,
	}
	return id
}

func (f *fixture) menuItem(name, price string, active bool, recipe ...database.RecipeComponent) uuid.UUID {
	id := uuid.New()
	f.db.menuItems[id] = database.MenuItem{ID: id, Name: name, Price: database.ToNumeric(dec(price)), IsActive: active}
	f.db.menuRecipes[id] = recipe
	return id
}

func (f *fixture) addon(name, price string, active bool, recipe ...database.RecipeComponent) uuid.UUID {
	id := uuid.New()
	f.db.addons[id] = database.Addon{ID: id, GroupID: uuid.New(), Name: name, Price: database.ToNumeric(dec(price)), IsActive: active}
	f.db.addonRecipes[id] = recipe
	return id
}

func (f *fixture) stock(id uuid.UUID) decimal.Decimal {
	return database.ToDecimal(f.db.ingredients[id].CurrentStock)
}

// stocks snapshots every ingredient's current stock.
func (f *fixture) stocks() map[uuid.UUID]decimal.Decimal {
	out := map[uuid.UUID]decimal.Decimal{}
	for id := range f.db.ingredients {
		out[id] = f.stock(id)
	}
	return out
}

func (f *fixture) assertStocks(want map[uuid.UUID]decimal.Decimal) {
	f.t.Helper()
	for id, w := range want {
		if got := f.stock(id); !got.Equal(w) {
			f.t.Errorf("%s stock: got %s, want %s", f.db.ingredients[id].Name, got, w)
		}
	}
}

func (f *fixture) assertStock(id uuid.UUID, want string) {
	f.t.Helper()
	if got := f.stock(id); !got.Equal(dec(want)) {
		f.t.Errorf("%s stock: got %s, want %s", f.db.ingredients[id].Name, got, want)
	}
}

func (f *fixture) item(id uuid.UUID) database.OrderItem {
	f.t.Helper()
	for _, it := range f.db.items {
		if it.ID == id {
			return it
		}
	}
	f.t.Fatalf("order item %s not found", id)
	return database.OrderItem{}
}

func (f *fixture) auditActions() []string {
	out := make([]string, 0, len(f.db.audit))
	for _, e := range f.db.audit {
		out = append(out, e.Action)
	}
	return out
}

// placeOrder creates an order or fails the test.
func (f *fixture) placeOrder(req CreateOrderRequest) *OrderResult {
	f.t.Helper()
	if req.OrderType == "" {
		req.OrderType = string(database.OrderTypeTAKEOUT)
	}
	if req.CreatedBy == uuid.Nil {
		req.CreatedBy = f.staff
	}
	res, err := f.orders.CreateOrder(context.Background(), req)
	if err != nil {
		f.t.Fatalf("create order: %v", err)
	}
	return res
}

func assertDec(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", name, got, want)
	}
}

func assertNum(t *testing.T, name string, got pgtype.Numeric, want string) {
	t.Helper()
	assertDec(t, name, database.ToDecimal(got), want)
}
