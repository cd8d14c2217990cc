package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiwari-pos/engine/internal/database"
)

// memDB is an in-memory stand-in for the Postgres schema. Transactions from
// memBeginner snapshot it on begin and restore the snapshot on rollback.
type memDB struct {
	ingredients  map[uuid.UUID]database.Ingredient
	menuItems    map[uuid.UUID]database.MenuItem
	addons       map[uuid.UUID]database.Addon
	menuRecipes  map[uuid.UUID][]database.RecipeComponent
	addonRecipes map[uuid.UUID][]database.RecipeComponent
	tables       map[uuid.UUID]database.DiningTable

	orders      map[uuid.UUID]database.Order
	items       []database.OrderItem
	assignments []database.OrderItemAddon
	movements   []database.OrderStockMovement
	audit       []database.CreateAuditLogParams
	seq         map[string]int32

	// faults survive rollbacks.
	faults *memFaults
}

type memFaults struct {
	// createOrderErrs are returned by successive CreateOrder calls.
	createOrderErrs []error
}

func newMemDB() *memDB {
	return &memDB{
		ingredients:  map[uuid.UUID]database.Ingredient{},
		menuItems:    map[uuid.UUID]database.MenuItem{},
		addons:       map[uuid.UUID]database.Addon{},
		menuRecipes:  map[uuid.UUID][]database.RecipeComponent{},
		addonRecipes: map[uuid.UUID][]database.RecipeComponent{},
		tables:       map[uuid.UUID]database.DiningTable{},
		orders:       map[uuid.UUID]database.Order{},
		seq:          map[string]int32{},
		faults:       &memFaults{},
	}
}

func (m *memDB) clone() memDB {
	c := *m
	c.ingredients = cloneMap(m.ingredients)
	c.menuItems = cloneMap(m.menuItems)
	c.addons = cloneMap(m.addons)
	c.menuRecipes = cloneMap(m.menuRecipes)
	c.addonRecipes = cloneMap(m.addonRecipes)
	c.tables = cloneMap(m.tables)
	c.orders = cloneMap(m.orders)
	c.seq = cloneMap(m.seq)
	c.items = slices.Clone(m.items)
	c.assignments = slices.Clone(m.assignments)
	c.movements = slices.Clone(m.movements)
	c.audit = slices.Clone(m.audit)
	return c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// --- Transactions ---

type memBeginner struct {
	db     *memDB
	begins int
}

func (b *memBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	return &memTx{db: b.db, snap: b.db.clone()}, nil
}

// memTx implements pgx.Tx. The unused methods panic so we catch accidental calls.
type memTx struct {
	db   *memDB
	snap memDB
	done bool
}

func (t *memTx) Commit(ctx context.Context) error {
	t.done = true
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	*t.db = t.snap
	t.done = true
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (t *memTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (t *memTx) Conn() *pgx.Conn { panic("not implemented") }

// --- Store ---

// memStore implements Store over a memDB.
type memStore struct {
	db *memDB
}

func (s *memStore) AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) (database.AdjustIngredientStockRow, error) {
	ing, ok := s.db.ingredients[arg.ID]
	if !ok {
		return database.AdjustIngredientStockRow{}, pgx.ErrNoRows
	}
	ing.CurrentStock = database.ToNumeric(database.ToDecimal(ing.CurrentStock).Add(database.ToDecimal(arg.Delta)))
	s.db.ingredients[arg.ID] = ing
	return database.AdjustIngredientStockRow{
		ID:           ing.ID,
		Name:         ing.Name,
		Unit:         ing.Unit,
		CurrentStock: ing.CurrentStock,
		MinimumStock: ing.MinimumStock,
	}, nil
}

func (s *memStore) ListIngredientsByIDs(ctx context.Context, ids []string) ([]database.Ingredient, error) {
	var out []database.Ingredient
	for _, raw := range ids {
		if ing, ok := s.db.ingredients[uuid.MustParse(raw)]; ok && ing.IsActive {
			out = append(out, ing)
		}
	}
	return out, nil
}

func (s *memStore) ListMenuItemIngredients(ctx context.Context, id uuid.UUID) ([]database.RecipeComponent, error) {
	return s.activeRecipe(s.db.menuRecipes[id]), nil
}

func (s *memStore) ListAddonIngredients(ctx context.Context, id uuid.UUID) ([]database.RecipeComponent, error) {
	return s.activeRecipe(s.db.addonRecipes[id]), nil
}

// activeRecipe mirrors the join on active ingredients. Links to ingredients
// that no longer exist are kept so lookups fail downstream.
func (s *memStore) activeRecipe(rows []database.RecipeComponent) []database.RecipeComponent {
	out := []database.RecipeComponent{}
	for _, r := range rows {
		if ing, ok := s.db.ingredients[r.IngredientID]; ok && !ing.IsActive {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (s *memStore) CreateAuditLog(ctx context.Context, arg database.CreateAuditLogParams) (int64, error) {
	s.db.audit = append(s.db.audit, arg)
	return int64(len(s.db.audit)), nil
}

func (s *memStore) GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
	mi, ok := s.db.menuItems[id]
	if !ok || !mi.IsActive {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return mi, nil
}

func (s *memStore) GetAddonForOrder(ctx context.Context, id uuid.UUID) (database.Addon, error) {
	a, ok := s.db.addons[id]
	if !ok || !a.IsActive {
		return database.Addon{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *memStore) SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) (database.DiningTable, error) {
	t, ok := s.db.tables[arg.ID]
	if !ok || !t.IsActive {
		return database.DiningTable{}, pgx.ErrNoRows
	}
	t.Status = arg.Status
	s.db.tables[arg.ID] = t
	return t, nil
}

func (s *memStore) GetNextOrderNumber(ctx context.Context, prefix string) (int32, error) {
	return s.db.seq[prefix] + 1, nil
}

func (s *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if f := s.db.faults; len(f.createOrderErrs) > 0 {
		err := f.createOrderErrs[0]
		f.createOrderErrs = f.createOrderErrs[1:]
		return database.Order{}, err
	}
	prefix := arg.OrderNumber[:len(arg.OrderNumber)-5]
	s.db.seq[prefix]++
	o := database.Order{
		ID:              uuid.New(),
		OrderNumber:     arg.OrderNumber,
		Status:          arg.Status,
		OrderType:       arg.OrderType,
		TableID:         arg.TableID,
		CustomerName:    arg.CustomerName,
		CustomerPhone:   arg.CustomerPhone,
		DeliveryAddress: arg.DeliveryAddress,
		Notes:           arg.Notes,
		Subtotal:        arg.Subtotal,
		TaxAmount:       arg.TaxAmount,
		DeliveryFee:     arg.DeliveryFee,
		TotalAmount:     arg.TotalAmount,
		CreatedBy:       arg.CreatedBy,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	s.db.orders[o.ID] = o
	return o, nil
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := s.db.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (s *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return s.GetOrder(ctx, id)
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	o, ok := s.db.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	if arg.CompletedAt.Valid {
		o.CompletedAt = arg.CompletedAt
	}
	if arg.CancelledAt.Valid {
		o.CancelledAt = arg.CancelledAt
	}
	s.db.orders[o.ID] = o
	return o, nil
}

func (s *memStore) UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error) {
	o, ok := s.db.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Subtotal = arg.Subtotal
	o.TotalAmount = arg.TotalAmount
	s.db.orders[o.ID] = o
	return o, nil
}

func (s *memStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	it := database.OrderItem{
		ID:           uuid.New(),
		OrderID:      arg.OrderID,
		MenuItemID:   arg.MenuItemID,
		MenuItemName: arg.MenuItemName,
		Quantity:     arg.Quantity,
		UnitPrice:    arg.UnitPrice,
		TotalPrice:   arg.TotalPrice,
		Notes:        arg.Notes,
	}
	s.db.items = append(s.db.items, it)
	return it, nil
}

func (s *memStore) GetOrderItemForUpdate(ctx context.Context, id uuid.UUID) (database.OrderItem, error) {
	for _, it := range s.db.items {
		if it.ID == id {
			return it, nil
		}
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (s *memStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	out := []database.OrderItem{}
	for _, it := range s.db.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *memStore) UpdateOrderItemPricing(ctx context.Context, arg database.UpdateOrderItemPricingParams) (database.OrderItem, error) {
	for i, it := range s.db.items {
		if it.ID == arg.ID {
			it.Quantity = arg.Quantity
			it.TotalPrice = arg.TotalPrice
			s.db.items[i] = it
			return it, nil
		}
	}
	return database.OrderItem{}, pgx.ErrNoRows
}

func (s *memStore) CreateOrderItemAddon(ctx context.Context, arg database.CreateOrderItemAddonParams) (database.OrderItemAddon, error) {
	for _, a := range s.db.assignments {
		if a.OrderItemID == arg.OrderItemID && a.AddonID == arg.AddonID {
			return database.OrderItemAddon{}, &pgconn.PgError{Code: "23505", ConstraintName: addonAssignmentConstraint}
		}
	}
	a := database.OrderItemAddon{
		ID:          uuid.New(),
		OrderItemID: arg.OrderItemID,
		AddonID:     arg.AddonID,
		AddonName:   arg.AddonName,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		TotalPrice:  arg.TotalPrice,
	}
	s.db.assignments = append(s.db.assignments, a)
	return a, nil
}

func (s *memStore) GetOrderItemAddon(ctx context.Context, arg database.GetOrderItemAddonParams) (database.OrderItemAddon, error) {
	for _, a := range s.db.assignments {
		if a.OrderItemID == arg.OrderItemID && a.AddonID == arg.AddonID {
			return a, nil
		}
	}
	return database.OrderItemAddon{}, pgx.ErrNoRows
}

func (s *memStore) ListOrderItemAddons(ctx context.Context, orderItemID uuid.UUID) ([]database.OrderItemAddon, error) {
	out := []database.OrderItemAddon{}
	for _, a := range s.db.assignments {
		if a.OrderItemID == orderItemID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) DeleteOrderItemAddon(ctx context.Context, id uuid.UUID) error {
	s.db.assignments = slices.DeleteFunc(s.db.assignments, func(a database.OrderItemAddon) bool { return a.ID == id })
	return nil
}

func (s *memStore) CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.OrderStockMovement, error) {
	m := database.OrderStockMovement{
		ID:            uuid.New(),
		OrderID:       arg.OrderID,
		OrderItemID:   arg.OrderItemID,
		AddonID:       arg.AddonID,
		IngredientID:  arg.IngredientID,
		QuantityDelta: arg.QuantityDelta,
		Reason:        arg.Reason,
	}
	s.db.movements = append(s.db.movements, m)
	return m, nil
}

// SumStockMovementsByOrder groups in first-movement order so tests can
// predict restoration order.
func (s *memStore) SumStockMovementsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.SumStockMovementsByOrderRow, error) {
	index := map[uuid.UUID]int{}
	out := []database.SumStockMovementsByOrderRow{}
	for _, m := range s.db.movements {
		if m.OrderID != orderID {
			continue
		}
		i, ok := index[m.IngredientID]
		if !ok {
			index[m.IngredientID] = len(out)
			out = append(out, database.SumStockMovementsByOrderRow{IngredientID: m.IngredientID, QuantityDelta: m.QuantityDelta})
			continue
		}
		sum := database.ToDecimal(out[i].QuantityDelta).Add(database.ToDecimal(m.QuantityDelta))
		out[i].QuantityDelta = database.ToNumeric(sum)
	}
	return out, nil
}

func (s *memStore) SumStockMovementsBySource(ctx context.Context, arg database.SumStockMovementsBySourceParams) ([]database.SumStockMovementsBySourceRow, error) {
	index := map[uuid.UUID]int{}
	out := []database.SumStockMovementsBySourceRow{}
	for _, m := range s.db.movements {
		if m.OrderItemID != arg.OrderItemID || m.AddonID != arg.AddonID {
			continue
		}
		i, ok := index[m.IngredientID]
		if !ok {
			index[m.IngredientID] = len(out)
			out = append(out, database.SumStockMovementsBySourceRow{IngredientID: m.IngredientID, QuantityDelta: m.QuantityDelta})
			continue
		}
		sum := database.ToDecimal(out[i].QuantityDelta).Add(database.ToDecimal(m.QuantityDelta))
		out[i].QuantityDelta = database.ToNumeric(sum)
	}
	return out, nil
}
