//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/engine/internal/config"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/router"
	"github.com/kiwari-pos/engine/internal/service"
	"github.com/kiwari-pos/engine/internal/txn"
	"github.com/kiwari-pos/engine/internal/ws"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

type catalog struct {
	bun, beef, cheese uuid.UUID
	burger            uuid.UUID
	extraCheese       uuid.UUID
	table             uuid.UUID
}

type stack struct {
	pool   *pgxpool.Pool
	orders *service.OrderService
	addons *service.AddonService
}

func newStack(t *testing.T, ctx context.Context, connStr string, maxRetries int) *stack {
	t.Helper()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runner, err := txn.NewRunner(pool, "serializable", maxRetries, zap.NewNop())
	require.NoError(t, err)

	newStore := func(db database.DBTX) service.Store { return database.New(db) }
	addons := service.NewAddonService(runner, newStore, nil, zap.NewNop())
	orders := service.NewOrderService(runner, newStore, addons, nil, zap.NewNop())
	return &stack{pool: pool, orders: orders, addons: addons}
}

// TestIntegrationOrderLifecycle drives the full HTTP surface against a real
// PostgreSQL database and checks stock after every step.
func TestIntegrationOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	connStr := setupPostgresContainer(t, ctx)
	runMigrations(t, connStr)

	s := newStack(t, ctx, connStr, 5)
	cat := seedCatalog(t, ctx, s.pool)
	createOwner(t, ctx, s.pool, "owner", "password123")

	cfg := &config.Config{JWTSecret: "integration-test-secret", CORSOrigins: []string{"http://localhost:5173"}}
	queries := database.New(s.pool)
	hub := ws.NewHub(zap.NewNop())
	hubCtx, stopHub := context.WithCancel(ctx)
	t.Cleanup(stopHub)
	go hub.Run(hubCtx) //nolint:errcheck

	server := httptest.NewServer(router.New(cfg, router.Deps{
		Orders:    s.orders,
		Addons:    s.addons,
		Inventory: s.orders,
		Audit:     queries,
		Staff:     queries,
		Hub:       hub,
		Logger:    zap.NewNop(),
	}))
	t.Cleanup(server.Close)

	login := call(t, server, "", "POST", "/auth/login", map[string]any{"username": "owner", "password": "password123"}, http.StatusOK)
	token := login["data"].(map[string]any)["access_token"].(string)

	// Create: 2 burgers with extra cheese on each.
	created := call(t, server, token, "POST", "/orders", map[string]any{
		"order_type": "DINE_IN",
		"table_id":   cat.table.String(),
		"items": []map[string]any{{
			"menu_item_id": cat.burger.String(),
			"quantity":     2,
			"addons":       []map[string]any{{"addon_id": cat.extraCheese.String(), "quantity": 1}},
		}},
	}, http.StatusCreated)
	order := created["data"].(map[string]any)
	orderID := order["id"].(string)
	itemID := order["items"].([]any)[0].(map[string]any)["id"].(string)
	require.Equal(t, "23.00", order["total_amount"])
	require.Equal(t, "PENDING", order["status"])
	assertStock(t, ctx, s.pool, cat.bun, "48")
	assertStock(t, ctx, s.pool, cat.beef, "18")
	assertStock(t, ctx, s.pool, cat.cheese, "96")
	assertTable(t, ctx, s.pool, cat.table, "OCCUPIED")

	// Quantity 2 -> 3 rescales the add-on with it.
	changed := call(t, server, token, "PATCH", fmt.Sprintf("/orders/%s/items/%s", orderID, itemID), map[string]any{"quantity": 3}, http.StatusOK)
	require.Equal(t, "34.50", changed["data"].(map[string]any)["order"].(map[string]any)["total_amount"])
	assertStock(t, ctx, s.pool, cat.bun, "47")
	assertStock(t, ctx, s.pool, cat.cheese, "94")

	// Attaching the same add-on twice is rejected without side effects.
	dup := call(t, server, token, "POST", fmt.Sprintf("/orders/%s/items/%s/addons", orderID, itemID), map[string]any{
		"addons": []map[string]any{{"addon_id": cat.extraCheese.String(), "quantity": 1}},
	}, http.StatusConflict)
	require.Equal(t, "ADDON_ALREADY_ADDED", dup["error"].(map[string]any)["code"])
	assertStock(t, ctx, s.pool, cat.cheese, "94")

	// Detach gives back 3 items x 1 x 2 slices.
	detached := call(t, server, token, "DELETE", fmt.Sprintf("/orders/%s/items/%s/addons/%s", orderID, itemID, cat.extraCheese), nil, http.StatusOK)
	require.Equal(t, true, detached["data"].(map[string]any)["removed"])
	require.Equal(t, "30.00", detached["data"].(map[string]any)["order"].(map[string]any)["total_amount"])
	assertStock(t, ctx, s.pool, cat.cheese, "100")

	// Forward-only status moves.
	call(t, server, token, "PATCH", "/orders/"+orderID+"/status", map[string]any{"status": "PREPARING"}, http.StatusOK)
	back := call(t, server, token, "PATCH", "/orders/"+orderID+"/status", map[string]any{"status": "PENDING"}, http.StatusConflict)
	require.Equal(t, "INVALID_TRANSITION", back["error"].(map[string]any)["code"])

	// Cancellation restores exactly what the order consumed.
	call(t, server, token, "DELETE", "/orders/"+orderID, nil, http.StatusOK)
	assertStock(t, ctx, s.pool, cat.bun, "50")
	assertStock(t, ctx, s.pool, cat.beef, "20")
	assertStock(t, ctx, s.pool, cat.cheese, "100")
	assertTable(t, ctx, s.pool, cat.table, "AVAILABLE")

	closed := call(t, server, token, "PATCH", "/orders/"+orderID+"/status", map[string]any{"status": "READY"}, http.StatusUnprocessableEntity)
	require.Equal(t, "InvalidTransition", closed["error"].(map[string]any)["kind"])

	audit := call(t, server, token, "GET", "/orders/"+orderID+"/audit", nil, http.StatusOK)
	actions := map[string]int{}
	for _, e := range audit["data"].([]any) {
		actions[e.(map[string]any)["action"].(string)]++
	}
	require.Positive(t, actions["STOCK_DECREMENT"])
	require.Positive(t, actions["STOCK_INCREMENT"])
	require.Equal(t, 2, actions["ORDER_STATUS_CHANGE"])

	// Pre-checkout check warns without touching stock.
	avail := call(t, server, token, "POST", "/inventory/availability", map[string]any{
		"items": []map[string]any{{"menu_item_id": cat.burger.String(), "quantity": 25}},
	}, http.StatusOK)
	require.Equal(t, false, avail["data"].(map[string]any)["available"])
	assertStock(t, ctx, s.pool, cat.beef, "20")
}

// TestIntegrationConcurrentOrders checks that concurrent orders against the
// same ingredients lose no decrements.
func TestIntegrationConcurrentOrders(t *testing.T) {
	ctx := context.Background()
	connStr := setupPostgresContainer(t, ctx)
	runMigrations(t, connStr)

	s := newStack(t, ctx, connStr, 30)
	cat := seedCatalog(t, ctx, s.pool)

	const orders = 8
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < orders; i++ {
		g.Go(func() error {
			_, err := s.orders.CreateOrder(gctx, service.CreateOrderRequest{
				OrderType: "TAKEOUT",
				Items: []service.CreateOrderItemRequest{{
					MenuItemID: cat.burger,
					Quantity:   1,
					Addons:     []service.AddonSelection{{AddonID: cat.extraCheese, Quantity: 1}},
				}},
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assertStock(t, ctx, s.pool, cat.bun, "42")
	assertStock(t, ctx, s.pool, cat.beef, "12")
	assertStock(t, ctx, s.pool, cat.cheese, "84")

	var n int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(DISTINCT order_number) FROM orders`).Scan(&n))
	require.Equal(t, orders, n)
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	require.NoError(t, err)

	// Go test sets cwd to the package directory.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	require.NoError(t, err)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func seedCatalog(t *testing.T, ctx context.Context, pool *pgxpool.Pool) catalog {
	t.Helper()
	var c catalog

	insert := func(dst *uuid.UUID, query string, args ...any) {
		t.Helper()
		require.NoError(t, pool.QueryRow(ctx, query, args...).Scan(dst))
	}
	exec := func(query string, args ...any) {
		t.Helper()
		_, err := pool.Exec(ctx, query, args...)
		require.NoError(t, err)
	}

	const ingredientSQL = `INSERT INTO ingredients (name, unit, current_stock, minimum_stock) VALUES ($1, $2, $3::numeric, 5) RETURNING id`
	insert(&c.bun, ingredientSQL, "Bun", "pcs", "50")
	insert(&c.beef, ingredientSQL, "Beef", "pcs", "20")
	insert(&c.cheese, ingredientSQL, "Cheese", "slice", "100")

	insert(&c.burger, `INSERT INTO menu_items (name, price) VALUES ('Burger', 10.00) RETURNING id`)
	exec(`INSERT INTO menu_item_ingredients (menu_item_id, ingredient_id, quantity) VALUES ($1, $2, 1), ($1, $3, 1)`, c.burger, c.bun, c.beef)

	var group uuid.UUID
	insert(&group, `INSERT INTO addon_groups (name) VALUES ('Extras') RETURNING id`)
	insert(&c.extraCheese, `INSERT INTO addons (group_id, name, price) VALUES ($1, 'Extra Cheese', 1.50) RETURNING id`, group)
	exec(`INSERT INTO addon_ingredients (addon_id, ingredient_id, quantity) VALUES ($1, $2, 2)`, c.extraCheese, c.cheese)

	insert(&c.table, `INSERT INTO dining_tables (label) VALUES ('T1') RETURNING id`)
	return c
}

func createOwner(t *testing.T, ctx context.Context, pool *pgxpool.Pool, username, password string) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO staff (username, full_name, role, hashed_password) VALUES ($1, 'Owner', 'OWNER', $2)`,
		username, string(hashed))
	require.NoError(t, err)
}

func assertStock(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id uuid.UUID, want string) {
	t.Helper()
	var got string
	require.NoError(t, pool.QueryRow(ctx, `SELECT current_stock::text FROM ingredients WHERE id = $1`, id).Scan(&got))
	require.True(t, decimal.RequireFromString(got).Equal(decimal.RequireFromString(want)), "stock of %s: got %s, want %s", id, got, want)
}

func assertTable(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id uuid.UUID, want string) {
	t.Helper()
	var got string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM dining_tables WHERE id = $1`, id).Scan(&got))
	require.Equal(t, want, got)
}

func call(t *testing.T, server *httptest.Server, token, method, path string, body any, want int) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, want, resp.StatusCode, "%s %s: %v", method, path, out)
	return out
}
