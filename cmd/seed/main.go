package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/engine/internal/auth"
	"github.com/kiwari-pos/engine/internal/config"
	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type ingredientSeed struct {
	name    string
	unit    string
	stock   string
	minimum string
	cost    string
}

type recipeSeed struct {
	name    string
	price   string
	recipes map[string]string // ingredient name -> quantity per unit
}

var (
	demoIngredients = []ingredientSeed{
		{"Burger Bun", "pcs", "200", "20", "0.40"},
		{"Beef Patty", "pcs", "120", "15", "1.80"},
		{"Cheddar Slice", "slice", "300", "40", "0.25"},
		{"Bacon Strip", "strip", "150", "20", "0.35"},
		{"Potato", "g", "20000", "2000", "0.01"},
		{"Fry Oil", "ml", "10000", "1000", "0.01"},
	}
	demoMenu = []recipeSeed{
		{"Classic Burger", "10.00", map[string]string{"Burger Bun": "1", "Beef Patty": "1"}},
		{"Cheeseburger", "11.50", map[string]string{"Burger Bun": "1", "Beef Patty": "1", "Cheddar Slice": "1"}},
		{"French Fries", "3.50", map[string]string{"Potato": "150", "Fry Oil": "20"}},
	}
	demoAddons = []recipeSeed{
		{"Extra Cheese", "1.50", map[string]string{"Cheddar Slice": "2"}},
		{"Bacon", "2.00", map[string]string{"Bacon Strip": "2"}},
		{"Extra Patty", "3.00", map[string]string{"Beef Patty": "1"}},
	}
	demoTables = []string{"T1", "T2", "T3", "T4"}
)

func main() {
	username := flag.String("username", "", "Owner username")
	password := flag.String("password", "", "Owner password")
	name := flag.String("name", "", "Owner full name")
	catalog := flag.Bool("catalog", true, "Seed the demo catalog")
	flag.Parse()

	if *username == "" {
		*username = envOr("SEED_USERNAME", "owner")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *name == "" {
		*name = envOr("SEED_NAME", "Owner")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if *password == "" {
		*password = "password123"
		log.Warn("using default password, change it immediately outside development")
	}

	if err := seed(context.Background(), cfg, log, *username, *password, *name, *catalog); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func seed(ctx context.Context, cfg *config.Config, log *zap.Logger, username, password, name string, catalog bool) error {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	// Owner and catalog land together or not at all.
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ownerID, err := seedOwner(ctx, tx, log, username, password, name)
	if err != nil {
		return err
	}
	if catalog {
		if err := seedCatalog(ctx, tx, log); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, ownerID, enum.StaffRoleOwner, auth.DefaultTTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	log.Info("seed completed", zap.String("owner_id", ownerID.String()))
	fmt.Println(token)
	return nil
}

// existing returns the id matched by query, or uuid.Nil when there is none.
func existing(ctx context.Context, tx pgx.Tx, query string, args ...any) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	return id, err
}

func seedOwner(ctx context.Context, tx pgx.Tx, log *zap.Logger, username, password, name string) (uuid.UUID, error) {
	id, err := existing(ctx, tx, `SELECT id FROM staff WHERE username = $1`, username)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check owner: %w", err)
	}
	if id != uuid.Nil {
		log.Info("owner already exists, skipping", zap.String("username", username))
		return id, nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return uuid.Nil, fmt.Errorf("hash password: %w", err)
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO staff (username, full_name, role, hashed_password)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		username, name, enum.StaffRoleOwner, string(hashed),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert owner: %w", err)
	}
	log.Info("created owner", zap.String("username", username))
	return id, nil
}

func seedCatalog(ctx context.Context, tx pgx.Tx, log *zap.Logger) error {
	ingredients := make(map[string]uuid.UUID, len(demoIngredients))
	for _, in := range demoIngredients {
		id, err := existing(ctx, tx, `SELECT id FROM ingredients WHERE name = $1`, in.name)
		if err != nil {
			return fmt.Errorf("check ingredient %s: %w", in.name, err)
		}
		if id == uuid.Nil {
			err = tx.QueryRow(ctx,
				`INSERT INTO ingredients (name, unit, current_stock, minimum_stock, cost_per_unit)
				 VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric)
				 RETURNING id`,
				in.name, in.unit, in.stock, in.minimum, in.cost,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("insert ingredient %s: %w", in.name, err)
			}
		}
		ingredients[in.name] = id
	}

	for _, m := range demoMenu {
		err := seedRecipe(ctx, tx, ingredients, m,
			`SELECT id FROM menu_items WHERE name = $1`,
			`INSERT INTO menu_items (name, price) VALUES ($1, $2::numeric) RETURNING id`,
			`INSERT INTO menu_item_ingredients (menu_item_id, ingredient_id, quantity) VALUES ($1, $2, $3::numeric)`,
		)
		if err != nil {
			return err
		}
	}

	groupID, err := existing(ctx, tx, `SELECT id FROM addon_groups WHERE name = $1`, "Burger Extras")
	if err != nil {
		return fmt.Errorf("check addon group: %w", err)
	}
	if groupID == uuid.Nil {
		if err := tx.QueryRow(ctx, `INSERT INTO addon_groups (name) VALUES ($1) RETURNING id`, "Burger Extras").Scan(&groupID); err != nil {
			return fmt.Errorf("insert addon group: %w", err)
		}
	}
	for _, a := range demoAddons {
		err := seedRecipe(ctx, tx, ingredients, a,
			`SELECT id FROM addons WHERE name = $1`,
			`INSERT INTO addons (name, price, group_id) VALUES ($1, $2::numeric, $3) RETURNING id`,
			`INSERT INTO addon_ingredients (addon_id, ingredient_id, quantity) VALUES ($1, $2, $3::numeric)`,
			groupID,
		)
		if err != nil {
			return err
		}
	}

	for _, label := range demoTables {
		if _, err := tx.Exec(ctx, `INSERT INTO dining_tables (label) VALUES ($1) ON CONFLICT (label) DO NOTHING`, label); err != nil {
			return fmt.Errorf("insert table %s: %w", label, err)
		}
	}

	log.Info("demo catalog seeded",
		zap.Int("ingredients", len(demoIngredients)),
		zap.Int("menu_items", len(demoMenu)),
		zap.Int("addons", len(demoAddons)),
		zap.Int("tables", len(demoTables)),
	)
	return nil
}

// seedRecipe inserts a priced catalog entry and its recipe links unless an
// entry with the same name already exists.
func seedRecipe(ctx context.Context, tx pgx.Tx, ingredients map[string]uuid.UUID, r recipeSeed, check, insert, link string, extra ...any) error {
	id, err := existing(ctx, tx, check, r.name)
	if err != nil {
		return fmt.Errorf("check %s: %w", r.name, err)
	}
	if id != uuid.Nil {
		return nil
	}
	if err := tx.QueryRow(ctx, insert, append([]any{r.name, r.price}, extra...)...).Scan(&id); err != nil {
		return fmt.Errorf("insert %s: %w", r.name, err)
	}
	for ingredient, qty := range r.recipes {
		if _, err := tx.Exec(ctx, link, id, ingredients[ingredient], qty); err != nil {
			return fmt.Errorf("link %s to %s: %w", r.name, ingredient, err)
		}
	}
	return nil
}
