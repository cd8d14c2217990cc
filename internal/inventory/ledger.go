package inventory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrIngredientNotFound = errors.New("ingredient not found")
	ErrNegativeAmount     = errors.New("stock adjustment amount must not be negative")
)

// Store defines the DB methods the ledger needs.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	AdjustIngredientStock(ctx context.Context, arg database.AdjustIngredientStockParams) (database.AdjustIngredientStockRow, error)
	ListIngredientsByIDs(ctx context.Context, ids []string) ([]database.Ingredient, error)
}

// Requirement is an amount of one ingredient needed by an operation.
type Requirement struct {
	IngredientID uuid.UUID
	Quantity     decimal.Decimal
}

// Movement describes one applied stock change.
type Movement struct {
	IngredientID uuid.UUID
	Name         string
	Unit         string
	Delta        decimal.Decimal
	Before       decimal.Decimal
	After        decimal.Decimal
}

// Warning reports a shortfall. It never blocks a sale.
type Warning struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
}

// Ledger mutates ingredient stock through whatever DBTX its store was built
// on, normally the caller's transaction.
type Ledger struct {
	store  Store
	logger *zap.Logger
}

func NewLedger(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Decrement removes amount from stock unconditionally. When the result is
// negative a Warning is returned alongside the movement.
func (l *Ledger) Decrement(ctx context.Context, ingredientID uuid.UUID, amount decimal.Decimal) (Movement, *Warning, error) {
	if amount.IsNegative() {
		return Movement{}, nil, ErrNegativeAmount
	}
	m, minimum, err := l.adjust(ctx, ingredientID, amount.Neg())
	if err != nil {
		return Movement{}, nil, err
	}

	var w *Warning
	if m.After.IsNegative() {
		w = &Warning{
			IngredientID: m.IngredientID,
			Name:         m.Name,
			Unit:         m.Unit,
			Required:     amount,
			Available:    m.Before,
		}
		l.logger.Warn("stock went negative",
			zap.String("ingredient_id", m.IngredientID.String()),
			zap.String("ingredient", m.Name),
			zap.String("stock_before", m.Before.String()),
			zap.String("stock_after", m.After.String()),
		)
	} else if m.After.LessThan(minimum) {
		l.logger.Info("stock below minimum",
			zap.String("ingredient_id", m.IngredientID.String()),
			zap.String("ingredient", m.Name),
			zap.String("stock_after", m.After.String()),
			zap.String("minimum_stock", minimum.String()),
		)
	}
	return m, w, nil
}

// Increment adds amount back to stock.
func (l *Ledger) Increment(ctx context.Context, ingredientID uuid.UUID, amount decimal.Decimal) (Movement, error) {
	if amount.IsNegative() {
		return Movement{}, ErrNegativeAmount
	}
	m, _, err := l.adjust(ctx, ingredientID, amount)
	return m, err
}

func (l *Ledger) adjust(ctx context.Context, ingredientID uuid.UUID, delta decimal.Decimal) (Movement, decimal.Decimal, error) {
	row, err := l.store.AdjustIngredientStock(ctx, database.AdjustIngredientStockParams{
		ID:    ingredientID,
		Delta: database.ToNumeric(delta),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, decimal.Zero, fmt.Errorf("%w: %s", ErrIngredientNotFound, ingredientID)
		}
		return Movement{}, decimal.Zero, fmt.Errorf("adjust ingredient %s: %w", ingredientID, err)
	}

	after := database.ToDecimal(row.CurrentStock)
	return Movement{
		IngredientID: row.ID,
		Name:         row.Name,
		Unit:         row.Unit,
		Delta:        delta,
		Before:       after.Sub(delta),
		After:        after,
	}, database.ToDecimal(row.MinimumStock), nil
}

// CheckAvailability compares requirements against current stock without
// mutating anything. Requirements are aggregated per ingredient first.
// Unknown ingredients are reported as ErrIngredientNotFound.
func (l *Ledger) CheckAvailability(ctx context.Context, reqs []Requirement) ([]Warning, error) {
	agg := Aggregate(reqs)
	if len(agg) == 0 {
		return nil, nil
	}

	ids := make([]string, len(agg))
	for i, r := range agg {
		ids[i] = r.IngredientID.String()
	}
	rows, err := l.store.ListIngredientsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	byID := make(map[uuid.UUID]database.Ingredient, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	var warnings []Warning
	for _, r := range agg {
		ing, ok := byID[r.IngredientID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrIngredientNotFound, r.IngredientID)
		}
		stock := database.ToDecimal(ing.CurrentStock)
		if stock.LessThan(r.Quantity) {
			warnings = append(warnings, Warning{
				IngredientID: ing.ID,
				Name:         ing.Name,
				Unit:         ing.Unit,
				Required:     r.Quantity,
				Available:    stock,
			})
		}
	}
	return warnings, nil
}

// Aggregate sums requirements per ingredient and drops zero totals. The
// result is sorted by ingredient id so concurrent transactions lock stock
// rows in the same order.
func Aggregate(reqs []Requirement) []Requirement {
	index := make(map[uuid.UUID]int, len(reqs))
	var out []Requirement
	for _, r := range reqs {
		if i, ok := index[r.IngredientID]; ok {
			out[i].Quantity = out[i].Quantity.Add(r.Quantity)
			continue
		}
		index[r.IngredientID] = len(out)
		out = append(out, r)
	}

	n := 0
	for _, r := range out {
		if !r.Quantity.IsZero() {
			out[n] = r
			n++
		}
	}
	out = out[:n]
	slices.SortFunc(out, func(a, b Requirement) int {
		return bytes.Compare(a.IngredientID[:], b.IngredientID[:])
	})
	return out
}
