package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/enum"
	"github.com/kiwari-pos/engine/internal/inventory"
	"go.uber.org/zap"
)

// Store defines the DB methods needed to append audit entries.
// Satisfied by *database.Queries (and its WithTx variant).
type Store interface {
	CreateAuditLog(ctx context.Context, arg database.CreateAuditLogParams) (int64, error)
}

// Trail appends entries to the audit log. Entries are never updated.
type Trail struct {
	store  Store
	logger *zap.Logger
}

func NewTrail(store Store, logger *zap.Logger) *Trail {
	return &Trail{store: store, logger: logger}
}

type stockValues struct {
	CurrentStock string `json:"current_stock"`
	Unit         string `json:"unit,omitempty"`
	Delta        string `json:"delta,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// StockChanged records one applied ledger movement, tagged with the order
// that caused it.
func (t *Trail) StockChanged(ctx context.Context, orderID, actor uuid.UUID, m inventory.Movement, reason string) error {
	action := enum.AuditActionStockIncrement
	if m.Delta.IsNegative() {
		action = enum.AuditActionStockDecrement
	}
	oldValues, err := json.Marshal(stockValues{CurrentStock: m.Before.String(), Unit: m.Unit})
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := json.Marshal(stockValues{
		CurrentStock: m.After.String(),
		Unit:         m.Unit,
		Delta:        m.Delta.String(),
		Reason:       reason,
	})
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}

	_, err = t.store.CreateAuditLog(ctx, database.CreateAuditLogParams{
		Action:    action,
		TableName: enum.AuditTableIngredients,
		RecordID:  pgUUID(m.IngredientID),
		OrderID:   pgUUID(orderID),
		OldValues: oldValues,
		NewValues: newValues,
		Detail:    pgtype.Text{String: m.Name, Valid: m.Name != ""},
		ActorID:   pgUUID(actor),
	})
	if err != nil {
		return fmt.Errorf("audit stock change: %w", err)
	}
	return nil
}

type statusValues struct {
	Status database.OrderStatus `json:"status"`
}

// StatusChanged records an order status transition.
func (t *Trail) StatusChanged(ctx context.Context, orderID, actor uuid.UUID, from, to database.OrderStatus) error {
	oldValues, err := json.Marshal(statusValues{Status: from})
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := json.Marshal(statusValues{Status: to})
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}

	_, err = t.store.CreateAuditLog(ctx, database.CreateAuditLogParams{
		Action:    enum.AuditActionStatusChange,
		TableName: enum.AuditTableOrders,
		RecordID:  pgUUID(orderID),
		OrderID:   pgUUID(orderID),
		OldValues: oldValues,
		NewValues: newValues,
		ActorID:   pgUUID(actor),
	})
	if err != nil {
		return fmt.Errorf("audit status change: %w", err)
	}
	return nil
}

// FailureEntry describes a rolled back engine operation.
type FailureEntry struct {
	OrderID   uuid.UUID
	Actor     uuid.UUID
	Operation string
	// Progress says how far the operation got before it failed, e.g.
	// "restored 2 of 5 ingredients".
	Progress string
	Err      error
}

type failureValues struct {
	Operation string `json:"operation"`
	Progress  string `json:"progress,omitempty"`
	Error     string `json:"error"`
}

// Failure records a rolled back operation so operators can reconcile. It must
// be written outside the failed transaction.
func (t *Trail) Failure(ctx context.Context, e FailureEntry) error {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	newValues, err := json.Marshal(failureValues{Operation: e.Operation, Progress: e.Progress, Error: msg})
	if err != nil {
		return fmt.Errorf("marshal failure values: %w", err)
	}

	_, err = t.store.CreateAuditLog(ctx, database.CreateAuditLogParams{
		Action:    enum.AuditActionTransactionFailed,
		TableName: enum.AuditTableOrders,
		RecordID:  pgUUID(e.OrderID),
		OrderID:   pgUUID(e.OrderID),
		NewValues: newValues,
		Detail:    pgtype.Text{String: e.Operation + ": " + msg, Valid: true},
		ActorID:   pgUUID(e.Actor),
	})
	if err != nil {
		return fmt.Errorf("audit failure: %w", err)
	}
	t.logger.Error("engine operation rolled back",
		zap.String("order_id", e.OrderID.String()),
		zap.String("operation", e.Operation),
		zap.String("progress", e.Progress),
		zap.Error(e.Err),
	)
	return nil
}

// pgUUID maps uuid.Nil to NULL.
func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}
