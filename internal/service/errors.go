package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the services wraps exactly one of them.
var (
	ErrValidationFailed  = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error codes carried to callers alongside the kind.
const (
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
	CodeItemNotFound      = "ORDER_ITEM_NOT_FOUND"
	CodeMenuItemNotFound  = "MENU_ITEM_NOT_FOUND"
	CodeAddonNotFound     = "ADDON_NOT_FOUND"
	CodeIngredientMissing = "INGREDIENT_NOT_FOUND"
	CodeTableNotFound     = "TABLE_NOT_FOUND"
	CodeAddonAlreadyAdded = "ADDON_ALREADY_ADDED"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeOrderClosed       = "ORDER_CLOSED"
	CodeTransactionFailed = "TRANSACTION_FAILED"
)

// codedError is a specific error with a stable code that unwraps to its kind.
type codedError struct {
	code string
	msg  string
	kind error
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Unwrap() error { return e.kind }

func coded(kind error, code, msg string) error {
	return &codedError{code: code, msg: msg, kind: kind}
}

// Errors returned by the order and add-on services.
var (
	ErrEmptyItems        = coded(ErrValidationFailed, CodeValidationFailed, "items are required")
	ErrInvalidOrderType  = coded(ErrValidationFailed, CodeValidationFailed, "invalid order_type")
	ErrInvalidQuantity   = coded(ErrValidationFailed, CodeValidationFailed, "quantity must be > 0")
	ErrInvalidStatus     = coded(ErrValidationFailed, CodeValidationFailed, "invalid status")
	ErrInvalidAmount     = coded(ErrValidationFailed, CodeValidationFailed, "invalid amount")
	ErrEmptySelections   = coded(ErrValidationFailed, CodeValidationFailed, "at least one add-on selection is required")
	ErrDuplicateSelected = coded(ErrValidationFailed, CodeValidationFailed, "add-on selected more than once")

	ErrOrderNotFound      = coded(ErrNotFound, CodeOrderNotFound, "order not found")
	ErrOrderItemNotFound  = coded(ErrNotFound, CodeItemNotFound, "order item not found")
	ErrMenuItemNotFound   = coded(ErrNotFound, CodeMenuItemNotFound, "menu item not found or inactive")
	ErrAddonNotFound      = coded(ErrNotFound, CodeAddonNotFound, "add-on not found or inactive")
	ErrIngredientNotFound = coded(ErrNotFound, CodeIngredientMissing, "ingredient not found")
	ErrTableNotFound      = coded(ErrNotFound, CodeTableNotFound, "table not found")

	ErrAddonAlreadyAdded = coded(ErrConflict, CodeAddonAlreadyAdded, "add-on already attached to this item")

	ErrOrderClosed = coded(ErrInvalidTransition, CodeOrderClosed, "order is completed or cancelled")
)

// detailed attaches context to a specific error without losing its code.
func detailed(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
}

// KindOf returns the kind sentinel an error wraps. Unclassified errors are
// reported as ErrTransactionFailed.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidationFailed,
		ErrNotFound,
		ErrConflict,
		ErrInvalidTransition,
		ErrInsufficientStock,
		ErrTransactionFailed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrTransactionFailed
}

// CodeOf returns the stable code for an error.
func CodeOf(err error) string {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch KindOf(err) {
	case ErrValidationFailed:
		return CodeValidationFailed
	case ErrNotFound:
		return CodeNotFound
	case ErrConflict:
		return CodeConflict
	case ErrInvalidTransition:
		return CodeInvalidTransition
	}
	return CodeTransactionFailed
}

// classify wraps unclassified errors as ErrTransactionFailed so every error
// leaving the service carries a kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidationFailed, ErrNotFound, ErrConflict, ErrInvalidTransition, ErrTransactionFailed} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
}
