package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the barcode or warehouse does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable indicates the remote store could not be reached.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrInvalidInput indicates a rejected value, before any state changed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflictPending indicates a confirmation is outstanding for the item.
	ErrConflictPending = errors.New("confirmation pending")
	// ErrDefaultWarehouse indicates an attempt to delete the default warehouse.
	ErrDefaultWarehouse = errors.New("default warehouse cannot be deleted")
	// ErrNoSession indicates the engine has not been initialised for a user.
	ErrNoSession = errors.New("no active session")
)

// InvalidInput wraps ErrInvalidInput with a human-readable reason.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a human-readable reason.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Unavailable wraps a remote failure into ErrUnavailable. Errors that already are
// ErrUnavailable are returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// ConflictPending wraps ErrConflictPending with the item the confirmation blocks.
func ConflictPending(p PendingConfirmation) error {
	return fmt.Errorf("%w: %s in warehouse %s awaits confirmation of %d", ErrConflictPending, p.Barcode, p.WarehouseID, p.ProposedValue)
}
