package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/HSouheill/barrim_mlm/models"
)

// storageError marks a backend failure as ErrStorageUnavailable while keeping
// the driver error as its only Unwrap target. The Mongo transaction helper
// walks single-Unwrap chains for retry labels, so the driver error must stay
// reachable that way.
type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.op, models.ErrStorageUnavailable, e.err)
}

func (e *storageError) Unwrap() error { return e.err }

func (e *storageError) Is(target error) bool { return target == models.ErrStorageUnavailable }

func unavailable(op string, err error) error {
	return &storageError{op: op, err: err}
}

// mongoError maps a driver error onto the store taxonomy.
func mongoError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case errors.Is(err, context.Canceled),
		errors.Is(err, mongo.ErrClientDisconnected),
		mongo.IsTimeout(err),
		mongo.IsNetworkError(err):
		return unavailable(op, err)
	}
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError") {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// sqlError maps a database/sql error onto the store taxonomy.
func sqlError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNoRows(err) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || isConnError(err) {
		return unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
