// Package database provides keyed document tables for the bot's user and
// redeem-code records, backed by JSON files, MongoDB or Redis.
package database

import (
	"context"
	"errors"
)

var (
	// ErrSkipWrite may be returned by an UpdateFunc to leave the stored
	// record untouched. Update then returns the current value and no error.
	ErrSkipWrite = errors.New("skip write")

	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("update conflict")
)

// UpdateFunc receives the current record (zero value when absent) and
// returns the record to store.
type UpdateFunc[T any] func(current T, exists bool) (T, error)

// Table is a collection of records of type T addressed by string key.
type Table[T any] interface {
	// Get returns the record stored under key and whether it exists.
	Get(ctx context.Context, key string) (T, bool, error)

	// Put stores value under key, replacing any previous record.
	Put(ctx context.Context, key string, value T) error

	// Update atomically applies fn to the record under key. An error from
	// fn other than ErrSkipWrite aborts the update and is returned as is.
	Update(ctx context.Context, key string, fn UpdateFunc[T]) (T, error)

	// Keys lists every key in the table.
	Keys(ctx context.Context) ([]string, error)
}

// maxUpdateAttempts bounds optimistic retries in the Mongo and Redis tables.
const maxUpdateAttempts = 8
