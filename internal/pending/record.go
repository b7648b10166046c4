// Package pending implements deferred-commit records: in-memory handles that
// separate producing a result from persisting it, so background workers can
// write back into shared storage without holding a lock across slow calls.
package pending

import (
	"context"
	"errors"
	"fmt"
)

// Selector re-locates the target entity at confirm time. The boolean reports
// whether the entity still exists; a miss is not an error.
type Selector[T any] func(ctx context.Context) (T, bool, error)

// Fulfill merges a value into the entity. It must be pure: no I/O, no
// mutation of shared state outside the returned entity.
type Fulfill[T, V any] func(entity T, value V) T

// Persist writes the entity back to storage.
type Persist[T any] func(ctx context.Context, entity T) error

// SelectorRecord is the selector-bound deferred-commit variant. Confirm
// always operates on the current persisted state of the target, never on a
// snapshot taken at creation time: the selector re-reads the row, the
// fulfillment merges the value, and persist writes back. Two records
// targeting different attributes of concurrently mutated rows therefore do
// not lose each other's writes. Safe to confirm from any goroutine without
// external locking; re-confirming re-applies the merge against current state.
type SelectorRecord[T, V any] struct {
	selector Selector[T]
	fulfill  Fulfill[T, V]
	persist  Persist[T]
}

// NewSelectorRecord builds a selector-bound record from its three callables.
func NewSelectorRecord[T, V any](
	selector Selector[T],
	fulfill Fulfill[T, V],
	persist Persist[T],
) (*SelectorRecord[T, V], error) {
	if selector == nil || fulfill == nil || persist == nil {
		return nil, errors.New("selector, fulfill, and persist are all required")
	}
	return &SelectorRecord[T, V]{selector: selector, fulfill: fulfill, persist: persist}, nil
}

// MustNewSelectorRecord builds a selector-bound record and panics on invalid
// arguments. Use when the callables are statically known to be non-nil.
func MustNewSelectorRecord[T, V any](
	selector Selector[T],
	fulfill Fulfill[T, V],
	persist Persist[T],
) *SelectorRecord[T, V] {
	rec, err := NewSelectorRecord(selector, fulfill, persist)
	if err != nil {
		panic(fmt.Sprintf("pending: %v", err))
	}
	return rec
}

// Confirm applies the value to the current state of the target and persists
// it. If the selector finds no matching entity (deleted concurrently), the
// confirmation is a silent no-op.
func (r *SelectorRecord[T, V]) Confirm(ctx context.Context, value V) error {
	entity, ok, err := r.selector(ctx)
	if err != nil {
		return fmt.Errorf("select target: %w", err)
	}
	if !ok {
		return nil
	}
	if err := r.persist(ctx, r.fulfill(entity, value)); err != nil {
		return fmt.Errorf("persist target: %w", err)
	}
	return nil
}

// ReferenceRecord is the reference-bound deferred-commit variant: it holds a
// direct handle to the entity plus a setter for the attribute to fulfill.
// Confirming twice is idempotent (last write wins). Use only where no
// concurrent mutation of the entity is possible, such as ingestion previews
// that are not shared across workers.
type ReferenceRecord[T, V any] struct {
	entity  T
	set     func(T, V) T
	persist Persist[T]

	acceptFn func(context.Context, T) error
	rejectFn func(context.Context, T) error
}

// NewReferenceRecord builds a reference-bound record. The setter may be nil
// when Confirm should persist the entity unchanged.
func NewReferenceRecord[T, V any](
	entity T,
	set func(T, V) T,
	persist Persist[T],
) (*ReferenceRecord[T, V], error) {
	if persist == nil {
		return nil, errors.New("persist is required")
	}
	return &ReferenceRecord[T, V]{entity: entity, set: set, persist: persist}, nil
}

// Entity returns the held entity handle.
func (r *ReferenceRecord[T, V]) Entity() T {
	return r.entity
}

// Confirm sets the fulfillment attribute and persists the entity.
func (r *ReferenceRecord[T, V]) Confirm(ctx context.Context, value V) error {
	if r.set != nil {
		r.entity = r.set(r.entity, value)
	}
	if err := r.persist(ctx, r.entity); err != nil {
		return fmt.Errorf("persist entity: %w", err)
	}
	return nil
}

// OnAccept installs the entity-specific accept confirmation.
func (r *ReferenceRecord[T, V]) OnAccept(fn func(context.Context, T) error) {
	r.acceptFn = fn
}

// OnReject installs the entity-specific reject confirmation.
func (r *ReferenceRecord[T, V]) OnReject(fn func(context.Context, T) error) {
	r.rejectFn = fn
}

// Accept runs the installed accept confirmation.
func (r *ReferenceRecord[T, V]) Accept(ctx context.Context) error {
	if r.acceptFn == nil {
		return errors.New("no accept confirmation installed")
	}
	return r.acceptFn(ctx, r.entity)
}

// Reject runs the installed reject confirmation.
func (r *ReferenceRecord[T, V]) Reject(ctx context.Context) error {
	if r.rejectFn == nil {
		return errors.New("no reject confirmation installed")
	}
	return r.rejectFn(ctx, r.entity)
}
