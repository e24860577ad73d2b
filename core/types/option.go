package types

import (
	"bytes"
	"encoding/json"
)

// Option models a value that may be absent. Presence is part of the contract
// state (an agreement oracle, a dispute resolution) so it is kept explicit
// rather than hidden behind a nil pointer.
type Option[T any] struct {
	Value T
	Valid bool
}

// Some wraps v as a present value.
func Some[T any](v T) Option[T] { return Option[T]{Value: v, Valid: true} }

// None returns an absent value.
func None[T any]() Option[T] { return Option[T]{} }

// Get returns the wrapped value and whether it is present.
func (o Option[T]) Get() (T, bool) { return o.Value, o.Valid }

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.Valid }

// OrElse returns the wrapped value or def when absent.
func (o Option[T]) OrElse(def T) T {
	if o.Valid {
		return o.Value
	}
	return def
}

// MarshalJSON encodes absent values as null.
func (o Option[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON decodes null as absent.
func (o *Option[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		o.Valid = false
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = v
	o.Valid = true
	return nil
}
