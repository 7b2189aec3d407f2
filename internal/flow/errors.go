package flow

import "errors"

var (
	// ErrUnknownCategory is returned when an update references a category id
	// that is not in the configured category table. This indicates a
	// config/data mismatch and is not retried.
	ErrUnknownCategory = errors.New("unknown category id")

	// ErrShapeMismatch is returned when point, flow and class arrays for a
	// sample disagree on point count, or when an index is outside the
	// accumulator's tensor shape.
	ErrShapeMismatch = errors.New("array shapes do not match")

	// ErrNoSamplesProcessed is returned when a report is requested but no
	// forward passes were recorded during the epoch.
	ErrNoSamplesProcessed = errors.New("no samples processed")

	// ErrValueOutOfRange is returned by a strict accumulator when a speed or
	// error value falls outside all configured bucket ranges. Non-strict
	// accumulators silently drop such points instead.
	ErrValueOutOfRange = errors.New("value outside all bucket ranges")
)
