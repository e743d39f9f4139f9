package watch

import "errors"

var (
	// ErrCapacityExceeded is returned by Watch when MaxSymbols are already watched.
	ErrCapacityExceeded = errors.New("watched symbol limit reached")

	// ErrInvalidSymbol is returned for an empty symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrNilCallback is returned by Watch when no PriceFunc is given.
	ErrNilCallback = errors.New("nil price callback")

	// ErrClosed is returned by Watch after Close.
	ErrClosed = errors.New("watch registry closed")
)
