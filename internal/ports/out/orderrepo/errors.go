package orderrepo

import "errors"

var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrAlreadyExists indicates an order already exists with the provided ID.
	ErrAlreadyExists = errors.New("order already exists")

	// ErrStaleStatus indicates a status transition lost a race: the order
	// is no longer in the status the caller read.
	ErrStaleStatus = errors.New("order status changed concurrently")
)
