package domain

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrProtocol marks an inbound payload that could not be decoded or validated.
	ErrProtocol = errors.New("protocol error")

	// ErrStorage marks a failure of the durable store. Callers drop the
	// affected message and keep the connection open.
	ErrStorage = errors.New("storage error")
)
