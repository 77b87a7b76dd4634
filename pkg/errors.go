package pkg

import "github.com/pkg/errors"

var (
	// ErrKeyNotFound is returned when a key doesn't exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExists is returned when inserting a key that is already stored
	ErrKeyExists = errors.New("key already exists")

	// ErrContextCanceled is returned when the context is canceled
	ErrContextCanceled = errors.New("context canceled")

	// ErrStorageUnavailable is returned when storage is closed
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTimeout is returned by a receive that saw no message in time.
	// A zero-length datagram is reported the same way.
	ErrTimeout = errors.New("receive timeout")

	// ErrMalformedPayload is returned when an inbound payload cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrTransportClosed is returned by a transport after Close
	ErrTransportClosed = errors.New("transport closed")
)
