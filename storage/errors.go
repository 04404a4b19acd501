package storage

import (
	"errors"

	"github.com/nats-io/nats.go/jetstream"
)

// Common storage errors.
var (
	// ErrConflict is returned when a compare-and-swap update keeps losing
	// to concurrent writers.
	ErrConflict = errors.New("concurrent update conflict")
)

// wrongLastSequence is the JetStream error code for a revision mismatch.
const wrongLastSequence = 10071

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == wrongLastSequence
}
