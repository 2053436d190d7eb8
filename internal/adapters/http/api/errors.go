package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// WrapKind tags err with kind so errors.Is matches either.
func WrapKind(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}
