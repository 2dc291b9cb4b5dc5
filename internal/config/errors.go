package config

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid config")

func errMissing(key string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalid, key)
}

func errInvalid(key, value string) error {
	return fmt.Errorf("%w: %s: unsupported value %q", ErrInvalid, key, value)
}
