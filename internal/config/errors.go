package config

import "errors"

// ErrInvalidConfig marks configuration values that fail validation.
var ErrInvalidConfig = errors.New("invalid config")
