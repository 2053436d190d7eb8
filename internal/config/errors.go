package config

import (
	"errors"
)

var (
	// ErrInvalidConfig marks a setting that parsed but cannot work, such as
	// a sql store without a dsn.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a source that could not be read or decoded.
	ErrLoadConfig = errors.New("load config failed")
)
