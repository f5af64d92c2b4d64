package router

import (
	"fmt"

	"github.com/juju/errors"
)

// ErrConfiguration classifies programming or configuration mistakes: a router
// without a backend, a backend registered without a name and similar. These
// errors are never recovered from by the router.
const ErrConfiguration = errors.ConstError("router configuration error")

// ConfigError reports a configuration mistake for a single router.
type ConfigError struct {
	Router  string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Router == "" {
		return "router configuration error: " + e.Message
	}
	return "router configuration error for " + e.Router + ": " + e.Message
}

// Is lets errors.Is match any ConfigError against ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErrorf(router, format string, args ...any) error {
	return &ConfigError{Router: router, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
