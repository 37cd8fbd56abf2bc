package onlinestore

import (
	"errors"
	"fmt"
)

var (
	// ErrFeatureViewNotConfigured is returned when a feature view has no
	// entry under feature_views.
	ErrFeatureViewNotConfigured = errors.New("feature view not configured")
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConfigError reports a configuration problem scoped to one feature view.
type ConfigError struct {
	FeatureView string
	Err         error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("feature view %q: %v", e.FeatureView, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
