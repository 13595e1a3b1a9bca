package audience

import "errors"

// Sentinel errors for the audience service layer.
var (
	ErrTenantNotFound = errors.New("organization not found")
	ErrFeatureLocked  = errors.New("feature not available on current plan")
	ErrUnknownChannel = errors.New("unknown channel")
)
