package trust

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing app config, delegation, or address record.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable reports that the durable backend could not be reached.
// Core-metric reads propagate it: the core score is load-bearing for
// financial decisions and must not be silently defaulted.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError reports malformed registration or update input. It is
// raised before any mutation takes place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Policy violation codes.
const (
	PolicySelfDelegation   = "self_delegation"
	PolicyDirectCycle      = "direct_cycle"
	PolicyLowTrust         = "delegator_below_threshold"
	PolicyStaleEnvironment = "environmental_data_too_old"
)

// PolicyError reports a rejected operation that violates a trust policy.
// No partial state change accompanies it.
type PolicyError struct {
	Code   string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Code, e.Reason)
}

// IsPolicy reports whether err is a PolicyError.
func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}
