/*
errors.go - Error types for the waterfall package

PURPOSE:
  The engine itself has no error paths. Errors here belong to the
  boundary: parameter validation, parsing wire values, and the lookups the
  service layer does around the engine.

USAGE:
  if err := p.Validate(); err != nil {
      var ipe *waterfall.InvalidParameterError
      if errors.As(err, &ipe) {
          fmt.Println(ipe.Field)
      }
  }
*/
package waterfall

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidParameter is returned when a parameter is outside its documented range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnknownRegime is returned when a regime name is not recognised.
	ErrUnknownRegime = errors.New("unknown regime")

	// ErrUnknownAccrual is returned when an accrual schedule name is not recognised.
	ErrUnknownAccrual = errors.New("unknown accrual schedule")

	// ErrUnknownAxis is returned when a sweep axis is not recognised.
	ErrUnknownAxis = errors.New("unknown sweep axis")

	// ErrFundNotFound is returned when referenced fund terms don't exist.
	ErrFundNotFound = errors.New("fund not found")

	// ErrRunNotFound is returned when a calculation run doesn't exist.
	ErrRunNotFound = errors.New("run not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidParameterError names the offending field.
type InvalidParameterError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// UnknownValueError reports an unrecognised enum value on the wire.
type UnknownValueError struct {
	Kind     string
	Value    string
	sentinel error
}

func (e *UnknownValueError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Value)
}

func (e *UnknownValueError) Unwrap() error {
	return e.sentinel
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidParameter) ||
		errors.Is(err, ErrUnknownRegime) ||
		errors.Is(err, ErrUnknownAccrual) ||
		errors.Is(err, ErrUnknownAxis)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFundNotFound) ||
		errors.Is(err, ErrRunNotFound)
}
