package enkf

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration covers bad inputs detected before any forecast runs:
	// dimension mismatches, a prior that is not counter-clockwise, or a
	// covariance that is not positive definite.
	ErrConfiguration = errors.New("invalid filter configuration")
	// ErrForecastFailure is wrapped by every MemberFailure.
	ErrForecastFailure = errors.New("forecast member failed")
	// ErrTotalForecastFailure is returned when no member produced a forecast.
	ErrTotalForecastFailure = errors.New("all forecast members failed")
	// ErrPhase is returned when step phases are called out of order.
	ErrPhase = errors.New("step phase out of order")
)

// MemberFailure records why one ensemble member has no forecast of its own.
// The member is backfilled with the mean of the successful members.
type MemberFailure struct {
	Member int
	Err    error
}

func (f MemberFailure) Error() string {
	return fmt.Sprintf("member %d: %v", f.Member, f.Err)
}

// Unwrap exposes both ErrForecastFailure and the underlying cause.
func (f MemberFailure) Unwrap() []error {
	return []error{ErrForecastFailure, f.Err}
}

// NumericalWarning reports that Py times its pseudo-inverse strayed from
// the identity by more than the configured tolerance. The step still
// completes.
type NumericalWarning struct {
	Residual  float64
	Tolerance float64
}

func (w *NumericalWarning) Error() string {
	return fmt.Sprintf("Py*pinv(Py) deviates from identity by %.3g (tolerance %.3g)", w.Residual, w.Tolerance)
}
