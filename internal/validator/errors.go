package validator

import "fmt"

// ViolationError is the typed, expected control-flow signal raised when
// the enforcement decision is "block". It carries the full validation
// result; the integration layer catches it with errors.As and turns it
// into a structured 403 rejection. It is never a bug.
type ViolationError struct {
	Reason string
	Result *Result
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("governance violation: %s (%d critical, %d high)",
		e.Reason, len(e.Result.Critical), len(e.Result.High))
}
