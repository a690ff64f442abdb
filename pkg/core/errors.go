package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// Error kinds. Detail errors below unwrap to one of these.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrConstraintViolation    = errors.New("constraint violation")
	ErrConvergenceFailure     = errors.New("convergence failure")
	ErrComputation            = errors.New("computation error")
	ErrUnderspecified         = errors.New("underspecified design")
	ErrDuplicateOutput        = errors.New("duplicate output")
	ErrUnknownQuantity        = errors.New("unknown quantity")
	ErrUnknownUnitProcessType = errors.New("unknown unit process type")
	ErrUnitMismatch           = units.ErrMismatch

	// ErrUndefined is returned by rules whose result is undefined for the
	// given inputs.
	ErrUndefined = errors.New("undefined result")
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// InvalidInputError reports a user-supplied value outside its declared bounds.
type InvalidInputError struct {
	Quantity string
	Value    float64
	Unit     string
	Side     Side
	Bound    float64
	Reason   string // set when the value is rejected for another reason
}

func (e *InvalidInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid input: %s: %s", e.Quantity, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s = %s %s is %s %s bound %s",
		e.Quantity, formatFloat(e.Value), e.Unit, relation(e.Side), e.Side, formatFloat(e.Bound))
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// ConstraintViolationError reports a derived value outside its bounds.
type ConstraintViolationError struct {
	Rule     string
	Quantity string
	Value    float64
	Unit     string
	Side     Side
	Bound    float64
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation: rule %q produced %s = %s %s, %s %s bound %s",
		e.Rule, e.Quantity, formatFloat(e.Value), e.Unit, relation(e.Side), e.Side, formatFloat(e.Bound))
}

func (e *ConstraintViolationError) Unwrap() error { return ErrConstraintViolation }

func relation(s Side) string {
	if s == SideLower {
		return "below"
	}
	return "above"
}

// ComputationError reports a rule that failed or produced a non-finite value.
type ComputationError struct {
	Rule   string
	Reason string
	Inputs map[string]float64
	Err    error
}

func (e *ComputationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "computation error: rule %q: %s", e.Rule, e.Reason)
	if len(e.Inputs) > 0 {
		names := make([]string, 0, len(e.Inputs))
		for name := range e.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString(" (")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", name, formatFloat(e.Inputs[name]))
		}
		b.WriteString(")")
	}
	return b.String()
}

func (e *ComputationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrComputation}
	}
	return []error{ErrComputation, e.Err}
}

// ConvergenceError reports a cyclic group that did not reach a fixed point.
type ConvergenceError struct {
	Group      []string // rule names
	Quantities []string
	Iterations int
	Residual   float64
	Cause      error // set when iteration stopped on a failed evaluation
}

func (e *ConvergenceError) Error() string {
	msg := fmt.Sprintf("convergence failure: group [%s] after %d iterations, residual %s",
		strings.Join(e.Group, ", "), e.Iterations, formatFloat(e.Residual))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConvergenceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrConvergenceFailure}
	}
	return []error{ErrConvergenceFailure, e.Cause}
}

// UnderspecifiedError lists every quantity that is neither supplied nor derivable.
type UnderspecifiedError struct {
	Missing []string
}

func (e *UnderspecifiedError) Error() string {
	return fmt.Sprintf("underspecified design: missing %s", strings.Join(e.Missing, ", "))
}

func (e *UnderspecifiedError) Unwrap() error { return ErrUnderspecified }

// DuplicateOutputError reports an output claimed by more than one rule.
type DuplicateOutputError struct {
	Output string
	Rules  []string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("duplicate output: %s is produced by rules %s", e.Output, strings.Join(e.Rules, ", "))
}

func (e *DuplicateOutputError) Unwrap() error { return ErrDuplicateOutput }

// UnknownQuantityError reports a reference to an undeclared quantity.
type UnknownQuantityError struct {
	Name    string
	Context string // e.g. `input of rule "velocity"`
}

func (e *UnknownQuantityError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("unknown quantity: %s", e.Name)
	}
	return fmt.Sprintf("unknown quantity: %s (%s)", e.Name, e.Context)
}

func (e *UnknownQuantityError) Unwrap() error { return ErrUnknownQuantity }

// UnknownTypeError reports a lookup of an unregistered unit process type.
type UnknownTypeError struct {
	Name      string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown unit process type: %q (catalog is empty)", e.Name)
	}
	return fmt.Sprintf("unknown unit process type: %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownUnitProcessType }

// Undefined returns an ErrUndefined error with a reason, for use by rules.
func Undefined(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUndefined, fmt.Sprintf(format, args...))
}
