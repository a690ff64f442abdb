package api

import (
	"errors"
	"net/http"

	"github.com/leapstack-labs/unitdesign/pkg/core"
)

// ErrorBody is the JSON form of a failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// errorKinds maps error kinds to HTTP status, checked in order.
var errorKinds = []struct {
	err    error
	kind   string
	status int
}{
	{core.ErrUnknownUnitProcessType, "unknown_unit_process_type", http.StatusNotFound},
	{core.ErrUnknownQuantity, "unknown_quantity", http.StatusUnprocessableEntity},
	{core.ErrUnitMismatch, "unit_mismatch", http.StatusUnprocessableEntity},
	{core.ErrUnderspecified, "underspecified", http.StatusUnprocessableEntity},
	{core.ErrInvalidInput, "invalid_input", http.StatusUnprocessableEntity},
	{core.ErrConstraintViolation, "constraint_violation", http.StatusUnprocessableEntity},
	// A cycle stopped by a failed evaluation reports the evaluation.
	{core.ErrComputation, "computation", http.StatusUnprocessableEntity},
	{core.ErrConvergenceFailure, "convergence_failure", http.StatusUnprocessableEntity},
}

// classify returns the HTTP status and kind of err.
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, "internal"
}

func errorBody(err error) ErrorBody {
	_, kind := classify(err)
	return ErrorBody{Error: err.Error(), Kind: kind}
}
