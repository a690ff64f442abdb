package hclcatalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
)

// fileBlock is the top level of a catalog file.
type fileBlock struct {
	UnitProcesses []*unitProcessBlock `hcl:"unit_process,block" validate:"dive"`
}

type unitProcessBlock struct {
	Name        string           `hcl:"name,label" validate:"ident"`
	Description string           `hcl:"description,optional"`
	Uses        []string         `hcl:"uses,optional" validate:"dive,ident"`
	Quantities  []*quantityBlock `hcl:"quantity,block" validate:"dive"`
	Rules       []*ruleBlock     `hcl:"rule,block" validate:"dive"`
}

type quantityBlock struct {
	Name        string   `hcl:"name,label" validate:"ident"`
	Unit        string   `hcl:"unit" validate:"required"`
	Description string   `hcl:"description,optional"`
	Min         *float64 `hcl:"min,optional"`
	Max         *float64 `hcl:"max,optional"`
	Default     *float64 `hcl:"default,optional"`
	Guess       *float64 `hcl:"guess,optional"`
}

type ruleBlock struct {
	Name        string         `hcl:"name,label" validate:"ident"`
	Output      string         `hcl:"output" validate:"ident"`
	Description string         `hcl:"description,optional"`
	Expr        hcl.Expression `hcl:"expr,optional" validate:"-"`
	Script      string         `hcl:"script,optional" validate:"omitempty,contains=."`
	Inputs      []string       `hcl:"inputs,optional" validate:"dive,ident"`
	Min         *float64       `hcl:"min,optional"`
	Max         *float64       `hcl:"max,optional"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var blockValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
	return v
}

// validateBlocks checks the decoded file against its struct tags and reports
// every failure.
func validateBlocks(path string, f *fileBlock) error {
	err := blockValidate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%s: %w", path, err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: %s: %s", path, fieldPath(fe.Namespace()), describe(fe)))
	}
	return errors.Join(errs...)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	_, rest, found := strings.Cut(ns, ".")
	if !found {
		return ns
	}
	return rest
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ident":
		return fmt.Sprintf("%q is not a valid name", fe.Value())
	case "contains":
		return fmt.Sprintf("%q must be a namespace.function reference", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
