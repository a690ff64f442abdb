package engine

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/unitdesign/pkg/core"
	"github.com/leapstack-labs/unitdesign/pkg/units"
)

// ParseValue parses "0.05 m^3/s", "200mm" or a bare number. A bare number
// carries no unit and is read in the quantity's declared unit.
func ParseValue(text string) (units.Measure, error) {
	text = strings.TrimSpace(text)
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return units.Measure{Value: v}, nil
	}
	return units.ParseMeasure(text)
}

// ParseAssignments parses name=value arguments such as "flow=50 L/s".
func ParseAssignments(args []string) (map[string]units.Measure, error) {
	out := make(map[string]units.Measure, len(args))
	var errs []error
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			errs = append(errs, fmt.Errorf("input %q: want name=value", arg))
			continue
		}
		if _, dup := out[name]; dup {
			errs = append(errs, fmt.Errorf("input %q given twice", name))
			continue
		}
		m, err := ParseValue(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("input %s: %w", name, err))
			continue
		}
		out[name] = m
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, errors.Join(errs...))
	}
	return out, nil
}

// ParseGuesses parses name=number arguments in declared units.
func ParseGuesses(args []string) (map[string]float64, error) {
	out := make(map[string]float64, len(args))
	var errs []error
	for _, arg := range args {
		name, text, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("guess %q: want name=number", arg))
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("guess %s: %w", name, err))
			continue
		}
		out[strings.TrimSpace(name)] = v
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, errors.Join(errs...))
	}
	return out, nil
}

// Inputs is a name to value map as written in YAML or JSON request bodies.
// Values are numbers in declared units or strings with a unit.
type Inputs map[string]any

// Measures converts the values.
func (in Inputs) Measures() (map[string]units.Measure, error) {
	out := make(map[string]units.Measure, len(in))
	var errs []error
	for name, raw := range in {
		var (
			m   units.Measure
			err error
		)
		switch v := raw.(type) {
		case int:
			m = units.Measure{Value: float64(v)}
		case float64:
			m = units.Measure{Value: v}
		case string:
			m, err = ParseValue(v)
		default:
			err = fmt.Errorf("unsupported value %v (%T)", raw, raw)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("input %s: %w", name, err))
			continue
		}
		out[name] = m
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidInput, errors.Join(errs...))
	}
	return out, nil
}

// ReadInputsFile reads a YAML map of inputs.
func ReadInputsFile(path string) (map[string]units.Measure, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read inputs file: %w", err)
	}
	var in Inputs
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to parse inputs file %s: %w", path, err)
	}
	return in.Measures()
}
