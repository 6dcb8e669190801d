package actions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"robotcore/points"
)

const (
	ParamPoint      = "point"
	ParamX          = "x"
	ParamY          = "y"
	ParamTheta      = "theta"
	ParamAccuracy   = "accuracy"
	ParamMaxRetries = "max_retries"
)

// String returns a string parameter.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns a numeric parameter. JSON numbers and numeric strings are
// accepted.
func (p Params) Float(key string) (float64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		return f, true, err
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %q is not a number", key, n)
		}
		return f, true, nil
	}
	return 0, true, fmt.Errorf("%s: expected a number, got %T", key, v)
}

// Int returns an integer parameter.
func (p Params) Int(key string) (int, bool, error) {
	f, ok, err := p.Float(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if f != float64(int(f)) {
		return 0, true, fmt.Errorf("%s: %v is not an integer", key, f)
	}
	return int(f), true, nil
}

func unresolved(s string) bool {
	return strings.Contains(s, "{{")
}

// checkCommon validates the optional tuning parameters shared by the
// polling actions.
func checkCommon(p Params) []string {
	var errs []string
	if acc, ok, err := p.Float(ParamAccuracy); err != nil {
		errs = append(errs, err.Error())
	} else if ok && acc <= 0 {
		errs = append(errs, "accuracy must be positive")
	}
	if n, ok, err := p.Int(ParamMaxRetries); err != nil {
		errs = append(errs, err.Error())
	} else if ok && n <= 0 {
		errs = append(errs, "max_retries must be positive")
	}
	return errs
}

// lookupPoint resolves the point parameter against the directory and checks
// it with accept.
func lookupPoint(dir points.Directory, p Params, accept func(points.Category) bool, want string) (points.Point, []string) {
	raw, ok := p[ParamPoint]
	if !ok || raw == nil {
		return points.Point{}, []string{"point is required"}
	}
	id, ok := raw.(string)
	if !ok {
		return points.Point{}, []string{fmt.Sprintf("point must be a string, got %T", raw)}
	}
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return points.Point{}, []string{"point is required"}
	case unresolved(id):
		return points.Point{}, []string{fmt.Sprintf("point %q has an unresolved placeholder", id)}
	}
	pt, found := dir.Lookup(id)
	if !found {
		return points.Point{}, []string{fmt.Sprintf("point %q not found", id)}
	}
	if accept != nil && !accept(pt.Category) {
		return pt, []string{fmt.Sprintf("point %q is a %s point, expected %s", id, pt.Category, want)}
	}
	return pt, nil
}

func validation(errs []string) ValidationResult {
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
