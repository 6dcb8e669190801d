package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"robotcore/actions"
	"robotcore/points"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_\-]+)\s*(?::\s*([A-Za-z]+)\s*)?\}\}`)

const (
	transformDocking = "docking"
	transformLoad    = "load"
)

// BuildError lists every problem found while building a template.
type BuildError struct {
	TemplateID string
	Problems   []string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("workflow %s: %s", e.TemplateID, strings.Join(e.Problems, "; "))
}

// Plan is a template with every placeholder resolved, ready to run.
type Plan struct {
	Template Template
	Inputs   map[string]any
	Steps    []PlannedStep
}

type PlannedStep struct {
	Action      string
	Params      actions.Params
	Description string
}

type builder struct {
	tmpl     Template
	inputs   map[string]any
	problems []string
}

func (b *builder) problem(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

// Build checks inputs against the template's declarations and resolves every
// step parameter. No action runs during Build.
func Build(tmpl Template, inputs map[string]any) (*Plan, error) {
	b := &builder{tmpl: tmpl, inputs: make(map[string]any, len(inputs))}
	b.checkInputs(inputs)

	plan := &Plan{Template: tmpl, Inputs: b.inputs}
	for i, step := range tmpl.Sequence {
		ps := PlannedStep{Action: step.Action, Params: actions.Params{}}
		for key, raw := range step.Params {
			v, keep := b.resolveValue(i, key, raw)
			if keep {
				ps.Params[key] = v
			}
		}
		desc, _ := b.resolveValue(i, "description", step.Description)
		ps.Description, _ = desc.(string)
		if ps.Description == "" {
			ps.Description = step.Action
		}
		plan.Steps = append(plan.Steps, ps)
	}

	if len(b.problems) > 0 {
		return nil, &BuildError{TemplateID: tmpl.ID, Problems: b.problems}
	}
	return plan, nil
}

func (b *builder) checkInputs(supplied map[string]any) {
	for _, in := range b.tmpl.Inputs {
		v, ok := supplied[in.ID]
		if !ok || v == nil || v == "" {
			if in.Default != nil {
				b.inputs[in.ID] = in.Default
			} else if in.Required {
				b.problem("missing required input %q", in.ID)
			}
			continue
		}
		norm, err := coerce(in.Type, v)
		if err != nil {
			b.problem("input %q: %v", in.ID, err)
			continue
		}
		b.inputs[in.ID] = norm
	}
	for id := range supplied {
		if _, ok := b.tmpl.input(id); !ok {
			b.problem("unknown input %q", id)
		}
	}
}

// coerce checks v against the declared type and normalises numbers to
// float64.
func coerce(t InputType, v any) (any, error) {
	switch t {
	case InputPoint:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a point id, got %T", v)
		}
		s = strings.TrimSpace(s)
		if points.Classify(s) == points.CategoryUnknown {
			return nil, fmt.Errorf("%q is not a recognised point id", s)
		}
		return s, nil
	case InputString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", v)
		}
		return s, nil
	case InputBoolean:
		bv, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", v)
		}
		return bv, nil
	case InputNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
		return nil, fmt.Errorf("expected a number, got %T", v)
	}
	return nil, fmt.Errorf("unsupported input type %q", t)
}

// resolveValue resolves placeholders in raw. keep is false when raw is a
// lone placeholder for an optional input that was not supplied.
func (b *builder) resolveValue(step int, key string, raw any) (any, bool) {
	switch v := raw.(type) {
	case string:
		return b.resolveString(step, key, v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, inner := range v {
			if r, keep := b.resolveValue(step, key+"."+k, inner); keep {
				out[k] = r
			}
		}
		return out, true
	case []any:
		out := make([]any, 0, len(v))
		for i, inner := range v {
			if r, keep := b.resolveValue(step, fmt.Sprintf("%s[%d]", key, i), inner); keep {
				out = append(out, r)
			}
		}
		return out, true
	}
	return raw, true
}

func (b *builder) resolveString(step int, key, s string) (any, bool) {
	if m := placeholder.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		v, ok := b.lookup(step, key, s[m[2]:m[3]], submatch(s, m, 4))
		if !ok {
			return nil, false
		}
		return v, true
	}
	out := placeholder.ReplaceAllStringFunc(s, func(tok string) string {
		sm := placeholder.FindStringSubmatch(tok)
		v, ok := b.lookup(step, key, sm[1], sm[2])
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	})
	return out, true
}

func submatch(s string, m []int, group int) string {
	if m[group] < 0 {
		return ""
	}
	return s[m[group]:m[group+1]]
}

// lookup returns the value of an input reference after applying the
// optional point transform. ok is false when there is no value to use.
func (b *builder) lookup(step int, key, id, transform string) (any, bool) {
	in, declared := b.tmpl.input(id)
	if !declared {
		b.problem("step %d %s: unknown input %q", step+1, key, id)
		return nil, false
	}
	v, ok := b.inputs[id]
	if !ok {
		return nil, false
	}
	if transform == "" {
		return v, true
	}
	if in.Type != InputPoint {
		b.problem("step %d %s: transform %q applies only to point inputs", step+1, key, transform)
		return nil, false
	}
	id, _ = v.(string)
	switch transform {
	case transformDocking:
		return points.ToDocking(id), true
	case transformLoad:
		return points.ToBase(id), true
	}
	b.problem("step %d %s: unknown transform %q", step+1, key, transform)
	return nil, false
}
