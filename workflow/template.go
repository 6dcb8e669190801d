// Package workflow composes actions into declarative templates and runs a
// built template strictly in order, stopping at the first failed step.
package workflow

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type InputType string

const (
	InputPoint   InputType = "point"
	InputNumber  InputType = "number"
	InputString  InputType = "string"
	InputBoolean InputType = "boolean"
)

func (t InputType) valid() bool {
	switch t {
	case InputPoint, InputNumber, InputString, InputBoolean:
		return true
	}
	return false
}

// Input is a value the caller supplies when submitting a template.
type Input struct {
	ID          string    `yaml:"id" json:"id"`
	Type        InputType `yaml:"type" json:"type"`
	Required    bool      `yaml:"required" json:"required"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Default     any       `yaml:"default,omitempty" json:"default,omitempty"`
}

// Step invokes one action. Param values may hold placeholders such as
// "{{shelf}}", "{{shelf:docking}}" or "{{shelf:load}}".
type Step struct {
	Action      string         `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
}

type Template struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []Input `yaml:"inputs" json:"inputs"`
	Sequence    []Step  `yaml:"sequence" json:"sequence"`
}

func (t Template) input(id string) (Input, bool) {
	for _, in := range t.Inputs {
		if in.ID == id {
			return in, true
		}
	}
	return Input{}, false
}

// TemplateSource supplies templates defined outside the built-in set.
type TemplateSource interface {
	LoadTemplates(ctx context.Context) ([]Template, error)
}

// FileSource reads templates from a YAML file holding a list under
// "templates".
type FileSource struct {
	Path string
}

func (f FileSource) LoadTemplates(context.Context) ([]Template, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", f.Path, err)
	}
	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", f.Path, err)
	}
	return doc.Templates, nil
}

// Builtins returns the templates every deployment starts with.
func Builtins() []Template {
	return []Template{
		{
			ID:          "shelf_to_dropoff",
			Name:        "Shelf to drop-off",
			Description: "Lift the rack at a shelf and deliver it to a drop-off point",
			Inputs: []Input{
				{ID: "shelf", Type: InputPoint, Required: true, Description: "Shelf load point"},
				{ID: "dropoff", Type: InputPoint, Required: true, Description: "Drop-off load point"},
			},
			Sequence: []Step{
				{Action: "navigate", Params: map[string]any{"point": "{{shelf:docking}}"}, Description: "Go to {{shelf}} docking point"},
				{Action: "align_with_rack", Params: map[string]any{"point": "{{shelf:load}}"}, Description: "Align with rack at {{shelf}}"},
				{Action: "jack_up", Description: "Lift rack"},
				{Action: "to_unload_point", Params: map[string]any{"point": "{{dropoff:load}}"}, Description: "Carry rack to {{dropoff}}"},
				{Action: "jack_down", Description: "Lower rack"},
			},
		},
		{
			ID:          "pickup_to_shelf",
			Name:        "Pick-up to shelf",
			Description: "Collect the rack at a pick-up point and store it on a shelf",
			Inputs: []Input{
				{ID: "pickup", Type: InputPoint, Required: true, Description: "Pick-up load point"},
				{ID: "shelf", Type: InputPoint, Required: true, Description: "Shelf load point"},
			},
			Sequence: []Step{
				{Action: "navigate", Params: map[string]any{"point": "{{pickup:docking}}"}, Description: "Go to {{pickup}} docking point"},
				{Action: "align_with_rack", Params: map[string]any{"point": "{{pickup:load}}"}, Description: "Align with rack at {{pickup}}"},
				{Action: "jack_up", Description: "Lift rack"},
				{Action: "to_unload_point", Params: map[string]any{"point": "{{shelf:load}}"}, Description: "Carry rack to {{shelf}}"},
				{Action: "jack_down", Description: "Lower rack"},
			},
		},
		{
			ID:          "shelf_to_shelf",
			Name:        "Shelf to shelf",
			Description: "Move a rack between two shelves",
			Inputs: []Input{
				{ID: "source", Type: InputPoint, Required: true, Description: "Source shelf load point"},
				{ID: "target", Type: InputPoint, Required: true, Description: "Target shelf load point"},
			},
			Sequence: []Step{
				{Action: "navigate", Params: map[string]any{"point": "{{source:docking}}"}, Description: "Go to {{source}} docking point"},
				{Action: "align_with_rack", Params: map[string]any{"point": "{{source:load}}"}, Description: "Align with rack at {{source}}"},
				{Action: "jack_up", Description: "Lift rack"},
				{Action: "to_unload_point", Params: map[string]any{"point": "{{target:load}}"}, Description: "Carry rack to {{target}}"},
				{Action: "jack_down", Description: "Lower rack"},
			},
		},
		{
			ID:          "return_to_charger",
			Name:        "Return to charger",
			Description: "Send the robot back to a charger",
			Inputs: []Input{
				{ID: "charger", Type: InputPoint, Description: "Charger point; the configured charger when omitted"},
			},
			Sequence: []Step{
				{Action: "return_to_charger", Params: map[string]any{"point": "{{charger}}"}, Description: "Return to charger"},
			},
		},
	}
}
