// ABOUTME: Parameter schemas for built-in tools with coarse type checking.
// ABOUTME: Produces the JSON Schema advertised by tools/list and validates call arguments.

package packs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
)

// ErrInvalidParams indicates arguments that do not satisfy a tool's schema.
var ErrInvalidParams = errors.New("invalid params")

// ParamType is a coarse JSON type tag.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one named argument.
type Param struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

// Schema is an ordered list of parameters.
type Schema struct {
	Params []Param
}

// Bound returns a pointer for Param.Minimum and Param.Maximum literals.
func Bound(v float64) *float64 { return &v }

// JSON renders the schema as a JSON Schema object.
func (s Schema) JSON() json.RawMessage {
	type property struct {
		Type        ParamType `json:"type"`
		Description string    `json:"description,omitempty"`
		Enum        []string  `json:"enum,omitempty"`
		Minimum     *float64  `json:"minimum,omitempty"`
		Maximum     *float64  `json:"maximum,omitempty"`
	}
	type object struct {
		Type       string              `json:"type"`
		Properties map[string]property `json:"properties"`
		Required   []string            `json:"required,omitempty"`
	}

	out := object{Type: "object", Properties: make(map[string]property, len(s.Params))}
	for _, p := range s.Params {
		out.Properties[p.Name] = property{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
			Minimum:     p.Minimum,
			Maximum:     p.Maximum,
		}
		if p.Required {
			out.Required = append(out.Required, p.Name)
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		// Only static strings and numbers are marshalled here.
		panic(fmt.Sprintf("marshalling schema: %v", err))
	}
	return data
}

// Validate checks args against the schema. An absent or null payload is
// treated as an empty object. Unknown arguments are ignored.
func (s Schema) Validate(args json.RawMessage) error {
	args = bytes.TrimSpace(args)
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	if args[0] != '{' {
		return fmt.Errorf("%w: arguments must be an object", ErrInvalidParams)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	for _, p := range s.Params {
		raw, ok := fields[p.Name]
		if !ok || string(raw) == "null" {
			if p.Required {
				return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParams, p.Name)
			}
			continue
		}
		if err := p.check(raw); err != nil {
			return fmt.Errorf("%w: parameter %q %v", ErrInvalidParams, p.Name, err)
		}
	}
	return nil
}

func (p Param) check(raw json.RawMessage) error {
	got := typeOf(raw)
	switch {
	case got == p.Type:
	case p.Type == TypeNumber && got == TypeInteger:
	default:
		return fmt.Errorf("must be %s, got %s", p.Type, got)
	}

	if len(p.Enum) > 0 && p.Type == TypeString {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if !slices.Contains(p.Enum, v) {
			return fmt.Errorf("must be one of %v", p.Enum)
		}
	}

	if p.Minimum != nil || p.Maximum != nil {
		v, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return err
		}
		if p.Minimum != nil && v < *p.Minimum {
			return fmt.Errorf("must be >= %v", *p.Minimum)
		}
		if p.Maximum != nil && v > *p.Maximum {
			return fmt.Errorf("must be <= %v", *p.Maximum)
		}
	}
	return nil
}

// typeOf classifies an already well-formed JSON value by its first byte.
func typeOf(raw json.RawMessage) ParamType {
	switch raw[0] {
	case '"':
		return TypeString
	case '{':
		return TypeObject
	case '[':
		return TypeArray
	case 't', 'f':
		return TypeBoolean
	case 'n':
		return "null"
	default:
		if bytes.ContainsAny(raw, ".eE") {
			return TypeNumber
		}
		return TypeInteger
	}
}
