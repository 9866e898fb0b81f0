package tally

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Schema is a JSON Schema derived from a Go type. Every property is
// required, which strict structured-output modes demand; optional values
// are expressed as empty strings or zeros instead.
type Schema struct {
	root *schemaNode
}

type schemaNode struct {
	Type        string
	Format      string
	Description string
	Items       *schemaNode
	Properties  map[string]*schemaNode
	Order       []string
}

// SchemaOf reflects T, which should be a struct. Property names follow
// json tags; fields tagged "-" and unexported fields are skipped.
func SchemaOf[T any]() *Schema {
	return &Schema{root: nodeOf(reflect.TypeFor[T]())}
}

func nodeOf(t reflect.Type) *schemaNode {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return &schemaNode{Type: "string", Format: "date-time"}
	}

	switch t.Kind() {
	case reflect.String:
		return &schemaNode{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &schemaNode{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &schemaNode{Type: "number"}
	case reflect.Bool:
		return &schemaNode{Type: "boolean"}
	case reflect.Slice, reflect.Array:
		return &schemaNode{Type: "array", Items: nodeOf(t.Elem())}
	case reflect.Struct:
		n := &schemaNode{Type: "object", Properties: make(map[string]*schemaNode)}
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			n.Properties[name] = nodeOf(f.Type)
			n.Order = append(n.Order, name)
		}
		return n
	case reflect.Map:
		return &schemaNode{Type: "object"}
	default:
		return &schemaNode{Type: "string"}
	}
}

// Describe sets the description of the property at path. Nested
// properties use dots ("items.total"); arrays are entered implicitly.
// Unknown paths are ignored.
func (s *Schema) Describe(path, description string) *Schema {
	if n := s.lookup(path); n != nil {
		n.Description = description
	}
	return s
}

func (s *Schema) lookup(path string) *schemaNode {
	n := s.root
	for _, part := range strings.Split(path, ".") {
		for n != nil && n.Items != nil {
			n = n.Items
		}
		if n == nil || n.Properties == nil {
			return nil
		}
		n = n.Properties[part]
	}
	return n
}

// JSON returns the schema document.
func (s *Schema) JSON() json.RawMessage {
	data, err := json.Marshal(s.root.toMap())
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return data
}

// Response wraps the schema for WithResponseSchema.
func (s *Schema) Response(name, description string) ResponseSchema {
	return ResponseSchema{Name: name, Description: description, Schema: s.JSON()}
}

func (n *schemaNode) toMap() map[string]any {
	m := map[string]any{"type": n.Type}
	if n.Format != "" {
		m["format"] = n.Format
	}
	if n.Description != "" {
		m["description"] = n.Description
	}
	if n.Items != nil {
		m["items"] = n.Items.toMap()
	}
	if n.Properties != nil {
		props := make(map[string]any, len(n.Properties))
		for _, name := range n.Order {
			props[name] = n.Properties[name].toMap()
		}
		m["properties"] = props
		m["required"] = append([]string{}, n.Order...)
	}
	return m
}
