package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is the JSON schema reflected from a Go type.
type Schema struct {
	Name       string
	Parameters map[string]any

	once       sync.Once
	compiled   *validator.Schema
	compileErr error
}

// SchemaFor reflects the schema of the value out points to.
func SchemaFor(out any) (*Schema, error) {
	t := reflect.TypeOf(out)
	if t == nil || t.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("llm: structured output target must be a pointer, got %T", out)
	}
	t = t.Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("llm: structured output target must point to a struct, got %s", t)
	}

	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	data, err := json.Marshal(r.ReflectFromType(t))
	if err != nil {
		return nil, fmt.Errorf("llm: marshal schema for %s: %w", t.Name(), err)
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("llm: decode schema for %s: %w", t.Name(), err)
	}
	delete(params, "$schema")
	delete(params, "$id")

	return &Schema{Name: t.Name(), Parameters: params}, nil
}

// Decode validates raw against the schema and unmarshals it into out.
// Object members set to null count as absent.
func (s *Schema) Decode(raw string, out any) error {
	inst, err := validator.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return &SchemaError{Type: s.Name, Raw: raw, Err: err}
	}
	compiled, err := s.compile()
	if err != nil {
		return &SchemaError{Type: s.Name, Raw: raw, Err: err}
	}
	if err := compiled.Validate(dropNulls(inst)); err != nil {
		return &SchemaError{Type: s.Name, Raw: raw, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &SchemaError{Type: s.Name, Raw: raw, Err: err}
	}
	return nil
}

func (s *Schema) compile() (*validator.Schema, error) {
	s.once.Do(func() {
		data, err := json.Marshal(s.Parameters)
		if err != nil {
			s.compileErr = err
			return
		}
		doc, err := validator.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			s.compileErr = err
			return
		}
		url := "https://agentlab.local/schemas/" + s.Name + ".json"
		c := validator.NewCompiler()
		c.DefaultDraft(validator.Draft2020)
		if s.compileErr = c.AddResource(url, doc); s.compileErr != nil {
			return
		}
		s.compiled, s.compileErr = c.Compile(url)
	})
	return s.compiled, s.compileErr
}

func dropNulls(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, val := range v {
			if val == nil {
				delete(v, k)
				continue
			}
			v[k] = dropNulls(val)
		}
	case []any:
		for i, item := range v {
			v[i] = dropNulls(item)
		}
	}
	return v
}
