// Package jsonschema checks response bodies against a compiled JSON Schema.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const resourceName = "inline.json"

// Violation is one failed keyword at one location of the document.
type Violation struct {
	// Path is a JSON pointer into the document, "" for the root.
	Path    string
	Message string
}

func (v Violation) String() string {
	path := v.Path
	if path == "" {
		path = "/"
	}
	return path + ": " + v.Message
}

// Error lists every violation of one document, sorted by path.
type Error struct {
	Violations []Violation
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "schema violation: " + strings.Join(parts, "; ")
}

// Schema is a compiled schema, safe for concurrent use.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile parses and compiles a schema given as JSON text.
func Compile(text string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	s, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// Validate returns nil when body is a JSON document matching the schema and
// an *Error otherwise. A body that is not JSON is a violation at the root.
func (s *Schema) Validate(body []byte) error {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return &Error{Violations: []Violation{{Message: "invalid JSON: " + err.Error()}}}
	}

	err := s.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &Error{Violations: []Violation{{Message: err.Error()}}}
	}

	var out []Violation
	collect(verr, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return &Error{Violations: out}
}

// collect walks the cause tree and keeps the leaves, which name the
// keyword that actually failed.
func collect(e *jsonschema.ValidationError, out *[]Violation) {
	if len(e.Causes) == 0 {
		*out = append(*out, Violation{Path: e.InstanceLocation, Message: e.Message})
		return
	}
	for _, c := range e.Causes {
		collect(c, out)
	}
}
