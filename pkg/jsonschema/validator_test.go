package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const pvzSchema = `{
	"type": "object",
	"required": ["id", "city", "registrationDate"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"city": {"enum": ["Москва", "Санкт-Петербург", "Казань"]},
		"registrationDate": {"type": "string"}
	}
}`

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile(pvzSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name     string
		json     string
		wantPath string
		wantText string
	}{
		{
			name: "valid pvz",
			json: `{"id":"a","city":"Москва","registrationDate":"2025-04-10T12:00:00Z"}`,
		},
		{
			name:     "missing id",
			json:     `{"city":"Казань","registrationDate":"2025-04-10T12:00:00Z"}`,
			wantPath: "",
			wantText: "id",
		},
		{
			name:     "unknown city",
			json:     `{"id":"a","city":"Новосибирск","registrationDate":"x"}`,
			wantPath: "/city",
		},
		{
			name:     "not json",
			json:     `bad gateway`,
			wantPath: "",
			wantText: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]byte(tt.json))
			if tt.wantPath == "" && tt.wantText == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			var serr *Error
			if !errors.As(err, &serr) || len(serr.Violations) == 0 {
				t.Fatalf("expected *Error with violations, got %T %v", err, err)
			}
			if serr.Violations[0].Path != tt.wantPath {
				t.Errorf("first violation at %q, want %q", serr.Violations[0].Path, tt.wantPath)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestSchema_ValidateReportsEveryViolation(t *testing.T) {
	schema, err := Compile(pvzSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	err = schema.Validate([]byte(`{"id":"","city":"Омск","registrationDate":1}`))
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	paths := map[string]bool{}
	for _, v := range serr.Violations {
		paths[v.Path] = true
	}
	for _, want := range []string{"/id", "/city", "/registrationDate"} {
		if !paths[want] {
			t.Errorf("no violation at %s in %v", want, serr.Violations)
		}
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile(`{"type": 12`); err == nil {
		t.Error("expected error for malformed schema")
	}
}

func TestViolation_String(t *testing.T) {
	if got := (Violation{Message: "expected object"}).String(); got != "/: expected object" {
		t.Errorf("String() = %q", got)
	}
	e := &Error{Violations: []Violation{{Path: "/a", Message: "x"}, {Path: "/b", Message: "y"}}}
	if got := e.Error(); got != "schema violation: /a: x; /b: y" {
		t.Errorf("Error() = %q", got)
	}
}
