package jsonpath

import (
	"testing"
)

const pvzBody = `{
	"id": "5b0a7f9e-0c3e-4b7e-9a77-1d2f7c0e9a10",
	"city": "Москва",
	"registrationDate": "2026-10-18T10:00:00Z",
	"receptions": [
		{"id": "r1", "status": "in_progress", "products": [{"type": "одежда"}]}
	],
	"closedAt": null
}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name          string
		path          string
		expected      string
		expectedError bool
	}{
		{"bare key", "id", "5b0a7f9e-0c3e-4b7e-9a77-1d2f7c0e9a10", false},
		{"dollar prefix", "$.city", "Москва", false},
		{"bracket notation", "$['city']", "Москва", false},
		{"double quoted bracket", `$["registrationDate"]`, "2026-10-18T10:00:00Z", false},
		{"array index", "$.receptions[0].status", "in_progress", false},
		{"nested array index", "$.receptions[0].products[0].type", "одежда", false},
		{"null value", "$.closedAt", "null", false},
		{"missing key", "$.jwt", "", true},
		{"out of range", "$.receptions[3].id", "", true},
		{"empty path", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(pvzBody), tt.path)
			if tt.expectedError {
				if err == nil {
					t.Errorf("Extract(%q) expected error, got %q", tt.path, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract(%q) error = %v", tt.path, err)
			}
			if got != tt.expected {
				t.Errorf("Extract(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestLookup_InvalidJSON(t *testing.T) {
	if _, ok := Lookup([]byte("<html>bad gateway</html>"), "$.jwt"); ok {
		t.Error("Lookup should fail on non-JSON bodies")
	}
	if Exists(nil, "$.jwt") {
		t.Error("Exists should be false for empty bodies")
	}
	if _, err := Extract(nil, "$.jwt"); err == nil {
		t.Error("Extract should fail for empty bodies")
	}
}

func TestToGjsonPath(t *testing.T) {
	tests := map[string]string{
		"$":                  "@this",
		"$.jwt":              "jwt",
		"jwt":                "jwt",
		"$.items[2].name":    "items.2.name",
		"$['a']['b']":        "a.b",
		"$[0].id":            "0.id",
		"receptions.0.items": "receptions.0.items",
	}
	for in, want := range tests {
		if got := ToGjsonPath(in); got != want {
			t.Errorf("ToGjsonPath(%q) = %q, want %q", in, got, want)
		}
	}
}
