// Package jsonpath resolves simple JSONPath expressions ($.a.b[0].c) against
// raw JSON bodies using gjson.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup resolves path in data. The second result is false when the path
// does not exist or data is not valid JSON.
func Lookup(data []byte, path string) (gjson.Result, bool) {
	if len(data) == 0 || path == "" {
		return gjson.Result{}, false
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}

	result := gjson.GetBytes(data, ToGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, false
	}
	return result, true
}

// Exists reports whether path resolves to a value (null included).
func Exists(data []byte, path string) bool {
	_, ok := Lookup(data, path)
	return ok
}

// Extract returns the value at path as a string. Strings are returned
// unquoted, null as "null", objects and arrays as raw JSON.
func Extract(data []byte, path string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}

	result, ok := Lookup(data, path)
	if !ok {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ToGjsonPath converts a JSONPath expression to gjson syntax.
//
//	$.users[0].name  -> users.0.name
//	$['jwt']         -> jwt
//	jwt              -> jwt
func ToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	replacer := strings.NewReplacer(
		"['", ".", "']", "",
		`["`, ".", `"]`, "",
		"[", ".", "]", "",
	)
	path = replacer.Replace(path)
	return strings.TrimPrefix(path, ".")
}
