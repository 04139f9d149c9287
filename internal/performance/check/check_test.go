package check

import (
	nethttp "net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/pvzload/internal/http"
)

func pvzResponse() *http.Response {
	return &http.Response{
		StatusCode: 201,
		Headers:    nethttp.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"id":"5f2b9f5e-1c1a-4a7e-9d55-3b4f1c0d8e11","city":"Москва","registrationDate":"2025-04-10T12:00:00Z","tags":["a","b"],"count":3,"open":true}`),
		Duration:   40 * time.Millisecond,
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   bool
	}{
		{"status eq", Config{Type: "status", Value: 201}, true},
		{"status eq mismatch", Config{Type: "status", Value: 200}, false},
		{"status in", Config{Type: "status", Condition: "in", Value: []interface{}{200, 201}}, true},
		{"status lt", Config{Type: "status", Condition: "lt", Value: "300"}, true},
		{"status gte", Config{Type: "status", Condition: "gte", Value: 400}, false},
		{"body exists", Config{Type: "body", Path: "$.id"}, true},
		{"body missing", Config{Type: "body", Path: "$.jwt"}, false},
		{"body not exists", Config{Type: "body", Path: "$.jwt", Condition: "exists", Value: false}, true},
		{"body eq string", Config{Type: "body", Path: "$.city", Value: "Москва"}, true},
		{"body eq number", Config{Type: "body", Path: "count", Value: 3}, true},
		{"body gt number", Config{Type: "body", Path: "count", Condition: "gt", Value: 5}, false},
		{"body eq bool", Config{Type: "body", Path: "open", Value: true}, true},
		{"body ne missing", Config{Type: "body", Path: "$.nope", Condition: "ne", Value: "x"}, true},
		{"body contains array", Config{Type: "body", Path: "$.tags", Condition: "contains", Value: "b"}, true},
		{"body contains string", Config{Type: "body", Path: "$.registrationDate", Condition: "contains", Value: "2025"}, true},
		{"body matches", Config{Type: "body", Path: "$.id", Condition: "matches", Value: `^[0-9a-f-]{36}$`}, true},
		{"header exists", Config{Type: "header", Path: "Content-Type"}, true},
		{"header eq", Config{Type: "header", Path: "content-type", Value: "application/json"}, true},
		{"header contains", Config{Type: "header", Path: "Content-Type", Condition: "contains", Value: "xml"}, false},
		{"header absent", Config{Type: "header", Path: "X-Request-Id"}, false},
		{"duration lt", Config{Type: "duration", Value: "100ms"}, true},
		{"duration lt ms number", Config{Type: "duration", Value: 10}, false},
		{"duration gte", Config{Type: "duration", Condition: "gte", Value: "40ms"}, true},
		{"schema", Config{Type: "schema", Schema: map[string]interface{}{
			"type":     "object",
			"required": []interface{}{"id", "city"},
		}}, true},
		{"schema string mismatch", Config{Type: "schema", Schema: `{"type":"object","required":["jwt"]}`}, false},
	}

	resp := pvzResponse()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compile(tt.config)
			require.NoError(t, err)

			result := c.Evaluate(resp)
			assert.Equal(t, tt.want, result.Passed, result.Message)
			assert.NotEmpty(t, result.Name)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"missing type", Config{Name: "x"}},
		{"unknown type", Config{Type: "cookie"}},
		{"status bad value", Config{Type: "status", Value: "abc"}},
		{"status in not list", Config{Type: "status", Condition: "in", Value: 200}},
		{"status contains", Config{Type: "status", Condition: "contains", Value: 200}},
		{"body bad regex", Config{Type: "body", Path: "id", Condition: "matches", Value: "("}},
		{"body eq without value", Config{Type: "body", Path: "id", Condition: "eq"}},
		{"header without name", Config{Type: "header", Value: "x"}},
		{"header eq without value", Config{Type: "header", Path: "X", Condition: "eq"}},
		{"duration bad value", Config{Type: "duration", Value: "soon"}},
		{"duration eq", Config{Type: "duration", Condition: "eq", Value: "1s"}},
		{"schema missing", Config{Type: "schema"}},
		{"schema invalid", Config{Type: "schema", Schema: `{"type": 12}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestCompile_DefaultName(t *testing.T) {
	c := MustCompile(Config{Type: "status", Value: 201})
	assert.Equal(t, "status eq 201", c.Name)

	c = MustCompile(Config{Name: "per-VU PVZ created", Type: "status", Value: 201})
	assert.Equal(t, "per-VU PVZ created", c.Name)
}

func TestEvaluate_Idempotent(t *testing.T) {
	checks, err := CompileAll([]Config{
		{Name: "created", Type: "status", Value: 201},
		{Name: "has id", Type: "body", Path: "$.id"},
		{Name: "wrong city", Type: "body", Path: "$.city", Value: "Казань"},
	})
	require.NoError(t, err)

	resp := pvzResponse()
	first := Evaluate(resp, checks)
	require.Len(t, first, 3)
	assert.True(t, first[0].Passed)
	assert.True(t, first[1].Passed)
	assert.False(t, first[2].Passed)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, first, Evaluate(resp, checks))
		}()
	}
	wg.Wait()
}

func TestFailAll(t *testing.T) {
	checks := []Check{
		MustCompile(Config{Name: "a", Type: "status", Value: 200}),
		MustCompile(Config{Name: "b", Type: "status", Value: 201}),
	}

	for _, results := range [][]Result{FailAll(checks), Evaluate(nil, checks)} {
		require.Len(t, results, 2)
		for i, r := range results {
			assert.Equal(t, checks[i].Name, r.Name)
			assert.False(t, r.Passed)
		}
	}
}

func TestEvaluate_InvalidJSONBody(t *testing.T) {
	c := MustCompile(Config{Type: "body", Path: "$.id"})
	resp := &http.Response{StatusCode: 500, Body: []byte("internal error")}

	assert.False(t, c.Evaluate(resp).Passed)
}
