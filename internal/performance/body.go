package performance

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// jsonTemplate is a structured request body whose string leaves are
// templates. Rendering yields a value ready for JSON encoding, so template
// output never needs escaping.
type jsonTemplate struct {
	leaf   *template.Template
	object map[string]*jsonTemplate
	keys   []string
	array  []*jsonTemplate
	value  interface{}
}

func compileJSONTemplate(name string, v interface{}) (*jsonTemplate, error) {
	switch x := v.(type) {
	case string:
		if !strings.Contains(x, "{{") {
			return &jsonTemplate{value: x}, nil
		}
		t, err := parseTemplate(name, x)
		if err != nil {
			return nil, err
		}
		return &jsonTemplate{leaf: t}, nil
	case map[string]interface{}:
		j := &jsonTemplate{object: make(map[string]*jsonTemplate, len(x))}
		for k, child := range x {
			c, err := compileJSONTemplate(name+"."+k, child)
			if err != nil {
				return nil, err
			}
			j.object[k] = c
			j.keys = append(j.keys, k)
		}
		sort.Strings(j.keys)
		return j, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(x))
		for k, child := range x {
			m[fmt.Sprint(k)] = child
		}
		return compileJSONTemplate(name, m)
	case []interface{}:
		j := &jsonTemplate{array: make([]*jsonTemplate, 0, len(x))}
		for i, child := range x {
			c, err := compileJSONTemplate(fmt.Sprintf("%s[%d]", name, i), child)
			if err != nil {
				return nil, err
			}
			j.array = append(j.array, c)
		}
		return j, nil
	default:
		return &jsonTemplate{value: v}, nil
	}
}

// render stops at the first leaf that reads a missing slot; the caller
// checks data.missing.
func (j *jsonTemplate) render(data *templateData) (interface{}, error) {
	switch {
	case j.leaf != nil:
		return render(j.leaf, data)
	case j.object != nil:
		out := make(map[string]interface{}, len(j.object))
		for _, k := range j.keys {
			v, err := j.object[k].render(data)
			if err != nil || data.missing != "" {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case j.array != nil:
		out := make([]interface{}, 0, len(j.array))
		for _, c := range j.array {
			v, err := c.render(data)
			if err != nil || data.missing != "" {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return j.value, nil
	}
}
