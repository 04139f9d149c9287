package performance

import (
	"encoding/json"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
)

// isoLayout matches JavaScript's Date.prototype.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Iteration is the state of one pass through a scenario. Slots carry values
// such as tokens and created ids from one step to the next; they never
// outlive the iteration and are never shared between VUs.
type Iteration struct {
	VU     int
	Number int64
	Start  time.Time

	vu    *VirtualUser
	slots map[string]string
	group string

	incomplete bool
	failed     bool
	cancelled  bool
}

func newIteration(vu *VirtualUser, number int64) *Iteration {
	slots := make(map[string]string, len(vu.scenario.Variables))
	for k, v := range vu.scenario.Variables {
		slots[k] = v
	}
	return &Iteration{
		VU:     vu.ID,
		Number: number,
		Start:  time.Now(),
		vu:     vu,
		slots:  slots,
	}
}

// Get returns the value stored in slot.
func (it *Iteration) Get(slot string) (string, bool) {
	v, ok := it.slots[slot]
	return v, ok
}

// Set stores value in slot.
func (it *Iteration) Set(slot, value string) {
	it.slots[slot] = value
}

// Group returns the current "::"-separated group path.
func (it *Iteration) Group() string {
	return it.group
}

// Outcome classifies the iteration from what happened so far.
func (it *Iteration) Outcome() IterationOutcome {
	switch {
	case it.cancelled:
		return OutcomeCancelled
	case it.failed:
		return OutcomeFailed
	case it.incomplete:
		return OutcomeIncomplete
	default:
		return OutcomeComplete
	}
}

// templateData is the dot value for request templates. Lookups of unset
// slots are remembered so the caller can short-circuit after rendering.
type templateData struct {
	it      *Iteration
	missing string
}

func (d *templateData) Get(slot string) string {
	v, ok := d.it.slots[slot]
	if !ok && d.missing == "" {
		d.missing = slot
	}
	return v
}

func (d *templateData) Has(slot string) bool {
	_, ok := d.it.slots[slot]
	return ok
}

func (d *templateData) RandomInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return d.it.vu.rng.IntRange(min, max)
}

func (d *templateData) Now() string {
	return d.it.vu.clock.Now().UTC().Format(isoLayout)
}

func (d *templateData) DaysAgo(n int) string {
	return d.it.vu.clock.Now().UTC().AddDate(0, 0, -n).Format(isoLayout)
}

func (d *templateData) UUID() string {
	return uuid.NewString()
}

func (d *templateData) VU() int {
	return d.it.VU
}

func (d *templateData) Iteration() int64 {
	return d.it.Number
}

var templateFuncs = template.FuncMap{
	"json":  jsonString,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

func jsonString(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
}

func render(t *template.Template, data *templateData) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
