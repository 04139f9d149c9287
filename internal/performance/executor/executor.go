// Package executor decides how many virtual users run at any moment.
//
// Executors own the timeline of a scenario: they compute a VU target from
// their configuration, ask the VUScheduler to converge on it, and at the end
// retire every VU within the graceful stop period.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

// Type names an executor as it appears in test files.
type Type string

const (
	TypeConstantVUs Type = "constant-vus"
	TypeRampingVUs  Type = "ramping-vus"
)

// Defaults applied by the config layer when a scenario leaves them unset.
const (
	DefaultGracefulStop     = 30 * time.Second
	DefaultGracefulRampDown = 30 * time.Second
)

// DefaultTickInterval is how often ramping executors recompute the target.
const DefaultTickInterval = 100 * time.Millisecond

// Executor drives one scenario's VU count over time.
type Executor interface {
	Type() Type

	// Init checks and keeps cfg. It is called once, before Run.
	Init(ctx context.Context, cfg *Config) error

	// Run blocks until every VU has exited. Cancelling ctx interrupts all
	// VUs at once; Stop lets them finish within the graceful stop.
	Run(ctx context.Context, scheduler *performance.VUScheduler, metrics *metrics.Engine) error

	// Progress is the elapsed share of the timeline, from 0 to 1.
	Progress() float64

	// ActiveVUs counts running VUs, including those finishing their last
	// iteration.
	ActiveVUs() int

	Stats() *Stats

	// Stop ends the timeline early.
	Stop(ctx context.Context) error
}

// Config is a scenario's timeline in parsed form.
type Config struct {
	Name string `json:"name"`
	Type Type   `json:"type"`

	// constant-vus
	VUs      int           `json:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// ramping-vus
	StartVUs         int           `json:"startVUs,omitempty"`
	Stages           []Stage       `json:"stages,omitempty"`
	GracefulRampDown time.Duration `json:"gracefulRampDown,omitempty"`

	// GracefulStop bounds how long VUs may finish after the timeline ends.
	// Zero interrupts them at once, as does a zero GracefulRampDown.
	GracefulStop time.Duration `json:"gracefulStop,omitempty"`

	TickInterval time.Duration `json:"tickInterval,omitempty"`
}

// Stage moves the VU target linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `json:"duration"`
	Target   int           `json:"target"`
	Name     string        `json:"name,omitempty"`
}

// Stats is a point-in-time view of an executor.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs   int `json:"activeVUs"`
	RetiringVUs int `json:"retiringVUs"`
	TargetVUs   int `json:"targetVUs"`
	SpawnedVUs  int `json:"spawnedVUs"`

	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// ValidationError names the first Config field found invalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate returns a *ValidationError for the first problem found.
func (c *Config) Validate() error {
	var err error
	switch c.Type {
	case "":
		return invalid("type", "executor type is required")
	case TypeConstantVUs:
		err = c.validateConstant()
	case TypeRampingVUs:
		err = c.validateRamping()
	default:
		return invalid("type", "unknown executor type: %s", c.Type)
	}
	if err != nil {
		return err
	}

	if c.GracefulStop < 0 {
		return invalid("gracefulStop", "must not be negative, got %s", c.GracefulStop)
	}
	if c.TickInterval < 0 {
		return invalid("tickInterval", "must not be negative, got %s", c.TickInterval)
	}
	return nil
}

func (c *Config) validateConstant() error {
	if c.VUs < 1 {
		return invalid("vus", "need at least one VU, got %d", c.VUs)
	}
	if c.Duration <= 0 {
		return invalid("duration", "must be positive, got %s", c.Duration)
	}
	return nil
}

func (c *Config) validateRamping() error {
	if len(c.Stages) == 0 {
		return invalid("stages", "at least one stage is required")
	}
	if c.StartVUs < 0 {
		return invalid("startVUs", "must not be negative, got %d", c.StartVUs)
	}
	for i, s := range c.Stages {
		if s.Duration < 0 {
			return invalid(fmt.Sprintf("stages[%d].duration", i), "must not be negative, got %s", s.Duration)
		}
		if s.Target < 0 {
			return invalid(fmt.Sprintf("stages[%d].target", i), "must not be negative, got %d", s.Target)
		}
	}
	if c.GracefulRampDown < 0 {
		return invalid("gracefulRampDown", "must not be negative, got %s", c.GracefulRampDown)
	}
	return nil
}

// TotalDuration is the length of the timeline without graceful stop.
func (c *Config) TotalDuration() time.Duration {
	if c.Type != TypeRampingVUs {
		return c.Duration
	}
	var total time.Duration
	for _, s := range c.Stages {
		total += s.Duration
	}
	return total
}

// MaxVUs is the largest VU target the timeline reaches.
func (c *Config) MaxVUs() int {
	switch c.Type {
	case TypeConstantVUs:
		return c.VUs
	case TypeRampingVUs:
		peak := c.StartVUs
		for _, s := range c.Stages {
			peak = max(peak, s.Target)
		}
		return peak
	}
	return 0
}

func (c *Config) tickInterval() time.Duration {
	if c.TickInterval > 0 {
		return c.TickInterval
	}
	return DefaultTickInterval
}

// TargetVUs returns the VU target at elapsed time into the stages, and the
// index of the stage in progress (len(stages) once all have elapsed).
//
// Each stage moves linearly from the previous stage's target (startVUs for
// the first) to its own target. A zero-duration stage jumps immediately.
func TargetVUs(startVUs int, stages []Stage, elapsed time.Duration) (int, int) {
	from := startVUs
	for i, stage := range stages {
		if elapsed < stage.Duration {
			frac := max(float64(elapsed)/float64(stage.Duration), 0)
			target := float64(from) + float64(stage.Target-from)*frac
			return int(target + 0.5), i
		}
		elapsed -= stage.Duration
		from = stage.Target
	}
	return from, len(stages)
}

// stagePhase names the phase of a ramping timeline during stage idx.
func stagePhase(startVUs int, stages []Stage, idx int) metrics.Phase {
	if idx >= len(stages) {
		return metrics.PhaseGracefulStop
	}
	prev := startVUs
	if idx > 0 {
		prev = stages[idx-1].Target
	}
	switch target := stages[idx].Target; {
	case target > prev:
		return metrics.PhaseRampUp
	case target < prev:
		return metrics.PhaseRampDown
	default:
		return metrics.PhaseSteady
	}
}
