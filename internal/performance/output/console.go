// Package output renders live progress and the end-of-run summary.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"

	"github.com/wesleyorama2/pvzload/internal/performance/engine"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
	"github.com/wesleyorama2/pvzload/internal/performance/units"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	markPass = "✓"
	markFail = "✗"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs   int
	RetiringVUs int
	TargetVUs   int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64
	CheckRate     float64
	Iterations    int64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	StageName    string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// palette holds the colors used by the console.
type palette struct {
	title   *color.Color
	bold    *color.Color
	dim     *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	value   *color.Color
	latency *color.Color
	phase   *color.Color
}

func newPalette(enabled bool) *palette {
	p := &palette{
		title:   color.New(color.FgCyan),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		value:   color.New(color.FgCyan),
		latency: color.New(color.FgBlue),
		phase:   color.New(color.FgMagenta),
	}
	for _, c := range []*color.Color{p.title, p.bold, p.dim, p.good, p.warn, p.bad, p.value, p.latency, p.phase} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// ConsoleOutput manages console output during a run.
type ConsoleOutput struct {
	testName     string
	scenarioInfo string
	writer       io.Writer
	isTTY        bool
	quiet        bool
	colors       *palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName string
	// ScenarioInfo is shown next to the name, e.g. "contacts [ramping-vus]".
	ScenarioInfo string
	Writer       io.Writer
	Quiet        bool
	ForceColors  bool
	ForceTTY     bool
	// Getenv reads NO_COLOR and TERM. Defaults to os.Getenv.
	Getenv func(string) string
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	if config.Getenv == nil {
		config.Getenv = os.Getenv
	}

	isTTY := config.ForceTTY || redrawable(config.Writer)
	useColors := config.ForceColors || (isTTY && colorEnv(config.Getenv))

	return &ConsoleOutput{
		testName:     config.TestName,
		scenarioInfo: config.ScenarioInfo,
		writer:       config.Writer,
		isTTY:        isTTY,
		quiet:        config.Quiet,
		colors:       newPalette(useColors),
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test header.
func (c *ConsoleOutput) PrintHeader(baseURL string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	info := ""
	if c.scenarioInfo != "" {
		info = " " + c.scenarioInfo
	}

	c.writeln(c.colors.title.Sprint(line))
	c.writeln(c.colors.bold.Sprintf("%s - Running%s", c.testName, info))
	if baseURL != "" {
		c.writeln(c.colors.dim.Sprintf("target: %s", baseURL))
	}
	c.writeln(c.colors.title.Sprint(line))
	c.writeln("")
}

// Update redraws the live display in place. It does nothing unless the
// output is a terminal.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// PrintNonInteractiveUpdate prints a one-line status. Used when output is
// not a terminal (piped to a file or CI).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | Progress: %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | Checks: %.2f%% | P95: %s",
		units.Elapsed(stats.Elapsed),
		stats.CurrentPhase,
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		stats.CheckRate*100,
		units.Latency(stats.LatencyP95)))
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := c.renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", units.Elapsed(stats.Elapsed), units.Elapsed(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.good.Sprint(progressBar),
		c.colors.bold.Sprintf("%.0f%%", stats.Progress*100),
		c.colors.dim.Sprint(timeInfo)))

	phaseInfo := stats.CurrentPhase
	if stats.TotalStages > 0 && stats.CurrentStage <= stats.TotalStages {
		stage := fmt.Sprintf("%d/%d", stats.CurrentStage, stats.TotalStages)
		if stats.StageName != "" {
			stage = stats.StageName + " " + stage
		}
		phaseInfo = fmt.Sprintf("%s (%s)", stats.CurrentPhase, stage)
	}
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.phase.Sprint(phaseInfo)))
	lines = append(lines, "")

	boxWidth := 61
	lines = append(lines, c.colors.dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vus := fmt.Sprintf("VUs:     %s / %d", c.colors.value.Sprint(stats.ActiveVUs), stats.TargetVUs)
	if stats.RetiringVUs > 0 {
		vus += c.colors.dim.Sprintf(" (-%d)", stats.RetiringVUs)
	}
	reqs := fmt.Sprintf("Requests:    %s", c.colors.value.Sprint(units.Count(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vus, reqs, boxWidth))

	errColor := c.rateColor(stats.ErrorRate, 0.01, 0.05)
	rps := fmt.Sprintf("RPS:     %s", c.colors.good.Sprintf("%.1f", stats.CurrentRPS))
	errs := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprint(stats.Errors),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rps, errs, boxWidth))

	iters := fmt.Sprintf("Iters:   %s", c.colors.value.Sprint(units.Count(stats.Iterations)))
	checks := fmt.Sprintf("Checks:      %s", c.rateColor(1-stats.CheckRate, 0.0001, 0.01).Sprintf("%.2f%%", stats.CheckRate*100))
	lines = append(lines, c.formatBoxRow(iters, checks, boxWidth))

	p95 := fmt.Sprintf("P95:     %s", c.colors.latency.Sprint(units.Latency(stats.LatencyP95)))
	avg := fmt.Sprintf("Avg:         %s", c.colors.latency.Sprint(units.Latency(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95, avg, boxWidth))

	lines = append(lines, c.colors.dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// rateColor picks green, yellow or red for a failure rate.
func (c *ConsoleOutput) rateColor(rate, warnAt, badAt float64) *color.Color {
	switch {
	case rate > badAt:
		return c.colors.bad
	case rate > warnAt:
		return c.colors.warn
	default:
		return c.colors.good
	}
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2

	leftPadding := max(colWidth-ansi.StringWidth(left), 0)
	rightPadding := max(colWidth-ansi.StringWidth(right), 0)

	border := c.colors.dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border,
		left, strings.Repeat(" ", leftPadding),
		border,
		right, strings.Repeat(" ", rightPadding),
		border)
}

func (c *ConsoleOutput) renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// PrintSummary prints the end-of-run report: thresholds, checks, per
// endpoint latency and iteration outcomes.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.good.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.bad.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := c.colors.good.Sprint("Completed " + markPass)
	if !result.Passed {
		status = c.colors.bad.Sprint("Failed " + markFail)
	}
	if result.Interrupted {
		status += c.colors.warn.Sprint(" (interrupted)")
	}

	c.writeln("")
	c.writeln(c.colors.title.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.bold.Sprint(result.Name), status))
	c.writeln(c.colors.title.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.value.Sprint(units.Elapsed(result.Duration))))
	m := result.Metrics
	if m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.value.Sprint(units.Count(m.TotalRequests))))
		c.writeln(fmt.Sprintf("Throughput:    %s", c.colors.value.Sprintf("%.1f req/s (steady %.1f)", m.RPS, m.SteadyStateRPS)))

		successRate := 1.0 - m.ErrorRate
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.rateColor(m.ErrorRate, 0.01, 0.05).Sprintf("%.2f%%", successRate*100)))
		if m.TransportErrors > 0 {
			c.writeln(fmt.Sprintf("Transport Err: %s", c.colors.bad.Sprint(units.Count(m.TransportErrors))))
		}
		c.writeln(fmt.Sprintf("Data:          %s", units.Bytes(m.TotalBytes)))
	}
	c.writeln("")

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.bold.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", c.mark(t.Passed), t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}

	if checks := result.Checks(); len(checks) > 0 {
		c.writeln(c.colors.bold.Sprint("Checks:"))
		for _, ch := range checks {
			name := ch.Name
			if ch.Group != "" {
				name = ch.Group + " › " + name
			}
			c.writeln(fmt.Sprintf("  %s %s %s", c.mark(ch.Fails == 0), name,
				c.colors.dim.Sprintf("%.2f%% (%s %d / %s %d)", ch.Rate*100, markPass, ch.Passes, markFail, ch.Fails)))
		}
		if m != nil {
			c.writeln(fmt.Sprintf("  total: %s", c.rateColor(1-m.Checks.Rate, 0.0001, 0.01).Sprintf("%.4f%% of %d", m.Checks.Rate*100, m.Checks.Passes+m.Checks.Fails)))
		}
		c.writeln("")
	}

	if m != nil {
		c.writeln(c.colors.bold.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:  %-10s P50:  %-10s P90:  %s", units.Latency(m.Latency.Min), units.Latency(m.Latency.P50), units.Latency(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:  %-10s P99:  %-10s Max:  %s", units.Latency(m.Latency.P95), units.Latency(m.Latency.P99), units.Latency(m.Latency.Max)))
		c.writeln("")
	}

	if endpoints := result.Endpoints(); len(endpoints) > 0 {
		c.writeln(c.colors.bold.Sprint("Endpoints:"))
		c.writeStatsTable(endpoints)
		c.writeln("")
	}

	if groups := result.Groups(); len(groups) > 0 {
		c.writeln(c.colors.bold.Sprint("Groups:"))
		c.writeStatsTable(groups)
		c.writeln("")
	}

	if m != nil {
		it := m.Iterations
		c.writeln(c.colors.bold.Sprint("Iterations:"))
		c.writeln(fmt.Sprintf("  total %s (%.1f/s), complete %d, incomplete %d, failed %d, cancelled %d",
			units.Count(it.Total), it.Rate, it.Complete, it.Incomplete, it.Failed, it.Cancelled))
		if it.Duration.Count > 0 {
			c.writeln(fmt.Sprintf("  duration avg %s, p95 %s", units.Latency(it.Duration.Mean), units.Latency(it.Duration.P95)))
		}
		c.writeln("")
	}

	if result.Summary != nil && len(result.Summary.Skips) > 0 {
		c.writeln(c.colors.bold.Sprint("Skipped steps:"))
		names := make([]string, 0, len(result.Summary.Skips))
		for name := range result.Summary.Skips {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.writeln(fmt.Sprintf("  %s %s", c.colors.warn.Sprint(units.Count(result.Summary.Skips[name])), name))
		}
		c.writeln("")
	}

	if result.Error != "" {
		c.writeln(c.colors.bad.Sprintf("Error: %s", result.Error))
		c.writeln("")
	}
}

func (c *ConsoleOutput) writeStatsTable(rows []engine.EndpointStats) {
	width := 0
	for _, r := range rows {
		if n := len([]rune(r.Name)); n > width {
			width = n
		}
	}
	for _, r := range rows {
		pad := strings.Repeat(" ", width-len([]rune(r.Name)))
		c.writeln(fmt.Sprintf("  %s%s  reqs %-8s fail %s  avg %-8s p95 %-8s max %s",
			r.Name, pad,
			units.Count(r.Requests),
			c.rateColor(r.FailRate, 0.01, 0.05).Sprintf("%6.2f%%", r.FailRate*100),
			units.Latency(r.Latency.Mean),
			units.Latency(r.Latency.P95),
			units.Latency(r.Latency.Max)))
	}
}

func (c *ConsoleOutput) mark(passed bool) string {
	if passed {
		return c.colors.good.Sprint(markPass)
	}
	return c.colors.bad.Sprint(markFail)
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromMetrics creates LiveStats from a snapshot. totalDuration is the
// planned timeline and is used until progress can be extrapolated.
func StatsFromMetrics(snap *metrics.Snapshot, progress float64, totalDuration time.Duration, targetVUs, retiringVUs, currentStage, totalStages int, stageName string) *LiveStats {
	if snap == nil {
		return &LiveStats{
			Progress:     progress,
			TargetVUs:    targetVUs,
			CurrentStage: currentStage,
			TotalStages:  totalStages,
			StageName:    stageName,
			CurrentPhase: "initializing",
		}
	}

	elapsed := snap.Elapsed
	remaining := time.Duration(0)
	if progress > 0 && progress < 1 {
		remaining = time.Duration(float64(elapsed) * (1 - progress) / progress)
	} else if totalDuration > elapsed {
		remaining = totalDuration - elapsed
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       elapsed,
		Remaining:     remaining,
		ActiveVUs:     snap.ActiveVUs,
		RetiringVUs:   retiringVUs,
		TargetVUs:     targetVUs,
		CurrentRPS:    snap.RPS,
		TotalRequests: snap.TotalRequests,
		Errors:        snap.FailedRequests,
		ErrorRate:     snap.ErrorRate,
		CheckRate:     snap.Checks.Rate,
		Iterations:    snap.Iterations.Total,
		LatencyP95:    snap.Latency.P95,
		LatencyAvg:    snap.Latency.Mean,
		CurrentPhase:  string(snap.CurrentPhase),
		StageName:     stageName,
		CurrentStage:  currentStage,
		TotalStages:   totalStages,
	}
}
