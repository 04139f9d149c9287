package output

import (
	"context"
	"sort"
	"time"

	"github.com/wesleyorama2/pvzload/internal/performance/executor"
	"github.com/wesleyorama2/pvzload/internal/performance/metrics"
)

// ProgressSource is what the live display polls. *engine.Engine satisfies it.
type ProgressSource interface {
	IsRunning() bool
	GetMetrics() *metrics.Snapshot
	GetProgress() float64
	GetScenarioStats() map[string]*executor.Stats
	EstimatedDuration() time.Duration
}

// Monitor refreshes the console from src every interval until ctx is done.
// It is meant to run alongside Engine.Run and be cancelled when Run returns.
func Monitor(ctx context.Context, src ProgressSource, console *ConsoleOutput, interval time.Duration) {
	if console.quiet {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	totalDuration := src.EstimatedDuration()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !src.IsRunning() {
				continue
			}
			stats := Sample(src, totalDuration)
			if console.IsTTY() {
				console.Update(stats)
			} else {
				console.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Sample builds one LiveStats reading from src.
func Sample(src ProgressSource, totalDuration time.Duration) *LiveStats {
	agg := aggregateStats(src.GetScenarioStats())
	return StatsFromMetrics(
		src.GetMetrics(),
		src.GetProgress(),
		totalDuration,
		agg.TargetVUs,
		agg.RetiringVUs,
		agg.CurrentStage,
		agg.TotalStages,
		agg.CurrentStageName,
	)
}

// aggregateStats sums VU counts across scenarios. Stage info comes from the
// first scenario by name that has stages.
func aggregateStats(all map[string]*executor.Stats) executor.Stats {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	var agg executor.Stats
	stageSet := false
	for _, name := range names {
		s := all[name]
		if s == nil {
			continue
		}
		agg.TargetVUs += s.TargetVUs
		agg.RetiringVUs += s.RetiringVUs
		agg.ActiveVUs += s.ActiveVUs
		if !stageSet && s.TotalStages > 0 {
			agg.CurrentStage = s.CurrentStage
			agg.TotalStages = s.TotalStages
			agg.CurrentStageName = s.CurrentStageName
			stageSet = true
		}
	}
	return agg
}
