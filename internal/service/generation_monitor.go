package service

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Run outcomes recorded by GenerationMonitor
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
)

// slowGeneration is the duration above which a run counts as slow
const slowGeneration = 30 * time.Second

// GenerationMonitor tracks statement generation timings
type GenerationMonitor struct {
	mu         sync.RWMutex
	runTimes   []time.Duration
	phaseTimes map[AssemblyState][]time.Duration
	outcomes   map[string]int64
	slowRuns   int64
	totalRuns  int64
	maxSamples int
}

// NewGenerationMonitor creates a monitor keeping the last 1000 samples per series
func NewGenerationMonitor() *GenerationMonitor {
	return &GenerationMonitor{
		runTimes:   make([]time.Duration, 0, 1000),
		phaseTimes: make(map[AssemblyState][]time.Duration),
		outcomes:   make(map[string]int64),
		maxSamples: 1000,
	}
}

// RecordPhase records how long one assembly phase took across all chains
func (m *GenerationMonitor) RecordPhase(state AssemblyState, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phaseTimes[state] = m.trim(append(m.phaseTimes[state], d))
}

// RecordRun records a finished generation run
func (m *GenerationMonitor) RecordRun(d time.Duration, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRuns++
	m.outcomes[outcome]++
	m.runTimes = m.trim(append(m.runTimes, d))
	if d > slowGeneration {
		m.slowRuns++
	}
}

func (m *GenerationMonitor) trim(samples []time.Duration) []time.Duration {
	if len(samples) > m.maxSamples {
		return samples[len(samples)-m.maxSamples:]
	}
	return samples
}

// GetStats returns current generation statistics
func (m *GenerationMonitor) GetStats() *GenerationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &GenerationStats{
		TotalRuns:    m.totalRuns,
		CompleteRuns: m.outcomes[OutcomeComplete],
		PartialRuns:  m.outcomes[OutcomePartial],
		FailedRuns:   m.outcomes[OutcomeFailed],
		SlowRuns:     m.slowRuns,
		Phases:       make(map[AssemblyState]PhaseStats, len(m.phaseTimes)),
	}
	stats.AvgRunMs, stats.P95RunMs = summarize(m.runTimes)
	for state, samples := range m.phaseTimes {
		avg, p95 := summarize(samples)
		stats.Phases[state] = PhaseStats{Samples: len(samples), AvgMs: avg, P95Ms: p95}
	}
	return stats
}

// Check reports runs that exceed the slow threshold or lost chains
func (m *GenerationMonitor) Check() *GenerationCheck {
	stats := m.GetStats()
	check := &GenerationCheck{Passed: true, Issues: make([]string, 0)}

	if stats.P95RunMs > float64(slowGeneration.Milliseconds()) {
		check.Passed = false
		check.Issues = append(check.Issues,
			fmt.Sprintf("P95 generation time (%.0fms) exceeds %s", stats.P95RunMs, slowGeneration))
	}
	if stats.TotalRuns > 0 {
		partial := float64(stats.PartialRuns) / float64(stats.TotalRuns) * 100
		if partial > 10 {
			check.Issues = append(check.Issues,
				fmt.Sprintf("%.1f%% of statements are missing chains", partial))
		}
	}
	return check
}

// Reset clears all samples and counters
func (m *GenerationMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runTimes = make([]time.Duration, 0, 1000)
	m.phaseTimes = make(map[AssemblyState][]time.Duration)
	m.outcomes = make(map[string]int64)
	m.slowRuns = 0
	m.totalRuns = 0
}

// GenerationStats contains statement generation statistics
type GenerationStats struct {
	TotalRuns    int64                        `json:"totalRuns"`
	CompleteRuns int64                        `json:"completeRuns"`
	PartialRuns  int64                        `json:"partialRuns"`
	FailedRuns   int64                        `json:"failedRuns"`
	SlowRuns     int64                        `json:"slowRuns"`
	AvgRunMs     float64                      `json:"avgRunMs"`
	P95RunMs     float64                      `json:"p95RunMs"`
	Phases       map[AssemblyState]PhaseStats `json:"phases"`
}

// PhaseStats summarizes one assembly phase
type PhaseStats struct {
	Samples int     `json:"samples"`
	AvgMs   float64 `json:"avgMs"`
	P95Ms   float64 `json:"p95Ms"`
}

// GenerationCheck contains health check results
type GenerationCheck struct {
	Passed bool     `json:"passed"`
	Issues []string `json:"issues"`
}

// summarize returns the mean and 95th percentile in milliseconds
func summarize(samples []time.Duration) (avg, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg = float64(total.Milliseconds()) / float64(len(sorted))

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	p95 = float64(sorted[idx].Milliseconds())
	return avg, p95
}
