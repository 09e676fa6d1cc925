package service

import (
	"testing"
	"time"
)

func TestGenerationMonitor_RecordRun(t *testing.T) {
	m := NewGenerationMonitor()

	m.RecordRun(100*time.Millisecond, OutcomeComplete)
	m.RecordRun(200*time.Millisecond, OutcomeComplete)
	m.RecordRun(300*time.Millisecond, OutcomePartial)
	m.RecordRun(45*time.Second, OutcomeFailed)

	stats := m.GetStats()

	if stats.TotalRuns != 4 {
		t.Errorf("Expected 4 runs, got %d", stats.TotalRuns)
	}
	if stats.CompleteRuns != 2 || stats.PartialRuns != 1 || stats.FailedRuns != 1 {
		t.Errorf("Unexpected outcome counts: %+v", stats)
	}
	if stats.SlowRuns != 1 {
		t.Errorf("Expected 1 slow run, got %d", stats.SlowRuns)
	}
}

func TestGenerationMonitor_Phases(t *testing.T) {
	m := NewGenerationMonitor()

	m.RecordPhase(StateFetching, 400*time.Millisecond)
	m.RecordPhase(StateFetching, 600*time.Millisecond)
	m.RecordPhase(StatePricing, 50*time.Millisecond)

	stats := m.GetStats()

	fetching := stats.Phases[StateFetching]
	if fetching.Samples != 2 {
		t.Errorf("Expected 2 fetching samples, got %d", fetching.Samples)
	}
	if fetching.AvgMs != 500 {
		t.Errorf("Expected average 500ms, got %.2fms", fetching.AvgMs)
	}
	if stats.Phases[StatePricing].P95Ms != 50 {
		t.Errorf("Expected pricing p95 50ms, got %.2fms", stats.Phases[StatePricing].P95Ms)
	}
}

func TestGenerationMonitor_Percentiles(t *testing.T) {
	m := NewGenerationMonitor()

	for i := 1; i <= 100; i++ {
		m.RecordRun(time.Duration(i)*time.Millisecond, OutcomeComplete)
	}

	stats := m.GetStats()

	if stats.P95RunMs < 95 || stats.P95RunMs > 96 {
		t.Errorf("Expected P95 around 95ms, got %.2fms", stats.P95RunMs)
	}
	if stats.AvgRunMs != 50.5 {
		t.Errorf("Expected average 50.5ms, got %.2fms", stats.AvgRunMs)
	}
}

func TestGenerationMonitor_Check(t *testing.T) {
	m := NewGenerationMonitor()

	for i := 0; i < 20; i++ {
		m.RecordRun(time.Second, OutcomeComplete)
	}
	if check := m.Check(); !check.Passed || len(check.Issues) != 0 {
		t.Errorf("Check should pass, got %+v", check)
	}

	m.Reset()
	for i := 0; i < 20; i++ {
		m.RecordRun(time.Minute, OutcomePartial)
	}
	check := m.Check()
	if check.Passed {
		t.Error("Check should fail for slow runs")
	}
	if len(check.Issues) != 2 {
		t.Errorf("Expected slow and partial issues, got %v", check.Issues)
	}
}

func TestGenerationMonitor_KeepsLastSamples(t *testing.T) {
	m := NewGenerationMonitor()
	m.maxSamples = 3

	for i := 1; i <= 5; i++ {
		m.RecordRun(time.Duration(i)*time.Millisecond, OutcomeComplete)
	}

	stats := m.GetStats()
	if stats.TotalRuns != 5 {
		t.Errorf("Expected 5 total runs, got %d", stats.TotalRuns)
	}
	if stats.AvgRunMs != 4 {
		t.Errorf("Expected average over last 3 samples (4ms), got %.2fms", stats.AvgRunMs)
	}
}
