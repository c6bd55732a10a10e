package epi

import (
	"context"
	"testing"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/aggregate"
	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
)

// fakeCaseData supplies fixed counts without a database.
type fakeCaseData struct {
	counts aggregate.CurrentCounts
	new7d  int
	daily  []int
}

func (f *fakeCaseData) CurrentCounts(ctx context.Context, disease string) (aggregate.CurrentCounts, error) {
	return f.counts, nil
}

func (f *fakeCaseData) NewCasesSince(ctx context.Context, disease string, since time.Time) (int, error) {
	return f.new7d, nil
}

func (f *fakeCaseData) DailyCounts(ctx context.Context, disease string, days int) ([]int, error) {
	return f.daily, nil
}

func testEpiConfig() config.EpiConfig {
	return config.EpiConfig{
		RiskHighCases:     10,
		RiskHighNew7d:     3,
		RiskModerateCases: 5,
		RiskModerateNew7d: 1,
		TrendCap:          2.0,
	}
}

func newTestSimulator(data *fakeCaseData) *Simulator {
	return NewSimulator(DefaultRegistry(), data, testEpiConfig())
}

func TestSimulateDengueOutbreak(t *testing.T) {
	data := &fakeCaseData{
		counts: aggregate.CurrentCounts{Confirmed: 20, Suspected: 5, Recovered: 10},
		new7d:  5,
		daily:  make([]int, 14),
	}
	sim := newTestSimulator(data)

	run, err := sim.Simulate(context.Background(), "Dengue", 10000, 10)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if len(run.Days) != 11 {
		t.Fatalf("Expected 11 day points (day 0 plus horizon), got %d", len(run.Days))
	}
	if run.Days[0].NewInfections != 0 {
		t.Errorf("Expected zero new infections on day 0, got %f", run.Days[0].NewInfections)
	}

	ind := run.Indicators
	if ind.PeakDay < 0 || ind.PeakDay > 10 {
		t.Errorf("Peak day %d outside horizon", ind.PeakDay)
	}
	if ind.AttackRate < 0 || ind.AttackRate > 1 {
		t.Errorf("Attack rate %f outside [0, 1]", ind.AttackRate)
	}
	// 35 total cases and 5 in the last week both exceed the High thresholds.
	if ind.RiskLevel != RiskHigh {
		t.Errorf("Expected High risk, got %s", ind.RiskLevel)
	}
}

func TestSimulateNonNegativeCompartments(t *testing.T) {
	// A tiny population with counts near its size stresses the clamping.
	data := &fakeCaseData{
		counts: aggregate.CurrentCounts{Confirmed: 30, Suspected: 10, Recovered: 5},
		new7d:  8,
		daily:  make([]int, 14),
	}
	sim := newTestSimulator(data)

	run, err := sim.Simulate(context.Background(), "Measles", 50, 60)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	for _, d := range run.Days {
		if d.Susceptible < 0 || d.Exposed < 0 || d.Infected < 0 || d.Recovered < 0 {
			t.Fatalf("Day %d has a negative compartment: S=%f E=%f I=%f R=%f",
				d.Day, d.Susceptible, d.Exposed, d.Infected, d.Recovered)
		}
	}
}

func TestSimulateConservesPopulation(t *testing.T) {
	data := &fakeCaseData{
		counts: aggregate.CurrentCounts{Confirmed: 10, Suspected: 5},
		daily:  make([]int, 14),
	}
	sim := newTestSimulator(data)

	run, err := sim.Simulate(context.Background(), "Dengue", 10000, 30)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	first := run.Days[0]
	last := run.Days[len(run.Days)-1]
	initial := first.Susceptible + first.Exposed + first.Infected + first.Recovered
	final := last.Susceptible + last.Exposed + last.Infected + last.Recovered

	diff := initial - final
	if diff < 0 {
		diff = -diff
	}
	if diff > 1e-6*initial {
		t.Errorf("Compartment sum drifted: initial %f, final %f", initial, final)
	}
}

func TestSimulateUnsupportedDisease(t *testing.T) {
	sim := newTestSimulator(&fakeCaseData{daily: make([]int, 14)})

	_, err := sim.Simulate(context.Background(), "Common Cold", 10000, 30)
	if err == nil {
		t.Fatal("Expected error for unsupported disease")
	}
	if !errors.Is(err, errors.ErrUnsupportedDisease) {
		t.Errorf("Expected ErrUnsupportedDisease, got %v", err)
	}
}

func TestSimulateInvalidPopulation(t *testing.T) {
	sim := newTestSimulator(&fakeCaseData{daily: make([]int, 14)})

	for _, population := range []int{0, -100} {
		_, err := sim.Simulate(context.Background(), "Dengue", population, 30)
		if err == nil {
			t.Fatalf("Expected error for population %d", population)
		}
		if !errors.Is(err, errors.ErrInvalidPopulation) {
			t.Errorf("Expected ErrInvalidPopulation for %d, got %v", population, err)
		}
	}
}

func TestRiskLevelThresholds(t *testing.T) {
	tests := []struct {
		name     string
		counts   aggregate.CurrentCounts
		new7d    int
		expected RiskLevel
	}{
		{"no cases", aggregate.CurrentCounts{}, 0, RiskLow},
		{"few cases", aggregate.CurrentCounts{Confirmed: 3}, 0, RiskLow},
		{"moderate by total", aggregate.CurrentCounts{Confirmed: 6}, 0, RiskModerate},
		{"moderate by recent", aggregate.CurrentCounts{Confirmed: 2}, 2, RiskModerate},
		{"high by total", aggregate.CurrentCounts{Confirmed: 11}, 0, RiskHigh},
		{"high by recent", aggregate.CurrentCounts{Confirmed: 2}, 4, RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &fakeCaseData{counts: tt.counts, new7d: tt.new7d, daily: make([]int, 14)}
			sim := newTestSimulator(data)

			run, err := sim.Simulate(context.Background(), "Cholera", 10000, 10)
			if err != nil {
				t.Fatalf("Simulate failed: %v", err)
			}
			if run.Indicators.RiskLevel != tt.expected {
				t.Errorf("Expected risk %s, got %s", tt.expected, run.Indicators.RiskLevel)
			}
		})
	}
}

func TestDoublingTime(t *testing.T) {
	// A mostly recovered caseload pushes effective R below 1; doubling time
	// must then be absent rather than negative.
	shrinking := &fakeCaseData{
		counts: aggregate.CurrentCounts{Confirmed: 2, Recovered: 8},
		daily:  make([]int, 14),
	}
	sim := newTestSimulator(shrinking)

	run, err := sim.Simulate(context.Background(), "Influenza", 10000, 10)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if run.Indicators.EffectiveR > 1 {
		t.Fatalf("Expected effective R <= 1, got %f", run.Indicators.EffectiveR)
	}
	if run.Indicators.DoublingTime != nil {
		t.Errorf("Expected no doubling time, got %f", *run.Indicators.DoublingTime)
	}

	growing := &fakeCaseData{
		counts: aggregate.CurrentCounts{Confirmed: 10},
		daily:  make([]int, 14),
	}
	sim = newTestSimulator(growing)

	run, err = sim.Simulate(context.Background(), "Dengue", 10000, 10)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if run.Indicators.DoublingTime == nil {
		t.Fatal("Expected a doubling time for a growing epidemic")
	}
	if *run.Indicators.DoublingTime <= 0 {
		t.Errorf("Expected positive doubling time, got %f", *run.Indicators.DoublingTime)
	}
}

func TestClassifyTrend(t *testing.T) {
	tests := []struct {
		name     string
		daily    []int
		expected Trend
	}{
		{"too short", []int{1, 2, 3}, TrendStable},
		{"rising", []int{1, 1, 1, 1, 1, 1, 1, 3, 3, 3, 3, 3, 3, 3}, TrendIncreasing},
		{"falling", []int{3, 3, 3, 3, 3, 3, 3, 1, 1, 1, 1, 1, 1, 1}, TrendDecreasing},
		{"flat", []int{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}, TrendStable},
		{"small change", []int{10, 10, 10, 10, 10, 10, 10, 11, 11, 11, 11, 11, 11, 11}, TrendStable},
		{"quiet then cases", []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1}, TrendIncreasing},
		{"all quiet", make([]int, 14), TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyTrend(tt.daily); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := DefaultRegistry()

	// Lookup ignores case.
	for _, name := range []string{"Dengue", "dengue", "DENGUE"} {
		params, err := registry.Get(name)
		if err != nil {
			t.Fatalf("Get(%q) failed: %v", name, err)
		}
		if params.Disease != "Dengue" {
			t.Errorf("Expected Dengue parameters, got %s", params.Disease)
		}
	}

	if _, err := registry.Get("Unknown"); !errors.Is(err, errors.ErrUnsupportedDisease) {
		t.Errorf("Expected ErrUnsupportedDisease, got %v", err)
	}

	diseases := registry.Diseases()
	if len(diseases) != 10 {
		t.Errorf("Expected 10 diseases, got %d", len(diseases))
	}
	for i := 1; i < len(diseases); i++ {
		if diseases[i-1] > diseases[i] {
			t.Errorf("Disease list not sorted at %d: %s > %s", i, diseases[i-1], diseases[i])
			break
		}
	}
}

func TestParameterRates(t *testing.T) {
	p := Parameters{IncubationPeriod: 5, InfectiousPeriod: 10}
	if got := p.LatencyRate(); got != 0.2 {
		t.Errorf("Expected latency rate 0.2, got %f", got)
	}
	if got := p.RecoveryRate(); got != 0.1 {
		t.Errorf("Expected recovery rate 0.1, got %f", got)
	}

	zero := Parameters{}
	if zero.LatencyRate() != 0 || zero.RecoveryRate() != 0 {
		t.Error("Expected zero rates for zero periods")
	}
}
