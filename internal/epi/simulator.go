package epi

import (
	"context"
	"math"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/aggregate"
	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/metrics"
)

// CaseData supplies the live case counts a simulation is seeded from.
// Satisfied by *aggregate.Repository.
type CaseData interface {
	CurrentCounts(ctx context.Context, disease string) (aggregate.CurrentCounts, error)
	NewCasesSince(ctx context.Context, disease string, since time.Time) (int, error)
	DailyCounts(ctx context.Context, disease string, days int) ([]int, error)
}

// Simulator projects near-term disease spread with a discrete-time SEIR
// model seeded from current real case data.
type Simulator struct {
	registry *Registry
	data     CaseData
	cfg      config.EpiConfig
}

// NewSimulator creates a new SEIR simulator
func NewSimulator(registry *Registry, data CaseData, cfg config.EpiConfig) *Simulator {
	return &Simulator{registry: registry, data: data, cfg: cfg}
}

// Simulate runs the compartmental model for a disease over the horizon.
// The trajectory is deterministic given the seeds; the only I/O is reading
// current counts.
func (s *Simulator) Simulate(ctx context.Context, disease string, population, horizonDays int) (*SimulationRun, error) {
	run, err := s.simulate(ctx, disease, population, horizonDays)
	metrics.RecordSimulation(disease, err)
	return run, err
}

func (s *Simulator) simulate(ctx context.Context, disease string, population, horizonDays int) (*SimulationRun, error) {
	params, err := s.registry.Get(disease)
	if err != nil {
		return nil, err
	}

	if population <= 0 {
		return nil, errors.InvalidPopulation(population)
	}

	counts, err := s.data.CurrentCounts(ctx, disease)
	if err != nil {
		return nil, err
	}

	new7d, err := s.data.NewCasesSince(ctx, disease, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}

	daily, err := s.data.DailyCounts(ctx, disease, 14)
	if err != nil {
		return nil, err
	}

	run := s.project(disease, params, counts, new7d, population, horizonDays)
	run.Indicators = s.deriveIndicators(params, counts, new7d, daily, population, run.Days)
	return run, nil
}

// project advances the SEIR system with forward-Euler steps, clamping each
// compartment at zero to guard against overshoot at small populations.
func (s *Simulator) project(disease string, params Parameters, counts aggregate.CurrentCounts, new7d, population, horizonDays int) *SimulationRun {
	n := float64(population)

	// Effective susceptibility excludes the vaccinated share.
	susceptible := (n - float64(counts.Confirmed) - float64(counts.Suspected)) * (1 - params.VaccinationCoverage)
	if susceptible < 0 {
		susceptible = 0
	}
	exposed := float64(counts.Suspected)
	infected := float64(counts.Confirmed)
	recovered := float64(counts.Recovered)

	beta := params.ContactRate * params.TransmissionProbability
	if new7d > 0 {
		// Bounded trend adjustment: recent acceleration scales projected
		// spread, capped so a burst of reports cannot blow up the model.
		total := counts.Total()
		if total < 1 {
			total = 1
		}
		scale := float64(new7d) / float64(total)
		if scale > s.cfg.TrendCap {
			scale = s.cfg.TrendCap
		}
		beta *= scale
	}

	sigma := params.LatencyRate()
	gamma := params.RecoveryRate()

	days := make([]DayPoint, 0, horizonDays+1)
	days = append(days, DayPoint{
		Day:         0,
		Susceptible: susceptible,
		Exposed:     exposed,
		Infected:    infected,
		Recovered:   recovered,
	})

	for day := 1; day <= horizonDays; day++ {
		newInfections := beta * susceptible * infected / n

		dS := -newInfections
		dE := newInfections - sigma*exposed
		dI := sigma*exposed - gamma*infected
		dR := gamma * infected

		susceptible = math.Max(0, susceptible+dS)
		exposed = math.Max(0, exposed+dE)
		infected = math.Max(0, infected+dI)
		recovered = math.Max(0, recovered+dR)

		days = append(days, DayPoint{
			Day:           day,
			Susceptible:   susceptible,
			Exposed:       exposed,
			Infected:      infected,
			Recovered:     recovered,
			NewInfections: newInfections,
		})
	}

	return &SimulationRun{
		Disease:     disease,
		Population:  population,
		HorizonDays: horizonDays,
		Days:        days,
	}
}

// deriveIndicators computes the spread indicators from the projected
// trajectory and the real case progression.
func (s *Simulator) deriveIndicators(params Parameters, counts aggregate.CurrentCounts, new7d int, daily []int, population int, days []DayPoint) SpreadIndicators {
	ind := SpreadIndicators{}

	for _, d := range days {
		if d.Infected > ind.PeakInfected {
			ind.PeakInfected = d.Infected
			ind.PeakDay = d.Day
		}
	}

	final := days[len(days)-1]
	ind.TotalInfected = final.Infected + final.Recovered
	ind.AttackRate = ind.TotalInfected / float64(population)

	totalCases := counts.Total()
	switch {
	case totalCases > s.cfg.RiskHighCases || new7d > s.cfg.RiskHighNew7d:
		ind.RiskLevel = RiskHigh
	case totalCases > s.cfg.RiskModerateCases || new7d > s.cfg.RiskModerateNew7d:
		ind.RiskLevel = RiskModerate
	default:
		ind.RiskLevel = RiskLow
	}

	ind.EffectiveR = params.R0
	if totalCases > 0 {
		ind.EffectiveR = params.R0 * (1 - float64(counts.Recovered)/float64(totalCases))
	}

	// Doubling time is undefined when the epidemic is not growing; it is
	// reported as absent, never as a numeric artifact.
	if ind.EffectiveR > 1 {
		sigma := params.LatencyRate()
		if sigma > 0 {
			dt := math.Ln2 / (sigma * (ind.EffectiveR - 1))
			ind.DoublingTime = &dt
		}
	}

	ind.Trend = classifyTrend(daily)

	return ind
}

// classifyTrend compares the mean daily case count of the most recent
// seven days against the preceding seven. Changes beyond 20% either way
// are a trend; anything else is stable.
func classifyTrend(daily []int) Trend {
	if len(daily) < 14 {
		return TrendStable
	}

	recent := mean(daily[len(daily)-7:])
	previous := mean(daily[len(daily)-14 : len(daily)-7])

	if previous == 0 {
		if recent > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}

	change := (recent - previous) / previous
	switch {
	case change > 0.2:
		return TrendIncreasing
	case change < -0.2:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}
