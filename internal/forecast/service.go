package forecast

import (
	"context"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/yellyhaze23/prms-forecast/internal/aggregate"
	"github.com/yellyhaze23/prms-forecast/internal/shared/config"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/events"
	"github.com/yellyhaze23/prms-forecast/internal/shared/metrics"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// HistorySource reads historical aggregates. Satisfied by
// *aggregate.Repository.
type HistorySource interface {
	HistoricalSeries(ctx context.Context, disease string, areaID *types.ID) ([]aggregate.MonthlyCount, error)
	AreaSeries(ctx context.Context, disease string) ([]aggregate.AreaSeries, error)
}

// Ledger is the persistence surface the orchestrator needs. Satisfied by
// *Repository.
type Ledger interface {
	Save(ctx context.Context, run Run) error
	FindRecent(ctx context.Context, disease string, forecastType Type, maxAge time.Duration) (*Run, error)
}

// Service orchestrates forecast runs: cache and ledger reuse, history
// retrieval, the external forecaster invocation, barangay decomposition,
// and persistence.
type Service struct {
	history    HistorySource
	forecaster StatisticalForecaster
	ledger     Ledger
	cache      Cache
	bus        *events.Bus
	cfg        config.ForecastConfig

	// group collapses concurrent identical requests onto one forecaster
	// invocation.
	group singleflight.Group

	// now is swapped in tests
	now func() time.Time
}

// NewService creates a new forecast orchestrator
func NewService(history HistorySource, forecaster StatisticalForecaster, ledger Ledger, cache Cache, bus *events.Bus, cfg config.ForecastConfig) *Service {
	return &Service{
		history:    history,
		forecaster: forecaster,
		ledger:     ledger,
		cache:      cache,
		bus:        bus,
		cfg:        cfg,
		now:        time.Now,
	}
}

// GetForecast serves one forecast query, reusing cached or recent results
// where the staleness rules allow.
func (s *Service) GetForecast(ctx context.Context, req Request) (*Result, error) {
	if req.Horizon <= 0 {
		req.Horizon = s.cfg.DefaultHorizon
	}
	if req.Population <= 0 {
		req.Population = s.cfg.DefaultPopulation
	}
	if req.Type == "" {
		req.Type = TypeOverall
	}
	if !req.Type.Valid() {
		return nil, errors.BadRequest("forecast type must be overall or barangay")
	}

	key := CacheKey(req, s.now())

	// Hour-bucketed cache: only successful results are ever stored, so a
	// hit can be returned directly.
	if cached, err := s.cache.Get(ctx, key); err == nil && cached != nil {
		metrics.RecordCacheLookup("hit")
		metrics.RecordForecastRequest(string(req.Type), "hit")
		return &Result{Run: *cached, Cached: true}, nil
	} else if err != nil {
		// A broken cache never blocks a forecast.
		log.Printf("forecast: cache read failed: %v", err)
	}
	metrics.RecordCacheLookup("miss")

	// Longer-lived dedup against the ledger for the non-decomposed path:
	// a run from the last few days is still current at monthly granularity.
	if req.Type == TypeOverall && req.AreaID == nil {
		recent, err := s.ledger.FindRecent(ctx, req.Disease, req.Type, s.cfg.DedupWindow)
		if err != nil {
			log.Printf("forecast: ledger dedup lookup failed: %v", err)
		} else if recent != nil {
			metrics.RecordForecastRequest(string(req.Type), "dedup")
			return &Result{Run: *recent, Cached: true}, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.compute(ctx, req, key)
	})
	if err != nil {
		if errors.Is(err, errors.ErrNoHistoricalData) {
			metrics.RecordForecastRequest(string(req.Type), "no_data")
		} else {
			metrics.RecordForecastRequest(string(req.Type), "error")
		}
		return nil, err
	}

	metrics.RecordForecastRequest(string(req.Type), "computed")
	run := v.(Run)
	return &Result{Run: run, Cached: false}, nil
}

// compute runs the full pipeline for a cache miss.
func (s *Service) compute(ctx context.Context, req Request, key string) (interface{}, error) {
	series, areaSeries, err := s.loadHistory(ctx, req)
	if err != nil {
		return nil, err
	}

	output, err := s.forecaster.Run(ctx, series, req.Horizon)
	if err != nil {
		return nil, err
	}

	run := Run{
		ID:           types.NewID(),
		Disease:      req.Disease,
		ForecastType: req.Type,
		PeriodLength: req.Horizon,
		Population:   req.Population,
		Series:       output.Series,
		Summary:      output.Summary,
		GeneratedAt:  s.now().UTC(),
	}

	if req.Type == TypeBarangay {
		run.Breakdown = s.decompose(output, areaSeries)
	}

	// The forecast stays valid even when it cannot be saved; persistence
	// failures are logged, never surfaced.
	if err := s.ledger.Save(ctx, run); err != nil {
		log.Printf("forecast: %v", errors.Persistence(err))
	} else {
		metrics.RecordForecastRunPersisted()
	}

	if s.bus != nil {
		event := events.NewEvent("forecast.completed", "forecast-engine", map[string]any{
			"run_id":        run.ID,
			"disease":       run.Disease,
			"forecast_type": run.ForecastType,
			"horizon":       run.PeriodLength,
		})
		if err := s.bus.Publish(ctx, event); err != nil {
			log.Printf("forecast: failed to publish completion event: %v", err)
		}
	}

	if err := s.cache.Put(ctx, key, run); err != nil {
		log.Printf("forecast: cache write failed: %v", err)
	}

	return run, nil
}

// loadHistory retrieves the historical series for the request, plus area
// series with metadata on the barangay path. An empty series short-circuits
// before any subprocess invocation.
func (s *Service) loadHistory(ctx context.Context, req Request) ([]SeriesPoint, []aggregate.AreaSeries, error) {
	rollup, err := s.history.HistoricalSeries(ctx, req.Disease, req.AreaID)
	if err != nil {
		return nil, nil, err
	}
	if len(rollup) == 0 {
		return nil, nil, errors.NoHistoricalData(req.Disease)
	}

	series := make([]SeriesPoint, 0, len(rollup))
	for _, p := range rollup {
		sp := SeriesPoint{Disease: p.Disease, Period: p.Period(), Cases: p.Cases}
		if req.AreaID != nil {
			sp.AreaID = req.AreaID.String()
		}
		series = append(series, sp)
	}

	if req.Type != TypeBarangay {
		return series, nil, nil
	}

	areaSeries, err := s.history.AreaSeries(ctx, req.Disease)
	if err != nil {
		return nil, nil, err
	}

	for _, as := range areaSeries {
		for _, p := range as.Points {
			series = append(series, SeriesPoint{
				Disease: p.Disease,
				AreaID:  as.Barangay.ID.String(),
				Period:  p.Period(),
				Cases:   p.Cases,
			})
		}
	}

	return series, areaSeries, nil
}

// decompose builds the per-barangay summary and the ranked high-risk list
// from the forecaster's per-area series.
func (s *Service) decompose(output *Output, areaSeries []aggregate.AreaSeries) *AreaBreakdown {
	breakdown := &AreaBreakdown{}

	for _, as := range areaSeries {
		projected, ok := output.Areas[as.Barangay.ID.String()]
		if !ok || len(projected) == 0 {
			continue
		}

		latest := projected[len(projected)-1].Cases
		trend := seriesTrend(projected)

		breakdown.Areas = append(breakdown.Areas, AreaForecast{
			AreaID:      as.Barangay.ID,
			AreaName:    as.Barangay.Name,
			Lat:         as.Barangay.Lat,
			Lng:         as.Barangay.Lng,
			LatestCount: latest,
			Trend:       trend,
			Series:      projected,
		})

		if latest > s.cfg.HighRiskThreshold || trend == "increasing" {
			breakdown.HighRisk = append(breakdown.HighRisk, HighRiskArea{
				AreaID:         as.Barangay.ID,
				AreaName:       as.Barangay.Name,
				Lat:            as.Barangay.Lat,
				Lng:            as.Barangay.Lng,
				ProjectedCases: latest,
				Trend:          trend,
			})
		}
	}

	sort.Slice(breakdown.HighRisk, func(i, j int) bool {
		return breakdown.HighRisk[i].ProjectedCases > breakdown.HighRisk[j].ProjectedCases
	})

	return breakdown
}

// seriesTrend classifies a projected series by comparing its ends, with a
// 20% band for stability.
func seriesTrend(series []ForecastPoint) string {
	if len(series) < 2 {
		return "stable"
	}

	first := series[0].Cases
	last := series[len(series)-1].Cases

	if first <= 0 {
		if last > 0 {
			return "increasing"
		}
		return "stable"
	}

	change := (last - first) / first
	switch {
	case change > 0.2:
		return "increasing"
	case change < -0.2:
		return "decreasing"
	default:
		return "stable"
	}
}
