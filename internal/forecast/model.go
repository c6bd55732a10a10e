package forecast

import (
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// Type selects between a municipality-wide forecast and one decomposed
// per barangay.
type Type string

const (
	TypeOverall  Type = "overall"
	TypeBarangay Type = "barangay"
)

// Valid reports whether t is a known forecast type.
func (t Type) Valid() bool {
	return t == TypeOverall || t == TypeBarangay
}

// SeriesPoint is one disease-period-count triple of the historical series
// handed to the external forecaster. AreaID is set on per-area points of
// the barangay path.
type SeriesPoint struct {
	Disease string `json:"disease"`
	AreaID  string `json:"area_id,omitempty"`
	Period  string `json:"period"` // YYYY-MM
	Cases   int    `json:"cases"`
}

// ForecastPoint is one predicted period of a forecast series.
type ForecastPoint struct {
	Period string  `json:"period"`
	Cases  float64 `json:"cases"`
}

// SummaryIndicators are the headline numbers the forecaster reports for a
// run.
type SummaryIndicators struct {
	Model          string  `json:"model"`
	PredictedTotal float64 `json:"predicted_total"`
	PeakPeriod     string  `json:"peak_period,omitempty"`
	Trend          string  `json:"trend,omitempty"`
}

// AreaForecast is the per-barangay slice of a decomposed forecast.
type AreaForecast struct {
	AreaID      types.ID        `json:"area_id"`
	AreaName    string          `json:"area_name"`
	Lat         float64         `json:"lat"`
	Lng         float64         `json:"lng"`
	LatestCount float64         `json:"latest_count"`
	Trend       string          `json:"trend"`
	Series      []ForecastPoint `json:"series"`
}

// HighRiskArea is one entry of the ranked high-risk list.
type HighRiskArea struct {
	AreaID         types.ID `json:"area_id"`
	AreaName       string   `json:"area_name"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	ProjectedCases float64  `json:"projected_cases"`
	Trend          string   `json:"trend"`
}

// AreaBreakdown carries the barangay decomposition of a forecast run.
type AreaBreakdown struct {
	Areas    []AreaForecast `json:"areas"`
	HighRisk []HighRiskArea `json:"high_risk"`
}

// Run is one persisted, immutable forecast result. Rows are appended to
// the ledger and never updated, only superseded by newer runs.
type Run struct {
	ID           types.ID          `json:"id"`
	Disease      string            `json:"disease"`
	ForecastType Type              `json:"forecast_type"`
	PeriodLength int               `json:"period_length"`
	Population   int               `json:"population"`
	Series       []ForecastPoint   `json:"forecast_series"`
	Summary      SummaryIndicators `json:"summary_indicators"`
	Breakdown    *AreaBreakdown    `json:"area_breakdown,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// Result is a forecast run plus whether it was served from cache or a
// recent ledger entry rather than a fresh forecaster invocation.
type Result struct {
	Run    Run  `json:"run"`
	Cached bool `json:"cached"`
}

// Request describes one forecast query.
type Request struct {
	Disease    string    `json:"disease,omitempty"`
	AreaID     *types.ID `json:"area_id,omitempty"`
	Horizon    int       `json:"horizon"`
	Type       Type      `json:"type"`
	Population int       `json:"population,omitempty"`
}
