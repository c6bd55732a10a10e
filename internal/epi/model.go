package epi

// RiskLevel classifies the projected outbreak risk
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
)

// Trend classifies the recent real-data case trajectory
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// DayPoint is one day of a simulated trajectory.
type DayPoint struct {
	Day           int     `json:"day"`
	Susceptible   float64 `json:"susceptible"`
	Exposed       float64 `json:"exposed"`
	Infected      float64 `json:"infected"`
	Recovered     float64 `json:"recovered"`
	NewInfections float64 `json:"new_infections"`
}

// SpreadIndicators are the risk metrics derived from a simulation and the
// real case progression.
type SpreadIndicators struct {
	PeakInfected float64   `json:"peak_infected"`
	PeakDay      int       `json:"peak_day"`
	TotalInfected float64  `json:"total_infected"`
	AttackRate   float64   `json:"attack_rate"`
	RiskLevel    RiskLevel `json:"risk_level"`
	EffectiveR   float64   `json:"effective_r"`
	// DoublingTime in days; nil when the epidemic is not growing
	// (effective R at or below 1).
	DoublingTime *float64 `json:"doubling_time,omitempty"`
	Trend        Trend    `json:"trend"`
}

// SimulationRun is one ephemeral SEIR projection for a disease. Not
// persisted; recomputed on demand from live data.
type SimulationRun struct {
	Disease     string           `json:"disease"`
	Population  int              `json:"population"`
	HorizonDays int              `json:"horizon_days"`
	Days        []DayPoint       `json:"days"`
	Indicators  SpreadIndicators `json:"indicators"`
}
