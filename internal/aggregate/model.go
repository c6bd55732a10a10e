package aggregate

import (
	"fmt"
	"time"

	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// DiagnosisStatus is the clinical status of a diagnosis event
type DiagnosisStatus string

const (
	StatusSuspected   DiagnosisStatus = "suspected"
	StatusConfirmed   DiagnosisStatus = "confirmed"
	StatusRecovered   DiagnosisStatus = "recovered"
	StatusQuarantined DiagnosisStatus = "quarantined"
)

// DiagnosisEvent is one time-stamped disease diagnosis recorded by the
// patient intake application. The engine never mutates these; it only
// derives aggregates from them.
type DiagnosisEvent struct {
	ID          types.ID        `json:"id"`
	PatientID   types.ID        `json:"patient_id"`
	DiseaseName string          `json:"disease_name"`
	AreaID      *types.ID       `json:"area_id,omitempty"`
	Status      DiagnosisStatus `json:"status"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Bucket returns the aggregate bucket this event falls into.
func (e DiagnosisEvent) Bucket() (year, month int) {
	return e.OccurredAt.Year(), int(e.OccurredAt.Month())
}

// CaseAggregate is one row of the derived case-count table. AreaID nil is
// the all-areas rollup for the disease/period.
type CaseAggregate struct {
	DiseaseName string    `json:"disease_name"`
	AreaID      *types.ID `json:"area_id,omitempty"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	TotalCases  int       `json:"total_cases"`
}

// MonthlyCount is one point of a historical case series.
type MonthlyCount struct {
	Disease string `json:"disease"`
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Cases   int    `json:"cases"`
}

// Period renders the point's period as YYYY-MM, the transfer format the
// external forecaster expects.
func (m MonthlyCount) Period() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

// Barangay is area reference metadata used for per-area decomposition.
type Barangay struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
	Lat  float64  `json:"lat"`
	Lng  float64  `json:"lng"`
}

// AreaSeries is the historical series of a single barangay.
type AreaSeries struct {
	Barangay Barangay       `json:"barangay"`
	Points   []MonthlyCount `json:"points"`
}

// CurrentCounts are live compartment seeds for a disease, drawn from the
// full event history.
type CurrentCounts struct {
	Confirmed int `json:"confirmed"`
	Suspected int `json:"suspected"`
	Recovered int `json:"recovered"`
}

// Total is the overall case count used by risk heuristics.
func (c CurrentCounts) Total() int {
	return c.Confirmed + c.Suspected + c.Recovered
}

// ListFilter filters raw aggregate listings.
type ListFilter struct {
	Disease string    `json:"disease,omitempty"`
	AreaID  *types.ID `json:"area_id,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}
