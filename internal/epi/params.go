package epi

import (
	"sort"
	"strings"

	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
)

// Parameters holds the static epidemiological profile of one disease.
// Loaded once at startup; immutable at runtime.
type Parameters struct {
	Disease string `json:"disease"`
	// IncubationPeriod in days (time from exposure to infectiousness)
	IncubationPeriod float64 `json:"incubation_period"`
	// InfectiousPeriod in days
	InfectiousPeriod float64 `json:"infectious_period"`
	// R0 is the basic reproduction number
	R0 float64 `json:"r0"`
	// MortalityRate as a fraction of infections
	MortalityRate float64 `json:"mortality_rate"`
	// VaccinationCoverage as a fraction of the population
	VaccinationCoverage float64 `json:"vaccination_coverage"`
	// ContactRate is average daily contacts per person
	ContactRate float64 `json:"contact_rate"`
	// TransmissionProbability per contact
	TransmissionProbability float64 `json:"transmission_probability"`
}

// LatencyRate is sigma, the daily rate of progression from exposed to
// infectious.
func (p Parameters) LatencyRate() float64 {
	if p.IncubationPeriod <= 0 {
		return 0
	}
	return 1 / p.IncubationPeriod
}

// RecoveryRate is gamma, the daily rate of recovery.
func (p Parameters) RecoveryRate() float64 {
	if p.InfectiousPeriod <= 0 {
		return 0
	}
	return 1 / p.InfectiousPeriod
}

// Registry is an immutable disease-name to parameters lookup, built once
// at startup. Unknown diseases are a typed error, never a silent default.
type Registry struct {
	params map[string]Parameters
}

// NewRegistry builds a registry from a parameter list. Lookup is
// case-insensitive on the disease name.
func NewRegistry(params []Parameters) *Registry {
	m := make(map[string]Parameters, len(params))
	for _, p := range params {
		m[strings.ToLower(p.Disease)] = p
	}
	return &Registry{params: m}
}

// Get returns the parameters for a disease or an UnsupportedDisease error.
func (r *Registry) Get(disease string) (Parameters, error) {
	p, ok := r.params[strings.ToLower(disease)]
	if !ok {
		return Parameters{}, errors.UnsupportedDisease(disease)
	}
	return p, nil
}

// Diseases lists the supported disease names, sorted.
func (r *Registry) Diseases() []string {
	names := make([]string, 0, len(r.params))
	for _, p := range r.params {
		names = append(names, p.Disease)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns the registry of diseases under surveillance in
// the rural health program.
func DefaultRegistry() *Registry {
	return NewRegistry([]Parameters{
		{Disease: "Dengue", IncubationPeriod: 6, InfectiousPeriod: 7, R0: 2.5, MortalityRate: 0.005, VaccinationCoverage: 0.05, ContactRate: 10, TransmissionProbability: 0.035},
		{Disease: "Cholera", IncubationPeriod: 2, InfectiousPeriod: 5, R0: 2.0, MortalityRate: 0.01, VaccinationCoverage: 0.02, ContactRate: 8, TransmissionProbability: 0.04},
		{Disease: "Typhoid Fever", IncubationPeriod: 10, InfectiousPeriod: 14, R0: 2.8, MortalityRate: 0.01, VaccinationCoverage: 0.1, ContactRate: 9, TransmissionProbability: 0.03},
		{Disease: "Measles", IncubationPeriod: 11, InfectiousPeriod: 8, R0: 15, MortalityRate: 0.002, VaccinationCoverage: 0.85, ContactRate: 18, TransmissionProbability: 0.09},
		{Disease: "Tuberculosis", IncubationPeriod: 42, InfectiousPeriod: 180, R0: 3.0, MortalityRate: 0.04, VaccinationCoverage: 0.7, ContactRate: 5, TransmissionProbability: 0.02},
		{Disease: "Influenza", IncubationPeriod: 2, InfectiousPeriod: 5, R0: 1.4, MortalityRate: 0.001, VaccinationCoverage: 0.3, ContactRate: 12, TransmissionProbability: 0.025},
		{Disease: "Leptospirosis", IncubationPeriod: 10, InfectiousPeriod: 10, R0: 1.2, MortalityRate: 0.05, VaccinationCoverage: 0, ContactRate: 6, TransmissionProbability: 0.02},
		{Disease: "COVID-19", IncubationPeriod: 5, InfectiousPeriod: 10, R0: 2.9, MortalityRate: 0.01, VaccinationCoverage: 0.6, ContactRate: 11, TransmissionProbability: 0.03},
		{Disease: "Malaria", IncubationPeriod: 12, InfectiousPeriod: 20, R0: 1.8, MortalityRate: 0.003, VaccinationCoverage: 0, ContactRate: 7, TransmissionProbability: 0.025},
		{Disease: "Hepatitis A", IncubationPeriod: 28, InfectiousPeriod: 21, R0: 2.2, MortalityRate: 0.002, VaccinationCoverage: 0.4, ContactRate: 8, TransmissionProbability: 0.025},
	})
}
