package epi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
)

// Handler provides HTTP handlers for SEIR simulations
type Handler struct {
	sim               *Simulator
	defaultPopulation int
}

// NewHandler creates a new simulation handler
func NewHandler(sim *Simulator, defaultPopulation int) *Handler {
	return &Handler{sim: sim, defaultPopulation: defaultPopulation}
}

// Routes registers the simulation routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.RunSimulation)
	r.Get("/diseases", h.ListDiseases)

	return r
}

// SimulationRequest asks for a SEIR projection for one disease.
type SimulationRequest struct {
	Disease     string `json:"disease"`
	Population  int    `json:"population,omitempty"`
	HorizonDays int    `json:"horizon_days,omitempty"`
}

// RunSimulation runs a SEIR projection seeded from live case data
func (h *Handler) RunSimulation(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Disease == "" {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"disease": "disease is required",
		}))
		return
	}

	if req.Population == 0 {
		req.Population = h.defaultPopulation
	}
	if req.HorizonDays <= 0 {
		req.HorizonDays = 30
	}

	run, err := h.sim.Simulate(r.Context(), req.Disease, req.Population, req.HorizonDays)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListDiseases lists the diseases with registered epidemic parameters
func (h *Handler) ListDiseases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"diseases": h.sim.registry.Diseases(),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
