package forecast

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yellyhaze23/prms-forecast/internal/shared/auth"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// Handler provides HTTP handlers for forecasts and the run ledger
type Handler struct {
	service *Service
	ledger  *Repository
}

// NewHandler creates a new forecast handler
func NewHandler(service *Service, ledger *Repository) *Handler {
	return &Handler{service: service, ledger: ledger}
}

// Routes registers the forecast routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetForecast)
	r.Get("/runs", h.ListRuns)
	r.Delete("/runs/{runID}", h.DeleteRun)

	return r
}

// GetForecast serves a forecast for the query parameters, computing one
// through the external forecaster on a cache miss
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := Request{
		Disease: q.Get("disease"),
		Type:    Type(q.Get("type")),
	}

	if raw := q.Get("area_id"); raw != "" {
		id, err := types.ParseID(raw)
		if err != nil {
			writeError(w, errors.BadRequest("invalid area_id"))
			return
		}
		req.AreaID = &id
	}

	if raw := q.Get("horizon"); raw != "" {
		horizon, err := strconv.Atoi(raw)
		if err != nil || horizon <= 0 || horizon > 24 {
			writeError(w, errors.BadRequest("horizon must be between 1 and 24 months"))
			return
		}
		req.Horizon = horizon
	}

	if raw := q.Get("population"); raw != "" {
		population, err := strconv.Atoi(raw)
		if err != nil || population <= 0 {
			writeError(w, errors.InvalidPopulation(population))
			return
		}
		req.Population = population
	}

	result, err := h.service.GetForecast(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListRuns returns the newest ledger entries
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, errors.BadRequest("invalid limit"))
			return
		}
		limit = n
	}

	runs, err := h.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// DeleteRun removes one ledger entry by identifier
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, errors.BadRequest("invalid run ID"))
		return
	}

	if user := auth.GetUser(r.Context()); user != nil {
		log.Printf("forecast: run %s deleted by %s", id, user.ID)
	}

	if err := h.ledger.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
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
