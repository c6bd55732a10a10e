package aggregate

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yellyhaze23/prms-forecast/internal/shared/auth"
	"github.com/yellyhaze23/prms-forecast/internal/shared/errors"
	"github.com/yellyhaze23/prms-forecast/internal/shared/types"
)

// Handler provides the maintenance hooks called by the records application
// and the raw aggregate query surface.
type Handler struct {
	svc  *Service
	repo *Repository
}

// NewHandler creates a new aggregate handler
func NewHandler(svc *Service, repo *Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// Routes registers the aggregate routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/events", func(r chi.Router) {
		r.Post("/inserted", h.EventInserted)
		r.Post("/updated", h.EventUpdated)
		r.Post("/deleted", h.EventDeleted)
	})

	r.Route("/aggregates", func(r chi.Router) {
		r.Get("/", h.ListAggregates)
		r.Post("/rebuild", h.Rebuild)
	})

	return r
}

// UpdatedEventRequest carries the before and after images of an edited
// diagnosis event.
type UpdatedEventRequest struct {
	Old DiagnosisEvent `json:"old"`
	New DiagnosisEvent `json:"new"`
}

// EventInserted handles the insert hook. Maintenance failures never fail
// the triggering CRUD write, so this always acknowledges.
func (h *Handler) EventInserted(w http.ResponseWriter, r *http.Request) {
	var e DiagnosisEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.svc.OnEventInserted(r.Context(), e)
	w.WriteHeader(http.StatusAccepted)
}

// EventUpdated handles the update hook
func (h *Handler) EventUpdated(w http.ResponseWriter, r *http.Request) {
	var req UpdatedEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.svc.OnEventUpdated(r.Context(), req.Old, req.New)
	w.WriteHeader(http.StatusAccepted)
}

// EventDeleted handles the delete hook
func (h *Handler) EventDeleted(w http.ResponseWriter, r *http.Request) {
	var e DiagnosisEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	h.svc.OnEventDeleted(r.Context(), e)
	w.WriteHeader(http.StatusAccepted)
}

// Rebuild regenerates the aggregate table from the event log
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if user := auth.GetUser(r.Context()); user != nil {
		log.Printf("aggregate: rebuild requested by %s", user.ID)
	}

	if err := h.svc.RebuildAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

// ListAggregates returns raw historical aggregates for the UI
func (h *Handler) ListAggregates(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Disease: r.URL.Query().Get("disease"),
	}

	if a := r.URL.Query().Get("area_id"); a != "" {
		id, err := types.ParseID(a)
		if err != nil {
			writeError(w, errors.BadRequest("invalid area ID"))
			return
		}
		filter.AreaID = &id
	}

	aggregates, total, err := h.repo.ListAggregates(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  aggregates,
		"total": total,
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
