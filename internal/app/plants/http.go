package plants

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/plantbuddy/project/internal/domain"
)

type Handler struct {
	Service       *Service
	AllowedOrigin string
	// Ready backs /readyz; nil means always ready.
	Ready   func(ctx context.Context) error
	Metrics http.Handler
}

func NewHandler(service *Service, allowedOrigin string) *Handler {
	return &Handler{
		Service:       service,
		AllowedOrigin: allowedOrigin,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.corsMiddleware)
	r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", h.handleReady)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/options", h.handleOptions)
		r.Post("/plants", h.handleAddPlant)
		r.Get("/plants", h.handleListPlants)
		r.Route("/plants/{plantID}", func(r chi.Router) {
			r.Get("/", h.handleGetPlant)
			r.Put("/", h.handleUpdatePlant)
			r.Delete("/", h.handleDeletePlant)
			r.Post("/watering", h.handleRecordCare("record watering", h.Service.RecordWatering))
			r.Post("/fertilizing", h.handleRecordCare("record fertilizing", h.Service.RecordFertilizing))
			r.Get("/reminders", h.handleListReminders)
			r.Post("/reminders/{careType}/reschedule", h.handleReschedule)
			r.Get("/events", h.handleHistory)
		})
	})
	return r
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handleOptions(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Service.Options())
}

func (h *Handler) handleAddPlant(w http.ResponseWriter, r *http.Request) {
	var in PlantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	id, err := h.Service.AddPlant(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, "add plant", "", err)
		return
	}
	view, err := h.Service.GetPlantView(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get plant", id, err)
		return
	}
	w.Header().Set("Location", "/api/v1/plants/"+url.PathEscape(id))
	h.writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleListPlants(w http.ResponseWriter, r *http.Request) {
	location := domain.Location(strings.TrimSpace(r.URL.Query().Get("location")))
	views, err := h.Service.ListPlants(r.Context(), location)
	if err != nil {
		h.writeServiceError(w, "list plants", "", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"plants": views})
}

func (h *Handler) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	plantID := chi.URLParam(r, "plantID")
	view, err := h.Service.GetPlantView(r.Context(), plantID)
	if err != nil {
		h.writeServiceError(w, "get plant", plantID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleUpdatePlant(w http.ResponseWriter, r *http.Request) {
	plantID := chi.URLParam(r, "plantID")
	var in PlantInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if _, err := h.Service.UpdatePlant(r.Context(), plantID, in); err != nil {
		h.writeServiceError(w, "update plant", plantID, err)
		return
	}
	view, err := h.Service.GetPlantView(r.Context(), plantID)
	if err != nil {
		h.writeServiceError(w, "get plant", plantID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	plantID := chi.URLParam(r, "plantID")
	if err := h.Service.DeletePlant(r.Context(), plantID); err != nil {
		h.writeServiceError(w, "delete plant", plantID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecordCare(op string, record func(context.Context, string) (PlantView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plantID := chi.URLParam(r, "plantID")
		view, err := record(r.Context(), plantID)
		if err != nil {
			h.writeServiceError(w, op, plantID, err)
			return
		}
		h.writeJSON(w, http.StatusOK, view)
	}
}

func (h *Handler) handleListReminders(w http.ResponseWriter, r *http.Request) {
	plantID := chi.URLParam(r, "plantID")
	reminders, err := h.Service.ListOutstanding(r.Context(), plantID)
	if err != nil {
		h.writeServiceError(w, "list reminders", plantID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (h *Handler) handleReschedule(w http.ResponseWriter, r *http.Request) {
	plantID := chi.URLParam(r, "plantID")
	careType := domain.CareType(chi.URLParam(r, "careType"))
	reminder, err := h.Service.Reschedule(r.Context(), plantID, careType)
	if err != nil {
		h.writeServiceError(w, "reschedule", plantID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reminder)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	plantID := chi.URLParam(r, "plantID")
	events, err := h.Service.History(r.Context(), plantID)
	if err != nil {
		h.writeServiceError(w, "history", plantID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// writeServiceError maps the domain error kinds onto status codes. Anything
// unexpected is logged here, once, with the operation and plant id.
func (h *Handler) writeServiceError(w http.ResponseWriter, op, plantID string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr.Error(), "fields": verr.Errors})
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.Service.Logger.Error("request failed", "op", op, "plant_id", plantID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin, Access-Control-Request-Headers")
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOriginForRequest(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		requestHeaders := strings.TrimSpace(r.Header.Get("Access-Control-Request-Headers"))
		if requestHeaders != "" {
			w.Header().Set("Access-Control-Allow-Headers", requestHeaders)
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) allowedOriginForRequest(requestOrigin string) string {
	allowed := strings.TrimSpace(h.AllowedOrigin)
	if allowed == "" || allowed == "*" {
		return "*"
	}
	origin := strings.TrimSpace(requestOrigin)
	if origin == "" {
		return allowed
	}
	if origin == allowed || isEquivalentLoopbackOrigin(origin, allowed) {
		return origin
	}
	return allowed
}

func isEquivalentLoopbackOrigin(originA, originB string) bool {
	a, err := url.Parse(originA)
	if err != nil {
		return false
	}
	b, err := url.Parse(originB)
	if err != nil {
		return false
	}
	if !isLoopbackHost(a.Hostname()) || !isLoopbackHost(b.Hostname()) {
		return false
	}
	return a.Port() == b.Port() && strings.EqualFold(a.Scheme, b.Scheme)
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
