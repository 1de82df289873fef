package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/avolpi/heron/internal/application"
	"github.com/avolpi/heron/internal/domain"
)

type Handlers struct {
	service *application.URLService
	baseURL string
	repo    domain.MappingRepository
	cache   domain.CacheStore
}

func NewHandlers(service *application.URLService, baseURL string, repo domain.MappingRepository, cache domain.CacheStore) *Handlers {
	return &Handlers{
		service: service,
		baseURL: baseURL,
		repo:    repo,
		cache:   cache,
	}
}

// MappingResponse is the JSON shape returned for a single mapping.
type MappingResponse struct {
	ID          int64      `json:"id"`
	ShortURL    string     `json:"shortUrl"`
	ShortCode   string     `json:"shortCode"`
	OriginalURL string     `json:"originalUrl"`
	IsActive    bool       `json:"isActive"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ClickCount  int64      `json:"clickCount"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (h *Handlers) toResponse(m *domain.URLMapping) MappingResponse {
	return MappingResponse{
		ID:          m.ID,
		ShortURL:    h.baseURL + "/" + m.ShortCode,
		ShortCode:   m.ShortCode,
		OriginalURL: m.OriginalURL,
		IsActive:    m.IsActive,
		ExpiresAt:   m.ExpiresAt,
		ClickCount:  m.ClickCount,
		Title:       m.Title,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (h *Handlers) toResponses(mappings []*domain.URLMapping) []MappingResponse {
	responses := make([]MappingResponse, 0, len(mappings))
	for _, m := range mappings {
		responses = append(responses, h.toResponse(m))
	}
	return responses
}

// HandleHealth handles the health check endpoint.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK")
}

// HandleReady handles the readiness check endpoint. The database must be
// reachable; the cache is optional, so its state is reported but never
// fails readiness.
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.HealthCheck(ctx); err != nil {
		slog.Error("Readiness check failed", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Service not ready: database unavailable")
		return
	}

	cacheStatus := "up"
	if err := h.cache.Ping(ctx); err != nil {
		cacheStatus = "down"
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"cache":     cacheStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// HandleShorten creates a new short URL mapping.
func (h *Handlers) HandleShorten(w http.ResponseWriter, r *http.Request) {
	var req application.CreateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mapping, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to create short URL")
		return
	}

	slog.Info("Created short URL", "short_code", mapping.ShortCode, "original_url", mapping.OriginalURL)
	respondWithJSON(w, http.StatusCreated, h.toResponse(mapping))
}

// HandleRedirect resolves a short code and redirects to the original URL.
// Unknown, deleted, inactive and expired codes all answer 404.
func (h *Handlers) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	originalURL, err := h.service.Resolve(r.Context(), shortCode)
	if err != nil {
		if errors.Is(err, domain.ErrMappingNotFound) {
			respondWithError(w, http.StatusNotFound, "Short URL not found")
			return
		}
		slog.Error("Failed to resolve short code", "short_code", shortCode, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve short URL")
		return
	}

	http.Redirect(w, r, originalURL, http.StatusMovedPermanently)
}

// HandleGetURL returns a single mapping by id.
func (h *Handlers) HandleGetURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	mapping, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get URL")
		return
	}
	respondWithJSON(w, http.StatusOK, h.toResponse(mapping))
}

// HandleListURLs lists mappings, optionally filtered to active ones.
func (h *Handlers) HandleListURLs(w http.ResponseWriter, r *http.Request) {
	var (
		mappings []*domain.URLMapping
		err      error
	)
	if r.URL.Query().Get("active") == "true" {
		mappings, err = h.service.GetActive(r.Context())
	} else {
		mappings, err = h.service.GetAll(r.Context())
	}
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to list URLs")
		return
	}
	respondWithJSON(w, http.StatusOK, h.toResponses(mappings))
}

// HandleTopURLs lists the most clicked mappings.
func (h *Handlers) HandleTopURLs(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	mappings, err := h.service.GetMostClicked(r.Context(), limit)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to list top URLs")
		return
	}
	respondWithJSON(w, http.StatusOK, h.toResponses(mappings))
}

// HandleUpdateURL applies a partial patch to a mapping.
func (h *Handlers) HandleUpdateURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req application.UpdateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request", "error", err)
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	mapping, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to update URL")
		return
	}

	slog.Info("Updated short URL", "id", id, "short_code", mapping.ShortCode)
	respondWithJSON(w, http.StatusOK, h.toResponse(mapping))
}

// HandleDeleteURL removes a mapping and its cache entries.
func (h *Handlers) HandleDeleteURL(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondWithServiceError(w, err, "Failed to delete URL")
		return
	}

	slog.Info("Deleted short URL", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeactivateExpired triggers the bulk expiry sweep on demand.
func (h *Handlers) HandleDeactivateExpired(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.DeactivateExpired(r.Context())
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to deactivate expired URLs")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"deactivated": count})
}

// HandlePurge force-evicts every cache entry for a short code.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	purged, err := h.service.Purge(r.Context(), shortCode)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to purge cache")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"purged": purged})
}

func (h *Handlers) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// respondWithServiceError maps engine errors onto HTTP statuses.
func (h *Handlers) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrMappingNotFound):
		respondWithError(w, http.StatusNotFound, "Short URL not found")
	case errors.Is(err, domain.ErrShortCodeExists):
		respondWithError(w, http.StatusConflict, "Short code already exists")
	case errors.Is(err, domain.ErrInvalidShortCode):
		respondWithError(w, http.StatusBadRequest, "Short code must be alphanumeric with the configured length")
	case errors.Is(err, domain.ErrInvalidURL):
		respondWithError(w, http.StatusBadRequest, "URL must be a valid absolute http or https URL")
	case errors.Is(err, domain.ErrInvalidExpiry):
		respondWithError(w, http.StatusBadRequest, "Expiry must be in the future")
	default:
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			handleValidationError(w, validationErrors)
			return
		}
		slog.Error(fallback, "error", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     map[string]string `json:"error"`
	Timestamp string            `json:"timestamp"`
}

// ValidationErrorResponse represents a validation error response.
type ValidationErrorResponse struct {
	Details map[string]string `json:"details"`
	Error   string            `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func handleValidationError(w http.ResponseWriter, validationErrors validator.ValidationErrors) {
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		field := getJSONFieldName(e)
		switch e.Tag() {
		case "required":
			errorMessages[field] = fmt.Sprintf("%s is required", field)
		case "url", "http_url":
			errorMessages[field] = fmt.Sprintf("%s must be a valid http(s) URL", field)
		case "alphanum":
			errorMessages[field] = fmt.Sprintf("%s must contain only alphanumeric characters", field)
		case "min":
			errorMessages[field] = fmt.Sprintf("%s must be at least %s characters long", field, e.Param())
		case "max":
			errorMessages[field] = fmt.Sprintf("%s must be at most %s characters long", field, e.Param())
		default:
			errorMessages[field] = fmt.Sprintf("%s is invalid", field)
		}
	}

	respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "Validation failed",
		"details": errorMessages,
	})
}

// getJSONFieldName extracts the JSON tag name from a validation error
func getJSONFieldName(e validator.FieldError) string {
	structType := getStructTypeFromError(e)
	if structType == nil {
		return e.Field()
	}

	field, found := structType.FieldByName(e.StructField())
	if !found {
		return e.Field()
	}

	jsonTag := field.Tag.Get("json")
	if jsonTag == "" {
		return e.Field()
	}

	if commaIndex := strings.Index(jsonTag, ","); commaIndex != -1 {
		jsonTag = jsonTag[:commaIndex]
	}

	return jsonTag
}

// getStructTypeFromError extracts the struct type from a validation error
func getStructTypeFromError(e validator.FieldError) reflect.Type {
	// The StructNamespace gives us something like "CreateURLRequest.URL"
	namespace := e.StructNamespace()

	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return nil
	}

	return getTypeFromStructName(parts[0])
}

// getTypeFromStructName returns the reflect.Type for a given struct name
// This acts as a registry for known request types
func getTypeFromStructName(structName string) reflect.Type {
	switch structName {
	case "CreateURLRequest":
		return reflect.TypeOf(application.CreateURLRequest{})
	case "UpdateURLRequest":
		return reflect.TypeOf(application.UpdateURLRequest{})
	default:
		return nil
	}
}
