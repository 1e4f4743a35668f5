package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"github.com/skyglance/skyglance/internal/api/middleware"
	"github.com/skyglance/skyglance/internal/api/models"
	"github.com/skyglance/skyglance/internal/api/response"
	"github.com/skyglance/skyglance/internal/featureflags"
)

// maxFlagUpdateBody bounds PUT /v1/ops/flags request bodies.
const maxFlagUpdateBody = 64 << 10

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	logger  zerolog.Logger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, logger zerolog.Logger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, logger: logger}
}

// ListFeatureFlags handles GET /v1/ops/flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.list(r))
}

// UpsertFeatureFlags handles PUT /v1/ops/flags. Only well-known flags with
// boolean values are accepted; the whole batch is rejected on any bad entry.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var req featureflags.FlagUpdateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFlagUpdateBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	if len(req.Updates) == 0 {
		response.BadRequest(w, r, "no updates", []models.FieldError{
			{Field: "updates", Message: "must not be empty", Code: "REQUIRED"},
		})
		return
	}

	var fieldErrors []models.FieldError
	flags := make([]*featureflags.Flag, 0, len(req.Updates))
	for i, u := range req.Updates {
		field := fmt.Sprintf("updates[%d]", i)
		if !featureflags.IsKnown(u.Key) {
			fieldErrors = append(fieldErrors, models.FieldError{Field: field + ".key", Message: "unknown flag", Code: "UNKNOWN_FLAG"})
			continue
		}
		if _, ok := u.Value.(bool); !ok {
			fieldErrors = append(fieldErrors, models.FieldError{Field: field + ".value", Message: "must be a boolean", Code: "INVALID_VALUE"})
			continue
		}
		flags = append(flags, &featureflags.Flag{Key: u.Key, Value: u.Value})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid flag updates", fieldErrors)
		return
	}

	if err := h.service.SetFlags(r.Context(), flags); err != nil {
		h.logger.Error().Err(err).Msg("failed to update feature flags")
		response.InternalError(w, r, "failed to update feature flags")
		return
	}

	evt := h.logger.Info().
		Str("admin", middleware.GetAdminSubject(r.Context())).
		Str("reason", req.Reason)
	for _, f := range flags {
		evt = evt.Interface(f.Key, f.Value)
	}
	evt.Msg("feature flags updated")

	response.JSON(w, r, http.StatusOK, h.list(r))
}

// InvalidateCache handles POST /v1/ops/flags/invalidate - drops the flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}

func (h *FeatureFlagsHandler) list(r *http.Request) featureflags.FlagList {
	all := h.service.GetAllFlags(r.Context())
	items := make([]featureflags.Flag, 0, len(all))
	for _, f := range all {
		items = append(items, *f)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return featureflags.FlagList{Items: items}
}
