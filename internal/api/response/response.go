// Package response provides utilities for HTTP response handling.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skyglance/skyglance/internal/api/middleware"
	"github.com/skyglance/skyglance/internal/api/models"
	"github.com/skyglance/skyglance/internal/weather"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, fieldErrors []models.FieldError) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewBadRequest(traceID, detail, fieldErrors)
	Error(w, r, problem)
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewNotFound(traceID, detail)
	Error(w, r, problem)
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewInternalError(traceID, detail)
	Error(w, r, problem)
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	problem := models.NewServiceUnavailable(traceID, detail)
	Error(w, r, problem)
}

// NoContent writes a 204 No Content response.
// Includes X-Request-Id header for correlation.
func NoContent(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// WeatherError maps a facade error onto a problem response. The detail is
// the localized facade message. Errors that are not *weather.Error become 500.
func WeatherError(w http.ResponseWriter, r *http.Request, err error) {
	traceID := middleware.GetRequestID(r.Context())

	var werr *weather.Error
	if !errors.As(err, &werr) {
		Error(w, r, models.NewInternalError(traceID, "unexpected error"))
		return
	}

	var problem *models.Problem
	switch werr.Kind {
	case weather.KindLocationNotFound:
		problem = models.NewProblem(models.ProblemTypeLocationNotFound, "Location not found", http.StatusNotFound, traceID)
	case weather.KindInvalidCoordinates:
		problem = models.NewProblem(models.ProblemTypeInvalidCoordinates, "Invalid coordinates", http.StatusBadRequest, traceID)
	case weather.KindOffline:
		problem = models.NewProblem(models.ProblemTypeOffline, "Offline", http.StatusServiceUnavailable, traceID)
	case weather.KindWeatherUnavailable:
		problem = models.NewProblem(models.ProblemTypeWeatherUnavailable, "Weather unavailable", http.StatusServiceUnavailable, traceID)
	default:
		problem = models.NewInternalError(traceID, "")
	}
	problem.Detail = werr.Message
	Error(w, r, problem)
}
