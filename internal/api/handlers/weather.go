// Package handlers contains the HTTP handler implementations for the weather
// API.
//
// This file implements the weather handler:
//   - Reading listing (GET /v1/weather)
//   - Reading listing by location (GET /v1/weather/location/{location})
//   - Aggregation query (POST /v1/weather/query)
//   - Reading save (POST /v1/weather/save)
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"weatherapi/internal/core"
	"weatherapi/internal/types"
	"weatherapi/internal/weather"
)

// WeatherServiceInterface is the service contract the handler depends on.
// It mirrors weather.Service and is declared here to keep the handler
// testable with a plain struct mock.
type WeatherServiceInterface interface {
	Query(ctx context.Context, sensorIDs, metrics, stats []string, startDate, endDate string) ([]types.ResultRow, error)
	SaveReading(ctx context.Context, r *types.Reading) (*types.Reading, error)
	ListReadings(ctx context.Context) ([]types.Reading, error)
	ListReadingsByLocation(ctx context.Context, location string) ([]types.Reading, error)
}

// QueryRequest is the body of POST /v1/weather/query. Leaving both dates
// blank asks for each sensor's latest reading.
type QueryRequest struct {
	SensorIDs []string `json:"sensorIds" validate:"required,min=1,dive,required"`
	Metrics   []string `json:"metrics" validate:"required,min=1,dive,required,field_name"`
	Stats     []string `json:"stats"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
}

// ValidationWarnings flags metric names outside types.Metrics. They are
// still queried and come back as null columns.
func (q QueryRequest) ValidationWarnings() []string {
	var warnings []string
	for _, m := range q.Metrics {
		if !types.IsKnownMetric(m) {
			warnings = append(warnings, fmt.Sprintf("metric %q is not a recognized reading field", m))
		}
	}
	return warnings
}

// WeatherHandler maps HTTP requests to the weather service.
type WeatherHandler struct {
	service   WeatherServiceInterface
	validator *core.Validator
	logger    *slog.Logger
}

// NewWeatherHandler creates a WeatherHandler.
func NewWeatherHandler(svc WeatherServiceInterface, val *core.Validator, logger *slog.Logger) *WeatherHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &WeatherHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the weather endpoints. Mount with
// r.Route("/weather", h.RegisterRoutes).
func (h *WeatherHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/location/{location}", h.HandleListByLocation)
	r.Post("/query", h.HandleQuery)
	r.Post("/save", h.HandleSave)
}

// HandleList handles GET /v1/weather.
func (h *WeatherHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	readings, err := h.service.ListReadings(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: nonNil(readings),
		Meta: &types.ResponseMeta{Count: len(readings)},
	})
}

// HandleListByLocation handles GET /v1/weather/location/{location}.
func (h *WeatherHandler) HandleListByLocation(w http.ResponseWriter, r *http.Request) {
	location := strings.TrimSpace(chi.URLParam(r, "location"))
	if location == "" {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"location is required", nil, map[string]any{"field": "location"}))
		return
	}

	readings, err := h.service.ListReadingsByLocation(r.Context(), location)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: nonNil(readings),
		Meta: &types.ResponseMeta{Count: len(readings)},
	})
}

// HandleQuery handles POST /v1/weather/query.
//  1. Decode and validate the body.
//  2. Run the query; the service picks ranged or snapshot mode.
//  3. Return the rows; meta carries warnings about unrecognized metrics.
func (h *WeatherHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	types.LoggerFromContext(r.Context(), h.logger).Info("weather query received",
		slog.Any("sensorIds", req.SensorIDs),
		slog.Any("metrics", req.Metrics),
		slog.Any("stats", req.Stats),
		slog.String("startDate", req.StartDate),
		slog.String("endDate", req.EndDate),
	)

	result := h.validator.ValidateStructWithWarnings(req)
	if !result.IsValid() {
		core.Error(w, r, core.ResultError(result))
		return
	}

	rows, err := h.service.Query(r.Context(), req.SensorIDs, req.Metrics, req.Stats, req.StartDate, req.EndDate)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: nonNil(rows),
		Meta: &types.ResponseMeta{Warnings: result.Warnings, Count: len(rows)},
	})
}

// HandleSave handles POST /v1/weather/save.
func (h *WeatherHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req weather.ReadingPayload
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	reading, err := req.ToReading()
	if err != nil {
		core.Error(w, r, err)
		return
	}

	saved, err := h.service.SaveReading(r.Context(), reading)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: saved})
}

// nonNil renders an empty result as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
