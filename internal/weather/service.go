// Package weather is the query service sitting between the HTTP layer and the
// aggregation core. It parses caller input, picks the query mode and fronts
// the reading write path.
package weather

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"weatherapi/internal/aggregation"
	"weatherapi/internal/types"
)

// DateLayout is the accepted format of startDate and endDate.
const DateLayout = "2006-01-02"

// Repository is the record store as seen by the service.
type Repository interface {
	aggregation.Runner
	Save(ctx context.Context, r *types.Reading) (*types.Reading, error)
	FindAll(ctx context.Context) ([]types.Reading, error)
	FindByLocation(ctx context.Context, location string) ([]types.Reading, error)
}

// Service answers weather queries and stores readings.
type Service interface {
	// Query runs a ranged query when both dates are given and a latest
	// snapshot when both are blank.
	Query(ctx context.Context, sensorIDs, metrics, stats []string, startDate, endDate string) ([]types.ResultRow, error)
	SaveReading(ctx context.Context, r *types.Reading) (*types.Reading, error)
	ListReadings(ctx context.Context) ([]types.Reading, error)
	ListReadingsByLocation(ctx context.Context, location string) ([]types.Reading, error)
}

type service struct {
	repo     Repository
	executor *aggregation.Executor
	logger   *slog.Logger
}

// NewService creates a Service. collection names the readings collection the
// aggregations run against.
func NewService(repo Repository, collection string, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:     repo,
		executor: aggregation.NewExecutor(repo, collection),
		logger:   logger,
	}
}

// ParseDate parses a yyyy-MM-dd value as midnight UTC. A blank value means
// the bound is absent and yields nil.
func ParseDate(field, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidDate,
			field+" must use the yyyy-MM-dd format",
			err,
			map[string]any{"field": field, "value": value},
		)
	}
	return &t, nil
}

func (s *service) Query(ctx context.Context, sensorIDs, metrics, stats []string, startDate, endDate string) ([]types.ResultRow, error) {
	start, err := ParseDate("startDate", startDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate("endDate", endDate)
	if err != nil {
		return nil, err
	}
	if end != nil {
		// The end date is inclusive of its whole day.
		last := end.Add(24*time.Hour - time.Millisecond)
		end = &last
	}

	plan, err := aggregation.NewPlan(aggregation.Filter{
		SensorIDs: sensorIDs,
		Metrics:   metrics,
		Stats:     stats,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, err
	}

	rows, err := s.executor.Execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	types.LoggerFromContext(ctx, s.logger).Debug("weather query executed",
		"mode", plan.Mode().String(),
		"sensors", len(sensorIDs),
		"rows", len(rows),
	)
	return rows, nil
}

func (s *service) SaveReading(ctx context.Context, r *types.Reading) (*types.Reading, error) {
	if r == nil || strings.TrimSpace(r.SensorID) == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"sensorId is required", nil, map[string]any{"field": "sensorId"})
	}
	if r.Timestamp.IsZero() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"timestamp is required", nil, map[string]any{"field": "timestamp"})
	}

	saved, err := s.repo.Save(ctx, r)
	if err != nil {
		return nil, storeError(err, "failed to save reading")
	}
	types.LoggerFromContext(ctx, s.logger).Debug("reading saved", "id", saved.ID, "sensor_id", saved.SensorID)
	return saved, nil
}

func (s *service) ListReadings(ctx context.Context) ([]types.Reading, error) {
	readings, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, storeError(err, "failed to list readings")
	}
	return readings, nil
}

func (s *service) ListReadingsByLocation(ctx context.Context, location string) ([]types.Reading, error) {
	readings, err := s.repo.FindByLocation(ctx, location)
	if err != nil {
		return nil, storeError(err, "failed to list readings by location")
	}
	return readings, nil
}

// storeError keeps AppErrors intact and tags anything else as a store
// failure.
func storeError(err error, msg string) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStoreUnavailable, msg, err)
}
