package aggregation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"weatherapi/internal/types"
)

// Runner executes a pipeline against a named collection. The record store
// satisfies it; failures are reported as upstream_store_unavailable.
type Runner interface {
	RunAggregation(ctx context.Context, stages mongo.Pipeline, collection string) ([]bson.M, error)
}

// Executor runs plans through a Runner and shapes the raw documents into
// result rows.
type Executor struct {
	runner     Runner
	collection string
}

// NewExecutor creates an Executor that targets collection.
func NewExecutor(runner Runner, collection string) *Executor {
	return &Executor{runner: runner, collection: collection}
}

// Execute performs exactly one store round-trip for plan. Every returned row
// carries exactly plan.Columns(); missing values are nil. Row order is the
// store's order.
func (e *Executor) Execute(ctx context.Context, plan Plan) ([]types.ResultRow, error) {
	docs, err := e.runner.RunAggregation(ctx, plan.Stages(), e.collection)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamStoreUnavailable, "aggregation failed", err)
	}

	columns := plan.Columns()
	rows := make([]types.ResultRow, 0, len(docs))
	for _, doc := range docs {
		row, err := shapeRow(doc, columns)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func shapeRow(doc bson.M, columns []string) (types.ResultRow, error) {
	row := make(types.ResultRow, len(columns))
	for _, col := range columns {
		v, err := normalizeValue(doc[col])
		if err != nil {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeInternalUnexpected,
				"stored value cannot be represented as a number", err,
				map[string]any{"column": col, "sensorId": doc[types.FieldSensorID]})
		}
		row[col] = v
	}
	return row, nil
}

// normalizeValue converts driver values into plain Go values: numbers become
// float64 rounded to one decimal and BSON dates become UTC time.Time. A
// Decimal128 outside the float64 range, or NaN/Infinity, is an error rather
// than a missing value.
func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return Round1(val), nil
	case float32:
		return Round1(float64(val)), nil
	case int32:
		return Round1(float64(val)), nil
	case int64:
		return Round1(float64(val)), nil
	case int:
		return Round1(float64(val)), nil
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("decimal %s: %w", val.String(), err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("decimal %s is not finite", val.String())
		}
		return Round1(f), nil
	case primitive.DateTime:
		return val.Time().UTC(), nil
	case time.Time:
		return val.UTC(), nil
	case primitive.Null, primitive.Undefined:
		return nil, nil
	default:
		return val, nil
	}
}
