// Package aggregation turns a weather query into an ordered list of MongoDB
// aggregation stages and shapes the rows the store returns.
//
// Planning is pure: NewPlan never performs I/O, so every plan can be
// inspected in tests before it reaches the store.
package aggregation

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"weatherapi/internal/types"
)

// Mode identifies the kind of plan NewPlan produced.
type Mode int

const (
	// ModeRanged summarizes each sensor's readings inside a time window.
	ModeRanged Mode = iota
	// ModeSnapshot reports each sensor's latest reading.
	ModeSnapshot
)

func (m Mode) String() string {
	switch m {
	case ModeRanged:
		return "ranged"
	case ModeSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Filter is the caller's query. Start and End are either both set (ranged
// mode) or both nil (snapshot mode); End is an inclusive bound.
type Filter struct {
	SensorIDs []string
	Metrics   []string
	Stats     []string
	Start     *time.Time
	End       *time.Time
}

// Plan is an executable aggregation. Implementations are *RangedPlan and
// *SnapshotPlan.
type Plan interface {
	// Stages returns the pipeline in execution order.
	Stages() mongo.Pipeline
	// Columns lists the keys every result row carries, in output order.
	Columns() []string
	Mode() Mode
}

// RangedPlan groups readings per sensor inside [Start, End] and computes
// every statistic for every metric.
type RangedPlan struct {
	SensorIDs []string
	Metrics   []string
	Stats     []Statistic
	Start     time.Time
	End       time.Time
}

// SnapshotPlan picks the most recent reading of each sensor.
type SnapshotPlan struct {
	SensorIDs []string
	Metrics   []string
}

// NewPlan validates f and builds the plan for it. The mode is decided only by
// whether both dates are present; Stats is ignored in snapshot mode.
func NewPlan(f Filter) (Plan, error) {
	if len(f.SensorIDs) == 0 {
		return nil, missingField("sensorIds")
	}
	metrics := dedupe(f.Metrics)
	if len(metrics) == 0 {
		return nil, missingField("metrics")
	}
	for _, metric := range metrics {
		if err := checkMetric(metric); err != nil {
			return nil, err
		}
	}

	switch {
	case f.Start == nil && f.End == nil:
		return &SnapshotPlan{SensorIDs: f.SensorIDs, Metrics: metrics}, nil
	case f.Start == nil || f.End == nil:
		return nil, types.NewAppError(types.ErrCodeValidationTimeWindow,
			"startDate and endDate must be provided together", nil)
	case f.End.Before(*f.Start):
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationTimeWindow,
			"endDate must not be before startDate", nil,
			map[string]any{"start": f.Start.Format(time.RFC3339), "end": f.End.Format(time.RFC3339)})
	}

	// Resolve the whole list before any stage exists so an unknown name
	// never yields a partial pipeline.
	stats, err := ResolveStatistics(dedupe(f.Stats))
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, missingField("stats")
	}

	return &RangedPlan{
		SensorIDs: f.SensorIDs,
		Metrics:   metrics,
		Stats:     stats,
		Start:     f.Start.UTC(),
		End:       f.End.UTC(),
	}, nil
}

func (p *RangedPlan) Mode() Mode { return ModeRanged }

// Columns returns sensorId, timestamp and then one field per (metric, stat)
// in metric-major order.
func (p *RangedPlan) Columns() []string {
	cols := make([]string, 0, 2+len(p.Metrics)*len(p.Stats))
	cols = append(cols, types.FieldSensorID, types.FieldTimestamp)
	for _, metric := range p.Metrics {
		for _, stat := range p.Stats {
			cols = append(cols, FieldName(stat, metric))
		}
	}
	return cols
}

func (p *RangedPlan) Stages() mongo.Pipeline {
	group := bson.D{
		{Key: "_id", Value: fieldRef(types.FieldSensorID)},
		{Key: types.FieldTimestamp, Value: bson.D{{Key: "$max", Value: fieldRef(types.FieldTimestamp)}}},
	}
	project := bson.D{
		{Key: "_id", Value: 0},
		{Key: types.FieldSensorID, Value: "$_id"},
		{Key: types.FieldTimestamp, Value: 1},
	}
	for _, metric := range p.Metrics {
		for _, stat := range p.Stats {
			field := FieldName(stat, metric)
			group = append(group, bson.E{Key: field, Value: bson.D{{Key: stat.Operator, Value: fieldRef(metric)}}})
			project = append(project, bson.E{Key: field, Value: round1Expr(fieldRef(field))})
		}
	}

	return mongo.Pipeline{
		matchSensors(p.SensorIDs),
		{{Key: "$match", Value: bson.D{{Key: types.FieldTimestamp, Value: bson.D{
			{Key: "$gte", Value: p.Start},
			{Key: "$lte", Value: p.End},
		}}}}},
		{{Key: "$group", Value: group}},
		{{Key: "$project", Value: project}},
		sortBySensor(),
	}
}

func (p *SnapshotPlan) Mode() Mode { return ModeSnapshot }

// Columns returns sensorId, timestamp and the bare metric names.
func (p *SnapshotPlan) Columns() []string {
	cols := make([]string, 0, 2+len(p.Metrics))
	cols = append(cols, types.FieldSensorID, types.FieldTimestamp)
	return append(cols, p.Metrics...)
}

func (p *SnapshotPlan) Stages() mongo.Pipeline {
	group := bson.D{
		{Key: "_id", Value: fieldRef(types.FieldSensorID)},
		{Key: types.FieldSensorID, Value: bson.D{{Key: "$first", Value: fieldRef(types.FieldSensorID)}}},
	}
	project := bson.D{
		{Key: "_id", Value: 0},
		{Key: types.FieldSensorID, Value: 1},
		{Key: types.FieldTimestamp, Value: 1},
	}
	for _, metric := range p.Metrics {
		group = append(group, bson.E{Key: metric, Value: bson.D{{Key: "$first", Value: fieldRef(metric)}}})
		project = append(project, bson.E{Key: metric, Value: round1Expr(fieldRef(metric))})
	}
	group = append(group, bson.E{Key: types.FieldTimestamp, Value: bson.D{{Key: "$first", Value: fieldRef(types.FieldTimestamp)}}})

	return mongo.Pipeline{
		matchSensors(p.SensorIDs),
		{{Key: "$sort", Value: bson.D{{Key: types.FieldTimestamp, Value: -1}}}},
		{{Key: "$group", Value: group}},
		{{Key: "$project", Value: project}},
		sortBySensor(),
	}
}

func matchSensors(ids []string) bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: types.FieldSensorID, Value: bson.D{{Key: "$in", Value: ids}}},
	}}}
}

func sortBySensor() bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{{Key: types.FieldSensorID, Value: 1}}}}
}

// checkMetric rejects names that would address an operator, a nested path or
// one of the grouping fields the plan already emits.
func checkMetric(name string) *types.AppError {
	switch {
	case name == "":
		return missingField("metrics")
	case strings.ContainsAny(name, "$."):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			"metric names must not contain '$' or '.'", nil, map[string]any{"metric": name})
	case types.IsReservedField(name):
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			"metric "+name+" is not a numeric reading field", nil, map[string]any{"metric": name})
	}
	return nil
}

func missingField(field string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
		field+" must not be empty", nil, map[string]any{"field": field})
}

// dedupe drops repeated names, keeping first occurrences in order. Repeats
// would produce duplicate keys inside a single stage.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
