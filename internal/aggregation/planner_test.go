package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"weatherapi/internal/types"
)

func window(t *testing.T) (*time.Time, *time.Time) {
	t.Helper()
	start := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 11, 8, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	return &start, &end
}

// stageOp returns the operator name and body of a single-key stage.
func stageOp(t *testing.T, stage bson.D) (string, bson.D) {
	t.Helper()
	require.Len(t, stage, 1)
	body, ok := stage[0].Value.(bson.D)
	require.True(t, ok, "stage body should be bson.D, got %T", stage[0].Value)
	return stage[0].Key, body
}

func keys(d bson.D) []string {
	out := make([]string, 0, len(d))
	for _, e := range d {
		out = append(out, e.Key)
	}
	return out
}

func TestNewPlan_RangedScenario(t *testing.T) {
	start, end := window(t)

	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1", "s2"},
		Metrics:   []string{"temperature"},
		Stats:     []string{"average", "max"},
		Start:     start,
		End:       end,
	})
	require.NoError(t, err)

	ranged, ok := plan.(*RangedPlan)
	require.True(t, ok, "expected *RangedPlan, got %T", plan)
	assert.Equal(t, ModeRanged, plan.Mode())
	assert.Equal(t, []string{"sensorId", "timestamp", "avgtemperature", "maxtemperature"}, ranged.Columns())

	stages := plan.Stages()
	require.Len(t, stages, 5)

	op, body := stageOp(t, stages[0])
	assert.Equal(t, "$match", op)
	assert.Equal(t, bson.D{{Key: "sensorId", Value: bson.D{{Key: "$in", Value: []string{"s1", "s2"}}}}}, body)

	op, body = stageOp(t, stages[1])
	assert.Equal(t, "$match", op)
	assert.Equal(t, bson.D{{Key: "timestamp", Value: bson.D{
		{Key: "$gte", Value: *start},
		{Key: "$lte", Value: *end},
	}}}, body)

	op, body = stageOp(t, stages[2])
	assert.Equal(t, "$group", op)
	assert.Equal(t, []string{"_id", "timestamp", "avgtemperature", "maxtemperature"}, keys(body))
	assert.Equal(t, "$sensorId", body[0].Value)
	assert.Equal(t, bson.D{{Key: "$avg", Value: "$temperature"}}, body[2].Value)
	assert.Equal(t, bson.D{{Key: "$max", Value: "$temperature"}}, body[3].Value)

	op, body = stageOp(t, stages[3])
	assert.Equal(t, "$project", op)
	assert.Equal(t, []string{"_id", "sensorId", "timestamp", "avgtemperature", "maxtemperature"}, keys(body))
	assert.Equal(t, round1Expr("$avgtemperature"), body[3].Value)

	op, body = stageOp(t, stages[4])
	assert.Equal(t, "$sort", op)
	assert.Equal(t, bson.D{{Key: "sensorId", Value: 1}}, body)
}

func TestNewPlan_RangedFieldCountIsProduct(t *testing.T) {
	start, end := window(t)
	allStats := []string{"average", "max", "min", "sum"}

	for m := 1; m <= len(types.Metrics); m++ {
		for s := 1; s <= len(allStats); s++ {
			plan, err := NewPlan(Filter{
				SensorIDs: []string{"s1"},
				Metrics:   types.Metrics[:m],
				Stats:     allStats[:s],
				Start:     start,
				End:       end,
			})
			require.NoError(t, err)

			// sensorId + timestamp + metrics x stats
			assert.Len(t, plan.Columns(), 2+m*s, "metrics=%d stats=%d", m, s)

			_, project := stageOp(t, plan.Stages()[3])
			for _, e := range project[3:] {
				assert.Equal(t, round1Expr("$"+e.Key), e.Value, "field %s should be rounded", e.Key)
			}
		}
	}
}

func TestNewPlan_MetricMajorOrder(t *testing.T) {
	start, end := window(t)

	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature", "humidity"},
		Stats:     []string{"min", "sum"},
		Start:     start,
		End:       end,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"sensorId", "timestamp",
		"mintemperature", "sumtemperature",
		"minhumidity", "sumhumidity",
	}, plan.Columns())
}

func TestNewPlan_MetricCaseKept(t *testing.T) {
	start, end := window(t)

	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"Temperature"},
		Stats:     []string{"average"},
		Start:     start,
		End:       end,
	})
	require.NoError(t, err)
	assert.Contains(t, plan.Columns(), "avgTemperature")
}

func TestNewPlan_UnknownStatistic(t *testing.T) {
	start, end := window(t)

	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature"},
		Stats:     []string{"average", "bogus"},
		Start:     start,
		End:       end,
	})

	require.Error(t, err)
	assert.Nil(t, plan)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationUnknownStat))

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "bogus", appErr.Details["stat"])
}

func TestNewPlan_EmptyStatsInRangedMode(t *testing.T) {
	start, end := window(t)

	_, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature"},
		Start:     start,
		End:       end,
	})
	assert.True(t, types.HasCode(err, types.ErrCodeValidationMissingField))
}

func TestNewPlan_SnapshotScenario(t *testing.T) {
	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature", "humidity"},
	})
	require.NoError(t, err)

	_, ok := plan.(*SnapshotPlan)
	require.True(t, ok, "expected *SnapshotPlan, got %T", plan)
	assert.Equal(t, ModeSnapshot, plan.Mode())
	assert.Equal(t, []string{"sensorId", "timestamp", "temperature", "humidity"}, plan.Columns())

	stages := plan.Stages()
	require.Len(t, stages, 5)

	op, _ := stageOp(t, stages[0])
	assert.Equal(t, "$match", op)

	op, body := stageOp(t, stages[1])
	assert.Equal(t, "$sort", op)
	assert.Equal(t, bson.D{{Key: "timestamp", Value: -1}}, body)

	op, body = stageOp(t, stages[2])
	assert.Equal(t, "$group", op)
	assert.Equal(t, []string{"_id", "sensorId", "temperature", "humidity", "timestamp"}, keys(body))
	assert.Equal(t, "$sensorId", body[0].Value)
	for _, e := range body[1:] {
		assert.Equal(t, bson.D{{Key: "$first", Value: "$" + e.Key}}, e.Value)
	}

	op, body = stageOp(t, stages[3])
	assert.Equal(t, "$project", op)
	assert.Equal(t, []string{"_id", "sensorId", "timestamp", "temperature", "humidity"}, keys(body))
	assert.Equal(t, round1Expr("$humidity"), body[4].Value)

	op, body = stageOp(t, stages[4])
	assert.Equal(t, "$sort", op)
	assert.Equal(t, bson.D{{Key: "sensorId", Value: 1}}, body)
}

func TestNewPlan_SnapshotIgnoresStats(t *testing.T) {
	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature"},
		Stats:     []string{"bogus"},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeSnapshot, plan.Mode())
}

func TestNewPlan_TimeWindowErrors(t *testing.T) {
	start, end := window(t)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
	}{
		{"start only", start, nil},
		{"end only", nil, end},
		{"reversed", end, start},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(Filter{
				SensorIDs: []string{"s1"},
				Metrics:   []string{"temperature"},
				Stats:     []string{"average"},
				Start:     tt.start,
				End:       tt.end,
			})
			assert.True(t, types.HasCode(err, types.ErrCodeValidationTimeWindow), "got %v", err)
		})
	}
}

func TestNewPlan_SameDayWindowAllowed(t *testing.T) {
	day := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)

	_, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature"},
		Stats:     []string{"sum"},
		Start:     &day,
		End:       &day,
	})
	assert.NoError(t, err)
}

func TestNewPlan_MissingSensorsOrMetrics(t *testing.T) {
	_, err := NewPlan(Filter{Metrics: []string{"temperature"}})
	assert.True(t, types.HasCode(err, types.ErrCodeValidationMissingField))

	_, err = NewPlan(Filter{SensorIDs: []string{"s1"}})
	assert.True(t, types.HasCode(err, types.ErrCodeValidationMissingField))
}

func TestNewPlan_DuplicateNamesCollapsed(t *testing.T) {
	start, end := window(t)

	plan, err := NewPlan(Filter{
		SensorIDs: []string{"s1"},
		Metrics:   []string{"temperature", "temperature"},
		Stats:     []string{"max", "max"},
		Start:     start,
		End:       end,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sensorId", "timestamp", "maxtemperature"}, plan.Columns())
}

func TestNewPlan_ReservedFieldsRejectedAsMetrics(t *testing.T) {
	start, end := window(t)

	for _, metric := range []string{"sensorId", "timestamp", "_id", "location"} {
		t.Run(metric, func(t *testing.T) {
			_, err := NewPlan(Filter{SensorIDs: []string{"s1"}, Metrics: []string{"temperature", metric}})
			require.Error(t, err, "snapshot mode")
			assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidField))

			_, err = NewPlan(Filter{
				SensorIDs: []string{"s1"},
				Metrics:   []string{metric},
				Stats:     []string{"max"},
				Start:     start,
				End:       end,
			})
			require.Error(t, err, "ranged mode")
			assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidField))
		})
	}
}

func TestNewPlan_OperatorAndPathMetricsRejected(t *testing.T) {
	for _, metric := range []string{"$where", "wind.speed"} {
		_, err := NewPlan(Filter{SensorIDs: []string{"s1"}, Metrics: []string{metric}})
		assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidField), metric)
	}

	_, err := NewPlan(Filter{SensorIDs: []string{"s1"}, Metrics: []string{""}})
	assert.True(t, types.HasCode(err, types.ErrCodeValidationMissingField))
}

func TestNewPlan_SnapshotColumnsUnique(t *testing.T) {
	plan, err := NewPlan(Filter{SensorIDs: []string{"s1"}, Metrics: []string{"temperature", "humidity"}})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, col := range plan.Columns() {
		assert.False(t, seen[col], "duplicate column %q", col)
		seen[col] = true
	}
	for _, stage := range plan.Stages() {
		_, body := stageOp(t, stage)
		names := map[string]bool{}
		for _, k := range keys(body) {
			assert.False(t, names[k], "duplicate key %q in stage", k)
			names[k] = true
		}
	}
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "ranged", ModeRanged.String())
	assert.Equal(t, "snapshot", ModeSnapshot.String())
	assert.Equal(t, "unknown", Mode(42).String())
}
