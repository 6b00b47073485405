package aggregation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFieldName(t *testing.T) {
	tests := []struct {
		stat   string
		metric string
		want   string
	}{
		{"average", "temperature", "avgtemperature"},
		{"max", "humidity", "maxhumidity"},
		{"min", "pressure", "minpressure"},
		{"sum", "windspeed", "sumwindspeed"},
	}
	for _, tt := range tests {
		stat, ok := LookupStatistic(tt.stat)
		assert.True(t, ok)
		assert.Equal(t, tt.want, FieldName(stat, tt.metric))
	}
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{21.44, 21.4},
		{2.25, 2.3},
		{21.96, 22.0},
		{-3.26, -3.3},
		{-3.25, -3.2},
		{0, 0},
		{1013, 1013},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Round1(tt.in), 1e-9, "Round1(%v)", tt.in)
	}
}

func TestRound1Idempotent(t *testing.T) {
	for i := -5000; i <= 5000; i++ {
		v := float64(i)*0.37 + 0.013
		once := Round1(v)
		assert.Equal(t, once, Round1(once), "Round1 not idempotent for %v", v)
	}
}

func TestRound1Expr(t *testing.T) {
	want := bson.D{{Key: "$divide", Value: bson.A{
		bson.D{{Key: "$floor", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$multiply", Value: bson.A{"$avgtemperature", 10}}},
			0.5,
		}}}}},
		10,
	}}}
	assert.Equal(t, want, round1Expr("$avgtemperature"))
}
