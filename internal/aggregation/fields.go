package aggregation

import (
	"math"

	"go.mongodb.org/mongo-driver/bson"
)

// FieldName composes the output field for a statistic over a metric, e.g.
// "avgtemperature". The metric keeps the case the caller supplied.
func FieldName(stat Statistic, metric string) string {
	return stat.Prefix + metric
}

// fieldRef returns the "$field" path expression for a document field.
func fieldRef(field string) string {
	return "$" + field
}

// round1Expr wraps expr in a server-side half-up rounding to one decimal:
// floor(expr*10 + 0.5) / 10.
func round1Expr(expr any) bson.D {
	return bson.D{{Key: "$divide", Value: bson.A{
		bson.D{{Key: "$floor", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$multiply", Value: bson.A{expr, 10}}},
			0.5,
		}}}}},
		10,
	}}}
}

// Round1 is the client-side counterpart of the server rounding expression.
// Applying it to an already rounded value returns the same value.
func Round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}
