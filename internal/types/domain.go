package types

import "time"

// Document field names shared by the write path and the aggregation pipeline.
// The stored document and the API payload use the same keys.
const (
	FieldSensorID  = "sensorId"
	FieldLocation  = "location"
	FieldTimestamp = "timestamp"
)

// FieldID is the store-assigned document key.
const FieldID = "_id"

// IsReservedField reports whether name is a document field that carries
// identity or time rather than a numeric reading, and so cannot be queried
// as a metric.
func IsReservedField(name string) bool {
	switch name {
	case FieldID, FieldSensorID, FieldLocation, FieldTimestamp:
		return true
	}
	return false
}

// Metric names for the numeric reading fields.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricPressure    = "pressure"
	MetricWindspeed   = "windspeed"
)

// Metrics lists the recognized metric names in their canonical order.
// Other names are accepted by queries and simply yield no values.
var Metrics = []string{
	MetricTemperature,
	MetricHumidity,
	MetricPressure,
	MetricWindspeed,
}

// IsKnownMetric reports whether name is one of the recognized metrics.
func IsKnownMetric(name string) bool {
	for _, m := range Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// Reading is a single timestamped weather sensor measurement.
// Readings are immutable once written; ID is assigned by the store.
type Reading struct {
	ID          string    `json:"id,omitempty"`
	SensorID    string    `json:"sensorId"`
	Location    string    `json:"location"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	Windspeed   float64   `json:"windspeed"`
	Timestamp   time.Time `json:"timestamp"`
}

// ResultRow is one row of an aggregation query response. Keys are
// "sensorId", "timestamp" and either bare metric names (latest snapshot)
// or composite statistic fields such as "avgtemperature" (ranged).
// Values are float64, time.Time, string or nil.
type ResultRow map[string]any
