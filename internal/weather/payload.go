package weather

import (
	"strings"
	"time"

	"weatherapi/internal/types"
)

// TimestampLayout is the local timestamp format of the save body. Values
// without an offset are read as UTC; RFC 3339 values are accepted too.
const TimestampLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// ReadingPayload is the wire form of a reading, shared by POST /save and the
// MQTT ingest topic. Numeric fields are pointers so an explicit 0 is valid
// and an omitted field is not.
type ReadingPayload struct {
	SensorID    string   `json:"sensorId" validate:"required"`
	Location    string   `json:"location" validate:"required"`
	Temperature *float64 `json:"temperature" validate:"required"`
	Humidity    *float64 `json:"humidity" validate:"required"`
	Pressure    *float64 `json:"pressure" validate:"required"`
	Windspeed   *float64 `json:"windspeed" validate:"required"`
	Timestamp   string   `json:"timestamp" validate:"required"`
}

// ParseTimestamp accepts TimestampLayout (optionally with fractional
// seconds) or RFC 3339 and returns the instant in UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, value, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidDate,
		"timestamp must use the yyyy-MM-ddTHH:mm:ss format",
		lastErr,
		map[string]any{"field": "timestamp", "value": value},
	)
}

// ToReading converts a validated payload into a Reading.
func (p ReadingPayload) ToReading() (*types.Reading, error) {
	ts, err := ParseTimestamp(p.Timestamp)
	if err != nil {
		return nil, err
	}
	return &types.Reading{
		SensorID:    strings.TrimSpace(p.SensorID),
		Location:    p.Location,
		Temperature: deref(p.Temperature),
		Humidity:    deref(p.Humidity),
		Pressure:    deref(p.Pressure),
		Windspeed:   deref(p.Windspeed),
		Timestamp:   ts,
	}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
