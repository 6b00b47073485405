package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"weatherapi/internal/types"
)

// readingDocument is the stored shape of a reading. Keys match the API
// payload so aggregation stages can address fields by their public names.
type readingDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	SensorID    string             `bson:"sensorId"`
	Location    string             `bson:"location"`
	Temperature float64            `bson:"temperature"`
	Humidity    float64            `bson:"humidity"`
	Pressure    float64            `bson:"pressure"`
	Windspeed   float64            `bson:"windspeed"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// BSON dates carry millisecond precision; truncating here keeps the returned
// reading identical to what a later read would produce.
func toDocument(r *types.Reading) readingDocument {
	return readingDocument{
		SensorID:    r.SensorID,
		Location:    r.Location,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
		Windspeed:   r.Windspeed,
		Timestamp:   r.Timestamp.UTC().Truncate(time.Millisecond),
	}
}

func (d readingDocument) toReading() types.Reading {
	r := types.Reading{
		SensorID:    d.SensorID,
		Location:    d.Location,
		Temperature: d.Temperature,
		Humidity:    d.Humidity,
		Pressure:    d.Pressure,
		Windspeed:   d.Windspeed,
		Timestamp:   d.Timestamp.UTC(),
	}
	if !d.ID.IsZero() {
		r.ID = d.ID.Hex()
	}
	return r
}
