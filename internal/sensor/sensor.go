package sensor

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/weatherpico/station/internal/model"
)

// Reading is a raw driver measurement, prior to rounding.
type Reading struct {
	Temperature float64 // °C
	Pressure    float64 // hPa
}

// Driver abstracts the physical sensor. A failed read is surfaced as an
// error; retrying is the caller's decision.
type Driver interface {
	Read() (Reading, error)
}

// Aggregator reads the sensor and shapes measurements into wire payloads.
type Aggregator struct {
	driver Driver
	log    *logrus.Entry
}

func NewAggregator(driver Driver, log *logrus.Entry) *Aggregator {
	return &Aggregator{driver: driver, log: log}
}

// Sample reads the sensor once and returns the measurement with both fields
// rounded to two decimals. No retry happens at this layer.
func (a *Aggregator) Sample() (model.Measurement, error) {
	r, err := a.driver.Read()
	if err != nil {
		return model.Measurement{}, fmt.Errorf("sensor read: %w", err)
	}
	m := model.Measurement{
		Temperature: round2(r.Temperature),
		Pressure:    round2(r.Pressure),
	}
	a.log.Infof("Temperature: %.2f°C, Pressure: %.2f hPa", m.Temperature, m.Pressure)
	return m, nil
}

// FormatMeasurement maps a measurement to its JSON wire payload.
func FormatMeasurement(m model.Measurement) ([]byte, error) {
	return json.Marshal(m)
}

// FormatBatch maps a batch to its JSON wire payload.
func FormatBatch(b model.Batch) ([]byte, error) {
	return json.Marshal(b)
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
