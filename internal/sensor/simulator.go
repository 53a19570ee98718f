package sensor

import (
	"math/rand"
	"sync"
)

// Operating range of the BMP280 part the station ships with.
const (
	minTemperature = -40.0
	maxTemperature = 85.0
	minPressure    = 300.0
	maxPressure    = 1100.0
)

// SimulatedDriver is a stand-in for the I2C sensor on bench setups. It keeps
// internal state and drifts it a little on every read so consecutive samples
// look like real weather.
type SimulatedDriver struct {
	mu          sync.Mutex
	rng         *rand.Rand
	temperature float64
	pressure    float64
}

func NewSimulatedDriver(seed int64) *SimulatedDriver {
	return &SimulatedDriver{
		rng:         rand.New(rand.NewSource(seed)),
		temperature: 21.0,
		pressure:    1013.0,
	}
}

func (d *SimulatedDriver) Read() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.temperature = clamp(d.temperature+d.rng.Float64()*0.2-0.1, minTemperature, maxTemperature)
	d.pressure = clamp(d.pressure+d.rng.Float64()*0.6-0.3, minPressure, maxPressure)

	return Reading{Temperature: d.temperature, Pressure: d.pressure}, nil
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
