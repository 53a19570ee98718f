package recorder

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/weatherpico/station/internal/model"
)

// Config locates the InfluxDB instance the station mirrors telemetry to.
type Config struct {
	URL     string
	Token   string
	Org     string
	Bucket  string
	Station string
}

// pointWriter is the slice of the influx async write API the recorder uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
	Errors() <-chan error
}

// Recorder writes each measurement as an InfluxDB point. Writes are async;
// the error listener tracks the last failure time for health reporting.
type Recorder struct {
	writer  pointWriter
	station string
	log     *logrus.Entry
	client  influxdb2.Client

	mu      sync.RWMutex
	lastErr time.Time
}

func New(cfg Config, log *logrus.Entry) *Recorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	r := newWithWriter(client.WriteAPI(cfg.Org, cfg.Bucket), cfg.Station, log)
	r.client = client
	return r
}

func newWithWriter(writer pointWriter, station string, log *logrus.Entry) *Recorder {
	r := &Recorder{
		writer:  writer,
		station: station,
		log:     log,
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range writer.Errors() {
			if err != nil {
				r.mu.Lock()
				r.lastErr = time.Now()
				r.mu.Unlock()
				log.Errorf("Influx write error: %v", err)
			}
		}
	}()
	return r
}

// Record implements scheduler.Sink.
func (r *Recorder) Record(m model.Measurement) {
	point := influxdb2.NewPoint("weather",
		map[string]string{"station": r.station},
		map[string]interface{}{
			"temperature": m.Temperature,
			"pressure":    m.Pressure,
		},
		time.Now())
	r.writer.WritePoint(point)
}

// LastErrorAge reports how long ago the last write error happened.
func (r *Recorder) LastErrorAge() time.Duration {
	r.mu.RLock()
	t := r.lastErr
	r.mu.RUnlock()
	return time.Since(t)
}

// Close flushes pending points and shuts the client down.
func (r *Recorder) Close() {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
}
