package forward

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/weatherpico/station/internal/model"
)

// Forwarder mirrors each measurement to an HTTP weather API. The broker
// path never depends on it: failures are logged and absorbed, and a circuit
// breaker keeps a dead API from slowing down every tick.
type Forwarder struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *logrus.Entry
}

func New(url string, timeout time.Duration, log *logrus.Entry) *Forwarder {
	settings := gobreaker.Settings{
		Name:    "weather-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Forwarder{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log,
	}
}

// Record posts the measurement as JSON. Implements scheduler.Sink.
func (f *Forwarder) Record(m model.Measurement) {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		return nil, f.post(m)
	})
	if err != nil {
		f.log.Errorf("API forward failed: %v", err)
	}
}

func (f *Forwarder) post(m model.Measurement) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	res, err := f.client.Post(f.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("POST %s -> %s", f.url, res.Status)
	}
	return nil
}
