package metrics

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/core/telemetry"
	"github.com/kilianp07/gridsim/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket records are written to.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes telemetry records to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) telemetry.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return telemetry.NopSink{}
	}
	return sink
}

// Measurement returns the measurement a record of the given kind lands in.
func Measurement(kind model.DeviceKind) string { return kind.TopicRoot() + "_state" }

// Point converts a record into a line protocol point stamped with the
// simulated time.
func Point(topic string, rec model.Record) *write.Point {
	p := write.NewPointWithMeasurement(Measurement(rec.Kind)).
		AddTag("device_id", rec.DeviceID).
		AddTag("device_type", rec.DeviceType).
		AddTag("topic", topic)
	if rec.RunID != "" {
		p.AddTag("run_id", rec.RunID)
	}
	if rec.Mode != "" {
		p.AddTag("mode", rec.Mode)
	}
	for _, k := range sortedKeys(rec.State) {
		p.AddField(k, round3(rec.State[k]))
	}
	for _, k := range sortedKeys(rec.Sensors) {
		p.AddField("sensor_"+k, round3(rec.Sensors[k]))
	}
	p.AddField("connected", rec.Connected).
		AddField("tick", rec.Tick).
		AddField("total_cost", round3(rec.Cost.Total())).
		AddField("current_operation_cost", round3(rec.Cost.CurrentOperationCost))
	return p.SetTime(rec.Time)
}

// Publish writes the record as one point.
func (s *InfluxSink) Publish(ctx context.Context, topic string, rec model.Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, Point(topic, rec))
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
