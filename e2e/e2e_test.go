package e2e

import (
	"context"
	"fmt"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/gridsim/app"
	"github.com/kilianp07/gridsim/config"
	"github.com/kilianp07/gridsim/core/factory"
	"github.com/kilianp07/gridsim/core/model"
	"github.com/kilianp07/gridsim/infra/metrics"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

// startInflux starts an InfluxDB 2.7 container initialised with the e2e
// organisation, bucket and token.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a broker accepting anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:1.6",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// subscribe counts the messages received on topic.
func subscribe(t *testing.T, broker, topic string) *atomic.Int64 {
	t.Helper()
	var n atomic.Int64
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-observer")
	cli := paho.NewClient(opts)
	if tok := cli.Connect(); !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("observer connect: %v", tok.Error())
	}
	t.Cleanup(func() { cli.Disconnect(250) })
	tok := cli.Subscribe(topic, 1, func(paho.Client, paho.Message) { n.Add(1) })
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe %s: %v", topic, tok.Error())
	}
	return &n
}

// Test_E2E_Simulation runs one simulated day slice through the full service
// and checks the telemetry landed in both InfluxDB and the broker.
func Test_E2E_Simulation(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxCont, influxURL := startInflux(ctx, t)
	defer influxCont.Terminate(ctx) //nolint:errcheck
	mqttCont, mqttURL := startMosquitto(ctx, t)
	defer mqttCont.Terminate(ctx) //nolint:errcheck
	t.Logf("InfluxDB started at %s, Mosquitto at %s", influxURL, mqttURL)

	received := subscribe(t, mqttURL, "microgrid/batteries/bess-1/state")

	const ticks = 8
	cfg := config.Default()
	cfg.Simulation.Ticks = ticks
	cfg.Logging.Level = "warn"
	cfg.MQTT.Broker = mqttURL
	cfg.MQTT.TopicPrefix = "microgrid"
	cfg.MQTT.QoS = 1
	cfg.Sinks = []factory.ModuleConfig{{Type: "influx", Conf: map[string]any{
		"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket,
	}}}

	svc, err := app.New(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	cli := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer cli.Close()
	start := cfg.Simulation.Start
	n, err := cli.CountPoints(ctx, metrics.Measurement(model.KindBattery), "tick", svc.RunID, start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if want := ticks * len(cfg.Grid.Batteries); n != want {
		t.Fatalf("expected %d battery points, got %d", want, n)
	}

	deadline := time.Now().Add(5 * time.Second)
	for received.Load() < ticks && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if got := received.Load(); got != ticks {
		t.Fatalf("expected %d mqtt messages for bess-1, got %d", ticks, got)
	}
}
