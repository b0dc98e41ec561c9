package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/gridsim/core/model"
	coremon "github.com/kilianp07/gridsim/core/monitoring"
	"github.com/kilianp07/gridsim/infra/logger"
)

// Config defines the connection parameters of the MQTT telemetry sink.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix is prepended to every record topic, e.g. "microgrid".
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	Retain      bool   `json:"retain"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	AuthMethod  string `json:"auth_method"`
	// StatusTopic receives a retained "online" on connect and is the
	// last-will topic carrying "offline".
	StatusTopic string      `json:"status_topic"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Publisher is a telemetry sink writing JSON records to an MQTT broker.
type Publisher struct {
	cli    pahoClient
	cfg    Config
	logger logger.Logger

	mu      sync.Mutex
	closed  bool
	backoff time.Duration
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gridsim-" + uuid.NewString()[:8]
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", cfg.QoS)
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_sink")
	p := &Publisher{cfg: cfg, logger: log, backoff: time.Duration(cfg.BackoffMS) * time.Millisecond}
	if p.backoff <= 0 {
		p.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if cfg.StatusTopic != "" {
			c.Publish(cfg.StatusTopic, 1, true, statusOnline)
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	p.cli = c
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetConnectRetry(true)
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, statusOffline, 1, true)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Topic returns the broker topic a record topic is published on.
func (p *Publisher) Topic(topic string) string {
	if p.cfg.TopicPrefix == "" {
		return topic
	}
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/") + "/" + topic
}

// Publish sends the record as JSON, retrying with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, topic string, rec model.Record) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.New("mqtt publisher closed")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	full := p.Topic(topic)
	var publishErr error
retry:
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(full, p.cfg.QoS, p.cfg.Retain, payload)
		publishErr = waitToken(ctx, token)
		if publishErr == nil {
			p.logger.Debugf("published %s", full)
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, full, publishErr)
		if attempt == p.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = ctx.Err()
			break retry
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "topic": full, "device_id": rec.DeviceID})
	return fmt.Errorf("mqtt publish %s: %w", full, publishErr)
}

func waitToken(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close publishes the offline status and disconnects.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.cli != nil && p.cli.IsConnected() {
		if p.cfg.StatusTopic != "" {
			p.cli.Publish(p.cfg.StatusTopic, 1, true, statusOffline).WaitTimeout(time.Second)
		}
		p.cli.Disconnect(250)
	}
	return nil
}
