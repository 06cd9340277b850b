// Package telemetry publishes relay events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/iskrim46/ogurec/internal/config"
	"github.com/iskrim46/ogurec/internal/events"
	"github.com/iskrim46/ogurec/internal/util"
)

// Topic suffixes, appended to the configured prefix.
const (
	TopicSession   = "session"
	TopicIntercept = "intercept"
	TopicStatus    = "status"
)

const (
	handlerName            = "mqtt"
	DefaultStatusInterval  = time.Minute
	disconnectQuiesceMilli = 5000
)

// ErrDisabled is returned by NewMQTTHandler when MQTT is turned off.
var ErrDisabled = errors.New("telemetry: MQTT is disabled")

// StatusFunc returns the body of periodic status messages.
type StatusFunc func() interface{}

// client is the part of mqtt.Client the handler uses.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTHandler publishes bus events as JSON messages.
type MQTTHandler struct {
	mu sync.Mutex

	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   client
	logger   zerolog.Logger

	status         StatusFunc
	statusInterval time.Duration

	// Metadata included in every message
	metadata map[string]interface{}
}

// Option configures an MQTTHandler.
type Option func(*MQTTHandler)

// WithStatus publishes fn's result to the status topic every interval.
func WithStatus(fn StatusFunc, interval time.Duration) Option {
	return func(h *MQTTHandler) {
		h.status = fn
		h.statusInterval = interval
	}
}

// WithVersion tags every message with the relay version.
func WithVersion(version string) Option {
	return func(h *MQTTHandler) { h.metadata["app_version"] = version }
}

// NewMQTTHandler creates a handler connected to the configured broker.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus, options ...Option) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	h := newHandler(cfg, eventBus, options...)

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("ogurec-%v", h.metadata["hostname"]))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

func newHandler(cfg config.MQTTConfig, eventBus *events.EventBus, options ...Option) *MQTTHandler {
	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:            cfg,
		eventBus:       eventBus,
		logger:         util.ComponentLogger("telemetry"),
		statusInterval: DefaultStatusInterval,
		metadata: map[string]interface{}{
			"hostname": sysInfo.Hostname,
			"platform": sysInfo.Platform,
		},
	}
	for _, o := range options {
		o(h)
	}
	return h
}

// Topic joins the configured prefix and a topic suffix.
func (h *MQTTHandler) Topic(suffix string) string {
	prefix := strings.TrimSuffix(h.cfg.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// Start connects to the broker, subscribes to the bus and blocks until ctx
// is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	defer h.eventBus.UnsubscribeAll(handlerName)

	h.publishStatus("online")

	var tick <-chan time.Time
	if h.status != nil && h.statusInterval > 0 {
		ticker := time.NewTicker(h.statusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.publishStatus("shutdown")
			h.client.Disconnect(disconnectQuiesceMilli)
			h.logger.Info().Msg("MQTT disconnected")
			return nil
		case <-tick:
			h.publishStatus("heartbeat")
		}
	}
}

func (h *MQTTHandler) subscribeEvents() {
	for _, t := range []events.EventType{
		events.EventSessionOpened,
		events.EventSessionClosed,
		events.EventClientSlotAssigned,
	} {
		h.eventBus.Subscribe(t, handlerName, h.onSession)
	}
	h.eventBus.Subscribe(events.EventDamageIntercepted, handlerName, h.onIntercept)
	h.eventBus.Subscribe(events.EventVersionMismatch, handlerName, h.onProblem)
	h.eventBus.Subscribe(events.EventRelayError, handlerName, h.onProblem)
	h.eventBus.Subscribe(events.EventUpstreamHealth, handlerName, h.onProblem)
}

// publish sends a JSON message to prefix/suffix.
func (h *MQTTHandler) publish(suffix, event string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	topic := h.Topic(suffix)
	data, err := json.Marshal(h.buildMessage(event, payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (h *MQTTHandler) buildMessage(event string, payload interface{}) map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

func (h *MQTTHandler) publishStatus(state string) {
	var body interface{}
	if h.status != nil {
		body = h.status()
	}
	h.publish(TopicStatus, state, body)
}

func (h *MQTTHandler) onSession(_ context.Context, event events.Event) error {
	h.publish(TopicSession, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onIntercept(_ context.Context, event events.Event) error {
	h.publish(TopicIntercept, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) onProblem(_ context.Context, event events.Event) error {
	h.publish(TopicStatus, string(event.Type), event.Payload)
	return nil
}
