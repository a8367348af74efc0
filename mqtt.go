package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTPublisher optionally republishes Signal Detector lifecycle events
// to a broker, for consumers outside the WebSocket
// surface (dashboards, loggers). Disabled by default.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

// generateClientID produces a random per-process MQTT client ID so
// multiple instances of this service never collide on the broker.
func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "spectrumd_" + hex.EncodeToString(b)
}

// NewMQTTPublisher connects to cfg.Broker if enabled. A nil return with a
// nil error means MQTT is disabled and callers should skip publishing.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}
	opts.SetClientID(clientID)
	opts.SetConnectRetry(true)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, newStatusError(ErrInternal, "mqtt.connect", "connect to broker", token.Error())
	}

	return &MQTTPublisher{client: client, topic: cfg.Topic}, nil
}

// signalEventPayload is the JSON body published for one Detector lifecycle
// transition.
type signalEventPayload struct {
	Kind      string  `json:"kind"`
	ID        uint64  `json:"id"`
	CenterHz  uint64  `json:"center_hz"`
	Bandwidth uint64  `json:"bandwidth_hz"`
	PeakDBFS  float32 `json:"peak_dbfs"`
	Timestamp int64   `json:"timestamp"`
}

// PublishSignalEvent publishes one Detector event if MQTT is configured.
// Publish failures are logged, not returned: MQTT is a side channel and
// must never block or fail the session loop.
func (m *MQTTPublisher) PublishSignalEvent(ev SignalEvent) {
	if m == nil {
		return
	}
	payload := signalEventPayload{
		Kind:      ev.Kind.String(),
		ID:        ev.Signal.ID,
		CenterHz:  ev.Signal.CenterHz,
		Bandwidth: ev.Signal.BandwidthHz,
		PeakDBFS:  ev.Signal.PeakDBFS,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("mqtt: marshal signal event: %v", err)
		return
	}
	token := m.client.Publish(m.topic+"/"+ev.Kind.String(), 0, false, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("mqtt: publish signal event: %v", token.Error())
		}
	}()
}

// Close disconnects cleanly.
func (m *MQTTPublisher) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(250)
}
