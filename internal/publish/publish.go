// Package publish sends controller status snapshots to an MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/thatsimonsguy/hydronic-controller/internal/controller"
)

const DefaultTopic = "hydronic/controller/status"

var (
	_ controller.Publisher = (*MQTT)(nil)
	_ controller.Publisher = (*Fake)(nil)
)

// FormatStatus is the JSON payload carried on the status topic.
func FormatStatus(s controller.Status) ([]byte, error) {
	s.Timestamp = s.Timestamp.UTC()
	return json.Marshal(s)
}

// MQTT publishes to an actual broker.
type MQTT struct {
	client paho.Client
	topic  string
}

func NewMQTT(broker, clientID, topic string) (*MQTT, error) {
	if topic == "" {
		topic = DefaultTopic
	}
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTT{client: client, topic: topic}, nil
}

// PublishStatus sends one snapshot. Snapshots are superseded every cycle, so QoS 0, not retained.
func (p *MQTT) PublishStatus(s controller.Status) error {
	payload, err := FormatStatus(s)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *MQTT) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *MQTT) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// Fake records published snapshots for test assertions. It is safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	statuses []controller.Status
	payloads [][]byte

	// PublishError, if set, is returned by PublishStatus.
	PublishError error
	Closed       bool
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) PublishStatus(s controller.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatus(s)
	if err != nil {
		return err
	}
	f.statuses = append(f.statuses, s)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *Fake) Statuses() []controller.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controller.Status(nil), f.statuses...)
}

func (f *Fake) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
