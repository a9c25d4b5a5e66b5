// Package publish mirrors tracker snapshots to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mini-rodalies-3d/onboard/internal/tracker"
)

const publishTimeout = 5 * time.Second

// Client is the part of mqtt.Client the publisher needs
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Connect opens a broker connection with automatic reconnects
func Connect(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	return client, nil
}

// Publisher writes each snapshot as retained JSON so late subscribers get
// the current state immediately
type Publisher struct {
	client Client
	topic  string
}

// NewPublisher creates a publisher for topic
func NewPublisher(client Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// Publish sends one snapshot at QoS 0
func (p *Publisher) Publish(snap tracker.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("json marshal error: %w", err)
	}

	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	return token.Error()
}

// Run publishes snapshots from updates until the channel closes or ctx ends
func (p *Publisher) Run(ctx context.Context, updates <-chan tracker.Snapshot) {
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := p.Publish(snap); err != nil {
				log.Printf("Publish: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
