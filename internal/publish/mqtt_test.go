package publish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mini-rodalies-3d/onboard/internal/enrichment"
	"github.com/mini-rodalies-3d/onboard/internal/tracker"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, message{topic, qos, retained, payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) sent() []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message(nil), c.msgs...)
}

func TestPublish(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "onboard/snapshot")

	snap := tracker.Snapshot{
		Status:  tracker.StatusFound,
		Station: &enrichment.Station{Name: "Avignon TGV"},
	}
	if err := p.Publish(snap); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs := client.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.topic != "onboard/snapshot" || m.qos != 0 || !m.retained {
		t.Errorf("message = topic %q qos %d retained %v", m.topic, m.qos, m.retained)
	}

	var decoded tracker.Snapshot
	if err := json.Unmarshal(m.payload, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Station == nil || decoded.Station.Name != "Avignon TGV" {
		t.Errorf("decoded station = %+v", decoded.Station)
	}
}

func TestPublish_BrokerError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	if err := NewPublisher(client, "t").Publish(tracker.Snapshot{}); err == nil {
		t.Error("expected broker error")
	}
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "onboard/snapshot")

	updates := make(chan tracker.Snapshot, 2)
	updates <- tracker.Snapshot{Status: tracker.StatusSearching}
	updates <- tracker.Snapshot{Status: tracker.StatusFound}
	close(updates)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), updates)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	if n := len(client.sent()); n != 2 {
		t.Errorf("expected 2 messages, got %d", n)
	}
}
