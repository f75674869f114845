package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/mocap.bridge/internal/config"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

const (
	// DefaultMQTTQueue is how many poses may wait for the broker before new
	// ones are dropped.
	DefaultMQTTQueue  = 256
	publishTimeout    = 2 * time.Second
	disconnectQuiesce = 250
)

// MQTTClient is the part of mqtt.Client the publisher uses.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTStats counts publisher outcomes.
type MQTTStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

type mqttItem struct {
	topic   string
	payload []byte
}

// MQTTPublisher publishes each pose as JSON to <topic>/<serial>. PublishPose
// only enqueues; a single worker waits on broker acknowledgements.
type MQTTPublisher struct {
	client MQTTClient
	topic  string
	qos    byte
	queue  chan mqttItem

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	log.Printf("[mqtt] connected to %s as %q", cfg.Broker, cfg.ClientID)
	return client, nil
}

// NewMQTTPublisher wraps a connected client. queueSize <= 0 selects
// DefaultMQTTQueue.
func NewMQTTPublisher(client MQTTClient, cfg config.MQTTConfig, queueSize int) *MQTTPublisher {
	if queueSize <= 0 {
		queueSize = DefaultMQTTQueue
	}
	topic := cfg.Topic
	if topic == "" {
		topic = config.DefaultMQTTTopic
	}
	return &MQTTPublisher{
		client: client,
		topic:  topic,
		qos:    cfg.QoS,
		queue:  make(chan mqttItem, queueSize),
	}
}

// PublishPose implements device.Host.
func (p *MQTTPublisher) PublishPose(index uint32, serial string, pose tracker.TrackerPose) {
	payload, err := json.Marshal(NewPoseMessage(index, serial, pose))
	if err != nil {
		p.errors.Add(1)
		return
	}
	select {
	case p.queue <- mqttItem{topic: p.topic + "/" + serial, payload: payload}:
	default:
		if p.dropped.Add(1)%100 == 1 {
			log.Printf("[mqtt] queue full, %d poses dropped", p.dropped.Load())
		}
	}
}

// Run publishes queued poses until ctx is cancelled, then disconnects.
func (p *MQTTPublisher) Run(ctx context.Context) {
	defer p.client.Disconnect(disconnectQuiesce)
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.queue:
			token := p.client.Publish(item.topic, p.qos, false, item.payload)
			if !token.WaitTimeout(publishTimeout) {
				p.errors.Add(1)
				log.Printf("[mqtt] publish to %s timed out", item.topic)
				continue
			}
			if err := token.Error(); err != nil {
				p.errors.Add(1)
				log.Printf("[mqtt] publish to %s: %v", item.topic, err)
				continue
			}
			p.published.Add(1)
		}
	}
}

// Stats returns current counters.
func (p *MQTTPublisher) Stats() MQTTStats {
	return MQTTStats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Errors:    p.errors.Load(),
	}
}
