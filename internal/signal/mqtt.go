package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"sappump/internal/models"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTSource consumes sampler snapshots published to an MQTT topic. It keeps
// only the most recent payload; ReadSignals applies the same staleness
// contract as CacheSource using the timestamp embedded by the sampler.
type MQTTSource struct {
	client paho.Client
	topic  string
	maxAge time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last *snapshotPayload
}

func NewMQTTSource(broker, topic, clientID string, maxAge time.Duration) (*MQTTSource, error) {
	s := &MQTTSource{
		topic:  topic,
		maxAge: maxAge,
		now:    time.Now,
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			// Re-subscribe after every (re)connect.
			c.Subscribe(topic, 0, s.onMessage)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	s.client = client
	return s, nil
}

func (s *MQTTSource) onMessage(_ paho.Client, msg paho.Message) {
	var p snapshotPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		// A malformed payload is simply not a fresh snapshot; staleness
		// handling covers the gap.
		return
	}
	s.mu.Lock()
	s.last = &p
	s.mu.Unlock()
}

func (s *MQTTSource) ReadSignals() (models.SignalSnapshot, error) {
	s.mu.Lock()
	p := s.last
	s.mu.Unlock()

	if p == nil {
		return models.SignalSnapshot{}, fmt.Errorf("%w: no snapshot received yet", ErrStale)
	}
	if p.Timestamp <= 0 {
		return models.SignalSnapshot{}, fmt.Errorf("%w: snapshot missing timestamp", ErrStale)
	}
	if age := p.age(s.now()); age > s.maxAge {
		return models.SignalSnapshot{}, fmt.Errorf("%w: snapshot age %.2fs exceeds %.2fs",
			ErrStale, age.Seconds(), s.maxAge.Seconds())
	}
	return p.snapshot(), nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	if s.client != nil {
		s.client.Disconnect(1000)
	}
}
