package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/sortline/internal/logic"
)

// DefaultBufferSize is the number of messages held while the broker is unreachable.
const DefaultBufferSize = 256

const publishTimeout = 5 * time.Second

var errPublishTimeout = errors.New("publish timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, once the client reconnects.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	buffer *outbox
}

// NewRealPublisher creates a publisher for the given broker. It does not wait
// for the connection: paho keeps retrying in the background and messages are
// buffered until it succeeds.
func NewRealPublisher(opts Options, logger zerolog.Logger) *RealPublisher {
	logger = logger.With().Str("component", "mqtt").Str("broker", opts.Broker).Logger()
	p := newPublisher(nil, opts, logger)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.replay() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn().Err(err).Msg("mqtt connection lost, buffering")
		})

	p.client = paho.NewClient(clientOpts)
	p.client.Connect()
	logger.Info().Str("client_id", opts.ClientID).Msg("mqtt connecting")
	return p
}

func newPublisher(client paho.Client, opts Options, logger zerolog.Logger) *RealPublisher {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = TopicsFor("")
	}
	return &RealPublisher{
		client: client,
		topics: opts.Topics,
		logger: logger,
		now:    time.Now,
		buffer: newOutbox(size, logger),
	}
}

// Publish sends a line event. QoS 0, not retained, does not wait for the broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.topics.Events, payload: payload}, false)
}

// PublishSystem sends a system lifecycle event. QoS 1, waits for the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}
	if err := p.publish(msg, true); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg, wait bool) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !wait {
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// replay publishes everything buffered while disconnected, then a RECONNECTED marker.
func (p *RealPublisher) replay() {
	p.mu.Lock()
	pending, dropped := p.buffer.drain()
	p.mu.Unlock()

	p.logger.Info().Int("replayed", len(pending)).Int("dropped", dropped).Msg("mqtt connected")
	for _, msg := range pending {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if msg.qos > 0 && !token.WaitTimeout(publishTimeout) {
			p.logger.Warn().Str("topic", msg.topic).Msg("replay publish timed out")
		}
	}

	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
	p.client.Publish(p.topics.System, 1, false, payload)
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
