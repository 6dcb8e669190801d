// Package messaging carries engine events out to, and commands in from, an
// MQTT broker or a Kafka cluster.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"robotcore/config"
)

var ErrNotConnected = errors.New("messaging: not connected")

// Client is the unified messaging client (MQTT or Kafka).
type Client struct {
	mu       sync.RWMutex
	cfg      config.MessagingConfig
	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
	readers  []*kafkago.Reader
	log      zerolog.Logger
}

func NewClient(cfg config.MessagingConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		log: log.With().Str("component", "messaging").Str("backend", cfg.Backend).Logger(),
	}
}

// Connect establishes the messaging connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case "mqtt":
		return c.connectMQTT()
	case "kafka":
		return c.connectKafka()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warn().Err(err).Msg("mqtt connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect: timed out waiting for %s", broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	c.log.Info().Str("broker", broker).Msg("mqtt connected")
	return nil
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	// Verify at least one broker is reachable
	var conn *kafkago.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafkago.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			c.log.Info().Str("broker", broker).Msg("kafka connected")
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}
	c.ensureTopics(conn, c.cfg.EventsTopic, c.cfg.CommandsTopic)
	conn.Close()

	c.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return nil
}

// ensureTopics creates Kafka topics if they don't already exist. Errors are
// logged only; the broker may auto-create topics anyway.
func (c *Client) ensureTopics(conn *kafkago.Conn, topics ...string) {
	var wanted []kafkago.TopicConfig
	for _, t := range topics {
		if t != "" {
			wanted = append(wanted, kafkago.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: 1})
		}
	}
	if len(wanted) == 0 {
		return
	}

	controller, err := conn.Controller()
	if err != nil {
		c.log.Warn().Err(err).Msg("cannot find controller for topic creation")
		return
	}
	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		c.log.Warn().Err(err).Msg("cannot connect to controller")
		return
	}
	defer controllerConn.Close()

	if err := controllerConn.CreateTopics(wanted...); err != nil {
		c.log.Warn().Err(err).Msg("topic auto-create")
	}
}

// Publish sends a message to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.cfg.Backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return ErrNotConnected
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return ErrNotConnected
		}
		return c.kafkaW.WriteMessages(ctx, kafkago.Message{
			Topic: topic,
			Value: payload,
		})
	default:
		return fmt.Errorf("unknown backend: %s", c.cfg.Backend)
	}
}

// PublishEnvelope encodes and publishes a protocol envelope to the given topic.
func (c *Client) PublishEnvelope(ctx context.Context, topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(ctx, topic, data)
}

// Subscribe registers a handler for messages on topic.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case "mqtt":
		if c.mqttConn == nil {
			return ErrNotConnected
		}
		token := c.mqttConn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return ErrNotConnected
		}
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID,
		})
		c.readers = append(c.readers, reader)
		go func() {
			for {
				msg, err := reader.ReadMessage(context.Background())
				if err != nil {
					c.log.Debug().Err(err).Str("topic", topic).Msg("kafka reader stopped")
					return
				}
				handler(msg.Value)
			}
		}()
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.cfg.Backend)
	}
}

// IsConnected returns whether the messaging client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.cfg.Backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the messaging connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	for _, r := range c.readers {
		r.Close()
	}
	c.readers = nil
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
}
