// Package mqtt provides MQTT-based implementations of the queue interfaces.
//
// MQTT has no keyed partitions, so each pipeline topic is split into
// numbered sub-topics ("<topic>/<n>"). The producer picks the sub-topic from
// the routing key and each worker subscribes to exactly one of them.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"hyperwatch/internal/config"
	"hyperwatch/internal/queue"
)

// Client wraps one broker connection shared by the producer and every
// consumer of the process.
type Client struct {
	client     pahomqtt.Client
	qos        byte
	partitions int
	logger     *slog.Logger
}

// NewClient connects to the MQTT broker.
func NewClient(cfg *config.MQTTConfig, partitions int, logger *slog.Logger) (*Client, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	if partitions < 1 {
		partitions = 1
	}
	return &Client{
		client:     client,
		qos:        cfg.QoS,
		partitions: partitions,
		logger:     logger,
	}, nil
}

// SubTopic returns the sub-topic carrying one partition of topic.
func SubTopic(topic string, partition int) string {
	return topic + "/" + strconv.Itoa(partition)
}

// Publish sends the message to the sub-topic of its key.
func (c *Client) Publish(ctx context.Context, msg *queue.Message) error {
	topic := SubTopic(msg.Topic, queue.Partition(msg.Key, c.partitions))
	token := c.client.Publish(topic, c.qos, false, msg.Value)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.client.Disconnect(250)
	return nil
}

// Consumer returns a consumer of one partition of topic.
func (c *Client) Consumer(topic string, partition int) *Consumer {
	return &Consumer{
		client: c,
		topic:  SubTopic(topic, partition),
	}
}

// Consumer implements queue.Consumer for one MQTT sub-topic. Deliveries are
// handed to the handler one at a time in arrival order.
type Consumer struct {
	client *Client
	topic  string
}

// Start subscribes and handles messages until ctx is canceled.
func (c *Consumer) Start(ctx context.Context, handler queue.MessageHandler) error {
	deliveries := make(chan *queue.Message, 256)

	token := c.client.client.Subscribe(c.topic, c.client.qos, func(_ pahomqtt.Client, m pahomqtt.Message) {
		msg := &queue.Message{Topic: m.Topic(), Value: m.Payload()}
		select {
		case deliveries <- msg:
		case <-ctx.Done():
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.topic, token.Error())
	}
	c.client.logger.Info("starting mqtt consumer", "topic", c.topic)

	defer func() {
		unsub := c.client.client.Unsubscribe(c.topic)
		unsub.WaitTimeout(time.Second)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-deliveries:
			if err := handler(ctx, msg); err != nil {
				c.client.logger.Error("failed to process message", "topic", c.topic, "error", err)
			}
		}
	}
}

// Close is a no-op; the shared client is closed by its owner.
func (c *Consumer) Close() error {
	return nil
}
