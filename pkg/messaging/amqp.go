package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"callcoach-server/pkg/config"
	"callcoach-server/pkg/metrics"
)

const (
	dialTimeout    = 5 * time.Second
	publishTimeout = 200 * time.Millisecond
	maxReconnects  = 10
)

// Event is the envelope published for every analysis lifecycle event.
type Event struct {
	Event     string                 `json:"event"`
	CallID    string                 `json:"call_id"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// AMQPClient publishes analysis events to an AMQP broker. Publishing is
// best effort: the analysis pipeline keeps running when the broker is down.
type AMQPClient struct {
	logger    *logrus.Logger
	config    *config.MessagingConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPClient creates a client over the messaging configuration. Connect
// must be called before publishing.
func NewAMQPClient(logger *logrus.Logger, cfg *config.MessagingConfig) *AMQPClient {
	return &AMQPClient{
		logger:   logger,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Enabled reports whether a broker URL is configured.
func (c *AMQPClient) Enabled() bool {
	return c.config.AMQPUrl != ""
}

type dialResult struct {
	conn *amqp.Connection
	err  error
}

// Connect establishes the connection, declares the event exchange and its
// default bound queue, and starts the close monitor.
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.connected {
		return nil
	}

	if c.config.AMQPUrl == "" {
		c.logger.Warn("AMQP_URL not set, event publishing is disabled")
		return fmt.Errorf("AMQP URL not configured")
	}

	// amqp.Dial has no context support, so run it in a goroutine and
	// enforce the timeout ourselves.
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	connChan := make(chan dialResult, 1)
	go func() {
		conn, err := amqp.Dial(c.config.AMQPUrl)
		select {
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		case connChan <- dialResult{conn: conn, err: err}:
		}
	}()

	var conn *amqp.Connection
	select {
	case result := <-connChan:
		if result.err != nil {
			metrics.RecordAMQPConnectionError("dial_failed")
			return fmt.Errorf("failed to connect to AMQP server: %w", result.err)
		}
		conn = result.conn
	case <-ctx.Done():
		metrics.RecordAMQPConnectionError("dial_timeout")
		return fmt.Errorf("connection to AMQP server timed out after %s", dialTimeout)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		metrics.RecordAMQPConnectionError("channel_failed")
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := c.declareTopology(channel); err != nil {
		channel.Close()
		conn.Close()
		metrics.RecordAMQPConnectionError("topology_failed")
		return err
	}

	c.conn = conn
	c.channel = channel
	c.connected = true
	c.stopChan = make(chan struct{})

	metrics.SetAMQPConnectionStatus(true)
	c.logger.WithFields(logrus.Fields{
		"exchange": c.config.ExchangeName,
		"queue":    c.config.QueueName,
	}).Info("Connected to AMQP broker")

	go c.monitorConnection()

	return nil
}

// declareTopology sets up the topic exchange and the default consumer
// queue. The default queue sees every event; consumers with narrower
// interests bind their own queues to routing keys like "call.*".
func (c *AMQPClient) declareTopology(channel *amqp.Channel) error {
	if err := channel.ExchangeDeclare(
		c.config.ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := channel.QueueDeclare(
		c.config.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(c.config.QueueName, "#", c.config.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// Disconnect closes the AMQP connection.
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.connected {
		return
	}

	close(c.stopChan)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	metrics.SetAMQPConnectionStatus(false)
	c.logger.Info("Disconnected from AMQP broker")
}

// IsConnected returns the connection status.
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishEvent publishes one analysis event. The routing key is the event
// name, so consumers can subscribe to subsets of the stream.
func (c *AMQPClient) PublishEvent(event, callID string, payload map[string]interface{}) error {
	// A broker hiccup must never take the analysis pipeline down with it.
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"event":   event,
				"call_id": callID,
				"recover": r,
			}).Error("Recovered from panic while publishing AMQP event")
		}
	}()

	if !c.IsConnected() {
		metrics.RecordAMQPPublish(event, "skipped")
		return fmt.Errorf("not connected to AMQP server")
	}

	body, err := json.Marshal(Event{
		Event:     event,
		CallID:    callID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	publishChan := make(chan error, 1)
	go func() {
		c.connMutex.RLock()
		defer c.connMutex.RUnlock()

		if !c.connected || c.channel == nil {
			select {
			case publishChan <- fmt.Errorf("lost AMQP connection before publishing"):
			case <-ctx.Done():
			}
			return
		}

		err := c.channel.Publish(
			c.config.ExchangeName,
			event, // routing key
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				// Expire after 12 hours so events do not pile up behind a
				// dead consumer.
				Expiration: "43200000",
			},
		)
		select {
		case publishChan <- err:
		case <-ctx.Done():
		}
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			metrics.RecordAMQPPublish(event, "error")
			return fmt.Errorf("failed to publish event: %w", err)
		}
	case <-ctx.Done():
		metrics.RecordAMQPPublish(event, "timeout")
		return fmt.Errorf("publishing to AMQP timed out after %s", publishTimeout)
	}

	metrics.RecordAMQPPublish(event, "success")
	c.logger.WithFields(logrus.Fields{
		"event":   event,
		"call_id": callID,
	}).Debug("Published analysis event")

	return nil
}

// monitorConnection watches for broker-side closes and reconnects with
// exponential backoff. A successful reconnect starts its own monitor, so
// this one exits.
func (c *AMQPClient) monitorConnection() {
	closeChan := make(chan *amqp.Error, 1)

	c.connMutex.RLock()
	if c.conn != nil {
		c.conn.NotifyClose(closeChan)
	}
	c.connMutex.RUnlock()

	select {
	case <-c.stopChan:
		return
	case closeErr := <-closeChan:
		c.connMutex.Lock()
		c.connected = false
		c.connMutex.Unlock()

		metrics.SetAMQPConnectionStatus(false)
		metrics.RecordAMQPConnectionError("connection_closed")
		c.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

		for attempt := 1; attempt <= maxReconnects; attempt++ {
			c.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP broker")

			err := c.Connect()
			if err == nil {
				metrics.RecordAMQPReconnect("success")
				c.logger.Info("Reconnected to AMQP broker")
				return
			}

			metrics.RecordAMQPReconnect("failure")
			c.logger.WithError(err).WithField("attempt", attempt).Error("Reconnect failed")

			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 30*time.Second {
				backoff = 30 * time.Second
			}
			time.Sleep(backoff)
		}

		c.logger.Error("Giving up on AMQP reconnection after repeated failures")
	}
}
