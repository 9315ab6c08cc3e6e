package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection and topology configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	JobsExchange      string
	EventsExchange    string
	JobsQueue         string
	JobsRoutingKey    string
	RetryWaitQueue    string
	RetryRoutingKey   string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// Client represents a RabbitMQ client owning the engine's broker topology:
// a quorum primary queue for job messages, a consumerless wait queue that
// dead-letters expired messages back onto the jobs exchange (the delayed
// route), and a topic exchange for outbound domain events.
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected bool
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:      config,
		logger:      logger,
		closeChan:   make(chan *amqp.Error),
		isConnected: false,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < c.config.RetryAttempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.config.RetryAttempts, err)
	}

	// Create channel
	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// Setup exchanges and queues
	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup topology: %w", err)
	}

	// Monitor connection
	c.closeChan = make(chan *amqp.Error)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("jobs_exchange", c.config.JobsExchange),
		slog.String("events_exchange", c.config.EventsExchange),
		slog.String("jobs_queue", c.config.JobsQueue),
		slog.String("retry_wait_queue", c.config.RetryWaitQueue),
	)

	return nil
}

// setup declares exchanges, queues, and bindings
func (c *Client) setup() error {
	// Jobs exchange carries both first deliveries and expired retries
	err := c.channel.ExchangeDeclare(
		c.config.JobsExchange, // name
		"direct",              // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare jobs exchange: %w", err)
	}

	// Domain events fan out by event type
	err = c.channel.ExchangeDeclare(
		c.config.EventsExchange, // name
		"topic",                 // type
		true,                    // durable
		false,                   // auto-deleted
		false,                   // internal
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	// Primary queue is quorum so a broker node failure cannot drop jobs
	_, err = c.channel.QueueDeclare(
		c.config.JobsQueue, // name
		true,               // durable
		false,              // auto-delete
		false,              // exclusive
		false,              // no-wait
		amqp.Table{
			"x-queue-type": "quorum",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare jobs queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.JobsQueue,      // queue name
		c.config.JobsRoutingKey, // routing key
		c.config.JobsExchange,   // exchange
		false,                   // no-wait
		nil,                     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind jobs queue: %w", err)
	}

	// Retry wait queue: nothing consumes it, messages sit until their
	// per-message TTL expires and are dead-lettered back onto the jobs
	// exchange with the primary routing key. Quorum queues have no native
	// scheduled delivery, so this queue pair is the delayed route.
	_, err = c.channel.QueueDeclare(
		c.config.RetryWaitQueue, // name
		true,                    // durable
		false,                   // auto-delete
		false,                   // exclusive
		false,                   // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    c.config.JobsExchange,
			"x-dead-letter-routing-key": c.config.JobsRoutingKey,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare retry wait queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.RetryWaitQueue,  // queue name
		c.config.RetryRoutingKey, // routing key
		c.config.JobsExchange,    // exchange
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind retry wait queue: %w", err)
	}

	return nil
}

// PublishJob publishes a job message to the primary queue
func (c *Client) PublishJob(ctx context.Context, body []byte) error {
	return c.publish(ctx, c.config.JobsExchange, c.config.JobsRoutingKey, body, "")
}

// PublishDelayed publishes a job message to the retry wait queue with the
// given delay as per-message TTL. The broker routes it back to the primary
// queue once the delay elapses.
func (c *Client) PublishDelayed(ctx context.Context, body []byte, delay time.Duration) error {
	expiration := strconv.FormatInt(delay.Milliseconds(), 10)
	return c.publish(ctx, c.config.JobsExchange, c.config.RetryRoutingKey, body, expiration)
}

// PublishEvent publishes a domain event to the events exchange, routing key
// is the event type
func (c *Client) PublishEvent(ctx context.Context, eventType string, body []byte) error {
	return c.publish(ctx, c.config.EventsExchange, eventType, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, routingKey string, body []byte, expiration string) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent, // persistent
			Timestamp:    time.Now(),
			Expiration:   expiration,
		},
	)

	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.String("exchange", exchange),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
	)

	return nil
}

// Consume starts consuming messages from the primary jobs queue
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	messages, err := c.channel.Consume(
		c.config.JobsQueue, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.JobsQueue),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

// CancelConsumer stops the broker from delivering to the given consumer tag.
// Deliveries already buffered stay valid and can still be acked.
func (c *Client) CancelConsumer(consumerTag string) error {
	if c.channel == nil {
		return fmt.Errorf("channel is nil")
	}

	if err := c.channel.Cancel(consumerTag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer: %w", err)
	}

	c.logger.Info("Consumer subscription canceled",
		slog.String("consumer_tag", consumerTag),
	)
	return nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// GetChannel returns the channel for advanced operations
func (c *Client) GetChannel() *amqp.Channel {
	return c.channel
}
