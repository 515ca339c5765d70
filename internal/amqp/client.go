package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"pilotage/internal/log"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
	publishRetries = 3
)

type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       log.OrDiscard(logger).WithComponent(log.ComponentAMQP),
	}
	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on the direct exchange.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishDatasetChanged publishes msg, reconnecting with exponential backoff
// when the broker connection was lost.
func (c *Client) PublishDatasetChanged(ctx context.Context, msg *DatasetChangedMessage) error {
	if c.isCircuitOpen() {
		return errors.New("circuit breaker is open: AMQP publishing suspended")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < publishRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
			if err := c.reconnect(); err != nil {
				lastErr = err
				continue
			}
		}

		lastErr = c.publish(ctx, body)
		if lastErr == nil {
			c.recordSuccess()
			c.logger.InfoContext(ctx, "Published dataset changed message",
				log.FieldOperation, msg.Operation,
				log.FieldRows, msg.Rows,
				log.FieldVersion, msg.Version)
			return nil
		}
		if !isConnectionError(lastErr) {
			break
		}
		c.logger.WarnContext(ctx, "AMQP publish failed, reconnecting", log.FieldError, lastErr, "attempt", attempt+1)
	}

	c.recordFailure()
	return lastErr
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		return errors.New("channel closed")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (c *Client) reconnect() error {
	c.mu.Lock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn, c.channel = nil, nil
	c.mu.Unlock()
	return c.connect()
}

// ConsumeDatasetChanged delivers messages to handler until ctx is done.
// Undecodable messages are dropped; handler failures are requeued. A closed
// delivery channel is followed by a reconnect and a new subscription.
func (c *Client) ConsumeDatasetChanged(ctx context.Context, handler func(context.Context, *DatasetChangedMessage) error) error {
	cons := &consumer{
		logger:    c.logger,
		subscribe: c.subscribe,
		reconnect: c.reconnect,
		backoff:   exponentialBackoff,
	}
	return cons.run(ctx, c.queueName, handler)
}

func (c *Client) subscribe() (<-chan amqp091.Delivery, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil || ch.IsClosed() {
		return nil, errors.New("channel closed")
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

// consumer runs the delivery loop over a subscription it can renew.
type consumer struct {
	logger    *log.Logger
	subscribe func() (<-chan amqp091.Delivery, error)
	reconnect func() error
	backoff   func(attempt int) time.Duration
}

func (c *consumer) run(ctx context.Context, queue string, handler func(context.Context, *DatasetChangedMessage) error) error {
	msgs, err := c.subscribe()
	if err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Started consuming dataset changed messages", "queue", queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if ok {
				handleDelivery(ctx, c.logger, delivery, handler)
				continue
			}
			c.logger.WarnContext(ctx, "Delivery channel closed, resubscribing", "queue", queue)
			if msgs, err = c.resubscribe(ctx); err != nil {
				return err
			}
			c.logger.InfoContext(ctx, "Resumed consuming dataset changed messages", "queue", queue)
		}
	}
}

// resubscribe reconnects with backoff until a subscription succeeds or ctx
// is done.
func (c *consumer) resubscribe(ctx context.Context) (<-chan amqp091.Delivery, error) {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
		if err := c.reconnect(); err != nil {
			c.logger.WarnContext(ctx, "AMQP reconnect failed", log.FieldError, err, "attempt", attempt+1)
			continue
		}
		msgs, err := c.subscribe()
		if err != nil {
			c.logger.WarnContext(ctx, "AMQP subscribe failed", log.FieldError, err, "attempt", attempt+1)
			continue
		}
		return msgs, nil
	}
}

func handleDelivery(ctx context.Context, logger *log.Logger, d amqp091.Delivery, handler func(context.Context, *DatasetChangedMessage) error) {
	msg, err := DatasetChangedMessageFromJSON(d.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		logger.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err,
			log.FieldOperation, msg.Operation,
			log.FieldVersion, msg.Version)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
	logger.DebugContext(ctx, "Processed dataset changed message", log.FieldOperation, msg.Operation)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
