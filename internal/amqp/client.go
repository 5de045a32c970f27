package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// errMalformedPayload marks deliveries whose body cannot be decoded at all;
// redelivering them would only fail the same way.
var errMalformedPayload = errors.New("malformed payload")

// Client carries the two trigger streams of the pipeline over one direct
// exchange: object-finalized events (new uploads) and expense-deleted events
// (blob cleanup). Both queues are durable and messages persistent; delivery
// is at least once, so every handler must tolerate redelivery.
type Client struct {
	url          string
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	objectQueue  string
	deletedQueue string
}

// ObjectHandler processes one object-finalized event.
type ObjectHandler func(ctx context.Context, msg *ObjectFinalizedMessage) error

// DeletedHandler processes one expense-deleted event.
type DeletedHandler func(ctx context.Context, msg *ExpenseDeletedMessage) error

func NewClient(url, exchangeName, objectQueue, deletedQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		url:          url,
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		objectQueue:  objectQueue,
		deletedQueue: deletedQueue,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.objectQueue, c.deletedQueue} {
		_, err = c.channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// routing key mirrors the queue name on a direct exchange
		if err := c.channel.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishObjectFinalized announces a finished blob upload.
func (c *Client) PublishObjectFinalized(ctx context.Context, msg *ObjectFinalizedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.objectQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published object finalized message",
		"bucket", msg.Bucket,
		"object_path", msg.Name,
		"content_type", msg.ContentType)
	return nil
}

// PublishExpenseDeleted announces a deleted record for blob cleanup.
func (c *Client) PublishExpenseDeleted(ctx context.Context, msg *ExpenseDeletedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, c.deletedQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published expense deleted message",
		"expense_id", msg.ExpenseID)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
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

// Consume reads both queues until ctx is cancelled. Handlers that fail on a
// fresh delivery get one redelivery; a failed redelivery is dropped so a
// poison message can never storm the broker. Undecodable payloads are
// rejected without requeue.
func (c *Client) Consume(ctx context.Context, onObject ObjectHandler, onDeleted DeletedHandler) error {
	objectMsgs, err := c.channel.Consume(c.objectQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", c.objectQueue, err)
	}
	deletedMsgs, err := c.channel.Consume(c.deletedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", c.deletedQueue, err)
	}

	slog.InfoContext(ctx, "Started consuming trigger messages",
		"object_queue", c.objectQueue,
		"deleted_queue", c.deletedQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()

		case delivery, ok := <-objectMsgs:
			if !ok {
				return fmt.Errorf("object message channel closed")
			}
			c.dispatch(ctx, delivery, func() error {
				msg, err := ObjectFinalizedMessageFromJSON(delivery.Body)
				if err != nil {
					return fmt.Errorf("unmarshal object message: %v: %w", err, errMalformedPayload)
				}
				return onObject(ctx, msg)
			})

		case delivery, ok := <-deletedMsgs:
			if !ok {
				return fmt.Errorf("deleted message channel closed")
			}
			c.dispatch(ctx, delivery, func() error {
				msg, err := ExpenseDeletedMessageFromJSON(delivery.Body)
				if err != nil {
					return fmt.Errorf("unmarshal deleted message: %v: %w", err, errMalformedPayload)
				}
				return onDeleted(ctx, msg)
			})
		}
	}
}

func (c *Client) dispatch(ctx context.Context, delivery amqp091.Delivery, handle func() error) {
	err := handle()
	if err == nil {
		delivery.Ack(false)
		return
	}

	slog.ErrorContext(ctx, "Failed to handle message",
		"error", err,
		"redelivered", delivery.Redelivered)

	if errors.Is(err, errMalformedPayload) || delivery.Redelivered {
		// undecodable payload, or second failure: drop instead of
		// requeueing forever
		delivery.Nack(false, false)
		return
	}
	delivery.Nack(false, true)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff returns the reconnect delay for an attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Second << uint(attempt)
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// IsConnectionError reports whether err looks like a broken broker connection
// worth reconnecting over, rather than a protocol or handler problem. The
// consume loop's delivery channels close when the connection drops, so a
// closed message channel counts too.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, fragment := range []string{
		"connection refused",
		"connection closed",
		"channel closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// Reconnect re-dials the broker with exponential backoff until ctx is done.
func (c *Client) Reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		conn, err := amqp091.Dial(c.url)
		if err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed",
				"attempt", attempt+1, "error", err)
			continue
		}

		channel, err := conn.Channel()
		if err != nil {
			conn.Close()
			slog.WarnContext(ctx, "AMQP channel reopen failed",
				"attempt", attempt+1, "error", err)
			continue
		}

		c.conn = conn
		c.channel = channel
		if err := c.setup(); err != nil {
			c.Close()
			slog.WarnContext(ctx, "AMQP setup after reconnect failed",
				"attempt", attempt+1, "error", err)
			continue
		}

		slog.InfoContext(ctx, "AMQP reconnected", "attempts", attempt+1)
		return nil
	}
}
