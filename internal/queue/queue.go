package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"rtc-service/internal/observability"
)

// Enqueuer is the durable delivery queue the pipeline falls back to for
// recipients with no live session. Enqueuing the same job id twice is safe:
// the id becomes the AMQP message id and consumers dedupe on it.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string, routingKey string, payload any) error
	Close() error
}

// NewDeliveryQueue connects to RabbitMQ and declares the delivery exchange
// plus the retry topology. When AMQP is disabled or unreachable it degrades
// to a noop queue so the service keeps running; offline recipients then rely
// on history reads alone.
func NewDeliveryQueue(amqpURL, exchange string) Enqueuer {
	if amqpURL == "" {
		log.Printf("delivery queue disabled, using noop: empty amqp url")
		return noopQueue{reason: "empty amqp url"}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Printf("delivery queue disabled, using noop: %v", err)
		return noopQueue{reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("delivery queue disabled, using noop: %v", err)
		_ = conn.Close()
		return noopQueue{reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Printf("delivery queue disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopQueue{reason: err.Error()}
	}

	if err := setupRetryInfra(ch, exchange); err != nil {
		log.Printf("delivery queue disabled, using noop: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return noopQueue{reason: err.Error()}
	}

	log.Printf("delivery queue connected exchange=%s", exchange)
	return &amqpQueue{conn: conn, ch: ch, exchange: exchange}
}

// setupRetryInfra declares the dead-letter/TTL topology that gives failing
// jobs bounded retries with backoff: rejected deliveries land on the dead
// queue, sit out the TTL, and are re-routed through the retry exchange; jobs
// that keep failing end up on the final (parked) queue.
func setupRetryInfra(ch *amqp.Channel, exchange string) error {
	deadExchange := exchange + ".dead"
	retryExchange := exchange + ".retry"
	finalExchange := exchange + ".final"

	for _, name := range []string{deadExchange, retryExchange, finalExchange} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}

	deadArgs := amqp.Table{
		"x-message-ttl":          int32((30 * time.Second).Milliseconds()),
		"x-dead-letter-exchange": retryExchange,
	}
	dq, err := ch.QueueDeclare(exchange+".dead.q", true, false, false, false, deadArgs)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dq.Name, "#", deadExchange, false, nil); err != nil {
		return err
	}

	fq, err := ch.QueueDeclare(exchange+".final.q", true, false, false, false, nil)
	if err != nil {
		return err
	}
	return ch.QueueBind(fq.Name, "#", finalExchange, false, nil)
}

type amqpQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (q *amqpQueue) Enqueue(ctx context.Context, jobID string, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	err = q.ch.PublishWithContext(ctx, q.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		log.Printf("delivery enqueue failed job_id=%s: %v", jobID, err)
		observability.IncDeliveryEnqueueError()
	}
	return err
}

func (q *amqpQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

type noopQueue struct {
	reason string
}

func (noopQueue) Enqueue(ctx context.Context, jobID string, routingKey string, payload any) error {
	log.Printf("delivery queue noop enqueue job_id=%s routing_key=%s", jobID, routingKey)
	return nil
}

func (noopQueue) Close() error {
	return nil
}
