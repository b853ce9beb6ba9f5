// Package queue carries campaign lifecycle events from the API server to the
// dispatch worker over RabbitMQ. The database stays the source of truth for
// all state; an event only wakes the worker early, and a lost event degrades
// to poll-interval latency.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const campaignEventsQueue = "campaign_events"

// Event is one lifecycle hint: a campaign was started, paused, resumed or
// cancelled.
type Event struct {
	CampaignID int    `json:"campaign_id"`
	Action     string `json:"action"`
}

type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  zerolog.Logger
}

// Dial connects to RabbitMQ and declares the durable campaign-events queue.
func Dial(url string, log zerolog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		campaignEventsQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch, log: log}, nil
}

func (q *AMQPQueue) PublishCampaignEvent(ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		campaignEventsQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Consume delivers events to handler until ctx is cancelled. Malformed
// payloads are acked and dropped; an event is only a wakeup, redelivery buys
// nothing.
func (q *AMQPQueue) Consume(ctx context.Context, handler func(Event)) error {
	msgs, err := q.ch.Consume(
		campaignEventsQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("event channel closed")
			}
			var ev Event
			if err := json.Unmarshal(d.Body, &ev); err != nil {
				q.log.Warn().Err(err).Msg("dropping malformed campaign event")
				d.Ack(false)
				continue
			}
			handler(ev)
			d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}
