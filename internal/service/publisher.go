package service

import (
    "context"
    "encoding/json"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/bus-seat-reservation/internal/queue"
)

// EventPublisher delivers booking events.  Booking treats publishing as best
// effort: an error is logged, never returned to the client.
type EventPublisher interface {
    PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
}

// NoopPublisher drops every event.  Used when EVENTS_ENABLED=false.
type NoopPublisher struct{}

func (NoopPublisher) PublishBookingConfirmed(context.Context, queue.BookingConfirmedEvent) error {
    return nil
}

// AMQPPublisher publishes events to RabbitMQ.  Each publish dials a fresh
// connection, so a broker outage never poisons later requests.
type AMQPPublisher struct {
    url    string
    logger *zap.Logger
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, logger *zap.Logger) *AMQPPublisher {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &AMQPPublisher{url: url, logger: logger.Named("publisher")}
}

// PublishBookingConfirmed publishes ev to the booking.confirmed queue as a
// persistent JSON message.  An empty EventID is filled with a new UUID, which
// also becomes the AMQP MessageId.
func (p *AMQPPublisher) PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error {
    if ev.EventID == "" {
        ev.EventID = uuid.NewString()
    }
    log := p.logger.With(zap.String("event_id", ev.EventID))

    conn, err := amqp.Dial(p.url)
    if err != nil {
        log.Warn("rabbitmq dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Warn("rabbitmq channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(
        queue.BookingQueueName, // name
        true,                   // durable
        false,                  // autoDelete
        false,                  // exclusive
        false,                  // noWait
        nil,                    // args
    ); err != nil {
        log.Warn("rabbitmq queue declare failed", zap.Error(err))
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        log.Error("marshal booking event failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue.BookingQueueName, false, false, pub); err != nil {
        log.Warn("rabbitmq publish failed", zap.Error(err))
        return err
    }
    log.Debug("booking event published",
        zap.String("username", ev.Username),
        zap.Ints("seats", ev.Seats),
    )
    return nil
}
