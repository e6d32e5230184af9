package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// BookingConsumer drains the booking.confirmed queue and appends one line
// per event to a log file (logs/booking.log by default).
type BookingConsumer struct {
    url     string
    logPath string
    logger  *zap.Logger

    mu sync.Mutex // serializes writes to logPath
}

// NewBookingConsumer returns a consumer for the broker at url.  An empty
// logPath means logs/booking.log.
func NewBookingConsumer(url, logPath string, logger *zap.Logger) *BookingConsumer {
    if logPath == "" {
        logPath = filepath.Join("logs", "booking.log")
    }
    if logger == nil {
        logger = zap.NewNop()
    }
    return &BookingConsumer{url: url, logPath: logPath, logger: logger.Named("booking-consumer")}
}

// Run connects, declares the durable queue and consumes until ctx is
// cancelled, reconnecting with exponential backoff (capped at 30s) whenever
// the broker goes away.  It returns ctx.Err() on shutdown.
func (c *BookingConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.logger.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.logger.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *BookingConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.logger.Warn("set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(BookingQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, BookingQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    c.logger.Info("consuming", zap.String("queue", BookingQueueName))
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.HandleMessage(d.Body); err != nil {
                c.logger.Error("handle message failed",
                    zap.String("message_id", d.MessageId),
                    zap.Error(err),
                )
                _ = d.Nack(false, false) // drop, requeueing a poison message would spin
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// HandleMessage decodes one event body and appends its log line.
func (c *BookingConsumer) HandleMessage(body []byte) error {
    var ev BookingConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Username == "" || len(ev.Seats) == 0 {
        return errors.New("event without username or seats")
    }

    c.mu.Lock()
    defer c.mu.Unlock()

    if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLogLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLogLine renders ev as the single line written to the booking log.
func FormatLogLine(ev BookingConfirmedEvent) string {
    seats := make([]string, len(ev.Seats))
    for i, s := range ev.Seats {
        seats[i] = strconv.Itoa(s)
    }
    return fmt.Sprintf("[%s] Reservation confirmed | event_id=%s | user=%q | bus_id=%d | date=%s | schedule=%s | seats=[%s]\n",
        ev.ConfirmedAt, ev.EventID, ev.Username, ev.BusID, ev.Date, ev.Schedule, strings.Join(seats, ","))
}
