package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/cenkalti/backoff/v4"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// StartAuditConsumer binds the audit queue to every event on the exchange and
// appends one line per event to logPath.  It reconnects with exponential backoff and returns only when
// ctx is cancelled.  Malformed messages are rejected without requeue so they
// cannot cause a tight redelivery loop.
func StartAuditConsumer(ctx context.Context, url string, topo Topology, logPath string, log *zap.Logger) error {
    b := backoff.WithContext(reconnectBackOff(), ctx)
    for {
        var conn *amqp.Connection
        err := backoff.RetryNotify(func() error {
            c, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
            if err != nil {
                return err
            }
            conn = c
            return nil
        }, b, func(err error, next time.Duration) {
            log.Warn("audit-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", next))
        })
        if err != nil {
            if ctx.Err() != nil {
                return ctx.Err()
            }
            return err
        }
        b.Reset()
        log.Info("audit-consumer: connected", zap.String("exchange", topo.Exchange), zap.String("queue", topo.AuditQueue))

        err = consumeLoop(ctx, conn, topo, logPath, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("audit-consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, b.NextBackOff()) {
            return ctx.Err()
        }
    }
}

// reconnectBackOff grows from 1s to 30s between attempts and never gives up.
func reconnectBackOff() *backoff.ExponentialBackOff {
    b := backoff.NewExponentialBackOff()
    b.InitialInterval = time.Second
    b.MaxInterval = 30 * time.Second
    b.MaxElapsedTime = 0
    return b
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, topo Topology, logPath string, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("audit-consumer: set QoS failed", zap.Error(err))
    }
    if err := declareExchange(ch, topo.Exchange); err != nil {
        return err
    }
    if err := declareBound(ch, topo.Exchange, topo.auditBinding()); err != nil {
        return err
    }
    msgs, err := ch.Consume(topo.AuditQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(d.Body, logPath); err != nil {
                log.Warn("audit-consumer: handle message failed", zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(body []byte, logPath string) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// formatLine renders a single human-friendly audit line.  Reset tokens are
// never written.
func formatLine(ev Event) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | user_id=%s", ev.OccurredAt, ev.Type, ev.UserID)
    if len(ev.ImageIDs) > 0 {
        fmt.Fprintf(&b, " | images=[%s]", strings.Join(ev.ImageIDs, ","))
    }
    if len(ev.Titles) > 0 {
        fmt.Fprintf(&b, " | titles=%q", ev.Titles)
    }
    if ev.Email != "" {
        fmt.Fprintf(&b, " | email=%s", ev.Email)
    }
    b.WriteString("\n")
    return b.String()
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
