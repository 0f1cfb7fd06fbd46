package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// ErrUnavailable is returned while the broker is being dialed or after a
// failed dial, until the cool-down passes.
var ErrUnavailable = errors.New("rabbitmq: broker unavailable")

const defaultCoolDown = 5 * time.Second

// AMQPPublisher publishes events as persistent JSON messages to the topic
// exchange of a Topology, keyed by event type.  The connection is opened
// lazily by one caller at a time and outside the lock; everyone else fails
// fast with ErrUnavailable instead of queueing behind the dial.  After a
// failed dial no new attempt is made for the cool-down period.  The mail
// queue is declared with the exchange so reset events are kept until a
// mailer starts.
type AMQPPublisher struct {
    url      string
    topo     Topology
    log      *zap.Logger
    coolDown time.Duration
    dialFn   func() (*amqp.Connection, *amqp.Channel, error)
    now      func() time.Time

    mu      sync.Mutex
    conn    *amqp.Connection
    ch      *amqp.Channel
    dialing bool
    retryAt time.Time
    closed  bool
}

func NewAMQPPublisher(url string, topo Topology, log *zap.Logger) *AMQPPublisher {
    p := &AMQPPublisher{url: url, topo: topo, log: log, coolDown: defaultCoolDown, now: time.Now}
    p.dialFn = p.dial
    return p
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    ch, err := p.channel()
    if err != nil {
        p.log.Warn("rabbitmq: channel unavailable", zap.String("event", ev.Type), zap.Error(err))
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        Timestamp:    time.Now().UTC(),
        Type:         ev.Type,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, p.topo.Exchange, ev.Type, false, false, pub); err != nil {
        p.log.Warn("rabbitmq: publish failed", zap.String("event", ev.Type), zap.Error(err))
        p.drop(ch)
        return err
    }
    return nil
}

// channel returns the open channel or dials a new one.  Only the caller that
// sets p.dialing talks to the broker.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
    p.mu.Lock()
    if p.closed {
        p.mu.Unlock()
        return nil, ErrUnavailable
    }
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        ch := p.ch
        p.mu.Unlock()
        return ch, nil
    }
    if p.dialing || p.now().Before(p.retryAt) {
        p.mu.Unlock()
        return nil, ErrUnavailable
    }
    p.dialing = true
    p.reset()
    p.mu.Unlock()

    conn, ch, err := p.dialFn()

    p.mu.Lock()
    defer p.mu.Unlock()
    p.dialing = false
    if err != nil {
        p.retryAt = p.now().Add(p.coolDown)
        return nil, err
    }
    if p.closed {
        _ = ch.Close()
        _ = conn.Close()
        return nil, ErrUnavailable
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *AMQPPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(3 * time.Second),
    })
    if err != nil {
        return nil, nil, fmt.Errorf("dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, nil, fmt.Errorf("channel open: %w", err)
    }
    err = declareExchange(ch, p.topo.Exchange)
    if err == nil && p.topo.MailQueue != "" {
        err = declareBound(ch, p.topo.Exchange, p.topo.mailBinding())
    }
    if err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return nil, nil, err
    }
    return conn, ch, nil
}

// drop forgets ch after a failed publish unless another caller already
// replaced it.
func (p *AMQPPublisher) drop(ch *amqp.Channel) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch == ch {
        p.reset()
    }
}

// reset closes the current connection.  Callers hold p.mu.
func (p *AMQPPublisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.closed = true
    p.reset()
    return nil
}
