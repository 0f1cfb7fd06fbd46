package queue

import (
    "fmt"
    "strings"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Topology is the broker layout for domain events.  Events go to one durable
// topic exchange with the event type as routing key; every consumer binds its
// own queue, so the audit log and the mailer each get a full copy of what
// they subscribe to.
type Topology struct {
    Exchange   string
    AuditQueue string
    MailQueue  string
}

type binding struct {
    queue string
    key   string
}

func (t Topology) auditBinding() binding { return binding{queue: t.AuditQueue, key: "#"} }

func (t Topology) mailBinding() binding {
    return binding{queue: t.MailQueue, key: PasswordResetRequested}
}

func (t Topology) bindings() []binding {
    var out []binding
    if t.AuditQueue != "" {
        out = append(out, t.auditBinding())
    }
    if t.MailQueue != "" {
        out = append(out, t.mailBinding())
    }
    return out
}

// Route lists the queues an event of type typ is delivered to.
func (t Topology) Route(typ string) []string {
    var out []string
    for _, b := range t.bindings() {
        if topicMatch(b.key, typ) {
            out = append(out, b.queue)
        }
    }
    return out
}

// topicMatch applies AMQP topic rules: words are dot separated, "*" matches
// exactly one word and "#" matches zero or more.
func topicMatch(pattern, key string) bool {
    return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
    for len(p) > 0 {
        switch p[0] {
        case "#":
            if len(p) == 1 {
                return true
            }
            for i := 0; i <= len(k); i++ {
                if matchWords(p[1:], k[i:]) {
                    return true
                }
            }
            return false
        case "*":
            if len(k) == 0 {
                return false
            }
        default:
            if len(k) == 0 || k[0] != p[0] {
                return false
            }
        }
        p, k = p[1:], k[1:]
    }
    return len(k) == 0
}

func declareExchange(ch *amqp.Channel, exchange string) error {
    if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
        return fmt.Errorf("exchange declare: %w", err)
    }
    return nil
}

// declareBound makes sure the durable queue exists and is bound (idempotent).
func declareBound(ch *amqp.Channel, exchange string, b binding) error {
    if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare %s: %w", b.queue, err)
    }
    if err := ch.QueueBind(b.queue, b.key, exchange, false, nil); err != nil {
        return fmt.Errorf("queue bind %s: %w", b.queue, err)
    }
    return nil
}
