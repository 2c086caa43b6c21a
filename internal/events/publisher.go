// Package events publishes committed KYC transitions to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"akwaba.app/internal/kyc"
	"akwaba.app/internal/obs"
)

const (
	DefaultExchange     = "kyc_events"
	RoutingKeySubmitted = "kyc.submitted"
	RoutingKeyDecided   = "kyc.decided"
)

// CaseEvent is the message body. It never carries the document number.
type CaseEvent struct {
	CaseID     string     `json:"caseId"`
	SubjectID  string     `json:"subjectId"`
	Role       kyc.Role   `json:"role"`
	Status     kyc.Status `json:"status"`
	Attempt    int        `json:"attempt"`
	OccurredAt time.Time  `json:"occurredAt"`
	Reason     string     `json:"reason,omitempty"`
}

// FromCase builds the event for a committed case.
func FromCase(c kyc.Case) CaseEvent {
	at := c.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return CaseEvent{
		CaseID:     c.ID,
		SubjectID:  c.SubjectID,
		Role:       c.Role,
		Status:     c.Status,
		Attempt:    c.Attempt,
		OccurredAt: at.UTC(),
		Reason:     c.RejectionReason,
	}
}

// RoutingKey selects the topic for status.
func RoutingKey(status kyc.Status) string {
	if status == kyc.StatusPending {
		return RoutingKeySubmitted
	}
	return RoutingKeyDecided
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher implements kyc.Notifier over a topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	timeout  time.Duration
}

var _ kyc.Notifier = (*Publisher)(nil)

// Dial connects to the broker and declares the exchange.
func Dial(amqpURL, exchange string) (*Publisher, error) {
	clean, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, exchange: exchange, timeout: 5 * time.Second}, nil
}

// Publish sends ev to the exchange.
func (p *Publisher) Publish(ctx context.Context, ev CaseEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Status), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.CaseID + ":" + string(ev.Status),
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}

// CaseChanged publishes c. Failures are logged; the transition has already committed.
func (p *Publisher) CaseChanged(ctx context.Context, c kyc.Case) {
	ev := FromCase(c)
	if err := p.Publish(context.WithoutCancel(ctx), ev); err != nil {
		obs.Error("kyc event publish failed", map[string]any{
			"case_id":     ev.CaseID,
			"routing_key": RoutingKey(ev.Status),
			"error":       err.Error(),
		})
	}
}

// Close releases channel and connection resources.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", errors.New("events: AMQP scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
