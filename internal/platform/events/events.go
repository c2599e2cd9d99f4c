// Package events publishes appointment lifecycle notifications to a topic
// exchange. Publishing happens after the owning transaction commits and
// failures are reported to the caller, which logs and moves on.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	AppointmentBooked      = "appointment.booked"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentCancelled   = "appointment.cancelled"
	AppointmentNoShow      = "appointment.no_show"
	AppointmentDeleted     = "appointment.deleted"
)

// Event is the envelope published for every appointment change. Type doubles
// as the routing key. Subject names the doctor the change belongs to.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Subject    string      `json:"subject,omitempty"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

func New(eventType string, data interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type nopPublisher struct{}

// Nop returns a Publisher that discards every event.
func Nop() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close() error                         { return nil }

type fanout []Publisher

// Fanout publishes every event to each of pubs in order. All publishers are
// tried; their errors are joined.
func Fanout(pubs ...Publisher) Publisher {
	if len(pubs) == 1 {
		return pubs[0]
	}
	return fanout(pubs)
}

func (f fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("events: publisher closed")

// redialInterval spaces out reconnect attempts while the broker is down, so
// a burst of bookings does not turn into a burst of dials.
const redialInterval = 2 * time.Second

// amqpSession is one connection with its publishing channel.
type amqpSession interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	// Closed is signalled once the broker or the network ends the channel.
	Closed() <-chan *amqp.Error
	Close() error
}

type dialFunc func(url, exchange string) (amqpSession, error)

// AMQPPublisher publishes to a durable topic exchange. A session the broker
// has closed is noticed through its close notification (or an ErrClosed
// from a publish) and replaced on the next Publish.
type AMQPPublisher struct {
	url      string
	exchange string
	dial     dialFunc
	now      func() time.Time

	// amqp channels are not safe for concurrent publishes.
	mu         sync.Mutex
	sess       amqpSession
	dialFailed time.Time
	closed     bool
}

// DialAMQP connects and declares a durable topic exchange. The first dial
// must succeed; later ones happen on demand.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	p := newAMQPPublisher(url, exchange, dialSession)
	sess, err := p.dial(url, exchange)
	if err != nil {
		return nil, err
	}
	p.sess = sess
	return p, nil
}

func newAMQPPublisher(url, exchange string, dial dialFunc) *AMQPPublisher {
	return &AMQPPublisher{url: url, exchange: exchange, dial: dial, now: time.Now}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := publishing(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	// One retry covers a close that raced the notification.
	for attempt := 0; ; attempt++ {
		sess, err := p.session()
		if err != nil {
			return fmt.Errorf("publish %s: %w", e.Type, err)
		}
		err = sess.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, amqp.ErrClosed) || attempt > 0 {
			return fmt.Errorf("publish %s: %w", e.Type, err)
		}
		p.drop()
	}
}

// session returns a live session, redialing if the current one is gone.
// Called with p.mu held.
func (p *AMQPPublisher) session() (amqpSession, error) {
	if p.sess != nil {
		select {
		case <-p.sess.Closed():
			p.drop()
		default:
			return p.sess, nil
		}
	}
	if !p.dialFailed.IsZero() && p.now().Sub(p.dialFailed) < redialInterval {
		return nil, fmt.Errorf("amqp broker unavailable since %s", p.dialFailed.Format(time.RFC3339))
	}
	sess, err := p.dial(p.url, p.exchange)
	if err != nil {
		p.dialFailed = p.now()
		return nil, err
	}
	p.dialFailed = time.Time{}
	p.sess = sess
	return sess, nil
}

func (p *AMQPPublisher) drop() {
	_ = p.sess.Close()
	p.sess = nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.sess == nil {
		return nil
	}
	err := p.sess.Close()
	p.sess = nil
	return err
}

type channelSession struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan *amqp.Error
}

func dialSession(url, exchange string) (amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	s := &channelSession{conn: conn, ch: ch, closed: make(chan *amqp.Error, 1)}
	ch.NotifyClose(s.closed)
	return s, nil
}

func (s *channelSession) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return s.ch.PublishWithContext(ctx, exchange, key, mandatory, immediate, msg)
}

func (s *channelSession) Closed() <-chan *amqp.Error { return s.closed }

func (s *channelSession) Close() error {
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		s.conn.Close()
		return err
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

func publishing(e Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         e.Type,
		Timestamp:    e.OccurredAt,
		Body:         body,
	}, nil
}
