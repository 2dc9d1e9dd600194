package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/threads/internal/metrics"
)

// HeaderTopic carries the logical topic of a message published on a
// forest subject.
const HeaderTopic = "Threads-Topic"

// NATSPublisher publishes JSON events on forest subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to url. name shows up in server monitoring.
func NewNATSPublisher(url, name string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends event on topic's subject for the event's forest. Events
// without a forest go out on the bare topic.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", topic, err)
	}

	subject := topic
	if fe, ok := event.(forestEvent); ok {
		if scope := fe.EventScope(); scope.Type != "" && scope.ID != "" {
			subject = ForestSubject(topic, scope)
		}
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(HeaderTopic, topic)
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	p.conn.Close()
	return nil
}

// NATSSubscriber delivers event payloads from subject filters.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to url and keeps reconnecting forever. opts
// are appended to the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	all := append([]nats.Option{
		nats.Name("threads-subscriber"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, all...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// subscription buffers payloads for one filter. Payloads arriving while the
// buffer is full are dropped and counted; the NATS client never blocks.
type subscription struct {
	filter string
	ch     chan []byte
	sub    *nats.Subscription

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg.Data:
	default:
		metrics.EventsDropped.WithLabelValues(s.filter).Inc()
	}
}

func (s *subscription) cancel() {
	s.once.Do(func() {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Subscribe delivers payloads of every subject matching filter, such as
// TopicAll, TopicFilter(topic) or ForestFilter(scope). The subscription is
// registered on the server before Subscribe returns.
func (s *NATSSubscriber) Subscribe(filter string) (<-chan []byte, func(), error) {
	sn := &subscription{filter: filter, ch: make(chan []byte, 64)}
	sub, err := s.conn.Subscribe(filter, sn.deliver)
	if err != nil {
		sn.cancel()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", filter, err)
	}
	sn.sub = sub
	if err := s.conn.Flush(); err != nil {
		sn.cancel()
		return nil, nil, fmt.Errorf("registering %s: %w", filter, err)
	}
	return sn.ch, sn.cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
