package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/logger"
)

// amqpChannel часть *amqp.Channel, нужная публикатору.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type amqpSession struct {
	conn io.Closer
	ch   amqpChannel
}

func (s *amqpSession) close() {
	_ = s.ch.Close()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

type amqpDialer func() (*amqpSession, error)

// AMQPPublisher публикует события в topic exchange, routing key = тип события.
// Закрытое брокером соединение переоткрывается при следующей публикации.
type AMQPPublisher struct {
	mu       sync.Mutex
	dial     amqpDialer
	session  *amqpSession
	exchange string
	closed   bool
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	return newAMQPPublisher(exchange, func() (*amqpSession, error) {
		return dialAMQP(url, exchange)
	})
}

func newAMQPPublisher(exchange string, dial amqpDialer) (*AMQPPublisher, error) {
	session, err := dial()
	if err != nil {
		return nil, err
	}
	return &AMQPPublisher{dial: dial, session: session, exchange: exchange}, nil
}

func dialAMQP(url, exchange string) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &amqpSession{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", e.Type, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
		Type:         e.Type,
		Body:         body,
	}

	// amqp.Channel не допускает конкурентных публикаций.
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureSession(); err != nil {
		return err
	}
	err = p.session.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg)
	if !errors.Is(err, amqp.ErrClosed) {
		return err
	}

	// канал закрылся между проверкой и публикацией: одна попытка на новом соединении
	p.drop()
	if err := p.ensureSession(); err != nil {
		return err
	}
	return p.session.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg)
}

func (p *AMQPPublisher) ensureSession() error {
	if p.closed {
		return amqp.ErrClosed
	}
	if p.session != nil && !p.session.ch.IsClosed() {
		return nil
	}
	if p.session != nil {
		p.drop()
	}

	session, err := p.dial()
	if err != nil {
		return err
	}
	p.session = session
	logger.WithFields(logrus.Fields{"exchange": p.exchange}).Info("rabbitmq channel reopened")
	return nil
}

func (p *AMQPPublisher) drop() {
	p.session.close()
	p.session = nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.session == nil {
		return nil
	}
	_ = p.session.ch.Close()
	var err error
	if p.session.conn != nil {
		err = p.session.conn.Close()
	}
	p.session = nil
	return err
}
