package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/currency-converter/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "currency_exchange"
	ExchangeType = "topic"
)

// RabbitPublisher publishes receipts as JSON to a durable topic exchange.
type RabbitPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialRabbit connects to the broker and declares the receipts exchange.
func DialRabbit(url string) (*RabbitPublisher, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < 3; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		zap.L().Warn("rabbitmq dial failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return &RabbitPublisher{conn: conn, ch: ch}, nil
}

func (p *RabbitPublisher) PublishReceipt(ctx context.Context, receipt models.Receipt) error {
	body, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("could not marshal receipt: %w", err)
	}

	return p.ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey(receipt),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    receipt.Timestamp,
			MessageId:    fmt.Sprintf("receipt-%d", receipt.TransactionNumber),
			Body:         body,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// RoutingKey is receipt.<source>.<destination> for exchanges, e.g.
// receipt.eur.usd, and receipt.<kind> for anything else.
func RoutingKey(receipt models.Receipt) string {
	switch op := receipt.Operation.(type) {
	case models.ExchangeOperation:
		return fmt.Sprintf("receipt.%s.%s", strings.ToLower(op.SourceCurrency.Code()), strings.ToLower(op.DestinationCurrency.Code()))
	case nil:
		return "receipt.unknown"
	default:
		return "receipt." + op.Kind()
	}
}
