package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"product-catalog-backend/internal/models"
)

const ProductCreated = "product.created"

// ProductCreatedEvent is the JSON body published after a product is persisted.
type ProductCreatedEvent struct {
	Event       string          `json:"event"`
	ProductID   int64           `json:"product_id"`
	ProductName *string         `json:"product_name"`
	Category    models.Category `json:"category"`
	PriceInfo   string          `json:"price_info"`
	ImagePaths  []string        `json:"image_paths"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends catalog events to a RabbitMQ exchange.
type Publisher struct {
	mu         sync.Mutex
	conn       *amqp.Connection
	channel    Channel
	exchange   string
	routingKey string
}

// NewPublisher dials amqpURL and declares a durable direct exchange.
func NewPublisher(amqpURL, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := NewPublisherWithChannel(ch, exchange, routingKey)
	p.conn = conn
	return p, nil
}

// NewPublisherWithChannel wraps an already open channel.
func NewPublisherWithChannel(ch Channel, exchange, routingKey string) *Publisher {
	if routingKey == "" {
		routingKey = ProductCreated
	}
	return &Publisher{channel: ch, exchange: exchange, routingKey: routingKey}
}

func (p *Publisher) PublishProductCreated(ctx context.Context, product *models.Product) error {
	return p.publish(ctx, ProductCreatedEvent{
		Event:       ProductCreated,
		ProductID:   product.ID,
		ProductName: product.ProductName,
		Category:    product.Category,
		PriceInfo:   product.PriceInfo,
		ImagePaths:  product.ImagePaths,
		CreatedAt:   product.CreatedAt,
	})
}

func (p *Publisher) publish(ctx context.Context, message any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context done before publishing: %w", err)
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Publish(p.exchange, p.routingKey, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.WithFields(log.Fields{
		"component":   "events",
		"exchange":    p.exchange,
		"routing_key": p.routingKey,
	}).Debug("event published")

	return nil
}

func (p *Publisher) Close() error {
	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.WithError(chErr).Warn("failed to close channel")
			err = chErr
		}
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.WithError(connErr).Warn("failed to close connection")
			if err == nil {
				err = connErr
			}
		}
	}
	return err
}
