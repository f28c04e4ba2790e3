package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"paperwing/internal/config"
	"paperwing/internal/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Publisher fans document status events out to downstream consumers
// (notification services, websocket bridges, audit sinks) over a topic
// exchange. Publishing is best-effort from the pipeline's point of view.
type Publisher interface {
	PublishStatus(ctx context.Context, event *model.StatusEvent) error

	Health() error
	Close() error
}

type publisher struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       config.RabbitMQConfig
	mu           sync.Mutex
	reconnecting bool
	notifyClose  chan *amqp.Error
}

func NewPublisherFromConfig(cfg config.RabbitMQConfig) (Publisher, error) {
	p := &publisher{
		config:       cfg,
		reconnecting: false,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	// Setup reconnection handling
	p.setupReconnect()

	return p, nil
}

func (p *publisher) connect() error {
	amqpURL := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		p.config.Username,
		p.config.Password,
		p.config.Host,
		p.config.Port,
		p.config.VHost,
	)

	conn, err := amqp.DialConfig(amqpURL, amqp.Config{
		Heartbeat: 30 * time.Second, // Set heartbeat interval
		Locale:    "en_US",
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to RabbitMQ")
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open RabbitMQ channel")
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Status events are routed by document status, so the exchange is a topic
	if err := ch.ExchangeDeclare(
		p.config.Exchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	); err != nil {
		log.Error().Err(err).Str("exchange", p.config.Exchange).Msg("Failed to declare status exchange")
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch

	log.Info().
		Str("host", p.config.Host).
		Int("port", p.config.Port).
		Str("vhost", p.config.VHost).
		Str("exchange", p.config.Exchange).
		Msg("RabbitMQ connection established")

	return nil
}

func (p *publisher) setupReconnect() {
	p.notifyClose = p.conn.NotifyClose(make(chan *amqp.Error))

	// Start a goroutine to handle connection failures
	go func() {
		for err := range p.notifyClose {
			log.Warn().
				Str("reason", err.Reason).
				Int("code", err.Code).
				Bool("recover", err.Recover).
				Msg("RabbitMQ connection closed, attempting to reconnect...")

			// Begin reconnection attempts
			p.doReconnect()
		}
	}()
}

func (p *publisher) doReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reconnecting {
		return
	}

	p.reconnecting = true
	defer func() { p.reconnecting = false }()

	// Close existing resources if they're still open
	if p.channel != nil {
		p.channel.Close()
	}

	if p.conn != nil && !p.conn.IsClosed() {
		p.conn.Close()
	}

	// Attempt reconnection with backoff
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		log.Info().Dur("backoff", backoff).Msg("Attempting to reconnect to RabbitMQ")

		if err := p.connect(); err != nil {
			log.Error().Err(err).Msg("Failed to reconnect to RabbitMQ")

			// Exponential backoff with cap
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// Setup the notification channel again
		p.notifyClose = p.conn.NotifyClose(make(chan *amqp.Error))

		log.Info().Msg("Successfully reconnected to RabbitMQ")
		return
	}
}

// PublishStatus publishes one status event, routed as
// "document.status.<status>" so consumers can bind to the phases they
// care about (e.g. "document.status.error" for alerting).
func (p *publisher) PublishStatus(ctx context.Context, event *model.StatusEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding status event: %w", err)
	}

	routingKey := "document.status." + event.Status
	headers := amqp.Table{"document_id": event.DocumentID}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Connection check and auto-reconnect
	if p.conn == nil || p.channel == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return fmt.Errorf("failed to reconnect before publishing: %w", err)
		}

		// Re-setup the reconnect hooks
		p.setupReconnect()
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(pubCtx, p.config.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // Make messages persistent
		Body:         body,
		Headers:      headers,
	})

	if err != nil {
		log.Error().
			Err(err).
			Str("exchange", p.config.Exchange).
			Str("routingKey", routingKey).
			Msg("Failed to publish status event")

		// If publish fails due to connection issues, try to reconnect once and retry
		if err.Error() == "Exception (504) Reason: \"channel/connection is not open\"" {
			if err := p.connect(); err == nil {
				p.setupReconnect()

				// Try publishing again after successful reconnection
				retryErr := p.channel.PublishWithContext(pubCtx, p.config.Exchange, routingKey, false, false, amqp.Publishing{
					ContentType:  "application/json",
					DeliveryMode: amqp.Persistent,
					Body:         body,
					Headers:      headers,
				})

				if retryErr == nil {
					log.Info().
						Str("routingKey", routingKey).
						Str("documentID", event.DocumentID).
						Msg("Published status event after reconnection")
					return nil
				}
			}
		}

		return err
	}

	log.Debug().
		Str("routingKey", routingKey).
		Str("documentID", event.DocumentID).
		Int("progress", event.Progress).
		Msg("Published status event")

	return nil
}

func (p *publisher) Health() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.channel == nil {
		log.Error().Msg("RabbitMQ health check failed: nil connection or channel")
		return fmt.Errorf("nil connection or channel")
	}

	if p.conn.IsClosed() {
		log.Error().Msg("RabbitMQ connection is closed")
		return fmt.Errorf("connection is closed")
	}

	// Try a passive declare to validate channel health
	err := p.channel.ExchangeDeclarePassive(
		p.config.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)

	if err != nil {
		log.Error().Err(err).Msg("RabbitMQ health check failed on passive exchange declare")
		return err
	}

	log.Debug().Msg("RabbitMQ is healthy")
	return nil
}

func (p *publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ channel")
			return fmt.Errorf("channel close error: %w", err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			return fmt.Errorf("connection close error: %w", err)
		}
	}

	log.Info().Msg("RabbitMQ connection and channel closed")
	return nil
}
