// Package event publishes order lifecycle messages to RabbitMQ.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"

	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/model"
)

// ErrBreakerOpen is returned while the broker is considered down.
var ErrBreakerOpen = gobreaker.ErrOpenState

type Publisher interface {
	PublishOrderCreated(ctx context.Context, msg model.OrderMessage) error
}

// Channel is the publishing half of *amqp.Channel.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type BreakerConfig struct {
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// AMQPPublisher sends order messages to the orders queue through a circuit
// breaker so that a broker outage fails fast instead of stalling requests.
type AMQPPublisher struct {
	ch      Channel
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *slog.Logger
}

func NewAMQPPublisher(ch Channel, cfg BreakerConfig, log *slog.Logger) *AMQPPublisher {
	settings := gobreaker.Settings{
		Name:        "order-publisher",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.PublisherBreakerState.Set(stateValue(to))
		},
	}
	metrics.PublisherBreakerState.Set(0)
	return &AMQPPublisher{
		ch:      ch,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		log:     log,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func (p *AMQPPublisher) PublishOrderCreated(ctx context.Context, msg model.OrderMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode order message: %w", err)
	}
	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.ch.PublishWithContext(ctx, "", OrderQueue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.OrderID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	})
	if err != nil {
		return fmt.Errorf("publish order %s: %w", msg.OrderID, err)
	}
	return nil
}

func (p *AMQPPublisher) State() gobreaker.State { return p.breaker.State() }
