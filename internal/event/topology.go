package event

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	OrderQueue  = "orders"
	DLXExchange = "orders.dlx"
	DLQueue     = "orders.dlq"
)

// TopologyChannel is the subset of *amqp.Channel needed to declare the order
// queues.
type TopologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
}

// DeclareTopology declares the order queue and its dead-letter exchange and
// queue. Messages rejected without requeue land in orders.dlq.
func DeclareTopology(ch TopologyChannel) error {
	if err := ch.ExchangeDeclare(DLXExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(DLQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(DLQueue, OrderQueue, DLXExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(OrderQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    DLXExchange,
		"x-dead-letter-routing-key": OrderQueue,
	}); err != nil {
		return fmt.Errorf("declare order queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}
