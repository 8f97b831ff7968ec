package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/storefront-api/internal/cache"
	"github.com/flicky/storefront-api/internal/event"
	"github.com/flicky/storefront-api/internal/metrics"
	"github.com/flicky/storefront-api/internal/model"
	"github.com/flicky/storefront-api/internal/repository"
)

const idempotencyKeyPrefix = "order_processed:"

var errOrderNotFound = errors.New("order not found")

// Consumer is the subset of *amqp.Channel the worker reads deliveries from.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// OrderWorker commits the stock of created orders. Each order's lines are
// decremented exactly once: the stock_committed flag is flipped in the same
// transaction as the decrements. The Redis key only short-circuits
// redeliveries before they reach the database.
type OrderWorker struct {
	consumer       Consumer
	tx             repository.TxManager
	orderRepo      repository.OrderRepository
	productRepo    repository.ProductRepository
	cartRepo       repository.CartRepository
	redisClient    *redis.Client
	productCache   *cache.ProductCache
	idempotencyTTL time.Duration
	log            *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewOrderWorker(
	consumer Consumer,
	tx repository.TxManager,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	cartRepo repository.CartRepository,
	redisClient *redis.Client,
	productCache *cache.ProductCache,
	idempotencyTTL time.Duration,
	log *slog.Logger,
) *OrderWorker {
	return &OrderWorker{
		consumer:       consumer,
		tx:             tx,
		orderRepo:      orderRepo,
		productRepo:    productRepo,
		cartRepo:       cartRepo,
		redisClient:    redisClient,
		productCache:   productCache,
		idempotencyTTL: idempotencyTTL,
		log:            log,
		done:           make(chan struct{}),
	}
}

func (w *OrderWorker) Start(ctx context.Context) error {
	msgs, err := w.consumer.Consume(event.OrderQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					w.log.Warn("order delivery channel closed")
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("order worker started", "queue", event.OrderQueue)
	return nil
}

// Stop signals the consume loop to exit and waits for the in-flight message.
func (w *OrderWorker) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *OrderWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var orderMsg model.OrderMessage
	if err := json.Unmarshal(msg.Body, &orderMsg); err != nil {
		w.log.ErrorContext(ctx, "unmarshal order message", "error", err)
		metrics.OrdersFulfilledTotal.WithLabelValues(metrics.ResultRejected).Inc()
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("order_id", orderMsg.OrderID, "user_id", orderMsg.UserID)
	key := idempotencyKeyPrefix + orderMsg.OrderID.String()

	if w.alreadyProcessed(ctx, log, key) {
		log.InfoContext(ctx, "order already processed, skipping")
		metrics.OrdersFulfilledTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		_ = msg.Ack(false)
		return
	}

	applied, err := w.CommitStock(ctx, orderMsg.OrderID)
	switch {
	case errors.Is(err, repository.ErrTxConflict):
		log.WarnContext(ctx, "commit stock conflict, requeueing", "error", err)
		metrics.OrdersFulfilledTotal.WithLabelValues(metrics.ResultConflict).Inc()
		_ = msg.Nack(false, true)
		return
	case err != nil:
		log.ErrorContext(ctx, "commit stock failed", "error", err)
		metrics.OrdersFulfilledTotal.WithLabelValues(metrics.ResultError).Inc()
		_ = msg.Nack(false, false) // → DLQ
		return
	}

	if w.redisClient != nil {
		if err := w.redisClient.Set(ctx, key, "1", w.idempotencyTTL).Err(); err != nil {
			log.WarnContext(ctx, "set idempotency key", "error", err)
		}
	}

	_ = msg.Ack(false)
	if !applied {
		log.InfoContext(ctx, "order stock already committed")
		metrics.OrdersFulfilledTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return
	}
	metrics.OrdersFulfilledTotal.WithLabelValues(metrics.ResultOK).Inc()
	log.InfoContext(ctx, "order stock committed")
}

// alreadyProcessed reports whether the idempotency key is set. A Redis error
// is treated as a miss since the database flag still guards the decrement.
func (w *OrderWorker) alreadyProcessed(ctx context.Context, log *slog.Logger, key string) bool {
	if w.redisClient == nil {
		return false
	}
	n, err := w.redisClient.Exists(ctx, key).Result()
	if err != nil {
		log.WarnContext(ctx, "check idempotency key", "error", err)
		return false
	}
	return n > 0
}

// CommitStock decrements stock for every line of the order and re-flags the
// cart lines of those products against the stock that is left. It returns
// false without touching stock when the order was already committed.
// Insufficient stock on any line rolls the whole order back.
func (w *OrderWorker) CommitStock(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := w.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return false, fmt.Errorf("%w: %s", errOrderNotFound, orderID)
	}

	var applied bool
	err = w.tx.WithTx(ctx, func(tx pgx.Tx) error {
		applied = false
		flipped, err := w.orderRepo.MarkStockCommitted(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("mark stock committed: %w", err)
		}
		if !flipped {
			return nil
		}
		for _, item := range order.Items {
			remaining, err := w.productRepo.DecrementStock(ctx, tx, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
			if _, err := w.cartRepo.SyncAvailability(ctx, tx, item.ProductID, remaining); err != nil {
				return fmt.Errorf("sync cart availability: %w", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		ids := make([]uuid.UUID, 0, len(order.Items))
		for _, item := range order.Items {
			ids = append(ids, item.ProductID)
		}
		if err := w.productCache.Invalidate(ctx, ids...); err != nil {
			w.log.WarnContext(ctx, "invalidate product cache", "order_id", orderID, "error", err)
		}
	}
	return applied, nil
}
