package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"samchat/internal/model"
)

// errUndecodable marks deliveries that can never be stored.
var errUndecodable = errors.New("undecodable message")

type MessageStore interface {
	Create(message *model.Message) error
}

// MessagePersistWorker drains the persist queue into the database.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	repo      MessageStore
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, repo MessageStore, queueName string, logger *zap.Logger) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    logger.With(zap.String("queue", queueName)),
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				w.deliver(d)
			}
		}
	}()

	w.logger.Info("message persist worker started")
	return nil
}

func (w *MessagePersistWorker) deliver(d amqp.Delivery) {
	err := w.handle(d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	requeue := !d.Redelivered && !errors.Is(err, errUndecodable)
	w.logger.Error("persist message failed", zap.Error(err), zap.Bool("requeue", requeue))
	_ = d.Nack(false, requeue)
}

// handle decodes one queued message and stores it.
func (w *MessagePersistWorker) handle(body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if msg.ConversationID == "" {
		return fmt.Errorf("%w: missing conversation id", errUndecodable)
	}
	msg.ID = 0
	return w.repo.Create(&msg)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
