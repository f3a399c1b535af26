package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-interview/internal/model"
	"gopherai-interview/internal/platform/logger"
	"gopherai-interview/internal/platform/rabbitmq"
)

type EventSink interface {
	Create(ctx context.Context, event *model.SessionEvent) error
}

// SessionEventWorker drains the session event queue into the audit table.
type SessionEventWorker struct {
	conn      *amqp.Connection
	sink      EventSink
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSessionEventWorker(conn *amqp.Connection, sink EventSink, queueName string, log *logger.Logger) *SessionEventWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionEventWorker{
		conn:      conn,
		sink:      sink,
		queueName: queueName,
		log:       log,
	}
}

func (w *SessionEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

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
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

func (w *SessionEventWorker) handle(ctx context.Context, d amqp.Delivery) {
	if err := w.persist(ctx, d.Body); err != nil {
		w.log.Warn("worker persist session event failed", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func (w *SessionEventWorker) persist(ctx context.Context, body []byte) error {
	var event model.SessionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode session event failed: %w", err)
	}
	return w.sink.Create(ctx, &event)
}

func (w *SessionEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
