package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
)

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

const (
	captureAckWait    = 30 * time.Second
	captureMaxDeliver = 5
)

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// DecodeCapture parses a capture task message.
func DecodeCapture(data []byte) (models.CaptureTask, error) {
	var task models.CaptureTask
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&task); err != nil {
		return task, fmt.Errorf("decode capture task: %w", err)
	}
	if task.FrameRef == "" {
		return task, fmt.Errorf("decode capture task: missing frame_ref")
	}
	switch task.Kind {
	case models.TaskVerify:
		if task.Identity == "" {
			return task, fmt.Errorf("decode capture task: verify without identity")
		}
	case models.TaskIdentify:
	default:
		return task, fmt.Errorf("decode capture task: unknown kind %q", task.Kind)
	}
	return task, nil
}

// ConsumeCaptures feeds capture tasks to workerCount goroutines. Handler
// errors Nak the message for redelivery after a growing delay; a running
// handler keeps its message alive past the ack wait.
func (c *Consumer) ConsumeCaptures(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, CapturesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", CapturesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       captureAckWait,
		MaxDeliver:    captureMaxDeliver,
		FilterSubject: CapturesSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for ctx.Err() == nil {
			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch captures error", "error", err)
				time.Sleep(time.Second)
				continue
			}
			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				if err := withHeartbeat(ctx, msg, captureAckWait/3, handler); err != nil {
					delay := redeliveryDelay(deliveries(msg))
					slog.Error("process capture error",
						"worker", workerID,
						"error", err,
						"subject", msg.Subject(),
						"retry_in", delay,
					)
					_ = msg.NakWithDelay(delay)
				} else {
					_ = msg.Ack()
				}
			}
		}(i)
	}

	slog.Info("capture consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// withHeartbeat runs handler, marking msg in progress every interval.
func withHeartbeat(ctx context.Context, msg jetstream.Msg, every time.Duration, handler MessageHandler) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = msg.InProgress()
			}
		}
	}()
	return handler(ctx, msg)
}

func deliveries(msg jetstream.Msg) uint64 {
	md, err := msg.Metadata()
	if err != nil {
		return 1
	}
	return md.NumDelivered
}

// redeliveryDelay doubles from one second per failed delivery, capped at 32s.
func redeliveryDelay(delivered uint64) time.Duration {
	if delivered == 0 {
		delivered = 1
	}
	return time.Second << min(delivered-1, 5)
}

// ConsumeEvents delivers new events only; history is not replayed.
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for ctx.Err() == nil {
			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}
			for msg := range batch.Messages() {
				if err := handler(ctx, msg); err != nil {
					slog.Error("process event error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
