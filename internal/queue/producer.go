package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
)

const (
	CapturesStreamName  = "CAPTURES"
	CapturesSubjectBase = "captures"
	EventsStreamName    = "EVENTS"
	EventsSubjectBase   = "events"
)

// CaptureSubject is the subject a station publishes its tasks on.
func CaptureSubject(stationID string) string {
	return CapturesSubjectBase + "." + stationID
}

// EventSubject is the subject an event of type t is published on.
func EventSubject(t models.EventType) string {
	return EventsSubjectBase + "." + string(t)
}

// ControlSubject is the raw (non-JetStream) subject a station listens on.
func ControlSubject(stationID string) string {
	return "station." + stationID + ".control"
}

// StreamConfigs returns the JetStream streams the services rely on.
func StreamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        CapturesStreamName,
			Subjects:    []string{CapturesSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      5 * time.Minute,
			MaxMsgs:     10000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  30 * time.Second,
			Description: "Captured frames awaiting verification",
		},
		{
			Name:        EventsStreamName,
			Subjects:    []string{EventsSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Description: "Enrollment changes and verification outcomes",
		},
	}
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the JetStream streams, retrying while NATS starts up.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range StreamConfigs() {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// PublishCapture queues a capture task for the workers. The task id doubles
// as the JetStream dedupe id.
func (p *Producer) PublishCapture(ctx context.Context, task models.CaptureTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal capture task: %w", err)
	}
	_, err = p.js.Publish(ctx, CaptureSubject(task.StationID), payload, jetstream.WithMsgID(task.ID.String()))
	if err != nil {
		return fmt.Errorf("publish capture: %w", err)
	}
	return nil
}

// Notify publishes ev on the events stream.
func (p *Producer) Notify(ctx context.Context, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, EventSubject(ev.Type), payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending capture tasks.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, CapturesStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

// SendCommand publishes a station command on the raw control subject.
func (p *Producer) SendCommand(stationID string, cmd models.StationCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return p.nc.Publish(ControlSubject(stationID), payload)
}

// SubscribeCommands delivers commands for stationID to handle, one at a time.
func (p *Producer) SubscribeCommands(stationID string, handle func(models.StationCommand)) (*nats.Subscription, error) {
	return p.nc.Subscribe(ControlSubject(stationID), func(msg *nats.Msg) {
		var cmd models.StationCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			slog.Error("parse command", "station", stationID, "error", err)
			return
		}
		handle(cmd)
	})
}

func (p *Producer) Ping(ctx context.Context) error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
