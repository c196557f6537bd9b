package enroll

import (
	"context"

	"github.com/your-org/facegate/internal/models"
)

// Notifier receives enrollment changes and verification outcomes.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, models.Event) error { return nil }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev models.Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev models.Event) error { return f(ctx, ev) }
