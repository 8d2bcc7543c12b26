// Package fanout delivers lifecycle events to everyone watching a site.
//
// Delivery is best effort: an event reaches the subscribers joined to its
// scope at publish time, at most once, and is never replayed. A failing
// publisher is logged and skipped; it never fails the caller.
package fanout

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

const defaultTimeout = 2 * time.Second

// SiteScope is the subscription key for all events of one site.
func SiteScope(siteID string) string {
	return "site:" + siteID
}

// Envelope is the wire form every transport carries.
type Envelope struct {
	Scope       string          `json:"scope"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// Publisher hands an envelope to one transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type PublisherFunc func(ctx context.Context, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Notifier is what the lifecycle engine depends on.
type Notifier interface {
	Notify(ctx context.Context, scope, event string, payload any)
}

type Noop struct{}

func (Noop) Notify(context.Context, string, string, any) {}

type Fanout struct {
	publishers []Publisher
	timeout    time.Duration
	now        func() time.Time
}

func New(timeout time.Duration, publishers ...Publisher) *Fanout {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fanout{
		publishers: publishers,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Notify publishes synchronously in the caller's goroutine, so events from one
// goroutine keep their order within a scope.
func (f *Fanout) Notify(ctx context.Context, scope, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("fanout encode failed scope=%s event=%s err=%v", scope, event, err)
		return
	}
	env := Envelope{Scope: scope, Event: event, Payload: raw, PublishedAt: f.now()}

	// Publishing outlives request cancellation.
	base := context.WithoutCancel(ctx)
	for _, publisher := range f.publishers {
		pubCtx, cancel := context.WithTimeout(base, f.timeout)
		err := publisher.Publish(pubCtx, env)
		cancel()
		if err != nil {
			log.Printf("fanout publish failed scope=%s event=%s publisher=%T err=%v", scope, event, publisher, err)
		}
	}
}
