package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envs = append(p.envs, env)
	return nil
}

func TestFanoutNotifyReachesEveryPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}
	f := New(0, failing, ok)

	f.Notify(context.Background(), SiteScope("s1"), "ticket-created", map[string]string{"code": "CM001"})
	f.Notify(context.Background(), SiteScope("s1"), "ticket-updated", map[string]string{"code": "CM001"})

	require.Len(t, ok.envs, 2)
	assert.Equal(t, "site:s1", ok.envs[0].Scope)
	assert.Equal(t, "ticket-created", ok.envs[0].Event)
	assert.Equal(t, "ticket-updated", ok.envs[1].Event)
	assert.JSONEq(t, `{"code":"CM001"}`, string(ok.envs[0].Payload))
}

func TestFanoutNotifyIgnoresCancelledContext(t *testing.T) {
	pub := &recordingPublisher{}
	f := New(0, PublisherFunc(func(ctx context.Context, env Envelope) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return pub.Publish(ctx, env)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.Notify(ctx, "site:s1", "ticket-created", struct{}{})

	assert.Len(t, pub.envs, 1)
}

func TestFanoutNotifySkipsUnencodablePayload(t *testing.T) {
	pub := &recordingPublisher{}
	f := New(0, pub)

	f.Notify(context.Background(), "site:s1", "ticket-created", make(chan int))

	assert.Empty(t, pub.envs)
}
