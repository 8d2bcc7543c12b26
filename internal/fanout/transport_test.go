package fanout

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisChannelNames(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	assert.Equal(t, "digiturno:site:abc", NewRedisPublisher(client, "").channel(SiteScope("abc")))
	assert.Equal(t, "qa:site:abc", NewRedisPublisher(client, "qa:").channel(SiteScope("abc")))
}

func TestNewKafkaPublisherValidation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "events")
	require.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	require.Error(t, err)

	pub, err := NewKafkaPublisher([]string{"localhost:9092"}, "digiturno.tickets")
	require.NoError(t, err)
	assert.Equal(t, "digiturno.tickets", pub.writer.Topic)
}

func TestKafkaMessageKeyedByScope(t *testing.T) {
	at := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	msg := message(Envelope{Scope: "site:a", Event: "ticket-created", PublishedAt: at}, []byte("{}"))

	assert.Equal(t, []byte("site:a"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "ticket-created", string(msg.Headers[0].Value))
	assert.Equal(t, at, msg.Time)
}
