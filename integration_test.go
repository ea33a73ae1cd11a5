package producers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/glimte/mmate-producers/health"
	"github.com/glimte/mmate-producers/producer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokerURL returns the broker to run integration tests against, skipping when none is set
func brokerURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}
	return url
}

func TestBrokerIntegration(t *testing.T) {
	url := brokerURL(t)
	ctx := context.Background()

	client, err := NewClientWithOptions(url,
		WithLogger(quietLogger()),
		WithReplyTimeout(500*time.Millisecond),
		WithProperties(map[string]string{"greeting.exchange": ""}),
	)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Register(greeter))
	stub, ok := client.Producer("Greeter")
	require.True(t, ok)

	t.Run("fire-and-forget is confirmed", func(t *testing.T) {
		_, err := stub.Invoke(ctx, "Notify", "Ada")
		assert.NoError(t, err)
	})

	t.Run("unanswered request returns no reply", func(t *testing.T) {
		reply, err := producer.Call[string](ctx, stub, "Hello", "Ada", "en")
		require.NoError(t, err)
		assert.Empty(t, reply)
	})

	t.Run("reports healthy", func(t *testing.T) {
		assert.Equal(t, health.StatusHealthy, client.Health(ctx).Status)
	})
}
