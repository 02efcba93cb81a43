package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/offchainlab/harvestd/pkg/bus"
)

func TestDispatchOutboundDeliversPosts(t *testing.T) {
	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	type sent struct{ receiver, text string }
	delivered := make(chan sent, 1)
	send := func(_ context.Context, receiverID, text string) error {
		delivered <- sent{receiverID, text}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatchOutbound(ctx, msgBus, send, zap.NewNop())

	require.NoError(t, msgBus.PublishOutbound(ctx, bus.RelayPost{
		ChatID:  "oc_dest",
		Content: "张三: 明天有台风",
	}))

	select {
	case got := <-delivered:
		assert.Equal(t, "oc_dest", got.receiver)
		assert.Equal(t, "张三: 明天有台风", got.text)
	case <-time.After(5 * time.Second):
		t.Fatal("post was never dispatched")
	}
}

func TestDispatchOutboundStopsOnCancel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	defer msgBus.Close()

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		dispatchOutbound(ctx, msgBus, func(context.Context, string, string) error { return nil }, zap.NewNop())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
