package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupWaitsForAllServices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ran int32
	var g = NewGroup(ctx)
	for i := 0; i < 3; i++ {
		g.Start(Func{
			ServiceName: "loop",
			Fn: func(ctx context.Context) {
				<-ctx.Done()
				atomic.AddInt32(&ran, 1)
			},
		})
	}

	cancel()
	g.Wait()
	require.Equal(t, int32(3), atomic.LoadInt32(&ran))
}
