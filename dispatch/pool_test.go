/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-rpcgate/log/logtest"
)

func TestPool(t *testing.T) {
	p := NewPool(0, logtest.NewRecorder(), nil)
	require.Equal(t, 1, p.Workers())

	p = NewPool(4, logtest.NewRecorder(), nil)
	count := atomic.NewInt32(0)
	var packets []*Packet
	for i := 0; i < 20; i++ {
		pk := NewPacket(context.Background(), func(context.Context) { count.Inc() }, nil)
		packets = append(packets, pk)
		p.Submit(pk)
	}
	p.Wait()
	require.EqualValues(t, 20, count.Load())
	require.Equal(t, 0, p.Active())
	for _, pk := range packets {
		select {
		case <-pk.Done():
		default:
			t.Fatal("packet is not finished")
		}
	}
}

func TestPool_PassesPacketContext(t *testing.T) {
	type ctxKey struct{}
	p := NewPool(1, logtest.NewRecorder(), nil)
	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	var got interface{}
	p.Submit(NewPacket(ctx, func(ctx context.Context) { got = ctx.Value(ctxKey{}) }, nil))
	p.Wait()
	require.Equal(t, "value", got)
}
