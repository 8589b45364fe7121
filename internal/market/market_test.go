package market

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexusdex/arbengine/internal/types"
	"github.com/nexusdex/arbengine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls   int64
	fail    bool
	onCall  func()
}

func (f *fakeSource) Snapshot(ctx context.Context) (types.MarketCondition, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.onCall != nil {
		f.onCall()
	}
	if f.fail {
		return types.MarketCondition{}, errors.New("upstream unavailable")
	}
	return types.MarketCondition{}, nil
}

func TestMarketData_RefreshesAndFansOut(t *testing.T) {
	src := &fakeSource{}
	md := New(src, logger.New("test"))
	ch := make(chan types.MarketCondition, 1)
	md.Subscribe(ch)

	require.NoError(t, md.Start(context.Background(), 10*time.Millisecond))
	defer md.Stop()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a market condition to be published")
	}

	assert.True(t, atomic.LoadInt64(&src.calls) >= 1)
}

func TestMarketData_FailureKeepsPriorSnapshot(t *testing.T) {
	src := &fakeSource{fail: true}
	md := New(src, logger.New("test"))
	before := md.Current()

	require.NoError(t, md.Start(context.Background(), 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)
	md.Stop()

	after := md.Current()
	assert.Equal(t, before.Timestamp, after.Timestamp)
}

func TestMarketData_DoubleStartFails(t *testing.T) {
	src := &fakeSource{}
	md := New(src, logger.New("test"))
	require.NoError(t, md.Start(context.Background(), time.Second))
	defer md.Stop()
	assert.Error(t, md.Start(context.Background(), time.Second))
}

func TestMarketData_UnsubscribeStopsDelivery(t *testing.T) {
	src := &fakeSource{}
	md := New(src, logger.New("test"))
	ch := make(chan types.MarketCondition, 1)
	sub := md.Subscribe(ch)
	sub.Unsubscribe()

	require.NoError(t, md.Start(context.Background(), 10*time.Millisecond))
	defer md.Stop()

	select {
	case <-ch:
		t.Fatal("unsubscribed channel should not receive updates")
	case <-time.After(100 * time.Millisecond):
	}
}
