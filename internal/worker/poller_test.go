package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/queue"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]queue.Message, error) {
	args := m.Called(ctx, max, wait)
	msgs, _ := args.Get(0).([]queue.Message)
	return msgs, args.Error(1)
}

func (m *mockQueue) Delete(ctx context.Context, msg queue.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockQueue) Name() string {
	return "orders"
}

func newTestPoller(t *testing.T, q queue.Queue, handlers ...HandlerRegistration) *Poller {
	t.Helper()
	p, err := NewPoller(Params{
		Queue:  q,
		Logger: zap.NewNop(),
		Config: config.Config{Queue: config.Queue{
			Driver:       "sqs",
			Enabled:      true,
			PollInterval: 10 * time.Millisecond,
			BatchSize:    10,
			WaitTime:     20 * time.Second,
		}},
		Registrations: handlers,
	})
	require.NoError(t, err)
	return p
}

func okHandler(name string, seen *[]string) HandlerRegistration {
	return HandlerRegistration{Name: name, Handler: func(_ context.Context, msg queue.Message) error {
		*seen = append(*seen, name+":"+msg.ID)
		return nil
	}}
}

func TestPoller_DeletesProcessedMessageOnce(t *testing.T) {
	msg := queue.Message{ID: "m-1", Body: []byte("{}"), ReceiptHandle: "rh-1"}
	q := new(mockQueue)
	q.On("Receive", mock.Anything, 10, 20*time.Second).Return([]queue.Message{msg}, nil).Once()
	q.On("Delete", mock.Anything, msg).Return(nil).Once()

	var seen []string
	p := newTestPoller(t, q, okHandler("first", &seen), okHandler("second", &seen))

	n, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"first:m-1", "second:m-1"}, seen)
	assert.Equal(t, StateIdle, p.State())
	q.AssertExpectations(t)
}

func TestPoller_EmptyReceiveDeletesNothing(t *testing.T) {
	q := new(mockQueue)
	q.On("Receive", mock.Anything, 10, 20*time.Second).Return([]queue.Message{}, nil).Once()

	var seen []string
	p := newTestPoller(t, q, okHandler("first", &seen))

	n, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, seen)
	q.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestPoller_HandlerFailureKeepsMessage(t *testing.T) {
	bad := queue.Message{ID: "bad"}
	good := queue.Message{ID: "good"}
	q := new(mockQueue)
	q.On("Receive", mock.Anything, 10, 20*time.Second).Return([]queue.Message{bad, good}, nil).Once()
	q.On("Delete", mock.Anything, good).Return(nil).Once()

	var seen []string
	failing := HandlerRegistration{Name: "decode", Handler: func(_ context.Context, msg queue.Message) error {
		if msg.ID == "bad" {
			return errors.New("malformed")
		}
		return nil
	}}
	p := newTestPoller(t, q, failing, okHandler("log", &seen))

	n, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"log:good"}, seen)
	q.AssertNotCalled(t, "Delete", mock.Anything, bad)
	q.AssertExpectations(t)
}

func TestPoller_ReceiveErrorIsReturned(t *testing.T) {
	q := new(mockQueue)
	q.On("Receive", mock.Anything, 10, 20*time.Second).Return(nil, errors.New("access denied")).Once()

	p := newTestPoller(t, q)
	_, err := p.Poll(context.Background())
	assert.EqualError(t, err, "access denied")
	assert.Equal(t, StateIdle, p.State())
}

func TestPoller_StateIsPollingDuringReceive(t *testing.T) {
	var observed State
	q := new(mockQueue)
	p := newTestPoller(t, q)
	q.On("Receive", mock.Anything, 10, 20*time.Second).
		Run(func(mock.Arguments) { observed = p.State() }).
		Return([]queue.Message{}, nil).Once()

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePolling, observed)
	assert.Equal(t, "polling", observed.String())
	assert.Equal(t, "idle", p.State().String())
}

func TestPoller_StartStopRunsLoop(t *testing.T) {
	q := new(mockQueue)
	var mu sync.Mutex
	calls := 0
	q.On("Receive", mock.Anything, 10, 20*time.Second).
		Run(func(mock.Arguments) {
			mu.Lock()
			calls++
			mu.Unlock()
		}).
		Return([]queue.Message{}, nil)

	var seen []string
	p := newTestPoller(t, q, okHandler("first", &seen))
	require.NoError(t, p.start(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.stop(ctx))
}

func TestPoller_DisabledDoesNotStart(t *testing.T) {
	q := new(mockQueue)
	p := newTestPoller(t, q, HandlerRegistration{Name: "x", Handler: func(context.Context, queue.Message) error { return nil }})
	p.cfg.Driver = "noop"

	require.NoError(t, p.start(context.Background()))
	require.NoError(t, p.stop(context.Background()))
	q.AssertNotCalled(t, "Receive", mock.Anything, mock.Anything, mock.Anything)
}

func TestPoller_FailedMessageIsRedeliveredByRedisQueue(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	require.NoError(t, client.LPush(ctx, "orders.events", "hello").Err())

	attempts := 0
	flaky := HandlerRegistration{Name: "flaky", Handler: func(context.Context, queue.Message) error {
		attempts++
		if attempts == 1 {
			return errors.New("downstream unavailable")
		}
		return nil
	}}
	p, err := NewPoller(Params{
		Queue:         queue.NewRedisQueue(client, "orders.events", 20*time.Millisecond),
		Logger:        zap.NewNop(),
		Config:        config.Config{Queue: config.Queue{Driver: "redis", Enabled: true, BatchSize: 10}},
		Registrations: []HandlerRegistration{flaky},
	})
	require.NoError(t, err)

	n, err := p.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Eventually(t, func() bool {
		n, err := p.Poll(ctx)
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, attempts)
	assert.Zero(t, client.LLen(ctx, "orders.events:processing").Val())
}
