package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/internal/logging"
)

type recordingChannel struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(ctx context.Context, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, payload)
	return r.err
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func TestNotifyFansOutToAllChannels(t *testing.T) {
	m := NewManager(logging.NewNop())
	first := &recordingChannel{}
	second := &recordingChannel{}
	m.AddChannel(first)
	m.AddChannel(second)

	m.Notify(context.Background(), OrderPlaced, "buy placed", map[string]string{"level": "3"})

	require.Equal(t, 1, first.count())
	require.Equal(t, 1, second.count())
	assert.Equal(t, OrderPlaced, first.payloads[0].Type)
	assert.Equal(t, "3", first.payloads[0].Fields["level"])
}

func TestChannelFailureDoesNotBlockOthers(t *testing.T) {
	m := NewManager(logging.NewNop())
	failing := &recordingChannel{err: errors.New("unreachable")}
	healthy := &recordingChannel{}
	m.AddChannel(failing)
	m.AddChannel(healthy)

	assert.NotPanics(t, func() {
		m.Notify(context.Background(), OrderFailed, "placement failed", nil)
	})
	assert.Equal(t, 1, healthy.count())
}

func TestSlackChannelPostsWebhook(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		received = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL, "#trading")
	err := ch.Send(context.Background(), Payload{
		Type:    TakeProfitTriggered,
		Message: "take profit hit",
		Fields:  map[string]string{"price": "121"},
	})
	require.NoError(t, err)
	assert.Contains(t, received, "TAKE_PROFIT_TRIGGERED")
	assert.Contains(t, received, "121")
}

func TestSlackChannelReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL, "")
	err := ch.Send(context.Background(), Payload{Type: ErrorOccurred, Message: "x"})
	assert.Error(t, err)
}

func TestUnconfiguredChannelsAreSilent(t *testing.T) {
	assert.NoError(t, NewTelegramChannel("", "").Send(context.Background(), Payload{}))
	assert.NoError(t, NewSlackChannel("", "").Send(context.Background(), Payload{}))
}

func TestLogChannelNeverFails(t *testing.T) {
	ch := NewLogChannel(logging.NewNop())
	assert.NoError(t, ch.Send(context.Background(), Payload{
		Type:    HealthCheckAlert,
		Message: "exchange degraded",
		Fields:  map[string]string{"status": "maintenance"},
	}))
}
