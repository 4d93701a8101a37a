package subs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory websocket stand-in. Subscribe requests can be
// auto-acknowledged with sequential subscription ids.
type fakeConn struct {
	mu       sync.Mutex
	requests []wsRequest
	autoAck  bool
	nextSub  int64

	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn(autoAck bool) *fakeConn {
	return &fakeConn{
		autoAck:  autoAck,
		nextSub:  100,
		incoming: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	req, ok := v.(wsRequest)
	if !ok {
		return fmt.Errorf("unexpected frame type %T", v)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	ack := f.autoAck
	sub := f.nextSub
	if ack && req.Method == "logsSubscribe" {
		f.nextSub++
	}
	f.mu.Unlock()

	if ack && req.Method == "logsSubscribe" {
		f.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%d}`, req.ID, sub))
	}
	if ack && req.Method == "logsUnsubscribe" {
		f.push(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, req.ID))
	}
	return nil
}

func (f *fakeConn) push(frame string) {
	select {
	case f.incoming <- []byte(frame):
	case <-f.closed:
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.incoming:
		return 1, msg, nil
	case <-f.closed:
		return 0, nil, fmt.Errorf("connection closed")
	}
}

func (f *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error          { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sent(method string) []wsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wsRequest
	for _, r := range f.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newTestManager wires a manager to a sequence of fake connections; each
// reconnect consumes the next one.
func newTestManager(t *testing.T, handler EventHandler, conns ...*fakeConn) *Manager {
	t.Helper()
	idx := 0
	var mu sync.Mutex
	dial := func(context.Context) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		if idx >= len(conns) {
			return nil, fmt.Errorf("no more fake connections")
		}
		c := conns[idx]
		idx++
		return c, nil
	}

	m := NewManager(ManagerConfig{
		Endpoint:          "ws://fake",
		HeartbeatInterval: time.Hour, // keep the heartbeat out of the way
		ReconnectDelay:    5 * time.Millisecond,
		MaxReconnectDelay: 10 * time.Millisecond,
		WriteTimeout:      time.Second,
		Logger:            quietLogger(),
		Dial:              dial,
	}, handler)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestWatchAssignsSubscription(t *testing.T) {
	conn := newFakeConn(true)
	m := newTestManager(t, nil, conn)

	m.Watch("target-A")

	assert.Eventually(t, func() bool {
		subs := m.ActiveSubscriptions()
		_, ok := subs["target-A"]
		return ok
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, conn.sent("logsSubscribe"), 1)
}

func TestDuplicateWatchSuppressedWhilePending(t *testing.T) {
	conn := newFakeConn(false) // never acknowledges
	m := newTestManager(t, nil, conn)

	m.Watch("target-A")
	m.Watch("target-A")
	m.Watch("target-A")

	assert.Len(t, conn.sent("logsSubscribe"), 1)
	assert.Empty(t, m.ActiveSubscriptions())
}

func TestReconcileIssuesMinimalRequests(t *testing.T) {
	conn := newFakeConn(true)
	m := newTestManager(t, nil, conn)

	m.Watch("A")
	m.Watch("B")
	require.Eventually(t, func() bool {
		return len(m.ActiveSubscriptions()) == 2
	}, time.Second, 5*time.Millisecond)

	m.Reconcile([]string{"B", "C"})

	require.Eventually(t, func() bool {
		subs := m.ActiveSubscriptions()
		_, hasC := subs["C"]
		_, hasA := subs["A"]
		return hasC && !hasA
	}, time.Second, 5*time.Millisecond)

	// Two initial watches, one for C; one unwatch for A.
	assert.Len(t, conn.sent("logsSubscribe"), 3)
	assert.Len(t, conn.sent("logsUnsubscribe"), 1)
}

func TestWatchAndUnwatchIDsComeFromDisjointRanges(t *testing.T) {
	conn := newFakeConn(true)
	m := newTestManager(t, nil, conn)

	m.Watch("A")
	require.Eventually(t, func() bool {
		return len(m.ActiveSubscriptions()) == 1
	}, time.Second, 5*time.Millisecond)
	m.Unwatch("A")

	for _, r := range conn.sent("logsSubscribe") {
		assert.GreaterOrEqual(t, r.ID, uint64(1001))
		assert.LessOrEqual(t, r.ID, uint64(1500))
	}
	unsubs := conn.sent("logsUnsubscribe")
	require.NotEmpty(t, unsubs)
	for _, r := range unsubs {
		assert.GreaterOrEqual(t, r.ID, uint64(1501))
		assert.LessOrEqual(t, r.ID, uint64(2000))
	}
}

func TestReconnectReissuesDesiredSetExactlyOnce(t *testing.T) {
	first := newFakeConn(true)
	second := newFakeConn(true)
	m := newTestManager(t, nil, first, second)

	m.Watch("A")
	m.Watch("B")
	require.Eventually(t, func() bool {
		return len(m.ActiveSubscriptions()) == 2
	}, time.Second, 5*time.Millisecond)
	before := m.ActiveSubscriptions()

	// Drop the connection; the manager must clear mappings and re-watch
	// the full desired set on the replacement connection.
	first.Close()

	require.Eventually(t, func() bool {
		return len(m.ActiveSubscriptions()) == 2
	}, time.Second, 5*time.Millisecond)

	subs := second.sent("logsSubscribe")
	require.Len(t, subs, 2)
	accounts := map[string]bool{}
	for _, r := range subs {
		var filter struct {
			Mentions []string `json:"mentions"`
		}
		b, _ := json.Marshal(r.Params[0])
		require.NoError(t, json.Unmarshal(b, &filter))
		require.Len(t, filter.Mentions, 1)
		accounts[filter.Mentions[0]] = true
	}
	assert.True(t, accounts["A"])
	assert.True(t, accounts["B"])

	// Old subscription ids are void after reconnect.
	after := m.ActiveSubscriptions()
	assert.NotEqual(t, before, after)
}

func TestEventForKnownSubscriptionIsForwarded(t *testing.T) {
	conn := newFakeConn(true)

	events := make(chan LogEvent, 1)
	m := newTestManager(t, func(_ int64, ev LogEvent) { events <- ev }, conn)

	m.Watch("target-A")
	require.Eventually(t, func() bool {
		return len(m.ActiveSubscriptions()) == 1
	}, time.Second, 5*time.Millisecond)
	subID := m.ActiveSubscriptions()["target-A"]

	conn.push(fmt.Sprintf(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":%d,"result":{"context":{"slot":42},"value":{"signature":"sig1","err":null,"logs":["Program log: hi"]}}}}`, subID))

	select {
	case ev := <-events:
		assert.Equal(t, "target-A", ev.Account)
		assert.Equal(t, "sig1", ev.Signature)
		assert.Equal(t, uint64(42), ev.Slot)
		assert.Nil(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}
}

func TestEventForUnknownSubscriptionIsDroppedAndUnsubscribed(t *testing.T) {
	conn := newFakeConn(true)

	events := make(chan LogEvent, 1)
	m := newTestManager(t, func(_ int64, ev LogEvent) { events <- ev }, conn)
	_ = m

	conn.push(`{"jsonrpc":"2.0","method":"logsNotification","params":{"subscription":9999,"result":{"context":{"slot":1},"value":{"signature":"sig2","err":null,"logs":[]}}}}`)

	require.Eventually(t, func() bool {
		return len(conn.sent("logsUnsubscribe")) == 1
	}, time.Second, 5*time.Millisecond)

	unsub := conn.sent("logsUnsubscribe")[0]
	assert.LessOrEqual(t, unsub.ID, uint64(1000), "housekeeping unsubscribe must use the reserved low id range")
	select {
	case <-events:
		t.Fatal("event for unknown subscription must not be forwarded")
	case <-time.After(50 * time.Millisecond):
	}
}
