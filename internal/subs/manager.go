package subs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/constants"
)

// subPending marks an account whose watch request has been sent but not yet
// acknowledged, so a duplicate watch cannot be issued in the meantime.
const subPending int64 = -1

type callKind uint8

const (
	callWatch callKind = iota
	callUnwatch
)

// pendingCall is an outstanding request awaiting its correlated response.
type pendingCall struct {
	kind       callKind
	account    string
	generation uint64
}

// ManagerConfig configures the subscription manager.
type ManagerConfig struct {
	Endpoint          string
	Commitment        string // e.g. "confirmed"
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	WriteTimeout      time.Duration
	Logger            *logrus.Logger
	// Dial overrides the websocket dialer; tests use this.
	Dial Dialer
}

// Manager owns the single duplex event channel to the ledger node and
// multiplexes one logical watch per target account over it. All map state
// is guarded by one mutex; the connection read loop, the heartbeat task and
// operator-driven watch/unwatch calls serialize through it.
type Manager struct {
	cfg     ManagerConfig
	logger  *logrus.Logger
	dial    Dialer
	handler EventHandler

	mu           sync.Mutex
	conn         Conn
	generation   uint64
	desired      map[string]struct{}
	subByAccount map[string]int64
	accountBySub map[int64]string
	pending      map[uint64]pendingCall
	watchIDs     *idPool
	unwatchIDs   *idPool
	nextHkID     uint64

	closed       atomic.Bool
	reconnecting atomic.Bool
	done         chan struct{}
	wg           sync.WaitGroup
}

// NewManager creates a subscription manager; Start must be called before
// events flow.
func NewManager(cfg ManagerConfig, handler EventHandler) *Manager {
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = constants.HeartbeatInterval
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = gorillaDialer(cfg.Endpoint)
	}

	return &Manager{
		cfg:          cfg,
		logger:       cfg.Logger,
		dial:         dial,
		handler:      handler,
		desired:      make(map[string]struct{}),
		subByAccount: make(map[string]int64),
		accountBySub: make(map[int64]string),
		pending:      make(map[uint64]pendingCall),
		watchIDs:     newIDPool(constants.WatchIDFirst, constants.WatchIDLast),
		unwatchIDs:   newIDPool(constants.UnwatchIDFirst, constants.UnwatchIDLast),
		nextHkID:     1,
		done:         make(chan struct{}),
	}
}

// Start connects and begins the read and heartbeat loops. The initial
// connection failure is returned; later drops reconnect automatically.
func (m *Manager) Start(ctx context.Context) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	for account := range m.desired {
		m.issueWatchLocked(account)
	}
	m.mu.Unlock()

	m.wg.Add(2)
	go m.readLoop()
	go m.heartbeatLoop()
	return nil
}

// Watch adds an account to the desired set and issues a subscribe request
// if the connection is open. Connection errors are handled by reconnect and
// are not returned.
func (m *Manager) Watch(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desired[account] = struct{}{}
	m.issueWatchLocked(account)
}

// Unwatch removes an account from the desired set and unsubscribes it.
func (m *Manager) Unwatch(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.desired, account)
	m.dropAccountLocked(account)
}

// Reconcile replaces the desired set: active watches not in desired are
// unsubscribed, desired accounts without a mapping are subscribed. Safe to
// call concurrently with inbound events.
func (m *Manager) Reconcile(desired []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]struct{}, len(desired))
	for _, a := range desired {
		want[a] = struct{}{}
	}
	m.desired = want

	for account := range m.subByAccount {
		if _, ok := want[account]; !ok {
			m.dropAccountLocked(account)
		}
	}
	for account := range want {
		if _, mapped := m.subByAccount[account]; !mapped {
			m.issueWatchLocked(account)
		}
	}
}

// ActiveSubscriptions returns the acknowledged account->subscription map.
func (m *Manager) ActiveSubscriptions() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.subByAccount))
	for account, id := range m.subByAccount {
		if id != subPending {
			out[account] = id
		}
	}
	return out
}

// Close unsubscribes everything best-effort and shuts the connection down.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	close(m.done)

	m.mu.Lock()
	for account := range m.subByAccount {
		m.dropAccountLocked(account)
	}
	if m.conn != nil {
		_ = m.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(m.cfg.WriteTimeout))
		_ = m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// issueWatchLocked sends a logsSubscribe for the account unless one is
// already mapped or in flight.
func (m *Manager) issueWatchLocked(account string) {
	if _, exists := m.subByAccount[account]; exists {
		return
	}
	if m.conn == nil {
		return
	}

	id, err := m.watchIDs.acquire(m.pending)
	if err != nil {
		m.logger.WithError(err).Error("cannot issue watch request")
		return
	}
	m.pending[id] = pendingCall{kind: callWatch, account: account, generation: m.generation}
	m.subByAccount[account] = subPending

	if err := m.writeLocked(subscribeRequest(id, account, m.cfg.Commitment)); err != nil {
		m.logger.WithError(err).WithField("account", account).Warn("watch request write failed")
		delete(m.pending, id)
		delete(m.subByAccount, account)
	}
}

// dropAccountLocked removes the account's mapping and, when an acknowledged
// subscription exists, sends a logsUnsubscribe for it.
func (m *Manager) dropAccountLocked(account string) {
	subID, ok := m.subByAccount[account]
	if !ok {
		return
	}
	delete(m.subByAccount, account)
	if subID == subPending {
		// The ack handler sees the account is no longer desired and
		// unsubscribes via a housekeeping id.
		return
	}
	delete(m.accountBySub, subID)

	if m.conn == nil {
		return
	}
	id, err := m.unwatchIDs.acquire(m.pending)
	if err != nil {
		m.logger.WithError(err).Error("cannot issue unwatch request")
		return
	}
	m.pending[id] = pendingCall{kind: callUnwatch, account: account, generation: m.generation}
	if err := m.writeLocked(unsubscribeRequest(id, subID)); err != nil {
		m.logger.WithError(err).WithField("account", account).Warn("unwatch request write failed")
		delete(m.pending, id)
	}
}

// housekeepingUnsubscribeLocked force-unsubscribes a subscription id we do
// not recognize, using the reserved low id range. Fire and forget.
func (m *Manager) housekeepingUnsubscribeLocked(subID int64) {
	if m.conn == nil {
		return
	}
	id := m.nextHkID
	m.nextHkID++
	if m.nextHkID > constants.HousekeepingMaxID {
		m.nextHkID = 1
	}
	if err := m.writeLocked(unsubscribeRequest(id, subID)); err != nil {
		m.logger.WithError(err).WithField("subscription", subID).Debug("housekeeping unsubscribe failed")
	}
}

func (m *Manager) writeLocked(v interface{}) error {
	_ = m.conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return m.conn.WriteJSON(v)
}

func (m *Manager) readLoop() {
	defer m.wg.Done()

	for !m.closed.Load() {
		m.mu.Lock()
		conn := m.conn
		gen := m.generation
		m.mu.Unlock()

		if conn == nil {
			select {
			case <-m.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if m.closed.Load() {
				return
			}
			m.logger.WithError(err).Warn("websocket read error")
			m.triggerReconnect(gen)
			select {
			case <-m.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		m.handleMessage(gen, message)
	}
}

func (m *Manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			conn := m.conn
			gen := m.generation
			m.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteTimeout)); err != nil {
				m.logger.WithError(err).Warn("heartbeat ping failed")
				m.triggerReconnect(gen)
			}
		}
	}
}

// triggerReconnect starts at most one reconnect task for the given
// connection generation.
func (m *Manager) triggerReconnect(gen uint64) {
	if m.closed.Load() {
		return
	}
	if m.reconnecting.Swap(true) {
		return
	}
	m.wg.Add(1)
	go m.reconnect(gen)
}

// reconnect tears the connection down, bumps the generation (voiding every
// in-flight correlation and subscription id), and re-watches the full
// desired set once a new connection is up.
func (m *Manager) reconnect(gen uint64) {
	defer m.wg.Done()
	defer m.reconnecting.Store(false)

	m.mu.Lock()
	if m.generation != gen {
		// Another task already replaced this connection.
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.generation++
	m.pending = make(map[uint64]pendingCall)
	m.subByAccount = make(map[string]int64)
	m.accountBySub = make(map[int64]string)
	m.mu.Unlock()

	delay := m.cfg.ReconnectDelay
	for {
		select {
		case <-m.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		conn, err := m.dial(ctx)
		cancel()
		if err != nil {
			m.logger.WithError(err).WithField("retry_in", delay).Warn("reconnect failed")
			delay *= 2
			if delay > m.cfg.MaxReconnectDelay {
				delay = m.cfg.MaxReconnectDelay
			}
			continue
		}

		m.mu.Lock()
		m.conn = conn
		watched := 0
		for account := range m.desired {
			m.issueWatchLocked(account)
			watched++
		}
		m.mu.Unlock()

		m.logger.WithField("watches", watched).Info("reconnected, watch set re-issued")
		return
	}
}

func (m *Manager) handleMessage(gen uint64, raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.WithError(err).Debug("undecodable websocket frame")
		return
	}

	switch {
	case msg.Method == "logsNotification" && msg.Params != nil:
		m.handleNotification(msg.Params)
	case msg.ID != nil:
		m.handleResponse(gen, &msg)
	}
}

// handleResponse correlates a response with its pending request. Responses
// from a previous connection generation are dropped.
func (m *Manager) handleResponse(gen uint64, msg *wsMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return
	}
	pc, ok := m.pending[*msg.ID]
	if !ok {
		// Housekeeping acks land here; nothing to correlate.
		return
	}
	delete(m.pending, *msg.ID)
	if pc.generation != m.generation {
		return
	}

	switch pc.kind {
	case callWatch:
		m.handleWatchAckLocked(pc.account, msg)
	case callUnwatch:
		if msg.Error != nil {
			m.logger.WithField("account", pc.account).WithField("error", msg.Error.Message).
				Debug("unwatch rejected")
		}
	}
}

func (m *Manager) handleWatchAckLocked(account string, msg *wsMessage) {
	if msg.Error != nil {
		m.logger.WithFields(logrus.Fields{
			"account": account,
			"error":   msg.Error.Message,
		}).Warn("watch request rejected")
		if m.subByAccount[account] == subPending {
			delete(m.subByAccount, account)
		}
		return
	}

	subID, err := strconv.ParseInt(string(msg.Result), 10, 64)
	if err != nil {
		m.logger.WithField("result", string(msg.Result)).Warn("unparseable subscription id")
		if m.subByAccount[account] == subPending {
			delete(m.subByAccount, account)
		}
		return
	}

	if _, stillDesired := m.desired[account]; !stillDesired {
		// Unwatched while the ack was in flight.
		delete(m.subByAccount, account)
		m.housekeepingUnsubscribeLocked(subID)
		return
	}

	m.subByAccount[account] = subID
	m.accountBySub[subID] = account
	m.logger.WithFields(logrus.Fields{
		"account":      account,
		"subscription": subID,
	}).Debug("watch acknowledged")
}

// handleNotification forwards events for known subscriptions; an event for
// an unknown id (a race across reconnect) triggers a best-effort
// unsubscribe and is dropped, never forwarded downstream.
func (m *Manager) handleNotification(params *notificationParams) {
	m.mu.Lock()
	account, known := m.accountBySub[params.Subscription]
	if !known {
		m.logger.WithField("subscription", params.Subscription).Debug("event for unknown subscription, unsubscribing")
		m.housekeepingUnsubscribeLocked(params.Subscription)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if m.handler == nil {
		return
	}
	m.handler(params.Subscription, LogEvent{
		Account:   account,
		Signature: params.Result.Value.Signature,
		Err:       params.Result.Value.Err,
		Logs:      params.Result.Value.Logs,
		Slot:      params.Result.Context.Slot,
	})
}
