package subs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"solana-copy-trader/internal/rpc"
)

// LogEvent is one logsNotification delivered for a watched account.
type LogEvent struct {
	Account   string
	Signature string
	Err       interface{}
	Logs      []string
	Slot      uint64
}

// EventHandler receives events for known subscriptions. It must return
// quickly: it is invoked from the connection read loop.
type EventHandler func(subscriptionID int64, ev LogEvent)

// Conn is the subset of a websocket connection the manager needs. Satisfied
// by *websocket.Conn; tests substitute a fake.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens a connection to the ledger node's websocket endpoint.
type Dialer func(ctx context.Context) (Conn, error)

// gorillaDialer is the production dialer.
func gorillaDialer(endpoint string) Dialer {
	return func(ctx context.Context) (Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// wsRequest is an outbound JSON-RPC request frame.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage is an inbound frame: either a response (ID set) or a push
// notification (Method set).
type wsMessage struct {
	ID     *uint64             `json:"id,omitempty"`
	Result json.RawMessage     `json:"result,omitempty"`
	Error  *rpc.RPCError       `json:"error,omitempty"`
	Method string              `json:"method,omitempty"`
	Params *notificationParams `json:"params,omitempty"`
}

type notificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Err       interface{} `json:"err"`
			Logs      []string    `json:"logs"`
		} `json:"value"`
	} `json:"result"`
}

func subscribeRequest(id uint64, account, commitment string) wsRequest {
	return wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{account}},
			map[string]interface{}{"commitment": commitment},
		},
	}
}

func unsubscribeRequest(id uint64, subscriptionID int64) wsRequest {
	return wsRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "logsUnsubscribe",
		Params:  []interface{}{subscriptionID},
	}
}
