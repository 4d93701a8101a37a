package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Client talks to a block-engine style relay that accepts tipped
// transactions over JSON-RPC and publishes tip floor statistics.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logrus.Logger
	reqID   atomic.Uint64
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		logger:  logger,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, path, method string, params []interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal relay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-jito-auth", c.apiKey)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("relay http %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out rpcResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("failed to decode relay response: %w", err)
	}
	if out.Error != nil {
		return out.Error
	}
	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("failed to decode relay result: %w", err)
		}
	}
	return nil
}

// SendTransaction submits a base64 encoded signed transaction and returns
// the signature the relay reports back.
func (c *Client) SendTransaction(ctx context.Context, txBase64 string) (string, error) {
	params := []interface{}{
		txBase64,
		map[string]string{"encoding": "base64"},
	}
	var signature string
	if err := c.call(ctx, "/api/v1/transactions", "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	c.logger.WithFields(logrus.Fields{
		"signature": signature,
	}).Debug("transaction accepted by relay")
	return signature, nil
}

// TipAccounts returns the relay's current tip destination accounts.
func (c *Client) TipAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.call(ctx, "/api/v1/bundles", "getTipAccounts", []interface{}{}, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("relay returned no tip accounts")
	}
	return accounts, nil
}
