package relay

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/transactions", r.URL.Path)

		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sendTransaction", req.Method)
		require.Len(t, req.Params, 2)
		assert.Equal(t, "dGVzdA==", req.Params[0])

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"5Sig111"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	sig, err := c.SendTransaction(context.Background(), "dGVzdA==")
	require.NoError(t, err)
	assert.Equal(t, "5Sig111", sig)
}

func TestSendTransactionRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid transaction"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.SendTransaction(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transaction")
}

func TestTipAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/bundles", r.URL.Path)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":["acc1","acc2"]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	accounts, err := c.TipAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acc1", "acc2"}, accounts)
}

func TestTipFloorConvertsToLamports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/bundles/tip_floor", r.URL.Path)
		_, _ = w.Write([]byte(`[{
			"landed_tips_25th_percentile": 0.000001,
			"landed_tips_50th_percentile": 0.00001,
			"landed_tips_75th_percentile": 0.0001,
			"landed_tips_95th_percentile": 0.001,
			"landed_tips_99th_percentile": 0.01
		}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	floor, err := c.TipFloor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), floor.P25)
	assert.Equal(t, uint64(10_000), floor.P50)
	assert.Equal(t, uint64(100_000), floor.P75)
	assert.Equal(t, uint64(1_000_000), floor.P95)
	assert.Equal(t, uint64(10_000_000), floor.P99)

	tip, err := floor.AtPercentile(75)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100_000), tip)

	_, err = floor.AtPercentile(80)
	require.Error(t, err)
}
