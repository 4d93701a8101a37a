package jupiter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteSendsOnlyConfiguredParams(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		query = r.URL.Query()
		_, _ = w.Write([]byte(`{"inputMint":"a","outputMint":"b","inAmount":"1000","outAmount":"900"}`))
	}))
	defer srv.Close()

	slippage := uint16(100)
	c := NewClient(srv.URL, "", nil)
	out, err := c.Quote(context.Background(), QuoteRequest{
		InputMint:   "So11111111111111111111111111111111111111112",
		OutputMint:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Amount:      "1000",
		SlippageBps: &slippage,
	})
	require.NoError(t, err)
	assert.Equal(t, "900", out.OutAmount)

	assert.Equal(t, "1000", query.Get("amount"))
	assert.Equal(t, "100", query.Get("slippageBps"))
	// Optional knobs stay off the wire unless set.
	assert.Len(t, query, 4)
}

func TestQuoteRejectsMissingFields(t *testing.T) {
	c := NewClient("http://localhost:1", "", nil)
	_, err := c.Quote(context.Background(), QuoteRequest{OutputMint: "b", Amount: "1"})
	require.Error(t, err)
	_, err = c.Quote(context.Background(), QuoteRequest{InputMint: "a", OutputMint: "b"})
	require.Error(t, err)
}
