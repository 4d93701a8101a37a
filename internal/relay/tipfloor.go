package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
)

// TipFloor holds the relay's recent tip distribution in lamports,
// keyed by percentile.
type TipFloor struct {
	P25 uint64
	P50 uint64
	P75 uint64
	P95 uint64
	P99 uint64
}

// AtPercentile returns the tip amount for one of the published
// percentiles. Unknown percentiles are an error so misconfigured
// strategies fail loudly instead of tipping zero.
func (f *TipFloor) AtPercentile(p int) (*big.Int, error) {
	var v uint64
	switch p {
	case 25:
		v = f.P25
	case 50:
		v = f.P50
	case 75:
		v = f.P75
	case 95:
		v = f.P95
	case 99:
		v = f.P99
	default:
		return nil, fmt.Errorf("unsupported tip percentile %d", p)
	}
	return new(big.Int).SetUint64(v), nil
}

type tipFloorEntry struct {
	LandedTips25 float64 `json:"landed_tips_25th_percentile"`
	LandedTips50 float64 `json:"landed_tips_50th_percentile"`
	LandedTips75 float64 `json:"landed_tips_75th_percentile"`
	LandedTips95 float64 `json:"landed_tips_95th_percentile"`
	LandedTips99 float64 `json:"landed_tips_99th_percentile"`
}

const lamportsPerSol = 1_000_000_000

func solToLamports(sol float64) uint64 {
	if sol <= 0 || math.IsNaN(sol) || math.IsInf(sol, 0) {
		return 0
	}
	return uint64(math.Round(sol * lamportsPerSol))
}

// TipFloor fetches the published tip percentile feed. The feed reports
// SOL amounts; everything downstream works in lamports.
func (c *Client) TipFloor(ctx context.Context) (*TipFloor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/bundles/tip_floor", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tip floor request failed: %w", err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("tip floor http %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var entries []tipFloorEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode tip floor response: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("tip floor feed returned no entries")
	}

	e := entries[0]
	return &TipFloor{
		P25: solToLamports(e.LandedTips25),
		P50: solToLamports(e.LandedTips50),
		P75: solToLamports(e.LandedTips75),
		P95: solToLamports(e.LandedTips95),
		P99: solToLamports(e.LandedTips99),
	}, nil
}
