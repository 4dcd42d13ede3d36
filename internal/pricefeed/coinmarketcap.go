package pricefeed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/httpx"
)

const defaultCMCBase = "https://pro-api.coinmarketcap.com"

// CoinMarketCap reads /v1/cryptocurrency/quotes/latest.
type CoinMarketCap struct {
	http     *httpx.Client
	apiBase  string
	apiKey   string
	currency string
}

func NewCoinMarketCap(httpClient *httpx.Client, apiBase, apiKey, currency string) *CoinMarketCap {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultCMCBase
	}
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}
	return &CoinMarketCap{
		http:     httpClient,
		apiBase:  strings.TrimRight(apiBase, "/"),
		apiKey:   apiKey,
		currency: strings.ToUpper(currency),
	}
}

type cmcResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price            *float64 `json:"price"`
			PercentChange24h *float64 `json:"percent_change_24h"`
			Volume24h        *float64 `json:"volume_24h"`
			MarketCap        *float64 `json:"market_cap"`
			LastUpdated      string   `json:"last_updated"`
		} `json:"quote"`
	} `json:"data"`
}

func (c *CoinMarketCap) Fetch(ctx context.Context, symbol string) (Quote, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return Quote{}, clierr.New(clierr.CodeAuth, "coinmarketcap api key is not configured")
	}
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("convert", c.currency)
	headers := map[string]string{"X-CMC_PRO_API_KEY": c.apiKey}

	var resp cmcResponse
	if _, err := c.http.GetJSON(ctx, c.apiBase+"/v1/cryptocurrency/quotes/latest", query, headers, &resp); err != nil {
		return Quote{}, err
	}
	if resp.Status.ErrorCode != 0 {
		return Quote{}, clierr.New(clierr.CodePriceUnavailable, fmt.Sprintf("coinmarketcap error %d: %s", resp.Status.ErrorCode, resp.Status.ErrorMessage))
	}
	entry, ok := resp.Data[symbol]
	if !ok {
		return Quote{}, clierr.New(clierr.CodePriceUnavailable, fmt.Sprintf("symbol %s not listed", symbol))
	}
	q, ok := entry.Quote[c.currency]
	if !ok || q.Price == nil || q.PercentChange24h == nil {
		return Quote{}, clierr.New(clierr.CodePriceUnavailable, fmt.Sprintf("malformed quote for %s", symbol))
	}

	out := Quote{
		Symbol:    symbol,
		Currency:  c.currency,
		Price:     *q.Price,
		Change24h: *q.PercentChange24h,
		Volume24h: q.Volume24h,
		MarketCap: q.MarketCap,
		Source:    SourceCoinMarketCap,
	}
	if ts, err := time.Parse(time.RFC3339, q.LastUpdated); err == nil {
		out.LastUpdated = ts.UTC()
	}
	return out, nil
}
