// Package finance proxies an external stock-quote provider, reformatting its
// chart series into the shape the frontend charts expect.
package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/tradexcel/backend/internal/apperr"
)

const maxChartDays = 30

// Quote is the reformatted snapshot served to clients.
type Quote struct {
	CurrentPrice     float64   `json:"currentPrice"`
	PercentageChange string    `json:"percentageChange"`
	TodayChange      string    `json:"todayChange"`
	StockPrices      []float64 `json:"stockPrices"`
}

// Quoter fetches a quote for a symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// YahooClient implements Quoter against the Yahoo Finance chart API.
type YahooClient struct {
	baseURL string
	http    *http.Client
}

// NewYahooClient builds a quote client. An empty baseURL selects the public
// Yahoo endpoint.
func NewYahooClient(baseURL string) *YahooClient {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &YahooClient{
		baseURL: baseURL,
		http:    &http.Client{Transport: transport, Timeout: 15 * time.Second},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Adjclose []struct {
					Adjclose []float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// Quote fetches the last 30 days of daily adjusted closes for the symbol and
// derives the day-over-day change figures.
func (c *YahooClient) Quote(ctx context.Context, symbol string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=30d&interval=1d", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, apperr.Internal(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, apperr.Delivery(fmt.Sprintf("error fetching data from Yahoo Finance %s", symbol), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, apperr.Delivery(fmt.Sprintf("error fetching data from Yahoo Finance %s", symbol),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var data chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Quote{}, apperr.Delivery("invalid response from Yahoo Finance", err)
	}

	if len(data.Chart.Result) == 0 {
		return Quote{}, apperr.NotFound("stock data not found or invalid symbol")
	}
	result := data.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Adjclose) == 0 || len(result.Indicators.Adjclose[0].Adjclose) == 0 {
		return Quote{}, apperr.NotFound("insufficient data for stock chart")
	}

	return buildQuote(result.Meta.RegularMarketPrice, result.Timestamp, result.Indicators.Adjclose[0].Adjclose), nil
}

func buildQuote(currentPrice float64, timestamps []int64, adjClose []float64) Quote {
	limit := len(timestamps)
	if limit > maxChartDays {
		limit = maxChartDays
	}
	if limit > len(adjClose) {
		limit = len(adjClose)
	}
	prices := adjClose[len(adjClose)-limit:]

	quote := Quote{
		CurrentPrice:     currentPrice,
		TodayChange:      "NA",
		PercentageChange: "NA",
		StockPrices:      prices,
	}

	if len(prices) >= 2 {
		latest := prices[len(prices)-1]
		previous := prices[len(prices)-2]
		change := latest - previous
		pct := change / previous * 100

		sign := ""
		if change >= 0 {
			sign = "+"
		}
		quote.TodayChange = fmt.Sprintf("%s%.2f", sign, change)
		if pct < 0 {
			pct = -pct
		}
		quote.PercentageChange = fmt.Sprintf("%.2f", pct)
	}

	return quote
}
