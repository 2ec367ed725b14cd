package finance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tradexcel/backend/internal/apperr"
)

func chartJSON(price float64, closes []float64) string {
	timestamps := ""
	series := ""
	for i, c := range closes {
		if i > 0 {
			timestamps += ","
			series += ","
		}
		timestamps += fmt.Sprintf("%d", 1700000000+int64(i)*86400)
		series += fmt.Sprintf("%g", c)
	}
	return fmt.Sprintf(`{"chart":{"result":[{
		"meta":{"regularMarketPrice":%g},
		"timestamp":[%s],
		"indicators":{"adjclose":[{"adjclose":[%s]}]}
	}]}}`, price, timestamps, series)
}

func newQuoteServer(t *testing.T, body string, status int) *YahooClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewYahooClient(srv.URL)
}

func TestQuoteComputesChanges(t *testing.T) {
	client := newQuoteServer(t, chartJSON(105.5, []float64{100, 102, 101, 105.5}), http.StatusOK)

	quote, err := client.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.CurrentPrice != 105.5 {
		t.Fatalf("currentPrice = %v", quote.CurrentPrice)
	}
	if quote.TodayChange != "+4.50" {
		t.Fatalf("todayChange = %q", quote.TodayChange)
	}
	if quote.PercentageChange != "4.46" {
		t.Fatalf("percentageChange = %q", quote.PercentageChange)
	}
	if len(quote.StockPrices) != 4 {
		t.Fatalf("stockPrices = %v", quote.StockPrices)
	}
}

func TestQuoteNegativeChangeIsSigned(t *testing.T) {
	client := newQuoteServer(t, chartJSON(98, []float64{100, 98}), http.StatusOK)

	quote, err := client.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.TodayChange != "-2.00" {
		t.Fatalf("todayChange = %q", quote.TodayChange)
	}
	// Percentage change is reported as a magnitude.
	if quote.PercentageChange != "2.00" {
		t.Fatalf("percentageChange = %q", quote.PercentageChange)
	}
}

func TestQuoteSinglePointHasNoChange(t *testing.T) {
	client := newQuoteServer(t, chartJSON(100, []float64{100}), http.StatusOK)

	quote, err := client.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.TodayChange != "NA" || quote.PercentageChange != "NA" {
		t.Fatalf("expected NA changes, got %q / %q", quote.TodayChange, quote.PercentageChange)
	}
}

func TestQuoteTruncatesToThirtyDays(t *testing.T) {
	closes := make([]float64, 45)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	client := newQuoteServer(t, chartJSON(45, closes), http.StatusOK)

	quote, err := client.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if len(quote.StockPrices) != 30 {
		t.Fatalf("expected 30 prices, got %d", len(quote.StockPrices))
	}
	if quote.StockPrices[0] != 16 || quote.StockPrices[29] != 45 {
		t.Fatalf("expected most recent prices, got first=%v last=%v", quote.StockPrices[0], quote.StockPrices[29])
	}
}

func TestQuoteUnknownSymbol(t *testing.T) {
	client := newQuoteServer(t, `{"chart":{"result":[]}}`, http.StatusOK)

	_, err := client.Quote(context.Background(), "NOPE")
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuoteMissingSeries(t *testing.T) {
	client := newQuoteServer(t, `{"chart":{"result":[{"meta":{"regularMarketPrice":1},"timestamp":[],"indicators":{"adjclose":[]}}]}}`, http.StatusOK)

	_, err := client.Quote(context.Background(), "AAPL")
	if !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuoteUpstreamError(t *testing.T) {
	client := newQuoteServer(t, "upstream broken", http.StatusBadGateway)

	_, err := client.Quote(context.Background(), "AAPL")
	if !apperr.HasCode(err, apperr.CodeDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}
}
