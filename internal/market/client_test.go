package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tradesquad/tradesquad/config"
)

const sampleHistoryCSV = `Date,Open,High,Low,Close,Volume
2024-01-02,185.50,186.90,184.20,186.10,52000000
2024-01-03,186.00,187.40,185.10,185.60,48000000
2024-01-04,185.80,188.00,185.50,187.90,51000000
`

func TestParseStooqCSV(t *testing.T) {
	bars, err := parseStooqCSV(strings.NewReader(sampleHistoryCSV))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	if bars[0].Close != 186.10 {
		t.Fatalf("first close = %v", bars[0].Close)
	}
	if bars[2].Volume != 51000000 {
		t.Fatalf("last volume = %v", bars[2].Volume)
	}
}

func TestParseStooqCSVSkipsBadRows(t *testing.T) {
	csv := "Date,Open,High,Low,Close,Volume\nnot-a-date,1,2,3,4,5\n2024-01-02,1,2,3,4,5\n"
	bars, err := parseStooqCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("got %d bars, want 1", len(bars))
	}
}

func TestStooqSymbol(t *testing.T) {
	if got := stooqSymbol("AAPL"); got != "aapl.us" {
		t.Fatalf("stooqSymbol(AAPL) = %q", got)
	}
	if got := stooqSymbol("btc.v"); got != "btc.v" {
		t.Fatalf("stooqSymbol(btc.v) = %q", got)
	}
}

func TestHistoryInterval(t *testing.T) {
	if historyInterval("Scalp") != "5" || historyInterval("Invest") != "w" || historyInterval("Swing") != "d" || historyInterval("") != "d" {
		t.Fatal("horizon to interval mapping broken")
	}
}

func TestHistoryFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "s=nvda.us") {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(sampleHistoryCSV))
	}))
	defer srv.Close()

	c := NewClient(config.ToolsConfig{MarketDataBaseURL: srv.URL}, nil)
	h, err := c.History(context.Background(), "NVDA", "Swing")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if h.LastClose() != 187.90 {
		t.Fatalf("last close = %v", h.LastClose())
	}
}

func TestQuoteFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nAAPL.US,2024-01-05,22:00:07,181.99,182.76,180.17,181.18,62303300\n"))
	}))
	defer srv.Close()

	c := NewClient(config.ToolsConfig{MarketDataBaseURL: srv.URL}, nil)
	q, err := c.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Close != 181.18 || q.Volume != 62303300 {
		t.Fatalf("quote = %+v", q)
	}
}

func TestQuoteNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nBOGUS.US,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"))
	}))
	defer srv.Close()

	c := NewClient(config.ToolsConfig{MarketDataBaseURL: srv.URL}, nil)
	if _, err := c.Quote(context.Background(), "BOGUS"); err == nil {
		t.Fatal("expected error for N/D quote")
	}
}

func TestNewsParsesRSS(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><title>Apple hits record high</title><link>http://example.com/1</link><pubDate>Fri, 05 Jan 2024 14:30:00 +0000</pubDate></item>
<item><title>Analysts raise targets</title><link>http://example.com/2</link><pubDate>Fri, 05 Jan 2024 12:00:00 GMT</pubDate></item>
</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rss))
	}))
	defer srv.Close()

	c := NewClient(config.ToolsConfig{NewsFeedURL: srv.URL + "?s=%s"}, nil)
	headlines, err := c.News(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if len(headlines) != 2 {
		t.Fatalf("got %d headlines, want 2", len(headlines))
	}
	if headlines[0].Title != "Apple hits record high" {
		t.Fatalf("headline = %+v", headlines[0])
	}
	if headlines[0].PublishedAt.IsZero() || headlines[1].PublishedAt.IsZero() {
		t.Fatal("pubDate not parsed")
	}
}

func TestNewsRespectsMaxResults(t *testing.T) {
	var items strings.Builder
	for i := 0; i < 20; i++ {
		items.WriteString("<item><title>headline</title><link>http://example.com</link></item>")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss><channel>" + items.String() + "</channel></rss>"))
	}))
	defer srv.Close()

	c := NewClient(config.ToolsConfig{NewsFeedURL: srv.URL + "?s=%s", MaxNewsResults: 5}, nil)
	headlines, err := c.News(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if len(headlines) != 5 {
		t.Fatalf("got %d headlines, want 5", len(headlines))
	}
}

func TestWebSearchWithoutKey(t *testing.T) {
	c := NewClient(config.ToolsConfig{}, nil)
	headlines, err := c.WebSearch(context.Background(), "NVDA earnings")
	if err != nil {
		t.Fatalf("web search: %v", err)
	}
	if headlines != nil {
		t.Fatalf("keyless search should return nil, got %v", headlines)
	}
}
