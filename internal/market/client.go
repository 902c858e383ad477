package market

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tradesquad/tradesquad/config"
)

// Bar is one OHLCV candle.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// History is a price series for one ticker.
type History struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

// LastClose returns the most recent closing price, or 0 for an empty series.
func (h History) LastClose() float64 {
	if len(h.Bars) == 0 {
		return 0
	}
	return h.Bars[len(h.Bars)-1].Close
}

// Quote is a delayed snapshot quote.
type Quote struct {
	Ticker string  `json:"ticker"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Date   string  `json:"date"`
}

// Headline is one news item.
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
}

// Client fetches market data, quotes and headlines over plain HTTP.
type Client struct {
	http      *http.Client
	baseURL   string
	feedURL   string
	serperKey string
	maxNews   int
	logger    *log.Logger
}

// NewClient builds a market data client from tool configuration.
func NewClient(cfg config.ToolsConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[MARKET] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxNews := cfg.MaxNewsResults
	if maxNews <= 0 {
		maxNews = 10
	}
	base := strings.TrimSuffix(cfg.MarketDataBaseURL, "/")
	if base == "" {
		base = "https://stooq.com"
	}
	feed := cfg.NewsFeedURL
	if feed == "" {
		feed = "https://feeds.finance.yahoo.com/rss/2.0/headline?s=%s&region=US&lang=en-US"
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   base,
		feedURL:   feed,
		serperKey: cfg.SerperAPIKey,
		maxNews:   maxNews,
		logger:    logger,
	}
}

// historyInterval maps an analysis horizon to a stooq sampling interval.
func historyInterval(horizon string) string {
	switch horizon {
	case "Scalp":
		return "5" // 5-minute candles
	case "Invest":
		return "w"
	default: // Swing
		return "d"
	}
}

// History fetches OHLCV candles for a ticker. The stooq CSV endpoint
// serves the full daily series; callers trim to the window they need.
func (c *Client) History(ctx context.Context, ticker, horizon string) (History, error) {
	sym := stooqSymbol(ticker)
	u := fmt.Sprintf("%s/q/d/l/?s=%s&i=%s", c.baseURL, url.QueryEscape(sym), historyInterval(horizon))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return History{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return History{}, fmt.Errorf("history fetch for %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return History{}, fmt.Errorf("history fetch for %s: status %d", ticker, resp.StatusCode)
	}

	bars, err := parseStooqCSV(resp.Body)
	if err != nil {
		return History{}, fmt.Errorf("history parse for %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return History{}, fmt.Errorf("no price data found for %s", ticker)
	}
	return History{Ticker: ticker, Bars: bars}, nil
}

// Quote fetches the latest delayed snapshot quote for a ticker.
func (c *Client) Quote(ctx context.Context, ticker string) (Quote, error) {
	sym := stooqSymbol(ticker)
	u := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlcv&h&e=csv", c.baseURL, url.QueryEscape(sym))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("quote fetch for %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quote fetch for %s: status %d", ticker, resp.StatusCode)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return Quote{}, fmt.Errorf("quote parse for %s: %w", ticker, err)
	}
	if len(rows) < 2 || len(rows[1]) < 8 {
		return Quote{}, fmt.Errorf("no quote found for %s", ticker)
	}
	row := rows[1]
	q := Quote{
		Ticker: ticker,
		Date:   row[1],
		Open:   parseFloat(row[3]),
		High:   parseFloat(row[4]),
		Low:    parseFloat(row[5]),
		Close:  parseFloat(row[6]),
		Volume: parseFloat(row[7]),
	}
	if q.Close == 0 {
		return Quote{}, fmt.Errorf("no quote found for %s", ticker)
	}
	return q, nil
}

type rssFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			Link    string `xml:"link"`
			Source  string `xml:"source"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

// News fetches recent headlines for a ticker from the configured RSS feed.
func (c *Client) News(ctx context.Context, ticker string) ([]Headline, error) {
	u := c.feedURL
	if strings.Contains(u, "%s") {
		u = fmt.Sprintf(u, url.QueryEscape(ticker))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news fetch for %s: %w", ticker, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news fetch for %s: status %d", ticker, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("news parse for %s: %w", ticker, err)
	}

	var out []Headline
	for _, item := range feed.Channel.Items {
		if len(out) >= c.maxNews {
			break
		}
		h := Headline{Title: item.Title, URL: item.Link, Source: item.Source}
		if h.Source == "" {
			h.Source = "RSS"
		}
		if t, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			h.PublishedAt = t
		} else if t, err := time.Parse(time.RFC1123, item.PubDate); err == nil {
			h.PublishedAt = t
		}
		out = append(out, h)
	}
	return out, nil
}

// WebSearch queries serper.dev for fresh news about a ticker.
// Returns an empty slice when no API key is configured.
func (c *Client) WebSearch(ctx context.Context, query string) ([]Headline, error) {
	if c.serperKey == "" {
		return nil, nil
	}
	payload := map[string]interface{}{"q": query, "num": c.maxNews, "tbs": "qdr:w"}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/news", strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.serperKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search: status %d", resp.StatusCode)
	}

	var raw struct {
		News []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Source  string `json:"source"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"news"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("web search parse: %w", err)
	}

	var out []Headline
	for i, item := range raw.News {
		if i >= c.maxNews {
			break
		}
		out = append(out, Headline{
			Title:   item.Title,
			URL:     item.Link,
			Source:  item.Source,
			Snippet: item.Snippet,
		})
	}
	return out, nil
}

// stooqSymbol maps plain US tickers to stooq notation (aapl -> aapl.us).
func stooqSymbol(ticker string) string {
	s := strings.ToLower(strings.TrimSpace(ticker))
	if !strings.Contains(s, ".") {
		s += ".us"
	}
	return s
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseStooqCSV(r io.Reader) ([]Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	var bars []Bar
	for i, row := range rows {
		if i == 0 || len(row) < 6 { // header: Date,Open,High,Low,Close,Volume
			continue
		}
		date, err := time.Parse("2006-01-02", row[0])
		if err != nil {
			continue
		}
		bars = append(bars, Bar{
			Date:   date,
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[5]),
		})
	}
	return bars, nil
}
