package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/tradesquad/tradesquad/internal/market"
	"github.com/tradesquad/tradesquad/internal/portfolio"
)

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterBuiltins wires the finance tools every deployment carries into
// the registry. Each tool returns {error} values for expected failures so
// a bad fetch never aborts a worker round.
func RegisterBuiltins(reg *Registry, data *market.Client, folio *portfolio.Repository, ttl time.Duration) error {
	if ttl == 0 {
		ttl = time.Minute
	}

	tickerProp := map[string]interface{}{
		"ticker": map[string]interface{}{
			"type":        "string",
			"description": "Stock ticker symbol, e.g. AAPL",
		},
	}

	specs := []struct {
		schema Schema
		ttl    time.Duration
		fn     Func
	}{
		{
			schema: Schema{
				Name:        "fetch_price_history",
				Description: "Fetch recent OHLCV candles plus derived RSI/MACD/ATR readings for a ticker.",
				Parameters: objectSchema(map[string]interface{}{
					"ticker": tickerProp["ticker"],
					"horizon": map[string]interface{}{
						"type":        "string",
						"description": "Scalp, Swing or Invest; controls the candle interval",
					},
				}, "ticker"),
			},
			ttl: 5 * ttl,
			fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				ticker := stringArg(args, "ticker")
				if ticker == "" {
					return nil, fmt.Errorf("ticker argument required")
				}
				horizon := stringArg(args, "horizon")
				hist, err := data.History(ctx, ticker, horizon)
				if err != nil {
					return nil, err
				}
				bars := hist.Bars
				if len(bars) > 30 {
					bars = bars[len(bars)-30:]
				}
				return map[string]interface{}{
					"ticker":     hist.Ticker,
					"last_close": hist.LastClose(),
					"bars":       bars,
					"indicators": market.ComputeIndicators(hist),
				}, nil
			},
		},
		{
			schema: Schema{
				Name:        "fetch_ticker_stats",
				Description: "Fetch the latest delayed quote snapshot for a ticker.",
				Parameters:  objectSchema(tickerProp, "ticker"),
			},
			ttl: 5 * ttl,
			fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				ticker := stringArg(args, "ticker")
				if ticker == "" {
					return nil, fmt.Errorf("ticker argument required")
				}
				q, err := data.Quote(ctx, ticker)
				if err != nil {
					return nil, err
				}
				return q, nil
			},
		},
		{
			schema: Schema{
				Name:        "fetch_ticker_news",
				Description: "Fetch recent news headlines for a ticker from the wire feed.",
				Parameters:  objectSchema(tickerProp, "ticker"),
			},
			ttl: ttl,
			fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				ticker := stringArg(args, "ticker")
				if ticker == "" {
					return nil, fmt.Errorf("ticker argument required")
				}
				items, err := data.News(ctx, ticker)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"ticker": ticker, "headlines": items}, nil
			},
		},
		{
			schema: Schema{
				Name:        "search_web_news",
				Description: "Search the web for fresh news about a topic or ticker.",
				Parameters: objectSchema(map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search query, e.g. 'AAPL earnings guidance'",
					},
				}, "query"),
			},
			ttl: ttl,
			fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				query := stringArg(args, "query")
				if query == "" {
					return nil, fmt.Errorf("query argument required")
				}
				items, err := data.WebSearch(ctx, query)
				if err != nil {
					return nil, err
				}
				if items == nil {
					return map[string]interface{}{"query": query, "results": []market.Headline{}, "note": "web search not configured"}, nil
				}
				return map[string]interface{}{"query": query, "results": items}, nil
			},
		},
	}

	for _, s := range specs {
		if err := reg.Register(s.schema, s.fn, s.ttl); err != nil {
			return err
		}
	}

	// portfolio_status needs the per-run context to know which ticker the
	// caller is analyzing; it is the one built-in that declares the
	// context capability.
	return reg.RegisterWithContext(Schema{
		Name:        "portfolio_status",
		Description: "Report the current paper portfolio position and cash for the ticker under analysis.",
		Parameters:  objectSchema(map[string]interface{}{}),
	}, func(ctx context.Context, args map[string]interface{}, runCtx map[string]interface{}) (interface{}, error) {
		ticker := stringArg(args, "ticker")
		if ticker == "" && runCtx != nil {
			ticker, _ = runCtx["ticker"].(string)
		}
		if folio == nil {
			return map[string]interface{}{"cash": 0.0, "note": "portfolio engine not connected"}, nil
		}
		return folio.Context(ctx, ticker), nil
	}, 0)
}
