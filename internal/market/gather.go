package market

import (
	"context"
	"sync"
)

// gatherHistoryBars caps how many candles the shared data package carries.
const gatherHistoryBars = 30

// Gather pre-fetches the market picture for one ticker: price history
// with derived indicators, the latest quote, and recent headlines, all
// fetched concurrently. A dead feed degrades to an error note in the
// package rather than failing the gather.
func (c *Client) Gather(ctx context.Context, ticker, horizon string) map[string]interface{} {
	pkg := map[string]interface{}{"ticker": ticker}
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		h, err := c.History(ctx, ticker, horizon)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			c.logger.Printf("gather history for %s: %v", ticker, err)
			pkg["history_error"] = err.Error()
			return
		}
		bars := h.Bars
		if len(bars) > gatherHistoryBars {
			bars = bars[len(bars)-gatherHistoryBars:]
		}
		pkg["price_history"] = bars
		pkg["last_close"] = h.LastClose()
		pkg["indicators"] = ComputeIndicators(h)
	}()
	go func() {
		defer wg.Done()
		q, err := c.Quote(ctx, ticker)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			c.logger.Printf("gather quote for %s: %v", ticker, err)
			pkg["quote_error"] = err.Error()
			return
		}
		pkg["quote"] = q
	}()
	go func() {
		defer wg.Done()
		headlines, err := c.News(ctx, ticker)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			c.logger.Printf("gather news for %s: %v", ticker, err)
			pkg["news_error"] = err.Error()
			return
		}
		pkg["headlines"] = headlines
	}()
	wg.Wait()
	return pkg
}
