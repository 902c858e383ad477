package market

import "math"

// Indicators are technical readings derived from a price series.
type Indicators struct {
	RSI        float64 `json:"rsi"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	ATR        float64 `json:"atr"`
	SMA20      float64 `json:"sma_20"`
	Change5d   float64 `json:"change_5d_pct"`
}

// ComputeIndicators derives RSI(14), MACD(12/26/9), ATR(14) and SMA(20)
// from the series. Series shorter than the lookback windows produce
// partial readings rather than an error.
func ComputeIndicators(h History) Indicators {
	closes := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		closes[i] = b.Close
	}
	macd, signal := macdSeries(closes)
	ind := Indicators{
		RSI:        rsi(closes, 14),
		MACD:       macd,
		MACDSignal: signal,
		ATR:        atr(h.Bars, 14),
		SMA20:      sma(closes, 20),
	}
	if len(closes) > 5 && closes[len(closes)-6] != 0 {
		ind.Change5d = (closes[len(closes)-1]/closes[len(closes)-6] - 1) * 100
	}
	return ind
}

func sma(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	if window > len(values) {
		window = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-window:] {
		sum += v
	}
	return sum / float64(window)
}

func rsi(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	if period >= len(closes) {
		period = len(closes) - 1
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}

func ema(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func macdSeries(closes []float64) (macd, signal float64) {
	if len(closes) == 0 {
		return 0, 0
	}
	fast := ema(closes, 12)
	slow := ema(closes, 26)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	sig := ema(line, 9)
	return line[len(line)-1], sig[len(sig)-1]
}

func atr(bars []Bar, period int) float64 {
	if len(bars) < 2 {
		return 0
	}
	if period >= len(bars) {
		period = len(bars) - 1
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		highLow := bars[i].High - bars[i].Low
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		sum += math.Max(highLow, math.Max(highClose, lowClose))
	}
	return sum / float64(period)
}
