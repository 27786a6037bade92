package ta

import (
	"math"

	"stock-dashboard/internal/types"
)

// Windows used by Summarize.
const (
	SMAWindow       = 20
	RSIPeriod       = 14
	BollingerWindow = 20
	BollingerK      = 2.0
	ATRPeriod       = 14
)

// Summary is the indicator set shown next to a daily chart. A nil field means
// the chart is too short for that window.
type Summary struct {
	Symbol string  `json:"symbol"`
	Bars   int     `json:"bars"`
	From   string  `json:"from,omitempty"`
	To     string  `json:"to,omitempty"`
	Last   float64 `json:"last"`

	SMA20          *float64 `json:"sma20"`
	RSI14          *float64 `json:"rsi14"`
	BollingerUpper *float64 `json:"bollinger_upper"`
	BollingerMid   *float64 `json:"bollinger_mid"`
	BollingerLower *float64 `json:"bollinger_lower"`
	ATR14          *float64 `json:"atr14"`
}

// Summarize computes the indicators over candles, which must be oldest first.
func Summarize(symbol string, candles []types.Candle) Summary {
	s := Summary{Symbol: symbol, Bars: len(candles)}
	if len(candles) == 0 {
		return s
	}
	s.From = candles[0].Date
	s.To = candles[len(candles)-1].Date

	closes := Closes(candles)
	s.Last = closes[len(closes)-1]
	s.SMA20 = ptr(SMA(closes, SMAWindow))
	s.RSI14 = ptr(RSI(closes, RSIPeriod))
	if mid, up, low, ok := Bollinger(closes, BollingerWindow, BollingerK); ok {
		s.BollingerMid, s.BollingerUpper, s.BollingerLower = &mid, &up, &low
	}
	s.ATR14 = ptr(ATR(candles, ATRPeriod))
	return s
}

func ptr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

// Closes extracts the closing prices in candle order.
func Closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the mean of the last n values.
func SMA(vals []float64, n int) (float64, bool) {
	if n <= 0 || len(vals) < n {
		return 0, false
	}
	sum := 0.0
	for _, v := range vals[len(vals)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// RSI over the last period price changes, simple-average variant.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100, true
	}
	rs := gain / loss
	return 100 - 100/(1+rs), true
}

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) (float64, bool) {
	m, ok := SMA(vals, n)
	if !ok {
		return 0, false
	}
	s := 0.0
	for _, v := range vals[len(vals)-n:] {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(n)), true
}

// Bollinger returns the n-bar mean and the bands k deviations around it.
func Bollinger(closes []float64, n int, k float64) (mid, up, low float64, ok bool) {
	mid, ok = SMA(closes, n)
	if !ok {
		return 0, 0, 0, false
	}
	sd, _ := StdDev(closes, n)
	return mid, mid + k*sd, mid - k*sd, true
}

// ATR is the mean true range of the last period bars.
func ATR(candles []types.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		sum += tr
	}
	return sum / float64(period), true
}
