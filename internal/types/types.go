package types

import "time"

// Sign is the change-direction code the brokerage attaches to a quote.
type Sign int

const (
	SignUnknown    Sign = 0
	SignUpperLimit Sign = 1
	SignUp         Sign = 2
	SignFlat       Sign = 3
	SignLowerLimit Sign = 4
	SignDown       Sign = 5
)

func (s Sign) String() string {
	switch s {
	case SignUpperLimit:
		return "UPPER_LIMIT"
	case SignUp:
		return "UP"
	case SignFlat:
		return "FLAT"
	case SignLowerLimit:
		return "LOWER_LIMIT"
	case SignDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// Tick is one real-time execution update for a symbol.
type Tick struct {
	Symbol      string  `json:"symbol"`
	Time        string  `json:"time"` // HHMMSS, exchange local time
	Price       float64 `json:"price"`
	Sign        Sign    `json:"sign"`
	Change      float64 `json:"change"`
	ChangeRate  float64 `json:"change_rate"`
	WeightedAvg float64 `json:"weighted_avg"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	TradeVolume int64   `json:"trade_volume"`
	Volume      int64   `json:"volume"` // cumulative
}

// BearerToken is the REST access token together with its absolute expiry.
type BearerToken struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be used at now given the
// safety margin before expiry.
func (t BearerToken) ValidAt(now time.Time, margin time.Duration) bool {
	if t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt.Add(-margin))
}

// ApprovalKey is the credential required to open the real-time socket.
type ApprovalKey struct {
	Value     string
	ExpiresAt time.Time
}

// ValidAt reports whether the key is unexpired at now.
func (k ApprovalKey) ValidAt(now time.Time) bool {
	return k.Value != "" && now.Before(k.ExpiresAt)
}

// Quote is a REST snapshot of a single stock.
type Quote struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	Sign       Sign    `json:"sign"`
	Change     float64 `json:"change"`
	ChangeRate float64 `json:"change_rate"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Volume     int64   `json:"volume"`
}

// IndexLevel is a REST snapshot of a market index.
type IndexLevel struct {
	Code       string  `json:"code"`
	Level      float64 `json:"level"`
	Sign       Sign    `json:"sign"`
	Change     float64 `json:"change"`
	ChangeRate float64 `json:"change_rate"`
	Volume     int64   `json:"volume"`
}

// RankedStock is one row of a volume ranking.
type RankedStock struct {
	Rank       int     `json:"rank"`
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Sign       Sign    `json:"sign"`
	Change     float64 `json:"change"`
	ChangeRate float64 `json:"change_rate"`
	Volume     int64   `json:"volume"`
}

// Candle is one daily OHLCV bar.
type Candle struct {
	Date  string  `json:"date"` // YYYYMMDD
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Vol   int64   `json:"volume"`
}
