package kis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"stock-dashboard/internal/types"
)

// Transaction ids of the quotation endpoints.
const (
	trInquirePrice = "FHKST01010100"
	trIndexPrice   = "FHPUP02100000"
	trVolumeRank   = "FHPST01710000"
	trDailyChart   = "FHKST03010100"
)

const quotationsPath = "/uapi/domestic-stock/v1/quotations/"

// Index codes accepted by IndexPrice.
const (
	IndexKOSPI  = "0001"
	IndexKOSDAQ = "1001"
)

// InquirePrice returns the current quote of a stock.
func (c *Client) InquirePrice(ctx context.Context, symbol string) (types.Quote, error) {
	var body struct {
		Output struct {
			Price      string `json:"stck_prpr"`
			Change     string `json:"prdy_vrss"`
			Sign       string `json:"prdy_vrss_sign"`
			ChangeRate string `json:"prdy_ctrt"`
			Open       string `json:"stck_oprc"`
			High       string `json:"stck_hgpr"`
			Low        string `json:"stck_lwpr"`
			Volume     string `json:"acml_vol"`
		} `json:"output"`
	}
	err := c.get(ctx, quotationsPath+"inquire-price", trInquirePrice, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "J",
		"FID_INPUT_ISCD":         symbol,
	}, &body)
	if err != nil {
		return types.Quote{}, fmt.Errorf("inquire price %s: %w", symbol, err)
	}

	o := body.Output
	return types.Quote{
		Symbol:     symbol,
		Price:      toFloat(o.Price),
		Sign:       toSign(o.Sign),
		Change:     toFloat(o.Change),
		ChangeRate: toFloat(o.ChangeRate),
		Open:       toFloat(o.Open),
		High:       toFloat(o.High),
		Low:        toFloat(o.Low),
		Volume:     toInt(o.Volume),
	}, nil
}

// IndexPrice returns the level of a market index (IndexKOSPI, IndexKOSDAQ).
func (c *Client) IndexPrice(ctx context.Context, code string) (types.IndexLevel, error) {
	var body struct {
		Output struct {
			Level      string `json:"bstp_nmix_prpr"`
			Change     string `json:"bstp_nmix_prdy_vrss"`
			Sign       string `json:"prdy_vrss_sign"`
			ChangeRate string `json:"bstp_nmix_prdy_ctrt"`
			Volume     string `json:"acml_vol"`
		} `json:"output"`
	}
	err := c.get(ctx, quotationsPath+"inquire-index-price", trIndexPrice, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "U",
		"FID_INPUT_ISCD":         code,
	}, &body)
	if err != nil {
		return types.IndexLevel{}, fmt.Errorf("index price %s: %w", code, err)
	}

	o := body.Output
	return types.IndexLevel{
		Code:       code,
		Level:      toFloat(o.Level),
		Sign:       toSign(o.Sign),
		Change:     toFloat(o.Change),
		ChangeRate: toFloat(o.ChangeRate),
		Volume:     toInt(o.Volume),
	}, nil
}

// VolumeRank returns the most traded stocks of the day, at most limit rows
// (all rows when limit <= 0).
func (c *Client) VolumeRank(ctx context.Context, limit int) ([]types.RankedStock, error) {
	var body struct {
		Output []struct {
			Name       string `json:"hts_kor_isnm"`
			Symbol     string `json:"mksc_shrn_iscd"`
			Rank       string `json:"data_rank"`
			Price      string `json:"stck_prpr"`
			Sign       string `json:"prdy_vrss_sign"`
			Change     string `json:"prdy_vrss"`
			ChangeRate string `json:"prdy_ctrt"`
			Volume     string `json:"acml_vol"`
		} `json:"output"`
	}
	err := c.get(ctx, quotationsPath+"volume-rank", trVolumeRank, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "J",
		"FID_COND_SCR_DIV_CODE":  "20171",
		"FID_INPUT_ISCD":         "0000",
		"FID_DIV_CLS_CODE":       "0",
		"FID_BLNG_CLS_CODE":      "0",
		"FID_TRGT_CLS_CODE":      "111111111",
		"FID_TRGT_EXLS_CLS_CODE": "000000",
		"FID_INPUT_PRICE_1":      "",
		"FID_INPUT_PRICE_2":      "",
		"FID_VOL_CNT":            "",
		"FID_INPUT_DATE_1":       "",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("volume rank: %w", err)
	}

	rows := body.Output
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]types.RankedStock, 0, len(rows))
	for i, r := range rows {
		rank := int(toInt(r.Rank))
		if rank == 0 {
			rank = i + 1
		}
		out = append(out, types.RankedStock{
			Rank:       rank,
			Symbol:     r.Symbol,
			Name:       r.Name,
			Price:      toFloat(r.Price),
			Sign:       toSign(r.Sign),
			Change:     toFloat(r.Change),
			ChangeRate: toFloat(r.ChangeRate),
			Volume:     toInt(r.Volume),
		})
	}
	return out, nil
}

// DailyChart returns daily bars between from and to (YYYYMMDD, inclusive),
// oldest first.
func (c *Client) DailyChart(ctx context.Context, symbol, from, to string) ([]types.Candle, error) {
	var body struct {
		Output2 []struct {
			Date  string `json:"stck_bsop_date"`
			Open  string `json:"stck_oprc"`
			High  string `json:"stck_hgpr"`
			Low   string `json:"stck_lwpr"`
			Close string `json:"stck_clpr"`
			Vol   string `json:"acml_vol"`
		} `json:"output2"`
	}
	err := c.get(ctx, quotationsPath+"inquire-daily-itemchartprice", trDailyChart, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "J",
		"FID_INPUT_ISCD":         symbol,
		"FID_INPUT_DATE_1":       from,
		"FID_INPUT_DATE_2":       to,
		"FID_PERIOD_DIV_CODE":    "D",
		"FID_ORG_ADJ_PRC":        "0",
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("daily chart %s: %w", symbol, err)
	}

	// The gateway answers newest first and pads with empty rows.
	out := make([]types.Candle, 0, len(body.Output2))
	for i := len(body.Output2) - 1; i >= 0; i-- {
		r := body.Output2[i]
		if r.Date == "" {
			continue
		}
		out = append(out, types.Candle{
			Date:  r.Date,
			Open:  toFloat(r.Open),
			High:  toFloat(r.High),
			Low:   toFloat(r.Low),
			Close: toFloat(r.Close),
			Vol:   toInt(r.Vol),
		})
	}
	return out, nil
}

func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func toInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func toSign(s string) types.Sign {
	n := toInt(s)
	if n < 1 || n > 5 {
		return types.SignUnknown
	}
	return types.Sign(n)
}
