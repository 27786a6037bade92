package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-dashboard/internal/broker/kis"
	"stock-dashboard/internal/logger"
	"stock-dashboard/internal/store"
	"stock-dashboard/internal/ta"

	"github.com/joho/godotenv"
)

const usage = `usage: quote [-config path] <command> [args]

commands:
  price <symbol>                current price of a stock
  index <kospi|kosdaq|code>     current level of a market index
  rank [limit]                  top stocks by volume
  chart <symbol> [from] [to]    daily candles, dates as YYYYMMDD
  summary <symbol> [from] [to]  SMA, RSI, Bollinger and ATR over daily candles
`

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	// stdout carries the JSON result
	logCfg := logger.LoadConfigFromEnv()
	logCfg.Output = os.Stderr
	must(logger.InitWithConfig(logCfg))

	cfg, err := store.LoadConfig(*configPath)
	must(err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	kv, err := store.NewTokenStore(ctx, cfg)
	if err != nil {
		logger.Warn(ctx, "Token store unavailable - issuing a fresh token", "error", err)
		kv = nil
	}
	if kv != nil {
		defer kv.Close()
	}
	brk := kis.New(cfg, kv)

	out, err := run(ctx, brk.Client, args)
	must(err)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(out))
}

func run(ctx context.Context, c *kis.Client, args []string) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "price":
		if len(rest) != 1 {
			return nil, fmt.Errorf("price: expected <symbol>")
		}
		return c.InquirePrice(ctx, rest[0])

	case "index":
		if len(rest) != 1 {
			return nil, fmt.Errorf("index: expected <kospi|kosdaq|code>")
		}
		code := rest[0]
		switch strings.ToLower(code) {
		case "kospi":
			code = kis.IndexKOSPI
		case "kosdaq":
			code = kis.IndexKOSDAQ
		}
		return c.IndexPrice(ctx, code)

	case "rank":
		limit := 10
		if len(rest) > 0 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 1 {
				return nil, fmt.Errorf("rank: invalid limit %q", rest[0])
			}
			limit = n
		}
		return c.VolumeRank(ctx, limit)

	case "chart", "summary":
		if len(rest) < 1 || len(rest) > 3 {
			return nil, fmt.Errorf("%s: expected <symbol> [from] [to]", cmd)
		}
		to := time.Now().Format("20060102")
		from := time.Now().AddDate(0, -3, 0).Format("20060102")
		if len(rest) > 1 {
			from = rest[1]
		}
		if len(rest) > 2 {
			to = rest[2]
		}
		candles, err := c.DailyChart(ctx, rest[0], from, to)
		if err != nil {
			return nil, err
		}
		if cmd == "summary" {
			return ta.Summarize(rest[0], candles), nil
		}
		return candles, nil

	default:
		return nil, fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}
