package candles

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	pkghttp "PriceWorm/pkg/http"
	"PriceWorm/pkg/logger"
)

const (
	defaultBinanceBaseURL = "https://api.binance.com"
	defaultPageLimit      = 1000
	maxFetchPages         = 20
)

// BinanceSource fetches 1-minute klines and spot quotes from the Binance
// public REST API. Implements repository.CandleSource and repository.Quoter.
type BinanceSource struct {
	client    *pkghttp.Client
	baseURL   string
	pageLimit int
	logger    *logger.Logger
}

// BinanceOption configures BinanceSource.
type BinanceOption func(*BinanceSource)

// WithBinanceBaseURL overrides the API base URL (used in tests).
func WithBinanceBaseURL(url string) BinanceOption {
	return func(s *BinanceSource) { s.baseURL = url }
}

// WithBinancePageLimit overrides the klines page size.
func WithBinancePageLimit(limit int) BinanceOption {
	return func(s *BinanceSource) { s.pageLimit = limit }
}

// NewBinanceSource creates a Binance-backed candle source.
func NewBinanceSource(client *pkghttp.Client, log *logger.Logger, opts ...BinanceOption) *BinanceSource {
	s := &BinanceSource{
		client:    client,
		baseURL:   defaultBinanceBaseURL,
		pageLimit: defaultPageLimit,
		logger:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns 1-minute candles confined to [start, end), ascending by
// open time, de-duplicated across pages. Spans wider than one page are
// backfilled by advancing the start cursor past the last received candle.
func (s *BinanceSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	pair := NormalizeBinance(symbol)
	seen := make(map[int64]struct{})
	var out []models.Candle

	cursor := start
	for page := 0; page < maxFetchPages && cursor.Before(end); page++ {
		batch, err := s.fetchPage(ctx, pair, cursor, end)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s: %w", pair, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, c := range batch {
			if c.OpenTime.Before(start) || !c.OpenTime.Before(end) {
				continue
			}
			key := c.OpenTime.UnixMilli()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}

		last := batch[len(batch)-1].OpenTime
		if !last.After(cursor) {
			break
		}
		cursor = last.Add(time.Minute)
		if len(batch) < s.pageLimit {
			break
		}
	}

	if len(out) == 0 {
		return nil, repository.ErrUnavailable
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })

	s.logger.Debug("fetched candles",
		logger.String("symbol", pair),
		logger.Int("count", len(out)))
	return out, nil
}

func (s *BinanceSource) fetchPage(ctx context.Context, pair string, start, end time.Time) ([]models.Candle, error) {
	var raw [][]interface{}
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    s.baseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":    {pair},
			"interval":  {"1m"},
			"startTime": {strconv.FormatInt(start.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(end.UnixMilli()-1, 10)},
			"limit":     {strconv.Itoa(s.pageLimit)},
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		c, err := parseKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline decodes one kline row. Binance mixes numeric open times with
// string-encoded prices in the same array.
func parseKline(k []interface{}) (models.Candle, error) {
	if len(k) < 6 {
		return models.Candle{}, fmt.Errorf("kline row too short: %d fields", len(k))
	}

	openMs, ok := k[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("kline open time has type %T", k[0])
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		str, ok := k[i].(string)
		if !ok {
			return models.Candle{}, fmt.Errorf("kline field %d has type %T", i, k[i])
		}
		v, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("kline field %d: %w", i, err)
		}
		vals[i-1] = v
	}

	return models.Candle{
		OpenTime: time.UnixMilli(int64(openMs)).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Quote returns the current spot price for a symbol.
func (s *BinanceSource) Quote(ctx context.Context, symbol string) (float64, error) {
	pair := NormalizeBinance(symbol)

	var resp tickerPriceResponse
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         s.baseURL + "/api/v3/ticker/price",
		QueryParams: map[string][]string{"symbol": {pair}},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("binance ticker %s: %w", pair, err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance ticker %s: parse price: %w", pair, err)
	}
	if price <= 0 {
		return 0, repository.ErrUnavailable
	}
	return price, nil
}
