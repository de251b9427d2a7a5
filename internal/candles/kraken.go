package candles

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	pkghttp "PriceWorm/pkg/http"
	"PriceWorm/pkg/logger"
)

const defaultKrakenBaseURL = "https://api.kraken.com"

// KrakenSource fetches 1-minute OHLC data from the Kraken public API.
// Used as the secondary candle source when Binance is unavailable.
type KrakenSource struct {
	client  *pkghttp.Client
	baseURL string
	logger  *logger.Logger
}

// KrakenOption configures KrakenSource.
type KrakenOption func(*KrakenSource)

// WithKrakenBaseURL overrides the API base URL (used in tests).
func WithKrakenBaseURL(url string) KrakenOption {
	return func(s *KrakenSource) { s.baseURL = url }
}

// NewKrakenSource creates a Kraken-backed candle source.
func NewKrakenSource(client *pkghttp.Client, log *logger.Logger, opts ...KrakenOption) *KrakenSource {
	s := &KrakenSource{
		client:  client,
		baseURL: defaultKrakenBaseURL,
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type krakenOHLCResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}

// Fetch returns 1-minute candles confined to [start, end). Kraken serves
// up to 720 rows per call starting at the "since" cursor; wider spans
// advance the cursor until end is covered.
func (s *KrakenSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	pair := NormalizeKraken(symbol)
	seen := make(map[int64]struct{})
	var out []models.Candle

	cursor := start
	for page := 0; page < maxFetchPages && cursor.Before(end); page++ {
		batch, err := s.fetchPage(ctx, pair, cursor)
		if err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: %w", pair, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, c := range batch {
			if c.OpenTime.Before(start) || !c.OpenTime.Before(end) {
				continue
			}
			key := c.OpenTime.Unix()
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

func (s *KrakenSource) fetchPage(ctx context.Context, pair string, since time.Time) ([]models.Candle, error) {
	var resp krakenOHLCResponse
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    s.baseURL + "/0/public/OHLC",
		QueryParams: map[string][]string{
			"pair":     {pair},
			"interval": {"1"},
			"since":    {strconv.FormatInt(since.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("exchange error: %v", resp.Error)
	}

	// result holds the rows under the (server-normalized) pair name plus
	// a "last" cursor; pick the one array value
	var rows [][]interface{}
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode rows for %s: %w", key, err)
		}
		break
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseOHLCRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseOHLCRow decodes one Kraken row:
// [time, open, high, low, close, vwap, volume, count].
func parseOHLCRow(row []interface{}) (models.Candle, error) {
	if len(row) < 7 {
		return models.Candle{}, fmt.Errorf("ohlc row too short: %d fields", len(row))
	}

	sec, ok := row[0].(float64)
	if !ok {
		return models.Candle{}, fmt.Errorf("ohlc time has type %T", row[0])
	}

	parse := func(i int) (float64, error) {
		str, ok := row[i].(string)
		if !ok {
			return 0, fmt.Errorf("ohlc field %d has type %T", i, row[i])
		}
		return strconv.ParseFloat(str, 64)
	}

	var vals [4]float64
	for i := 1; i <= 4; i++ {
		v, err := parse(i)
		if err != nil {
			return models.Candle{}, err
		}
		vals[i-1] = v
	}
	vol, err := parse(6)
	if err != nil {
		return models.Candle{}, err
	}

	return models.Candle{
		OpenTime: time.Unix(int64(sec), 0).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vol,
	}, nil
}
