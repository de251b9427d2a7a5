package candles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PriceWorm/internal/domain/models"
	"PriceWorm/internal/domain/repository"
	"PriceWorm/internal/service/ratelimit"
	"PriceWorm/pkg/cache"
	pkghttp "PriceWorm/pkg/http"
	"PriceWorm/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func klineRow(openTime time.Time, o, h, l, c, v float64) []interface{} {
	return []interface{}{
		openTime.UnixMilli(),
		fmt.Sprintf("%g", o), fmt.Sprintf("%g", h), fmt.Sprintf("%g", l),
		fmt.Sprintf("%g", c), fmt.Sprintf("%g", v),
		openTime.Add(time.Minute).UnixMilli() - 1,
	}
}

func TestNormalizeBinance(t *testing.T) {
	cases := map[string]string{
		"btc":     "BTCUSDT",
		"BTCUSDT": "BTCUSDT",
		"ethusdc": "ETHUSDC",
		" sol ":   "SOLUSDT",
	}
	for in, want := range cases {
		if got := NormalizeBinance(in); got != want {
			t.Errorf("NormalizeBinance(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeKraken(t *testing.T) {
	cases := map[string]string{
		"btc":     "XBTUSD",
		"XBT":     "XBTUSD",
		"BTCUSDT": "XBTUSD",
		"ethusdt": "ETHUSD",
		"SOLUSD":  "SOLUSD",
		"ada":     "ADAUSD",
		"ADAUSDT": "ADAUSD",
	}
	for in, want := range cases {
		if got := NormalizeKraken(in); got != want {
			t.Errorf("NormalizeKraken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBinanceFetchPaginatesAndDeduplicates(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected symbol %q", r.URL.Query().Get("symbol"))
		}
		calls++
		var rows [][]interface{}
		switch calls {
		case 1:
			// page one: minutes 0 and 1 (page limit 2)
			rows = [][]interface{}{
				klineRow(base, 100, 101, 99, 100.5, 5),
				klineRow(base.Add(time.Minute), 100.5, 102, 100, 101, 6),
			}
		case 2:
			// page two repeats minute 1, then adds minute 2
			rows = [][]interface{}{
				klineRow(base.Add(time.Minute), 100.5, 102, 100, 101, 6),
				klineRow(base.Add(2*time.Minute), 101, 101.5, 100.5, 101.2, 7),
			}
		default:
			rows = nil
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	src := NewBinanceSource(pkghttp.NewClient(), testLogger(t),
		WithBinanceBaseURL(srv.URL), WithBinancePageLimit(2))

	got, err := src.Fetch(context.Background(), "BTC", base, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 deduplicated candles, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].OpenTime.After(got[i-1].OpenTime) {
			t.Errorf("open times not strictly increasing at %d", i)
		}
	}
	if got[0].Open != 100 || got[2].Close != 101.2 {
		t.Errorf("unexpected candle values: first open %v, last close %v", got[0].Open, got[2].Close)
	}
}

func TestBinanceFetchConfinesToRange(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// server returns rows outside the requested span too
		rows := [][]interface{}{
			klineRow(base.Add(-time.Minute), 99, 100, 98, 99.5, 1),
			klineRow(base, 100, 101, 99, 100.5, 5),
			klineRow(base.Add(time.Minute), 100.5, 102, 100, 101, 6),
			klineRow(base.Add(2*time.Minute), 101, 102, 100, 101.5, 2),
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	src := NewBinanceSource(pkghttp.NewClient(), testLogger(t), WithBinanceBaseURL(srv.URL))

	got, err := src.Fetch(context.Background(), "BTC", base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles inside [start, end), got %d", len(got))
	}
	if !got[0].OpenTime.Equal(base) {
		t.Errorf("first candle outside range: %v", got[0].OpenTime)
	}
}

func TestBinanceFetchEmptyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	src := NewBinanceSource(pkghttp.NewClient(), testLogger(t), WithBinanceBaseURL(srv.URL))

	_, err := src.Fetch(context.Background(), "BTC", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestBinanceQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000.12"}`))
	}))
	defer srv.Close()

	src := NewBinanceSource(pkghttp.NewClient(), testLogger(t), WithBinanceBaseURL(srv.URL))

	price, err := src.Quote(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if price != 65000.12 {
		t.Errorf("price: got %v", price)
	}
}

func TestKrakenFetchParsesRows(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/OHLC" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body := fmt.Sprintf(`{"error":[],"result":{"XXBTZUSD":[
			[%d,"100","101","99","100.5","100.1","5",12],
			[%d,"100.5","102","100","101","100.9","6",15]
		],"last":%d}}`, base.Unix(), base.Add(time.Minute).Unix(), base.Add(time.Minute).Unix())
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	src := NewKrakenSource(pkghttp.NewClient(), testLogger(t), WithKrakenBaseURL(srv.URL))

	got, err := src.Fetch(context.Background(), "BTC", base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(got))
	}
	if got[0].Volume != 5 || got[1].Close != 101 {
		t.Errorf("unexpected values: vol %v close %v", got[0].Volume, got[1].Close)
	}
}

func TestKrakenFetchExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`))
	}))
	defer srv.Close()

	src := NewKrakenSource(pkghttp.NewClient(), testLogger(t), WithKrakenBaseURL(srv.URL))

	_, err := src.Fetch(context.Background(), "NOPE", time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected an error for an exchange-level failure")
	}
}

type stubSource struct {
	candles []models.Candle
	err     error
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	s.calls++
	return s.candles, s.err
}

func TestFallbackSourceUsesSecondaryOnFailure(t *testing.T) {
	want := []models.Candle{{Open: 1, Close: 2}}
	primary := &stubSource{err: repository.ErrUnavailable}
	secondary := &stubSource{candles: want}

	src := NewFallbackSource(primary, secondary, testLogger(t))
	got, err := src.Fetch(context.Background(), "BTC", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].Close != 2 {
		t.Errorf("expected secondary's candles, got %+v", got)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("call counts: primary %d secondary %d", primary.calls, secondary.calls)
	}
}

func TestFallbackSourceSkipsSecondaryOnSuccess(t *testing.T) {
	primary := &stubSource{candles: []models.Candle{{Close: 5}}}
	secondary := &stubSource{}

	src := NewFallbackSource(primary, secondary, testLogger(t))
	if _, err := src.Fetch(context.Background(), "BTC", time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary should not be called on primary success")
	}
}

func TestCachedSourceServesClosedRangesFromCache(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	inner := &stubSource{candles: []models.Candle{
		{OpenTime: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 5},
	}}
	src := NewCachedSource(inner, cache.NewMemoryCache(), time.Hour, testLogger(t))

	start, end := base, base.Add(time.Minute)
	first, err := src.Fetch(context.Background(), "BTCUSDT", start, end)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := src.Fetch(context.Background(), "BTCUSDT", start, end)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if inner.calls != 1 {
		t.Fatalf("inner calls = %d, want 1 (second fetch should hit the cache)", inner.calls)
	}
	if len(second) != len(first) || !second[0].OpenTime.Equal(first[0].OpenTime) || second[0].Close != first[0].Close {
		t.Fatalf("cached candles differ: %+v vs %+v", second, first)
	}
}

func TestCachedSourceBypassesCacheForOpenRanges(t *testing.T) {
	inner := &stubSource{candles: []models.Candle{{Close: 1}}}
	src := NewCachedSource(inner, cache.NewMemoryCache(), time.Hour, testLogger(t))

	now := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := src.Fetch(context.Background(), "BTCUSDT", now.Add(-time.Hour), now); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("inner calls = %d, want 2 (a running window must not be cached)", inner.calls)
	}
}

type stubExchange struct {
	stubSource
	price float64
}

func (s *stubExchange) Quote(_ context.Context, _ string) (float64, error) {
	return s.price, nil
}

func TestThrottledSourceReportsUnavailableWhenExhausted(t *testing.T) {
	inner := &stubExchange{stubSource: stubSource{candles: []models.Candle{{Close: 1}}}, price: 100}
	src := NewThrottledSource(inner, ratelimit.New(), "test", 1, 0)

	start, end := time.Now().Add(-time.Hour), time.Now()
	if _, err := src.Fetch(context.Background(), "BTCUSDT", start, end); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	_, err := src.Fetch(context.Background(), "BTCUSDT", start, end)
	if !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable when throttled, got %v", err)
	}

	// quote budget is tracked separately
	if _, err := src.Quote(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if _, err := src.Quote(context.Background(), "BTCUSDT"); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for second quote, got %v", err)
	}
}
