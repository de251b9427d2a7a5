package api

import (
	"time"

	models "PriceWorm/internal/domain/models"
	domrepo "PriceWorm/internal/domain/repository"
	"PriceWorm/internal/engine"
	svcmetrics "PriceWorm/internal/service/metrics"
	"PriceWorm/internal/usecase"
	xhttp "PriceWorm/pkg/http"
	xlogger "PriceWorm/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StrategyEchoHandler implements Echo-based HTTP handlers following Clean Architecture.
type StrategyEchoHandler struct {
	logger    *xlogger.Logger
	monitor   *usecase.Monitor
	engine    *engine.Engine
	collector *usecase.TickCollector
	candles   *usecase.CandlesUseCase
}

func NewStrategyEchoHandler(
	logger *xlogger.Logger,
	monitor *usecase.Monitor,
	eng *engine.Engine,
	collector *usecase.TickCollector,
	candles *usecase.CandlesUseCase,
) *StrategyEchoHandler {
	svcmetrics.Register()
	return &StrategyEchoHandler{
		logger:    logger,
		monitor:   monitor,
		engine:    eng,
		collector: collector,
		candles:   candles,
	}
}

func (h *StrategyEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.timed("status", h.Status))
	g.GET("/schedule", h.timed("schedule", h.Schedule))
	g.GET("/windows", h.timed("windows", h.Windows))
	g.GET("/setups", h.timed("setups", h.Setups))
	g.GET("/trades", h.timed("trades", h.Trades))
	g.GET("/pivots", h.timed("pivots", h.Pivots))
	g.GET("/candles", h.timed("candles", h.Candles))
}

func (h *StrategyEchoHandler) timed(endpoint string, fn echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := fn(c)
		svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

type statusSymbol struct {
	Symbol  string    `json:"symbol"`
	Price   float64   `json:"price,omitempty"`
	PriceAt time.Time `json:"price_at,omitempty"`
	Live    bool      `json:"live"`
}

type statusResponse struct {
	StreamConnected bool           `json:"stream_connected"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CurrentBoundary string         `json:"current_boundary"`
	NextBoundary    string         `json:"next_boundary"`
	UntilNext       string         `json:"until_next"`
	Symbols         []statusSymbol `json:"symbols"`
}

func (h *StrategyEchoHandler) Status(c echo.Context) error {
	now := time.Now()
	analysis := h.monitor.Snapshot()

	symbols := make([]statusSymbol, 0, len(analysis.Windows))
	for symbol := range analysis.Windows {
		ss := statusSymbol{Symbol: symbol}
		if price, at, ok := h.engine.LastPrice(symbol); ok {
			ss.Price = price
			ss.PriceAt = at
			ss.Live = true
		}
		symbols = append(symbols, ss)
	}

	res := statusResponse{
		StreamConnected: h.collector.IsConnected(),
		UpdatedAt:       analysis.UpdatedAt,
		CurrentBoundary: analysis.Wormholes.Current.Name,
		NextBoundary:    analysis.Wormholes.Next.Name,
		UntilNext:       analysis.Wormholes.UntilNext(now).Round(time.Second).String(),
		Symbols:         symbols,
	}
	return xhttp.SuccessResponse(c, res)
}

type scheduleResponse struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Wormholes models.Schedule `json:"wormholes"`
	Quarters  models.Schedule `json:"quarters"`
}

func (h *StrategyEchoHandler) Schedule(c echo.Context) error {
	analysis := h.monitor.Snapshot()
	return xhttp.SuccessResponse(c, scheduleResponse{
		UpdatedAt: analysis.UpdatedAt,
		Wormholes: analysis.Wormholes,
		Quarters:  analysis.Quarters,
	})
}

type windowsResponse struct {
	Symbol    string                 `json:"symbol"`
	UpdatedAt time.Time              `json:"updated_at"`
	Windows   []usecase.WindowReport `json:"windows"`
	Quarters  []usecase.WindowReport `json:"quarters"`
}

func (h *StrategyEchoHandler) Windows(c echo.Context) error {
	req := &models.WindowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	analysis := h.monitor.Snapshot()
	reports, ok := analysis.Windows[req.Symbol]
	if !ok {
		return xhttp.BadRequestResponse(c, "unknown symbol: "+req.Symbol)
	}
	return xhttp.SuccessResponse(c, windowsResponse{
		Symbol:    req.Symbol,
		UpdatedAt: analysis.UpdatedAt,
		Windows:   reports,
		Quarters:  analysis.QuarterWindows[req.Symbol],
	})
}

func (h *StrategyEchoHandler) Setups(c echo.Context) error {
	req := &models.StateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	state := h.engine.State()
	setups := state.Setups
	if req.Symbol != "" {
		setups = filterBySymbol(setups, req.Symbol, func(s models.Setup) string { return s.Symbol })
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"count":  len(setups),
		"setups": setups,
	})
}

func (h *StrategyEchoHandler) Trades(c echo.Context) error {
	req := &models.StateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	state := h.engine.State()
	pending, open := state.Pending, state.Open
	if req.Symbol != "" {
		pending = filterBySymbol(pending, req.Symbol, func(t models.PendingTrade) string { return t.Symbol })
		open = filterBySymbol(open, req.Symbol, func(t models.OpenTrade) string { return t.Symbol })
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"pending": pending,
		"open":    open,
	})
}

func (h *StrategyEchoHandler) Pivots(c echo.Context) error {
	req := &models.StateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	state := h.engine.State()
	pivots := state.Pivots
	if req.Symbol != "" {
		pivots = filterBySymbol(pivots, req.Symbol, func(p models.Pivot) string { return p.Symbol })
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"count":  len(pivots),
		"pivots": pivots,
	})
}

func (h *StrategyEchoHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	from, ok := xhttp.ParseTime(req.From)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid from time")
	}
	to := xhttp.ParseTimeDefault(req.To, time.Now())

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func filterBySymbol[T any](in []T, symbol string, key func(T) string) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if key(v) == symbol {
			out = append(out, v)
		}
	}
	return out
}
