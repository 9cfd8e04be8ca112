package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sdlab1/n-ohlcv/internal/logger"
	"github.com/sdlab1/n-ohlcv/internal/marketdata/syncer"
	"github.com/sdlab1/n-ohlcv/internal/metrics"
	"github.com/sdlab1/n-ohlcv/internal/model"
	"github.com/sdlab1/n-ohlcv/internal/viewport"
)

// Chart is the session the API drives. A rebuild is split in two: Sync may
// run concurrently with the other methods, the Load phase may not.
type Chart interface {
	Symbol() string
	Timeframe() int
	Window() *viewport.Window
	RebuiltAt() time.Time
	Sync(ctx context.Context, start, end int64) (syncer.Result, error)
	Load(ctx context.Context, res syncer.Result, start, end int64) error
	LoadTimeframe(ctx context.Context, timeframe int, res syncer.Result, start, end int64) error
}

// Handler serves one chart. mu stands in for the single loop that owns
// the session: every read of the window and every Load phase holds it.
// rebuildMu orders whole rebuilds so the network phase of one never
// overlaps another, without holding mu while it fetches.
type Handler struct {
	mu        sync.Mutex
	rebuildMu sync.Mutex
	chart     Chart
	lookback  time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics // optional
	log       zerolog.Logger
}

// NewHandler creates a handler that rebuilds over the last lookback.
// m may be nil.
func NewHandler(chart Chart, lookback time.Duration, m *metrics.Metrics, log zerolog.Logger) *Handler {
	return &Handler{
		chart:    chart,
		lookback: lookback,
		now:      time.Now,
		metrics:  m,
		log:      log.With().Str("component", "chart-api").Logger(),
	}
}

// RegisterRoutes mounts the API on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/health", h.health)
	g.GET("/window", h.window)
	g.POST("/window/pan", h.pan)
	g.POST("/window/zoom", h.zoom)
	g.POST("/window/range", h.setRange)
	g.POST("/window/timeframe", h.timeframe)
	g.POST("/window/refresh", h.refresh)
}

// Refresh rebuilds the chart over the configured lookback. It is the
// entry point for callers outside HTTP (startup, block events).
func (h *Handler) Refresh(ctx context.Context) error {
	return h.rebuild(ctx, func(res syncer.Result, start, end int64) error {
		return h.chart.Load(ctx, res, start, end)
	})
}

// rebuild runs the Sync phase without mu, then load with mu held.
func (h *Handler) rebuild(ctx context.Context, load func(res syncer.Result, start, end int64) error) error {
	h.rebuildMu.Lock()
	defer h.rebuildMu.Unlock()

	start, end := h.rangeMs()
	res, err := h.chart.Sync(ctx, start, end)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return load(res, start, end)
}

// rangeMs is [now-lookback, now) in ms; the forming minute is excluded by
// the sync engine.
func (h *Handler) rangeMs() (int64, int64) {
	now := h.now()
	return now.Add(-h.lookback).UnixMilli(), now.UnixMilli()
}

// WindowQuery selects the axis resolution. With Width and Height set the
// view also carries pixel geometry for a plot of that size.
type WindowQuery struct {
	Ticks  int     `query:"ticks" default:"8" validate:"min=2,max=50"`
	Width  float64 `query:"width" validate:"gte=0"`
	Height float64 `query:"height" validate:"gte=0"`
}

// PanRequest drags the chart by DX pixels on a plot Width pixels wide.
type PanRequest struct {
	DX    float64 `json:"dx"`
	Width float64 `json:"width" validate:"gt=0"`
	Ticks int     `json:"ticks" default:"8" validate:"min=2,max=50"`
}

// ZoomRequest zooms in (Amount > 0) or out (Amount < 0).
type ZoomRequest struct {
	Amount float64 `json:"amount" validate:"required"`
	Ticks  int     `json:"ticks" default:"8" validate:"min=2,max=50"`
}

// RangeRequest shows bars [Start, End) directly.
type RangeRequest struct {
	Start int `json:"start" validate:"gte=0"`
	End   int `json:"end" validate:"gtefield=Start"`
	Ticks int `json:"ticks" default:"8" validate:"min=2,max=50"`
}

// TimeframeRequest switches the bar size (minutes).
type TimeframeRequest struct {
	Timeframe int `json:"timeframe" validate:"required,min=1,max=1440"`
	Ticks     int `json:"ticks" default:"8" validate:"min=2,max=50"`
}

// Tick is one price axis label.
type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// WindowView is the renderable state of the window.
type WindowView struct {
	Symbol      string      `json:"symbol"`
	Timeframe   int         `json:"timeframe"`
	Total       int         `json:"total"`
	Start       int         `json:"start"`
	End         int         `json:"end"`
	PixelOffset float64     `json:"pixel_offset"`
	PriceMin    float64     `json:"price_min"`
	PriceMax    float64     `json:"price_max"`
	MaxVolume   float64     `json:"max_volume"`
	Ticks       []Tick      `json:"ticks"`
	Bars        []model.Bar `json:"bars"`
	Layout      *Layout     `json:"layout,omitempty"`
}

// Layout places the visible bars and ticks on a Width x Height plot.
type Layout struct {
	Width    float64       `json:"width"`
	Height   float64       `json:"height"`
	TickRows []float64     `json:"tick_rows"`
	Bars     []BarGeometry `json:"bars"`
}

// BarGeometry is one bar in pixels: horizontal edges and the rows of its
// four prices.
type BarGeometry struct {
	X0    float64 `json:"x0"`
	X1    float64 `json:"x1"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

func (h *Handler) layout(width, height float64, ticks []Tick) *Layout {
	w := h.chart.Window()
	ps := w.PriceScale(0, height)
	bars := w.VisibleBars()
	l := &Layout{
		Width:    width,
		Height:   height,
		TickRows: make([]float64, len(ticks)),
		Bars:     make([]BarGeometry, len(bars)),
	}
	for i, t := range ticks {
		l.TickRows[i] = ps.Y(t.Value)
	}
	for i, b := range bars {
		x0, x1 := viewport.BarX(i, len(bars), 0, width, w.PixelOffset())
		l.Bars[i] = BarGeometry{
			X0:    x0,
			X1:    x1,
			Open:  ps.Y(b.Open),
			High:  ps.Y(b.High),
			Low:   ps.Y(b.Low),
			Close: ps.Y(b.Close),
		}
	}
	return l
}

func (h *Handler) view(ticks int) WindowView {
	w := h.chart.Window()
	start, end := w.VisibleRange()
	lo, hi := w.PriceExtrema()
	niceMin, niceMax, step := viewport.NiceRange(lo, hi, ticks)

	var labels []Tick
	for _, v := range viewport.Ticks(niceMin, niceMax, step) {
		labels = append(labels, Tick{Value: v, Label: viewport.FormatPrice(v)})
	}
	bars := w.VisibleBars()
	if h.metrics != nil {
		h.metrics.BarsServed.Add(float64(len(bars)))
	}
	return WindowView{
		Symbol:      h.chart.Symbol(),
		Timeframe:   h.chart.Timeframe(),
		Total:       w.Len(),
		Start:       start,
		End:         end,
		PixelOffset: w.PixelOffset(),
		PriceMin:    lo,
		PriceMax:    hi,
		MaxVolume:   w.MaxVolume(),
		Ticks:       labels,
		Bars:        bars,
	}
}

func (h *Handler) health(c echo.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := "ok"
	rebuilt := ""
	if at := h.chart.RebuiltAt(); at.IsZero() {
		status = "loading"
	} else {
		rebuilt = at.UTC().Format(time.RFC3339)
	}
	return successResponse(c, map[string]interface{}{
		"status":     status,
		"symbol":     h.chart.Symbol(),
		"timeframe":  h.chart.Timeframe(),
		"bars":       h.chart.Window().Len(),
		"window":     h.chart.Window().Size(),
		"rebuilt_at": rebuilt,
	})
}

func (h *Handler) window(c echo.Context) error {
	var q WindowQuery
	if errs := readAndValidateRequest(c, &q); errs != nil {
		return badRequestResponse(c, errs)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.view(q.Ticks)
	if q.Width > 0 && q.Height > 0 {
		v.Layout = h.layout(q.Width, q.Height, v.Ticks)
	}
	return successResponse(c, v)
}

func (h *Handler) pan(c echo.Context) error {
	var req PanRequest
	if errs := readAndValidateRequest(c, &req); errs != nil {
		return badRequestResponse(c, errs)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chart.Window().Pan(req.DX, req.Width)
	return successResponse(c, h.view(req.Ticks))
}

func (h *Handler) zoom(c echo.Context) error {
	var req ZoomRequest
	if errs := readAndValidateRequest(c, &req); errs != nil {
		return badRequestResponse(c, errs)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chart.Window().Zoom(req.Amount)
	return successResponse(c, h.view(req.Ticks))
}

func (h *Handler) setRange(c echo.Context) error {
	var req RangeRequest
	if errs := readAndValidateRequest(c, &req); errs != nil {
		return badRequestResponse(c, errs)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chart.Window().SetVisibleRange(req.Start, req.End)
	return successResponse(c, h.view(req.Ticks))
}

func (h *Handler) timeframe(c echo.Context) error {
	var req TimeframeRequest
	if errs := readAndValidateRequest(c, &req); errs != nil {
		return badRequestResponse(c, errs)
	}
	ctx := c.Request().Context()
	err := h.rebuild(ctx, func(res syncer.Result, start, end int64) error {
		return h.chart.LoadTimeframe(ctx, req.Timeframe, res, start, end)
	})
	if err != nil {
		return h.rebuildFailed(c, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return successResponse(c, h.view(req.Ticks))
}

func (h *Handler) refresh(c echo.Context) error {
	var q WindowQuery
	if errs := readAndValidateRequest(c, &q); errs != nil {
		return badRequestResponse(c, errs)
	}
	if err := h.Refresh(c.Request().Context()); err != nil {
		return h.rebuildFailed(c, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return successResponse(c, h.view(q.Ticks))
}

// rebuildFailed reports a failed rebuild; the previous chart stays in place.
// Upstream failures map to 502, everything else to 500.
func (h *Handler) rebuildFailed(c echo.Context, err error) error {
	log := logger.Ctx(c.Request().Context(), h.log)
	log.Error().Err(err).Msg("rebuild failed")

	status := http.StatusInternalServerError
	var fe *syncer.FetchError
	if errors.As(err, &fe) {
		status = http.StatusBadGateway
	}
	return dataResponse(c, status, []ValidationError{{Code: "ERR_REBUILD", Message: err.Error()}})
}
