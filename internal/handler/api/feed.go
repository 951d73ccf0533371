package api

import (
	"time"

	models "StockPulse/internal/domain/models"
	domrepo "StockPulse/internal/domain/repository"
	"StockPulse/internal/hub"
	"StockPulse/internal/registry"
	"StockPulse/internal/usecase"
	xhttp "StockPulse/pkg/http"
	xlogger "StockPulse/pkg/logger"
	"StockPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// FeedHandler exposes the HTTP surface of the feed: historical series,
// symbol search, stored updates, live quotes, watch management, feed
// status and the websocket endpoint.
type FeedHandler struct {
	logger    *xlogger.Logger
	history   domrepo.HistoryProvider
	collector *usecase.UpdateCollector
	storage   domrepo.Storage
	registry  *registry.Registry
	hub       *hub.Hub
	gateway   *hub.Gateway
}

// NewFeedHandler creates the handler. storage may be nil when the
// durable backend is off.
func NewFeedHandler(
	logger *xlogger.Logger,
	history domrepo.HistoryProvider,
	collector *usecase.UpdateCollector,
	storage domrepo.Storage,
	reg *registry.Registry,
	h *hub.Hub,
	gateway *hub.Gateway,
) *FeedHandler {
	return &FeedHandler{
		logger:    logger,
		history:   history,
		collector: collector,
		storage:   storage,
		registry:  reg,
		hub:       h,
		gateway:   gateway,
	}
}

func (h *FeedHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/stocks/search", h.Search)
	g.GET("/stocks/:symbol/historical", h.Historical)
	g.GET("/stocks/:symbol/updates", h.Updates)
	g.GET("/feed/status", h.Status)
	g.GET("/feed/quotes", h.Quotes)
	g.POST("/feed/watch", h.Watch)
	g.DELETE("/feed/watch/:symbol", h.Unwatch)

	e.GET("/ws", h.gateway.Handle)
}

// Historical serves a candle series. The response carries the origin
// tag, so a fallback series is distinguishable from real data.
func (h *FeedHandler) Historical(c echo.Context) error {
	req := &models.HistoricalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.history.Fetch(c.Request().Context(), req.Symbol, req.Period, req.Interval)
	if err != nil {
		h.logger.Error("historical usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, res)
}

// Search proxies symbol search.
func (h *FeedHandler) Search(c echo.Context) error {
	req := &models.SearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	matches, err := h.history.Search(c.Request().Context(), req.Query, req.Limit)
	if err != nil {
		h.logger.Error("search usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, matches)
}

// Updates returns stored price updates from the durable backend.
func (h *FeedHandler) Updates(c echo.Context) error {
	if h.storage == nil {
		return xhttp.ServiceUnavailableResponse(c, "updates storage is not configured")
	}

	req := &models.UpdatesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now()
	from := util.ParseTimeDefault(req.From, now.Add(-time.Hour))
	to := util.ParseTimeDefault(req.To, now)

	updates, err := h.storage.Query(c.Request().Context(), registry.Normalize(req.Symbol), from, to, req.Limit)
	if err != nil {
		h.logger.Error("updates query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, updates)
}

// statusResponse is the feed health document.
type statusResponse struct {
	Connection  models.ConnectionState `json:"connection"`
	Registry    registry.Stats         `json:"registry"`
	Subscribers int                    `json:"subscribers"`
}

// Status reports the connection state, including degraded mode, plus
// registry and fan-out counters.
func (h *FeedHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, statusResponse{
		Connection:  h.collector.State(),
		Registry:    h.registry.Stats(),
		Subscribers: h.hub.Subscribers(),
	})
}

// Quotes returns the latest update per watched symbol.
func (h *FeedHandler) Quotes(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.hub.Snapshot())
}

// Watch pins a symbol into the watched set.
func (h *FeedHandler) Watch(c echo.Context) error {
	req := &models.WatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	symbol := registry.Normalize(req.Symbol)
	h.registry.Pin(symbol)
	h.logger.Info("symbol pinned", xlogger.String("symbol", symbol))
	return xhttp.SuccessResponse(c, map[string]string{"symbol": symbol, "status": "watching"})
}

// Unwatch unpins a symbol. Client subscriptions keep it watched.
func (h *FeedHandler) Unwatch(c echo.Context) error {
	symbol := registry.Normalize(c.Param("symbol"))
	if symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}

	h.registry.Unpin(symbol)
	h.logger.Info("symbol unpinned", xlogger.String("symbol", symbol))
	return xhttp.SuccessResponse(c, map[string]string{"symbol": symbol, "status": "unwatched"})
}
