package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tradesquad/tradesquad/internal/agent/core"
	"github.com/tradesquad/tradesquad/internal/agent/telemetry"
	"github.com/tradesquad/tradesquad/internal/portfolio"
	"github.com/tradesquad/tradesquad/internal/store"
)

// AnalysisHandler serves analysis runs, history, and squad chat.
type AnalysisHandler struct {
	Orch  *core.Orchestrator
	Store *store.Store
}

func (h *AnalysisHandler) Register(g *echo.Group) {
	g.POST("/analyze", h.analyze)
	g.GET("/analyses", h.list)
	g.GET("/analyses/:id", h.get)
	g.GET("/analyses/ticker/:ticker", h.latest)
	g.POST("/chat", h.chat)
	g.POST("/workers/:name/ask", h.ask)
}

type analyzeRequest struct {
	Ticker  string `json:"ticker"`
	Horizon string `json:"horizon"`
	Context string `json:"context"`
}

func (h *AnalysisHandler) analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticker is required")
	}

	verdict, err := h.Orch.Analyze(c.Request().Context(), core.AnalysisRequest{
		Ticker:  ticker,
		Horizon: core.Horizon(req.Horizon),
		Context: req.Context,
	})
	if err != nil {
		return err
	}
	if h.Store != nil {
		if err := h.Store.SaveVerdict(c.Request().Context(), verdict); err != nil {
			c.Logger().Errorf("save verdict: %v", err)
		}
	}
	return c.JSON(http.StatusOK, verdict)
}

func (h *AnalysisHandler) list(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ticker := strings.ToUpper(strings.TrimSpace(c.QueryParam("ticker")))
	rows, err := h.Store.ListVerdicts(c.Request().Context(), ticker, limit)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []store.VerdictRow{}
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *AnalysisHandler) get(c echo.Context) error {
	verdict, err := h.Store.GetVerdict(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "analysis not found")
	}
	return c.JSON(http.StatusOK, verdict)
}

func (h *AnalysisHandler) latest(c echo.Context) error {
	ticker := strings.ToUpper(c.Param("ticker"))
	verdict, err := h.Store.LatestVerdict(c.Request().Context(), ticker)
	if err != nil {
		return err
	}
	if verdict == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no analysis for "+ticker)
	}
	return c.JSON(http.StatusOK, verdict)
}

type chatRequest struct {
	Message string `json:"message"`
}

func (h *AnalysisHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	answer, err := h.Orch.Chat(c.Request().Context(), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"answer": answer})
}

func (h *AnalysisHandler) ask(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	answer, err := h.Orch.Directory().Ask(c.Request().Context(), c.Param("name"), req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"worker": c.Param("name"), "answer": answer})
}

// PortfolioHandler exposes the read-only portfolio surface.
type PortfolioHandler struct {
	Folio *portfolio.Repository
}

func (h *PortfolioHandler) Register(g *echo.Group) {
	g.GET("/portfolio", h.snapshot)
	g.GET("/watchlist", h.watchlist)
	g.POST("/watchlist", h.addToWatchlist)
}

func (h *PortfolioHandler) snapshot(c echo.Context) error {
	snap, err := h.Folio.Snapshot(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *PortfolioHandler) watchlist(c echo.Context) error {
	tickers, err := h.Folio.Watchlist(c.Request().Context())
	if err != nil {
		return err
	}
	if tickers == nil {
		tickers = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"tickers": tickers})
}

type watchlistRequest struct {
	Ticker string `json:"ticker"`
}

func (h *PortfolioHandler) addToWatchlist(c echo.Context) error {
	var req watchlistRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticker is required")
	}
	if err := h.Folio.AddToWatchlist(c.Request().Context(), ticker); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"ticker": ticker})
}

// TelemetryHandler exposes run metrics and cost summaries.
type TelemetryHandler struct {
	Telemetry *telemetry.Telemetry
}

func (h *TelemetryHandler) Register(g *echo.Group) {
	g.GET("/telemetry/metrics", h.metrics)
	g.GET("/telemetry/costs", h.costs)
}

func (h *TelemetryHandler) metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Telemetry.GetMetrics())
}

func (h *TelemetryHandler) costs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Telemetry.GetCostSummary())
}
