package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	appconfig "github.com/tradesquad/tradesquad/config"
	"github.com/tradesquad/tradesquad/internal/agent/core"
	"github.com/tradesquad/tradesquad/internal/agent/telemetry"
	"github.com/tradesquad/tradesquad/internal/market"
	"github.com/tradesquad/tradesquad/internal/portfolio"
	"github.com/tradesquad/tradesquad/internal/store"
	"github.com/tradesquad/tradesquad/internal/tools"
)

// Run wires the full service and serves HTTP until the process exits.
func Run(cfg *appconfig.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrations: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb, err := portfolio.Conn(ctx, cfg.Storage.Redis)
	if err != nil {
		return err
	}
	folio := portfolio.NewRepository(rdb, log.New(log.Writer(), "[FOLIO] ", log.LstdFlags))

	data := market.NewClient(cfg.Tools, log.New(log.Writer(), "[MARKET] ", log.LstdFlags))

	registry := tools.NewRegistry(log.New(log.Writer(), "[TOOLS] ", log.LstdFlags))
	if err := tools.RegisterBuiltins(registry, data, folio, cfg.Tools.CacheTTL); err != nil {
		return err
	}

	tele := telemetry.NewTelemetry(cfg.Telemetry)
	router, err := core.NewRouter(cfg.LLM)
	if err != nil {
		return err
	}
	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(cfg, orchLogger, tele, router, registry, data)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	ah := &AnalysisHandler{Orch: orch, Store: st}
	ah.Register(api)
	ph := &PortfolioHandler{Folio: folio}
	ph.Register(api)
	th := &TelemetryHandler{Telemetry: tele}
	th.Register(api)

	if cfg.Scheduler.Enabled {
		sched := &Scheduler{
			Config: cfg.Scheduler,
			Folio:  folio,
			Store:  st,
			Rdb:    rdb,
			Orch:   orch,
			Stop:   make(chan struct{}),
			Logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		}
		sched.Start()
	}

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":10010"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
