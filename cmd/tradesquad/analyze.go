package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tradesquad/tradesquad/config"
	"github.com/tradesquad/tradesquad/internal/agent/core"
	"github.com/tradesquad/tradesquad/internal/agent/telemetry"
	"github.com/tradesquad/tradesquad/internal/market"
	"github.com/tradesquad/tradesquad/internal/portfolio"
	"github.com/tradesquad/tradesquad/internal/tools"
)

func analyzeCMD() *cobra.Command {
	var cfgPath string
	var horizon string
	var analyze = &cobra.Command{
		Use:   "analyze TICKER",
		Short: "Run one analysis from the command line and print the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			ctx := context.Background()

			data := market.NewClient(cfg.Tools, log.New(log.Writer(), "[MARKET] ", log.LstdFlags))

			var folio *portfolio.Repository
			if rdb, err := portfolio.Conn(ctx, cfg.Storage.Redis); err == nil {
				folio = portfolio.NewRepository(rdb, log.New(log.Writer(), "[FOLIO] ", log.LstdFlags))
			} else {
				log.Printf("redis unavailable, running without portfolio context: %v", err)
			}

			registry := tools.NewRegistry(log.New(log.Writer(), "[TOOLS] ", log.LstdFlags))
			if err := tools.RegisterBuiltins(registry, data, folio, cfg.Tools.CacheTTL); err != nil {
				return err
			}

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			router, err := core.NewRouter(cfg.LLM)
			if err != nil {
				return err
			}
			orch, err := core.NewOrchestrator(cfg, log.New(log.Writer(), "[ORCH] ", log.LstdFlags), tele, router, registry, data)
			if err != nil {
				return err
			}

			verdict, err := orch.Analyze(ctx, core.AnalysisRequest{
				Ticker:  args[0],
				Horizon: core.Horizon(horizon),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(verdict); err != nil {
				return err
			}
			fmt.Printf("\nConsensus: %s (strength %.2f)  Decision: %s  Approved: %t\n",
				verdict.Consensus.Signal, verdict.Consensus.Strength,
				verdict.Decision.Signal, verdict.Validation.Signal == core.SignalBullish)
			return nil
		},
	}
	analyze.Flags().StringVar(&horizon, "horizon", "", "trade horizon: Scalp, Swing, or Invest")
	analyze.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return analyze
}
