package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sand/nicehash-speculator/config"
	"github.com/sand/nicehash-speculator/internal/domain"
	"github.com/sand/nicehash-speculator/internal/rule"
	"github.com/sand/nicehash-speculator/internal/runner"
	"github.com/sand/nicehash-speculator/internal/simulator"
	"github.com/sand/nicehash-speculator/internal/speculator"
	"github.com/sand/nicehash-speculator/internal/store"
	"github.com/sand/nicehash-speculator/internal/trade"
	"github.com/sand/nicehash-speculator/pkg/database"
)

const (
	migrationsPath    = "./migrations"
	speculateInterval = time.Minute
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Info("starting speculator", "app", cfg.App.Name, "env", cfg.App.Environment)

	pg, err := database.New(cfg.DB.DatabaseURL,
		database.MaxPoolSize(cfg.DB.PoolMax),
		database.ConnTimeout(cfg.DB.ConnectTimeout),
		database.HealthCheckPeriod(cfg.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := database.RunMigrations(logger, cfg.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	simPg, err := database.New(cfg.SimDB.SimDatabaseURL,
		database.MaxPoolSize(cfg.SimDB.PoolMax),
		database.ConnTimeout(cfg.SimDB.ConnectTimeout),
		database.HealthCheckPeriod(cfg.SimDB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		logger.Error("simulation database connection failed", "error", err)
		os.Exit(1)
	}
	defer simPg.Close()

	if err := database.RunMigrations(logger, cfg.SimDB.SimDatabaseURL, migrationsPath); err != nil {
		logger.Error("simulation migrations failed", "error", err)
		os.Exit(1)
	}

	st := store.New(pg)
	simStore := store.New(simPg)

	tradeParameter, err := loadTradeParameter(cfg.Files.TradeJSON)
	if err != nil {
		logger.Error("failed to load trade parameter", "path", cfg.Files.TradeJSON, "error", err)
		os.Exit(1)
	}

	feeRatio := cfg.SimDB.FeeRatio
	if marketParameter, err := loadMarketParameter(cfg.Files.MarketJSON); err == nil {
		feeRatio = marketParameter.FeeRatio
	} else {
		logger.Warn("falling back to config fee ratio", "path", cfg.Files.MarketJSON, "error", err)
	}

	spec := speculator.New(logger, st, simStore, feeRatio)

	fn := func(ctx context.Context) error {
		rulesByMarket, err := loadRulesByMarket(ctx, st, cfg.Files.RuleJSON, logger)
		if err != nil {
			return err
		}
		rulesByMarket = filterTargetMarkets(rulesByMarket, config.MarketList(cfg.Fetch.SpeculatorTargetMarkets), st, ctx)
		return spec.RunOnce(ctx, rulesByMarket, tradeParameter)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down speculator...")
		cancel()
	}()

	runner.Periodic(runCtx, logger, "speculator", speculateInterval, fn)
	logger.Info("speculator exited properly")
}

func loadTradeParameter(path string) (trade.TradeParameter, error) {
	f, err := os.Open(path)
	if err != nil {
		return trade.TradeParameter{}, err
	}
	defer f.Close()
	return trade.LoadTradeParameter(f)
}

func loadMarketParameter(path string) (simulator.MarketParameter, error) {
	f, err := os.Open(path)
	if err != nil {
		return simulator.MarketParameter{}, err
	}
	defer f.Close()
	return simulator.LoadMarketParameter(f)
}

func loadRulesByMarket(ctx context.Context, st *store.Store, path string, logger *slog.Logger) (map[domain.MarketID][]rule.WeightedRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	currencies, err := st.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	markets, err := st.ListMarkets(ctx)
	if err != nil {
		return nil, err
	}

	rulesByMarket, warnings := rule.LoadRules(f, speculator.NewCurrencyTable(currencies), speculator.NewMarketTable(markets))
	for _, w := range warnings {
		logger.WarnContext(ctx, "rule config warning", "error", w)
	}
	return rulesByMarket, nil
}

// filterTargetMarkets restricts rulesByMarket to the markets named in
// targetPairs (as "BASE-QUOTE" currency symbols), or returns it unchanged
// when no explicit target list was configured.
func filterTargetMarkets(rulesByMarket map[domain.MarketID][]rule.WeightedRule, targetPairs []string, st *store.Store, ctx context.Context) map[domain.MarketID][]rule.WeightedRule {
	if len(targetPairs) == 0 {
		return rulesByMarket
	}

	currencies, err := st.ListCurrencies(ctx)
	if err != nil {
		return rulesByMarket
	}
	bySymbol := speculator.NewCurrencyTable(currencies)
	markets, err := st.ListMarkets(ctx)
	if err != nil {
		return rulesByMarket
	}
	byBaseQuote := speculator.NewMarketTable(markets)

	allowed := make(map[domain.MarketID]bool, len(targetPairs))
	for _, pair := range targetPairs {
		base, quote, ok := strings.Cut(pair, "-")
		if !ok {
			continue
		}
		baseCurrency, ok := bySymbol.BySymbol(base)
		if !ok {
			continue
		}
		quoteCurrency, ok := bySymbol.BySymbol(quote)
		if !ok {
			continue
		}
		market, ok := byBaseQuote.ByBaseQuote(baseCurrency.ID, quoteCurrency.ID)
		if !ok {
			continue
		}
		allowed[market.ID] = true
	}

	filtered := make(map[domain.MarketID][]rule.WeightedRule, len(allowed))
	for marketID, rules := range rulesByMarket {
		if allowed[marketID] {
			filtered[marketID] = rules
		}
	}
	return filtered
}
