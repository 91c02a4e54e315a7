package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	Config struct {
		App      `json:"app"        toml:"app"`
		DB       `json:"db"         toml:"db"`
		SimDB    `json:"sim_db"     toml:"sim_db"`
		Exchange `json:"exchange"   toml:"exchange"`
		Fetch    `json:"fetch"      toml:"fetch"`
		Files    `json:"files"      toml:"files"`
		HTTP     `json:"http"       toml:"http"`
		Log      `json:"logger"     toml:"logger"`
	}

	App struct {
		Name        string `json:"name"        toml:"name"        env:"APP_NAME" env-default:"nicehash-speculator"`
		Environment string `json:"environment" toml:"environment" env:"ENV_NAME" env-default:"dev"`
	}

	// DB is the main read-write store role: scraped balances, prices,
	// order books, personal orders.
	DB struct {
		DatabaseURL       string `json:"database_url"         toml:"database_url"         env:"DATABASE_URL" env-required:"true"`
		PoolMax           int32  `json:"pool_max"              toml:"pool_max"              env:"PG_POOL_MAX" env-default:"10"`
		ConnectTimeout    int    `json:"connect_timeout"       toml:"connect_timeout"       env:"PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int    `json:"health_check_period"   toml:"health_check_period"   env:"PG_POOL_HEALTHCHECK" env-default:"1"`
	}

	// SimDB is the simulation store role, isolated from DB per spec §5:
	// one connection per database role, no intra-process connection pool
	// shared between them.
	SimDB struct {
		SimDatabaseURL    string  `json:"sim_database_url"     toml:"sim_database_url"     env:"SIM_DATABASE_URL" env-required:"true"`
		PoolMax           int32   `json:"pool_max"              toml:"pool_max"              env:"SIM_PG_POOL_MAX" env-default:"5"`
		ConnectTimeout    int     `json:"connect_timeout"       toml:"connect_timeout"       env:"SIM_PG_POOL_CONN_TIMEOUT" env-default:"5"`
		HealthCheckPeriod int     `json:"health_check_period"   toml:"health_check_period"   env:"SIM_PG_POOL_HEALTHCHECK" env-default:"1"`
		FeeRatio          float64 `json:"fee_ratio"            toml:"fee_ratio"            env:"SIM_FEE_RATIO" env-default:"0.001"`
	}

	// Exchange holds the NiceHash private-API credentials used to sign
	// requests per spec §6.
	Exchange struct {
		OrganizationID string `json:"organization_id" toml:"organization_id" env:"NICEHASH_ORGANIZATION_ID"`
		APIKey         string `json:"api_key"         toml:"api_key"         env:"NICEHASH_API_KEY"`
		APISecretKey   string `json:"api_secret_key"  toml:"api_secret_key"  env:"NICEHASH_API_SECRET_KEY"`
		BaseURL        string `json:"base_url"        toml:"base_url"        env:"NICEHASH_BASE_URL" env-default:"https://api2.nicehash.com"`
	}

	// Fetch controls which scraper phases talk to the remote exchange
	// (vs. being skipped, e.g. in a replay/backtest run) and the target
	// market lists per phase.
	Fetch struct {
		CurrencyFromRemote  bool `json:"currency_from_remote"  toml:"currency_from_remote"  env:"FETCH_CURRENCY_FROM_REMOTE_SERVER" env-default:"1"`
		BalanceFromRemote   bool `json:"balance_from_remote"   toml:"balance_from_remote"   env:"FETCH_BALANCE_FROM_REMOTE_SERVER" env-default:"1"`
		MarketFromRemote    bool `json:"market_from_remote"    toml:"market_from_remote"    env:"FETCH_MARKET_FROM_REMOTE_SERVER" env-default:"1"`
		OrderbookFromRemote bool `json:"orderbook_from_remote" toml:"orderbook_from_remote" env:"FETCH_ORDERBOOK_FROM_REMOTE_SERVER" env-default:"1"`
		MyOrderFromRemote   bool `json:"myorder_from_remote"   toml:"myorder_from_remote"   env:"FETCH_MYORDER_FROM_REMOTE_SERVER" env-default:"1"`

		OrderbookFetchCountPerMarket int `json:"orderbook_fetch_count_per_market" toml:"orderbook_fetch_count_per_market" env:"ORDERBOOK_FETCH_COUNT_PER_MARKET" env-default:"20"`
		MyOrderFetchCountPerMarket   int `json:"myorder_fetch_count_per_market"   toml:"myorder_fetch_count_per_market"   env:"MYORDER_FETCH_COUNT_PER_MARKET" env-default:"50"`

		OrderbookTargetMarkets  string `json:"orderbook_target_markets"  toml:"orderbook_target_markets"  env:"FETCH_ORDERBOOK_TARGET_MARKETS"`
		MyOrderTargetMarkets    string `json:"myorder_target_markets"    toml:"myorder_target_markets"    env:"FETCH_MYORDER_TARGET_MARKETS"`
		SpeculatorTargetMarkets string `json:"speculator_target_markets" toml:"speculator_target_markets" env:"SPECULATOR_TARGET_MARKETS"`
	}

	// Files holds paths to the JSON configuration documents that
	// internal/rule, internal/trade and internal/simulator parse.
	Files struct {
		RuleJSON   string `json:"rule_json"   toml:"rule_json"   env:"RULE_JSON" env-default:"./rule.json"`
		TradeJSON  string `json:"trade_json"  toml:"trade_json"  env:"TRADE_JSON" env-default:"./trade.json"`
		MarketJSON string `json:"market_json" toml:"market_json" env:"MARKET_JSON" env-default:"./market.json"`
	}

	HTTP struct {
		Port string `json:"port" toml:"port" env:"HTTP_PORT" env-default:"8080"`
	}

	Log struct {
		Level string `json:"level" toml:"level" env:"LOG_LEVEL" env-default:"info"`
	}
)

// MarketList splits a colon-joined "BASE-QUOTE:BASE-QUOTE:..." env value
// into its individual pair strings, skipping empty segments.
func MarketList(joined string) []string {
	if joined == "" {
		return nil
	}
	var out []string
	for _, pair := range strings.Split(joined, ":") {
		if pair != "" {
			out = append(out, pair)
		}
	}
	return out
}

// LoadConfig reads config.toml (falling back to config.json) next to this
// file, then overlays environment variables, matching the teacher's
// cleanenv-based two-stage load.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	_, b, _, _ := runtime.Caller(0)
	basePath := filepath.Dir(b)

	configTomlPath := filepath.Join(basePath, "config.toml")
	err := cleanenv.ReadConfig(configTomlPath, cfg)
	if err != nil {
		configJSONPath := filepath.Join(basePath, "config.json")
		err = cleanenv.ReadConfig(configJSONPath, cfg)
		if err != nil {
			// Neither file is present: fall back to environment only,
			// which is the expected path in a container deployment.
			if err := cleanenv.ReadEnv(cfg); err != nil {
				return nil, fmt.Errorf("config error: %w", err)
			}
			return cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("env read error: %w", err)
	}

	return cfg, nil
}
