package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/arbitgo/triarb/internal/domain"
)

// Config is the process-wide configuration, read once at startup and
// replaced wholesale on a hot reload; nothing in the engine mutates it.
type Config struct {
	System      SystemConfig          `mapstructure:"system" validate:"required"`
	Venues      map[string]VenueConfig `mapstructure:"venues" validate:"required,dive"`
	Arbitrage   ArbitrageConfig       `mapstructure:"arbitrage" validate:"required"`
	Monitoring  MonitoringConfig      `mapstructure:"monitoring" validate:"required"`
	DryRun      DryRunConfig          `mapstructure:"dry_run"`
	Persistence PersistenceConfig     `mapstructure:"persistence" validate:"required"`
	Runtime     RuntimeConfig         `mapstructure:"runtime"`
}

type SystemConfig struct {
	InstanceID string `mapstructure:"instance_id" validate:"required"`
	LogLevel   string `mapstructure:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Timezone   string `mapstructure:"timezone" validate:"required"`
}

// VenueConfig is one entry of the `venues` key: whether to run the venue,
// its transport endpoints, per-category rate limits, and any triangle
// triples configured for it directly (an empty list triggers discovery
// against the venue's loaded markets).
type VenueConfig struct {
	Enabled       bool                        `mapstructure:"enabled"`
	WsURL         string                      `mapstructure:"ws_url" validate:"required_if=Enabled true,omitempty,url"`
	RestURL       string                      `mapstructure:"rest_url" validate:"required_if=Enabled true,omitempty,url"`
	RateLimits    map[string]RateLimitConfig  `mapstructure:"rate_limits"`
	Triangles     []TriangleConfig            `mapstructure:"triangles"`
	SymbolAliases map[string]string           `mapstructure:"usdt_to_usd_alias"`
	// FeeOverrides pins maker/taker fees per symbol so a venue supervisor can
	// skip FetchFees entirely for that symbol. Keyed by the same "BASE/QUOTE"
	// symbol form the rest of the config uses.
	FeeOverrides map[string]domain.FeeRates `mapstructure:"fee_overrides"`
}

type RateLimitConfig struct {
	Capacity        int `mapstructure:"capacity" validate:"required,gt=0"`
	RefillPerSecond int `mapstructure:"refill_per_second" validate:"required,gt=0"`
}

// TriangleConfig is one (AB, BC, AC) leg triple as it appears in a venue's
// `triangles` list in the config file.
type TriangleConfig struct {
	AB string `mapstructure:"ab" validate:"required"`
	BC string `mapstructure:"bc" validate:"required"`
	AC string `mapstructure:"ac" validate:"required"`
}

// ArbitrageConfig holds the C5/C6 gate thresholds and sizing shared by
// every venue supervisor; per spec these are process-wide, not per-venue.
type ArbitrageConfig struct {
	NotionalPerTradeUSD decimal.Decimal `mapstructure:"notional_per_trade_usd" validate:"required"`
	NetThresholdBps     int             `mapstructure:"net_threshold_bps" validate:"required,gt=0"`
	MaxSlippageBps      int             `mapstructure:"max_slippage_bps" validate:"required,gt=0"`
	StalenessHorizonMs  int             `mapstructure:"staleness_horizon_ms" validate:"required,gt=0"`
	DryRun              bool            `mapstructure:"dry_run"`
	AttemptNotify       bool            `mapstructure:"attempt_notify"`
	HeartbeatSecs       int             `mapstructure:"heartbeat_secs" validate:"required,gt=0"`
	TakerFee            float64         `mapstructure:"taker_fee" validate:"gte=0,lt=1"`
}

func (c ArbitrageConfig) StalenessHorizon() time.Duration {
	return time.Duration(c.StalenessHorizonMs) * time.Millisecond
}

func (c ArbitrageConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSecs) * time.Second
}

type MonitoringConfig struct {
	MetricsPort         int      `mapstructure:"metrics_port" validate:"required,gt=0"`
	NotificationWebhook string   `mapstructure:"notification_webhook"`
	Channels            []string `mapstructure:"channels"`
}

type DryRunConfig struct {
	InitialCapitalUSDT decimal.Decimal `mapstructure:"initial_capital_usdt"`
	SimulatedLatencyMs int             `mapstructure:"simulated_latency_ms"`
	RejectRatePct      float64         `mapstructure:"reject_rate_pct"`
}

// PersistenceConfig's PersistencePathTemplate is interpreted per venue: the
// venue id is substituted for "%s" to give each venue its own SQLite file,
// per spec's "single store per venue" invariant.
type PersistenceConfig struct {
	PersistencePathTemplate string `mapstructure:"persistence_path" validate:"required"`
	ColdStoreDSN            string `mapstructure:"cold_store_dsn"`
	ColdStorePoolSize       int    `mapstructure:"cold_store_pool_size" validate:"gt=0"`
}

type RuntimeConfig struct {
	GoMaxProcs int    `mapstructure:"gomaxprocs"`
	GOGC       int    `mapstructure:"gogc"`
	GoMemLimit string `mapstructure:"gomemlimit"`
}
