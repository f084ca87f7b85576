package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// Config es la configuración completa del scalper.
type Config struct {
	Scanner   ScannerConfig   `yaml:"scanner"`
	Filter    FilterConfig    `yaml:"filter"`
	Weights   WeightsConfig   `yaml:"weights"`
	Caps      CapsConfig      `yaml:"caps"`
	Position  PositionConfig  `yaml:"position"`
	Confirm   ConfirmConfig   `yaml:"confirm"`
	Execution ExecutionConfig `yaml:"execution"`
	API       APIConfig       `yaml:"api"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// ScannerConfig controla la cadencia y la fuente de pools.
type ScannerConfig struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Network         string `yaml:"network"`
	Lookback        string `yaml:"lookback"` // m5 | h1 | h6 | h24
	Pages           int    `yaml:"pages"`
	ScoringWorkers  int    `yaml:"scoring_workers"` // 0 = NumCPU
	EnrichWorkers   int    `yaml:"enrich_workers"`
	MaxRows         int    `yaml:"max_rows"` // filas en la tabla de candidatos
}

// FilterConfig son los umbrales duros de admisión.
type FilterConfig struct {
	MinMarketCapUSD     float64 `yaml:"min_market_cap_usd"`
	MaxMarketCapUSD     float64 `yaml:"max_market_cap_usd"`
	MinVolume24hUSD     float64 `yaml:"min_volume_24h_usd"`
	MinBuySellRatio     float64 `yaml:"min_buy_sell_ratio"`
	BuySellRatioCeiling float64 `yaml:"buy_sell_ratio_ceiling"`
	MinLiquidityUSD     float64 `yaml:"min_liquidity_usd"` // 0 = desactivado
}

// WeightsConfig son los pesos del score compuesto. Deben sumar 1.
type WeightsConfig struct {
	Volume       float64 `yaml:"volume"`
	Momentum     float64 `yaml:"momentum"`
	BuySellRatio float64 `yaml:"buy_sell_ratio"`
	Liquidity    float64 `yaml:"liquidity"`
}

// CapsConfig son los topes de normalización de cada componente del score.
type CapsConfig struct {
	VolumeUSD            float64 `yaml:"volume_usd"`
	MomentumPct          float64 `yaml:"momentum_pct"`
	LiquidityToMarketCap float64 `yaml:"liquidity_to_market_cap"`
}

// PositionConfig son las reglas de riesgo por posición.
type PositionConfig struct {
	MaxConcurrent          int     `yaml:"max_concurrent"`
	SizeBase               float64 `yaml:"size_base"`
	TargetProfitPct        float64 `yaml:"target_profit_pct"`
	MaxHoldSeconds         int     `yaml:"max_hold_seconds"`
	MonitorIntervalSeconds int     `yaml:"monitor_interval_seconds"`
	StalePriceSeconds      int     `yaml:"stale_price_seconds"`
	BuyCooldownSeconds     int     `yaml:"buy_cooldown_seconds"`
	BlacklistTraded        *bool   `yaml:"blacklist_traded"`
	MinBaseBalance         float64 `yaml:"min_base_balance"`
	PriceWorkers           int     `yaml:"price_workers"`
}

// ConfirmConfig es la última comprobación antes de comprar: actividad m5 del
// par principal en DexScreener.
type ConfirmConfig struct {
	Enabled           *bool   `yaml:"enabled"`
	MinBuySellRatioM5 float64 `yaml:"min_buy_sell_ratio_m5"`
	MinVolumeM5USD    float64 `yaml:"min_volume_m5_usd"`
}

// ExecutionConfig controla slippage y reintentos de swaps.
type ExecutionConfig struct {
	EntrySlippageBps       int     `yaml:"entry_slippage_bps"`
	ExitSlippageBps        int     `yaml:"exit_slippage_bps"`
	ExitSlippageStepBps    int     `yaml:"exit_slippage_step_bps"`
	ExitSlippageCeilingBps int     `yaml:"exit_slippage_ceiling_bps"`
	MaxBuyAttempts         int     `yaml:"max_buy_attempts"`
	MaxSellAttempts        int     `yaml:"max_sell_attempts"`
	AttemptTimeoutSeconds  int     `yaml:"attempt_timeout_seconds"`
	Backoff                string  `yaml:"backoff"` // fixed | exponential
	InitialBackoffMs       int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs           int     `yaml:"max_backoff_ms"`
	BackoffMultiplier      float64 `yaml:"backoff_multiplier"`
	Provider               string  `yaml:"provider"` // pool router del swap
	PriorityMicroLamports  int     `yaml:"priority_micro_lamports"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	GeckoBase       string `yaml:"gecko_base"`
	DexScreenerBase string `yaml:"dexscreener_base"`
	PriceBase       string `yaml:"price_base"`
	SwapURL         string `yaml:"swap_url"`
	SwapAPIKey      string `yaml:"-"` // solo por env
	RPCURL          string `yaml:"rpc_url"`
}

// WalletConfig identifica la wallet y la moneda base.
type WalletConfig struct {
	PrivateKey   string `yaml:"-"` // solo por env: WALLET_PRIVATE_KEY
	BaseMint     string `yaml:"base_mint"`
	BaseDecimals int    `yaml:"base_decimals"`
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file"`   // vacío = solo stdout
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w: %w", path, domain.ErrConfiguration, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w: %w", domain.ErrConfiguration, err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate comprueba la coherencia de la configuración. Con trading=true
// además exige la clave de la wallet. Todos los errores envuelven
// domain.ErrConfiguration.
func (c *Config) Validate(trading bool) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	f := c.Filter
	if f.MinMarketCapUSD < 0 || f.MaxMarketCapUSD <= f.MinMarketCapUSD {
		add("filter: market cap range [%v, %v] is empty", f.MinMarketCapUSD, f.MaxMarketCapUSD)
	}
	if f.MinBuySellRatio < 0 || f.BuySellRatioCeiling < f.MinBuySellRatio {
		add("filter: buy_sell_ratio_ceiling %v below min_buy_sell_ratio %v", f.BuySellRatioCeiling, f.MinBuySellRatio)
	}

	w := c.Weights
	if w.Volume < 0 || w.Momentum < 0 || w.BuySellRatio < 0 || w.Liquidity < 0 {
		add("weights: negative weight")
	}
	if sum := w.Volume + w.Momentum + w.BuySellRatio + w.Liquidity; math.Abs(sum-1) > 1e-6 {
		add("weights: sum is %.4f, want 1", sum)
	}

	switch c.Scanner.Lookback {
	case "m5", "h1", "h6", "h24":
	default:
		add("scanner: lookback %q not in m5|h1|h6|h24", c.Scanner.Lookback)
	}

	p := c.Position
	if p.SizeBase <= 0 {
		add("position: size_base must be positive")
	}
	if p.TargetProfitPct <= 0 {
		add("position: target_profit_pct must be positive")
	}

	e := c.Execution
	if e.ExitSlippageCeilingBps < e.ExitSlippageBps {
		add("execution: exit_slippage_ceiling_bps %d below exit_slippage_bps %d", e.ExitSlippageCeilingBps, e.ExitSlippageBps)
	}
	if e.EntrySlippageBps > 10000 || e.ExitSlippageCeilingBps > 10000 {
		add("execution: slippage above 10000 bps")
	}
	if e.Backoff != "fixed" && e.Backoff != "exponential" {
		add("execution: backoff %q not in fixed|exponential", e.Backoff)
	}
	if e.MaxBackoffMs < e.InitialBackoffMs {
		add("execution: max_backoff_ms below initial_backoff_ms")
	}

	if trading && c.Wallet.PrivateKey == "" {
		add("wallet: WALLET_PRIVATE_KEY is not set")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config.Validate: %w: %w", domain.ErrConfiguration, errors.Join(errs...))
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

// MonitorInterval devuelve el intervalo de monitorización de posiciones.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Position.MonitorIntervalSeconds) * time.Second
}

// StalePriceTimeout devuelve la antigüedad máxima de un precio válido.
func (c *Config) StalePriceTimeout() time.Duration {
	return time.Duration(c.Position.StalePriceSeconds) * time.Second
}

// BuyCooldown devuelve la pausa entre un cierre y la siguiente compra.
func (c *Config) BuyCooldown() time.Duration {
	return time.Duration(c.Position.BuyCooldownSeconds) * time.Second
}

// AttemptTimeout devuelve el límite de un intento quote→sign→execute.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Execution.AttemptTimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.API.RPCURL = v
	}
	if v := os.Getenv("SWAP_URL"); v != "" {
		cfg.API.SwapURL = v
	}
	if v := os.Getenv("SWAP_API_KEY"); v != "" {
		cfg.API.SwapAPIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	s := &cfg.Scanner
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = 10
	}
	if s.Network == "" {
		s.Network = "solana"
	}
	if s.Lookback == "" {
		s.Lookback = "h1"
	}
	if s.Pages <= 0 {
		s.Pages = 1
	}
	if s.EnrichWorkers <= 0 {
		s.EnrichWorkers = 4
	}
	if s.MaxRows <= 0 {
		s.MaxRows = 15
	}

	f := &cfg.Filter
	if f.MinMarketCapUSD <= 0 {
		f.MinMarketCapUSD = 500_000
	}
	if f.MaxMarketCapUSD <= 0 {
		f.MaxMarketCapUSD = 40_000_000
	}
	if f.MinVolume24hUSD <= 0 {
		f.MinVolume24hUSD = 100_000
	}
	if f.MinBuySellRatio <= 0 {
		f.MinBuySellRatio = 1.3
	}
	if f.BuySellRatioCeiling <= 0 {
		f.BuySellRatioCeiling = 5
	}

	// Pesos: si no se configura ninguno se usan los de por defecto.
	w := &cfg.Weights
	if w.Volume == 0 && w.Momentum == 0 && w.BuySellRatio == 0 && w.Liquidity == 0 {
		*w = WeightsConfig{Volume: 0.4, Momentum: 0.3, BuySellRatio: 0.2, Liquidity: 0.1}
	}

	c := &cfg.Caps
	if c.VolumeUSD <= 0 {
		c.VolumeUSD = 5_000_000
	}
	if c.MomentumPct <= 0 {
		c.MomentumPct = 50
	}
	if c.LiquidityToMarketCap <= 0 {
		c.LiquidityToMarketCap = 0.5
	}

	p := &cfg.Position
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 1
	}
	if p.SizeBase <= 0 {
		p.SizeBase = 0.1
	}
	if p.TargetProfitPct <= 0 {
		p.TargetProfitPct = domain.DefaultTargetProfitPct
	}
	if p.MaxHoldSeconds <= 0 {
		p.MaxHoldSeconds = domain.DefaultMaxHoldSeconds
	}
	if p.MonitorIntervalSeconds <= 0 {
		p.MonitorIntervalSeconds = 2
	}
	if p.StalePriceSeconds <= 0 {
		p.StalePriceSeconds = 60
	}
	if p.BuyCooldownSeconds <= 0 {
		p.BuyCooldownSeconds = 15
	}
	if p.BlacklistTraded == nil {
		t := true
		p.BlacklistTraded = &t
	}
	if p.MinBaseBalance <= 0 {
		p.MinBaseBalance = 0.0001
	}
	if p.PriceWorkers <= 0 {
		p.PriceWorkers = 8
	}

	cf := &cfg.Confirm
	if cf.Enabled == nil {
		t := true
		cf.Enabled = &t
	}
	if cf.MinBuySellRatioM5 <= 0 {
		cf.MinBuySellRatioM5 = 1.3
	}
	if cf.MinVolumeM5USD <= 0 {
		cf.MinVolumeM5USD = 100_000
	}

	e := &cfg.Execution
	if e.EntrySlippageBps <= 0 {
		e.EntrySlippageBps = 3000
	}
	if e.ExitSlippageBps <= 0 {
		e.ExitSlippageBps = 2000
	}
	if e.ExitSlippageStepBps <= 0 {
		e.ExitSlippageStepBps = 1000
	}
	if e.ExitSlippageCeilingBps <= 0 {
		e.ExitSlippageCeilingBps = 5000
	}
	if e.MaxBuyAttempts <= 0 {
		e.MaxBuyAttempts = 3
	}
	if e.MaxSellAttempts <= 0 {
		e.MaxSellAttempts = 4
	}
	if e.AttemptTimeoutSeconds <= 0 {
		e.AttemptTimeoutSeconds = 30
	}
	if e.Backoff == "" {
		e.Backoff = "exponential"
	}
	if e.InitialBackoffMs <= 0 {
		e.InitialBackoffMs = 1000
	}
	if e.MaxBackoffMs <= 0 {
		e.MaxBackoffMs = 10_000
	}
	if e.BackoffMultiplier <= 0 {
		e.BackoffMultiplier = 1.5
	}
	if e.Provider == "" {
		e.Provider = "raydium"
	}
	if e.PriorityMicroLamports <= 0 {
		e.PriorityMicroLamports = 100_000
	}

	a := &cfg.API
	if a.GeckoBase == "" {
		a.GeckoBase = "https://api.geckoterminal.com/api/v2"
	}
	if a.DexScreenerBase == "" {
		a.DexScreenerBase = "https://api.dexscreener.com"
	}
	if a.PriceBase == "" {
		a.PriceBase = "https://api.jup.ag"
	}
	if a.SwapURL == "" {
		a.SwapURL = "https://api.spiderswap.io/spider-api/v1"
	}
	if a.RPCURL == "" {
		a.RPCURL = "https://api.mainnet-beta.solana.com"
	}

	if cfg.Wallet.BaseMint == "" {
		cfg.Wallet.BaseMint = "So11111111111111111111111111111111111111112"
	}
	if cfg.Wallet.BaseDecimals <= 0 {
		cfg.Wallet.BaseDecimals = 9
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "scalper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
