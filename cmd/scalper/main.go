package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/dexscalper/config"
	"github.com/alejandrodnm/dexscalper/internal/adapters/dexscreener"
	"github.com/alejandrodnm/dexscalper/internal/adapters/gecko"
	"github.com/alejandrodnm/dexscalper/internal/adapters/jupiter"
	"github.com/alejandrodnm/dexscalper/internal/adapters/notify"
	"github.com/alejandrodnm/dexscalper/internal/adapters/solana"
	"github.com/alejandrodnm/dexscalper/internal/adapters/spiderswap"
	"github.com/alejandrodnm/dexscalper/internal/adapters/storage"
	"github.com/alejandrodnm/dexscalper/internal/application/engine"
	"github.com/alejandrodnm/dexscalper/internal/application/execution"
	"github.com/alejandrodnm/dexscalper/internal/application/position"
	"github.com/alejandrodnm/dexscalper/internal/application/scanner"
	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const statusEvery = time.Minute

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one read-only scan, print candidates and exit")
	status := flag.Bool("status", false, "print the ledger report and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the candidate table every scan cycle")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	trading := !*once && !*status
	if err := cfg.Validate(trading); err != nil {
		slog.Error("invalid config", "err", err, "path", *configPath)
		os.Exit(2)
	}

	slog.Info("dexscalper starting",
		"config", *configPath,
		"interval", cfg.ScanInterval(),
		"lookback", cfg.Scanner.Lookback,
		"max_concurrent", cfg.Position.MaxConcurrent,
		"size_base", cfg.Position.SizeBase,
		"once", *once,
		"status", *status,
	)

	if *status {
		if err := printStatus(context.Background(), cfg); err != nil {
			slog.Error("status failed", "err", err)
			os.Exit(1)
		}
		return
	}

	notifier := notify.NewConsole(cfg.Scanner.MaxRows)

	scan, err := buildScanner(cfg)
	if err != nil {
		slog.Error("failed to build scanner", "err", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		eng := engine.New(engineConfig(cfg), scan, nil, nil, nil, nil, nil, notifier)
		cands, err := eng.ScanOnce(ctx)
		if err != nil {
			slog.Error("scan failed", "err", err)
			os.Exit(1)
		}
		if err := notifier.NotifyCandidates(ctx, cands); err != nil {
			slog.Warn("notifier error", "err", err)
		}
		return
	}

	if err := runTrading(ctx, cfg, scan, notifier, *table); err != nil {
		if errors.Is(err, domain.ErrSignerUnrecoverable) {
			slog.Error("signer is unusable, trading halted", "err", err)
			os.Exit(3)
		}
		slog.Error("scalper exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("dexscalper stopped cleanly")
}

// runTrading arma el stack completo y corre el loop hasta que ctx se cancele.
func runTrading(ctx context.Context, cfg *config.Config, scan *scanner.Scanner, notifier *notify.Console, table bool) error {
	signer, err := solana.NewKeypairSigner(cfg.Wallet.PrivateKey)
	if err != nil {
		return err
	}
	defer signer.Wipe()
	slog.Info("wallet loaded", "address", signer.Address())

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer ledger.Close()

	rpc := solana.NewRPC(cfg.API.RPCURL, signer.Address())
	swap := spiderswap.NewClient(spiderswap.Config{
		SwapURL:               cfg.API.SwapURL,
		APIKey:                cfg.API.SwapAPIKey,
		Owner:                 signer.Address(),
		BaseMint:              cfg.Wallet.BaseMint,
		BaseDecimals:          cfg.Wallet.BaseDecimals,
		Provider:              cfg.Execution.Provider,
		PriorityMicroLamports: cfg.Execution.PriorityMicroLamports,
	}, rpc)
	prices := jupiter.NewClient(cfg.API.PriceBase, cfg.Wallet.BaseMint)

	coord := execution.NewCoordinator(swap, signer, execution.Config{
		Backoff:           execution.BackoffKind(cfg.Execution.Backoff),
		InitialBackoff:    time.Duration(cfg.Execution.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:        time.Duration(cfg.Execution.MaxBackoffMs) * time.Millisecond,
		BackoffMultiplier: cfg.Execution.BackoffMultiplier,
		MaxBuyAttempts:    cfg.Execution.MaxBuyAttempts,
		MaxSellAttempts:   cfg.Execution.MaxSellAttempts,
		AttemptTimeout:    cfg.AttemptTimeout(),
	})
	coord.SetTokenBalances(rpc)

	machine := position.NewMachine(position.Config{
		SizeBase:               cfg.Position.SizeBase,
		BaseDecimals:           cfg.Wallet.BaseDecimals,
		TargetProfitPct:        cfg.Position.TargetProfitPct,
		MaxHoldSeconds:         cfg.Position.MaxHoldSeconds,
		StalePriceTimeout:      cfg.StalePriceTimeout(),
		EntrySlippageBps:       cfg.Execution.EntrySlippageBps,
		ExitSlippageBps:        cfg.Execution.ExitSlippageBps,
		ExitSlippageStepBps:    cfg.Execution.ExitSlippageStepBps,
		ExitSlippageCeilingBps: cfg.Execution.ExitSlippageCeilingBps,
	}, coord.Policy())

	engCfg := engineConfig(cfg)
	engCfg.NotifyCandidates = table
	eng := engine.New(engCfg, scan, machine, coord, prices, rpc, ledger, notifier)
	if *cfg.Confirm.Enabled {
		eng.SetPairConfirmer(dexscreener.NewClient(cfg.API.DexScreenerBase))
	}

	if err := eng.StartLoop(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown requested, waiting for in-flight swaps")
			err := eng.StopLoop()
			notifier.PrintEngineStatus(eng.Status())
			return err
		case <-eng.Done():
			// el loop se detuvo solo (signer inutilizable)
			err := eng.StopLoop()
			notifier.PrintEngineStatus(eng.Status())
			return err
		case <-ticker.C:
			notifier.PrintEngineStatus(eng.Status())
		}
	}
}

func buildScanner(cfg *config.Config) (*scanner.Scanner, error) {
	fetcher, err := gecko.NewClient(gecko.Config{
		BaseURL:  cfg.API.GeckoBase,
		Network:  cfg.Scanner.Network,
		Lookback: cfg.Scanner.Lookback,
		Pages:    cfg.Scanner.Pages,
	})
	if err != nil {
		return nil, err
	}
	mcap := dexscreener.NewClient(cfg.API.DexScreenerBase)

	return scanner.New(scanner.Config{
		Filter: scanner.FilterConfig{
			MinMarketCapUSD:     cfg.Filter.MinMarketCapUSD,
			MaxMarketCapUSD:     cfg.Filter.MaxMarketCapUSD,
			MinVolume24hUSD:     cfg.Filter.MinVolume24hUSD,
			MinBuySellRatio:     cfg.Filter.MinBuySellRatio,
			BuySellRatioCeiling: cfg.Filter.BuySellRatioCeiling,
			MinLiquidityUSD:     cfg.Filter.MinLiquidityUSD,
		},
		Weights: scanner.Weights{
			Volume:       cfg.Weights.Volume,
			Momentum:     cfg.Weights.Momentum,
			BuySellRatio: cfg.Weights.BuySellRatio,
			Liquidity:    cfg.Weights.Liquidity,
		},
		Caps: scanner.Caps{
			VolumeUSD:            cfg.Caps.VolumeUSD,
			MomentumPct:          cfg.Caps.MomentumPct,
			LiquidityToMarketCap: cfg.Caps.LiquidityToMarketCap,
		},
		ScoringWorkers: cfg.Scanner.ScoringWorkers,
		EnrichWorkers:  cfg.Scanner.EnrichWorkers,
	}, fetcher, mcap), nil
}

func engineConfig(cfg *config.Config) engine.Config {
	def := engine.DefaultConfig()
	return engine.Config{
		ScanInterval:    cfg.ScanInterval(),
		MonitorInterval: cfg.MonitorInterval(),
		PriceTimeout:    def.PriceTimeout,
		PriceWorkers:    cfg.Position.PriceWorkers,
		MaxConcurrent:   cfg.Position.MaxConcurrent,
		SizeBase:        cfg.Position.SizeBase,
		MinBaseBalance:  cfg.Position.MinBaseBalance,
		BuyCooldown:     cfg.BuyCooldown(),
		BlacklistTraded: *cfg.Position.BlacklistTraded,

		ConfirmMinBuySellRatio: cfg.Confirm.MinBuySellRatioM5,
		ConfirmMinVolume5mUSD:  cfg.Confirm.MinVolumeM5USD,
	}
}

// setupLogger configura slog a stdout y, si log.file está puesto, también a
// un archivo rotado. Devuelve la función que cierra el archivo.
func setupLogger(cfg config.LogConfig) func() {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			_ = os.MkdirAll(dir, 0o755)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // días
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() { rotator.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn
}
