package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/dexscalper/config"
	"github.com/alejandrodnm/dexscalper/internal/adapters/notify"
	"github.com/alejandrodnm/dexscalper/internal/adapters/storage"
)

// printStatus imprime el ledger acumulado sin arrancar el loop.
func printStatus(ctx context.Context, cfg *config.Config) error {
	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("printStatus: %w", err)
	}
	defer ledger.Close()

	closed, err := ledger.ListClosed(ctx)
	if err != nil {
		return fmt.Errorf("printStatus: %w", err)
	}
	records, err := ledger.ListStatus(ctx)
	if err != nil {
		return fmt.Errorf("printStatus: %w", err)
	}
	total, err := ledger.TotalRealizedPnL(ctx)
	if err != nil {
		return fmt.Errorf("printStatus: %w", err)
	}

	notify.NewConsole(0).PrintLedgerReport(notify.LedgerReport{
		Closed: closed,
		Status: records,
		Total:  total,
	})
	return nil
}
