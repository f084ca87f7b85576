package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/dexscalper/internal/domain"
	"github.com/olekukonko/tablewriter"
)

const defaultMaxRows = 15

// Console implementa ports.Notifier.
type Console struct {
	out     io.Writer
	maxRows int
	now     func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(maxRows int) *Console {
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Console{out: os.Stdout, maxRows: maxRows, now: time.Now}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, maxRows: defaultMaxRows, now: time.Now}
}

// NotifyCandidates imprime la tabla de candidatos del ciclo, en el orden recibido.
func (c *Console) NotifyCandidates(_ context.Context, candidates []domain.CandidateScore) error {
	now := c.now().Format("15:04:05")
	if len(candidates) == 0 {
		fmt.Fprintf(c.out, "[%s] no candidates found\n", now)
		return nil
	}

	passed := 0
	for _, cand := range candidates {
		if cand.PassedFilters {
			passed++
		}
	}
	fmt.Fprintf(c.out, "\n[%s] %d pools → %d passed filters\n", now, len(candidates), passed)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Token", "Name", "MCap", "Vol 24h", "Δ%", "B/S", "Liq", "Score", "Status")

	for i, cand := range candidates {
		if i >= c.maxRows {
			break
		}
		s := cand.Snapshot
		status := "OK"
		if !cand.PassedFilters {
			status = truncate(cand.ReasonsString(), 40)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			shortAddr(cand.TokenAddress),
			truncate(s.Name, 20),
			usdField(s, domain.FieldMarketCap, s.MarketCapUSD),
			usdField(s, domain.FieldVolume24h, s.Volume24hUSD),
			pctField(s),
			fmt.Sprintf("%.2f", cand.BuySellRatio),
			usdField(s, domain.FieldLiquidity, s.LiquidityUSD),
			fmt.Sprintf("%.4f", cand.Score),
			status,
		)
	}
	table.Render()

	if len(candidates) > c.maxRows {
		fmt.Fprintf(c.out, "  ... %d more\n", len(candidates)-c.maxRows)
	}
	return nil
}

// NotifyStatus imprime un registro de estado en una línea.
// Los que requieren intervención manual van marcados.
func (c *Console) NotifyStatus(_ context.Context, rec domain.StatusRecord) error {
	mark := ">>"
	if rec.ManualIntervention {
		mark = "!! MANUAL"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s %s %s→%s",
		rec.RecordedAt.Local().Format("15:04:05"), mark, rec.PositionID, shortAddr(rec.TokenAddress),
		rec.FromState, rec.State)
	if rec.Reason != "" {
		fmt.Fprintf(&sb, " reason=%s", rec.Reason)
	}
	if rec.Error != "" {
		fmt.Fprintf(&sb, " err=%q", rec.Error)
	}
	fmt.Fprintln(c.out, sb.String())
	return nil
}

// PrintEngineStatus imprime el snapshot del engine.
func (c *Console) PrintEngineStatus(st domain.Status) {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Fprintf(c.out, "[%s] engine %s | open %d/%d | failed %d | pnl %.6f | uptime %s\n",
		c.now().Format("15:04:05"), state, st.OpenPositions, st.MaxPositions,
		len(st.FailedPositions), st.TotalRealizedPnL, st.Uptime.Truncate(time.Second))
	if st.LastScanError != "" {
		fmt.Fprintf(c.out, "  >> last scan error: %s\n", st.LastScanError)
	}
	for _, p := range st.FailedPositions {
		fmt.Fprintf(c.out, "  !! %s %s %s: %s\n", p.ID, shortAddr(p.TokenAddress), p.FailureReason, p.LastError)
	}
}

// LedgerReport agrupa lo que necesita PrintLedgerReport.
type LedgerReport struct {
	Closed []domain.ClosedPosition
	Status []domain.StatusRecord
	Total  float64
}

// PrintLedgerReport imprime el histórico de posiciones cerradas y fallidas.
func (c *Console) PrintLedgerReport(r LedgerReport) {
	if len(r.Closed) == 0 && len(r.Status) == 0 {
		fmt.Fprintln(c.out, "\n  No closed positions yet.")
		return
	}

	fmt.Fprintf(c.out, "\n========================================================\n")
	fmt.Fprintf(c.out, "  LEDGER — %d closed, %d status records\n", len(r.Closed), len(r.Status))
	fmt.Fprintf(c.out, "========================================================\n\n")

	if len(r.Closed) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Token", "Entry", "Exit", "Size", "PnL", "Held", "Reason", "Closed at")

		var wins int
		for _, p := range r.Closed {
			if p.RealizedPnL > 0 {
				wins++
			}
			table.Append(
				fmt.Sprintf("%d", p.Seq),
				shortAddr(p.TokenAddress),
				fmt.Sprintf("%.10g", p.EntryPrice),
				fmt.Sprintf("%.10g", p.ExitPrice),
				fmt.Sprintf("%.4f", p.SizeInBaseCurrency),
				fmt.Sprintf("%+.6f", p.RealizedPnL),
				p.ExitTimeUTC.Sub(p.EntryTimeUTC).Truncate(time.Second).String(),
				string(p.ExitReason),
				p.ExitTimeUTC.Format("2006-01-02 15:04"),
			)
		}
		table.Render()

		fmt.Fprintf(c.out, "\n  Win rate:      %d/%d (%.0f%%)\n", wins, len(r.Closed),
			float64(wins)/float64(len(r.Closed))*100)
	}
	fmt.Fprintf(c.out, "  Realized PnL:  %+.6f\n", r.Total)

	manual := 0
	for _, s := range r.Status {
		if s.ManualIntervention {
			manual++
		}
	}
	if len(r.Status) > 0 {
		fmt.Fprintf(c.out, "\n  --- STATUS RECORDS ---\n")
		for _, s := range r.Status {
			flag := ""
			if s.ManualIntervention {
				flag = " [MANUAL]"
			}
			fmt.Fprintf(c.out, "  %s %s %s %s→%s %s%s\n",
				s.RecordedAt.Format("2006-01-02 15:04"), s.PositionID, shortAddr(s.TokenAddress),
				s.FromState, s.State, s.Reason, flag)
		}
	}
	if manual > 0 {
		fmt.Fprintf(c.out, "\n  >>> %d position(s) need manual intervention\n", manual)
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

func usdField(s domain.PoolSnapshot, f domain.Field, v float64) string {
	if !s.Has(f) {
		return "-"
	}
	return compactUSD(v)
}

func pctField(s domain.PoolSnapshot) string {
	if !s.Has(domain.FieldPriceChange) {
		return "-"
	}
	return fmt.Sprintf("%+.1f", s.PriceChangePct)
}

func compactUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:4] + "…" + a[len(a)-4:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
