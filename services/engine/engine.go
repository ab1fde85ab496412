package engine

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"text/tabwriter"
	"time"

	"trading_signals_backend/config"
	"trading_signals_backend/models"
	"trading_signals_backend/services/marketclock"
	"trading_signals_backend/services/notify"
	"trading_signals_backend/services/scanner"
	"trading_signals_backend/services/store"
)

// SymbolSource supplies the tradable-symbol universe for a scan
type SymbolSource interface {
	Load() ([]string, error)
}

// DayStore is the persisted day-record collaborator the engine needs
type DayStore interface {
	FindDay(ctx context.Context, tradeDate string) (*models.DayRecord, error)
	SaveSignals(ctx context.Context, tradeDate string, side models.Side, phase models.Phase, signals []models.SignalRecord, capital float64, margin int) error
}

// SignalScanner runs the concurrent per-symbol pipeline
type SignalScanner interface {
	Scan(ctx context.Context, symbols []string, startMs, endMs int64, side models.Side, phase models.Phase) scanner.Result
}

// RunReport is the terminal outcome of one engine invocation
type RunReport struct {
	TradeDate   string        `json:"trade_date"`
	Side        models.Side   `json:"side"`
	Phase       models.Phase  `json:"phase"`
	SignalCount int           `json:"signal_count"`
	NoSignal    int           `json:"no_signal"`
	Failed      []string      `json:"failed,omitempty"`
	Duration    time.Duration `json:"-"`
}

// Engine is the scanning entry point: universe -> scan -> resolve ->
// persist -> notify, exactly once per run phase per day.
type Engine struct {
	cfg      *config.Config
	symbols  SymbolSource
	scanner  SignalScanner
	store    DayStore
	notifier notify.Notifier
	now      func() time.Time
}

func New(cfg *config.Config, symbols SymbolSource, sc SignalScanner, st DayStore, notifier notify.Notifier) *Engine {
	return &Engine{
		cfg:      cfg,
		symbols:  symbols,
		scanner:  sc,
		store:    st,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run executes one scan for the given side. phaseHint, when non-empty,
// overrides the persisted-state resolver; otherwise the day record's
// run flags decide the phase. Run-level failures (universe or store)
// abort without partial writes and are reported with a stack trace.
func (e *Engine) Run(ctx context.Context, side models.Side, phaseHint models.Phase) (*RunReport, error) {
	started := e.now()
	tradeDate := marketclock.TradeDate(started, config.Market)

	log.Printf("%s scan started for %s", side, tradeDate)

	symbols, err := e.symbols.Load()
	if err != nil {
		e.reportFailure(ctx, side, "MASTER LIST LOAD", err)
		return nil, err
	}
	log.Printf("Total symbols: %d", len(symbols))

	phase := phaseHint
	if phase == "" {
		rec, err := e.store.FindDay(ctx, tradeDate)
		if err != nil {
			e.reportFailure(ctx, side, "DAY RECORD LOOKUP", err)
			return nil, err
		}
		phase = store.ResolvePhase(rec, side)
	}

	startMs, endMs, err := marketclock.SessionWindow(started, e.cfg.SessionStart, e.cfg.SessionEnd, config.Market)
	if err != nil {
		e.reportFailure(ctx, side, "SESSION WINDOW", err)
		return nil, err
	}

	res := e.scanner.Scan(ctx, symbols, startMs, endMs, side, phase)

	if err := e.store.SaveSignals(ctx, tradeDate, side, phase, res.Signals, e.cfg.Capital, e.cfg.Margin); err != nil {
		e.reportFailure(ctx, side, "MONGO SAVE", err)
		return nil, err
	}

	report := &RunReport{
		TradeDate:   tradeDate,
		Side:        side,
		Phase:       phase,
		SignalCount: len(res.Signals),
		NoSignal:    res.NoSignal,
		Failed:      res.Failed,
		Duration:    e.now().Sub(started),
	}

	e.reportCompletion(ctx, report, res.Signals)

	log.Printf("%s signals saved: %d (%s, %s)", side, report.SignalCount, tradeDate, phase)
	return report, nil
}

// reportCompletion sends the terminal summary: a signal count (possibly
// zero) and, separately, a warning listing symbols still unresolved
// after all fallback rounds
func (e *Engine) reportCompletion(ctx context.Context, report *RunReport, signals []models.SignalRecord) {
	var msg string
	if len(signals) == 0 {
		msg = fmt.Sprintf("No %s signals for %s (%s)", report.Side, report.TradeDate, report.Phase)
	} else {
		msg = fmt.Sprintf("%s signals for %s (%s): %d\n\n%s",
			report.Side, report.TradeDate, report.Phase, report.SignalCount, signalTable(signals))
	}
	if err := e.notifier.SendText(ctx, notify.Truncate(msg)); err != nil {
		log.Printf("Failed to send completion notification: %v", err)
	}

	if len(report.Failed) > 0 {
		warning := fmt.Sprintf("WARNING: %d symbols unresolved after all fallback rounds (%s %s):\n%s",
			len(report.Failed), report.Side, report.TradeDate, strings.Join(report.Failed, ", "))
		if err := e.notifier.SendText(ctx, notify.Truncate(warning)); err != nil {
			log.Printf("Failed to send unresolved-symbols warning: %v", err)
		}
	}
}

// reportFailure notifies the operator channel about a run-level failure
// with context and a captured stack trace
func (e *Engine) reportFailure(ctx context.Context, side models.Side, where string, err error) {
	log.Printf("ERROR in %s scan | %s | %v", side, where, err)

	msg := fmt.Sprintf("ERROR in %s scan automation\n\nContext: %s\nTime: %s\nError: %v\n\nStack:\n%s",
		side, where, e.now().In(config.Market).Format(time.RFC3339), err, debug.Stack())
	if sendErr := e.notifier.SendText(ctx, notify.Truncate(msg)); sendErr != nil {
		log.Printf("Failed to send failure notification: %v", sendErr)
	}
}

// signalTable renders the signal set as a monospaced table for the
// operator message
func signalTable(signals []models.SignalRecord) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tENTRY\tTARGET\tSL\tQTY\tTIME\tSTATUS")
	for _, s := range signals {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\t%s\t%s\n",
			s.Symbol, s.Entry, s.Target, s.StopLoss, s.Qty, s.EntryTime, s.Status)
	}
	w.Flush()
	return b.String()
}
