package scanner

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"trading_signals_backend/models"
)

// CandleSource fetches one symbol's bars over one window (epoch millis)
type CandleSource interface {
	Fetch(ctx context.Context, symbol string, startMs, endMs int64) ([]models.Candle, error)
}

// SignalEvaluator maps a candle sequence to a scan outcome
type SignalEvaluator interface {
	Evaluate(symbol string, candles []models.Candle, side models.Side, phase models.Phase) models.ScanOutcome
}

// Scanner fans a symbol list out to a bounded worker pool and drives
// fallback re-scan rounds over the symbols that failed.
type Scanner struct {
	source  CandleSource
	eval    SignalEvaluator
	workers int
	rounds  int
	pause   time.Duration
	sleepFn func(time.Duration)
}

// New creates a scanner. rounds is the total number of passes including
// the first; pause separates fallback rounds.
func New(source CandleSource, eval SignalEvaluator, workers, rounds int, pause time.Duration) *Scanner {
	if workers < 1 {
		workers = 1
	}
	if rounds < 1 {
		rounds = 1
	}
	return &Scanner{
		source:  source,
		eval:    eval,
		workers: workers,
		rounds:  rounds,
		pause:   pause,
		sleepFn: time.Sleep,
	}
}

// Result aggregates one full scan including fallback rounds
type Result struct {
	Signals  []models.SignalRecord
	Failed   []string
	Scanned  int
	NoSignal int
	Rounds   int
}

// Scan evaluates every symbol over the window, re-scanning failed
// symbols in fallback rounds. Symbols still failing after the final
// round land in Result.Failed, never silently dropped. Signals are
// sorted by symbol so the result does not depend on completion order.
func (s *Scanner) Scan(ctx context.Context, symbols []string, startMs, endMs int64, side models.Side, phase models.Phase) Result {
	result := Result{Scanned: len(symbols)}

	pending := symbols
	bySymbol := make(map[string]models.SignalRecord)

	for round := 1; round <= s.rounds && len(pending) > 0; round++ {
		if round > 1 {
			log.Printf("fallback round %d/%d: re-scanning %d symbols", round, s.rounds, len(pending))
			s.sleepFn(s.pause)
		}
		result.Rounds = round

		outcomes := s.scanRound(ctx, pending, startMs, endMs, side, phase)

		var failed []string
		for _, out := range outcomes {
			switch out.Kind {
			case models.OutcomeSignal:
				bySymbol[out.Symbol] = *out.Signal
			case models.OutcomeNoSignal:
				result.NoSignal++
			case models.OutcomeRetryableFailure:
				failed = append(failed, out.Symbol)
			}
		}
		pending = failed
	}

	result.Signals = make([]models.SignalRecord, 0, len(bySymbol))
	for _, sig := range bySymbol {
		result.Signals = append(result.Signals, sig)
	}
	sort.Slice(result.Signals, func(i, j int) bool {
		return result.Signals[i].Symbol < result.Signals[j].Symbol
	})

	sort.Strings(pending)
	result.Failed = pending
	return result
}

// scanRound runs one bounded-concurrency pass over the given symbols
func (s *Scanner) scanRound(ctx context.Context, symbols []string, startMs, endMs int64, side models.Side, phase models.Phase) []models.ScanOutcome {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]models.ScanOutcome, 0, len(symbols))
	)
	semaphore := make(chan struct{}, s.workers)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			out := s.evaluateSymbol(ctx, symbol, startMs, endMs, side, phase)

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return outcomes
}

// evaluateSymbol contains any per-symbol error, including panics, so a
// single bad instrument can never abort the whole scan
func (s *Scanner) evaluateSymbol(ctx context.Context, symbol string, startMs, endMs int64, side models.Side, phase models.Phase) (out models.ScanOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s | skipped | panic: %v", symbol, r)
			out = models.ScanOutcome{
				Symbol: symbol,
				Kind:   models.OutcomeRetryableFailure,
				Reason: "unexpected evaluation error",
			}
		}
	}()

	candles, err := s.source.Fetch(ctx, symbol, startMs, endMs)
	if err != nil {
		return models.ScanOutcome{
			Symbol: symbol,
			Kind:   models.OutcomeRetryableFailure,
			Reason: err.Error(),
		}
	}

	return s.eval.Evaluate(symbol, candles, side, phase)
}
