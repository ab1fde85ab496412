package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading_signals_backend/models"
)

// flakySource fails a symbol's fetch until it has been attempted
// failUntil times, then succeeds.
type flakySource struct {
	mu        sync.Mutex
	attempts  map[string]int
	failUntil map[string]int
}

func newFlakySource(failUntil map[string]int) *flakySource {
	return &flakySource{attempts: make(map[string]int), failUntil: failUntil}
}

func (f *flakySource) Fetch(_ context.Context, symbol string, _, _ int64) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[symbol]++
	if f.attempts[symbol] <= f.failUntil[symbol] {
		return nil, errors.New("upstream unavailable")
	}
	return []models.Candle{{Timestamp: 1700000000, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 500}}, nil
}

func (f *flakySource) attemptCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[symbol]
}

// signalEval turns every candle sequence into a signal for the symbol
type signalEval struct{}

func (signalEval) Evaluate(symbol string, candles []models.Candle, _ models.Side, _ models.Phase) models.ScanOutcome {
	if len(candles) == 0 {
		return models.ScanOutcome{Symbol: symbol, Kind: models.OutcomeRetryableFailure, Reason: "empty candle sequence"}
	}
	return models.ScanOutcome{
		Symbol: symbol,
		Kind:   models.OutcomeSignal,
		Signal: &models.SignalRecord{Symbol: symbol, Entry: 103, Status: models.StatusPending},
	}
}

// panicEval blows up on one symbol to exercise worker containment
type panicEval struct{ bad string }

func (p panicEval) Evaluate(symbol string, _ []models.Candle, _ models.Side, _ models.Phase) models.ScanOutcome {
	if symbol == p.bad {
		panic("bad instrument")
	}
	return models.ScanOutcome{
		Symbol: symbol,
		Kind:   models.OutcomeSignal,
		Signal: &models.SignalRecord{Symbol: symbol, Status: models.StatusPending},
	}
}

func noSleep(s *Scanner) { s.sleepFn = func(time.Duration) {} }

func symbolList(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("SYM%02d", i))
	}
	return out
}

func TestScanFallbackRecoversTransientFailures(t *testing.T) {
	symbols := symbolList(10)
	source := newFlakySource(map[string]int{
		"SYM02": 1,
		"SYM05": 1,
		"SYM07": 1,
	})
	s := New(source, signalEval{}, 4, 3, time.Second)
	noSleep(s)

	result := s.Scan(context.Background(), symbols, 0, 1, models.SideBuy, models.PhaseMorning)

	assert.Len(t, result.Signals, 10)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 10, result.Scanned)
	assert.Equal(t, 2, result.Rounds)

	// only the flaky symbols were re-scanned
	assert.Equal(t, 2, source.attemptCount("SYM02"))
	assert.Equal(t, 1, source.attemptCount("SYM00"))
}

func TestScanExhaustedSymbolsLandInFailed(t *testing.T) {
	source := newFlakySource(map[string]int{
		"SYM01": 99,
		"SYM03": 99,
	})
	s := New(source, signalEval{}, 4, 3, time.Second)
	noSleep(s)

	result := s.Scan(context.Background(), symbolList(5), 0, 1, models.SideBuy, models.PhaseMorning)

	assert.Len(t, result.Signals, 3)
	assert.Equal(t, []string{"SYM01", "SYM03"}, result.Failed)
	assert.Equal(t, 3, result.Rounds)
	assert.Equal(t, 3, source.attemptCount("SYM01"))
}

func TestScanSignalsSortedBySymbol(t *testing.T) {
	source := newFlakySource(nil)
	s := New(source, signalEval{}, 8, 1, 0)
	noSleep(s)

	symbols := []string{"ZETA", "ALPHA", "MID", "BETA"}
	result := s.Scan(context.Background(), symbols, 0, 1, models.SideBuy, models.PhaseMorning)

	require.Len(t, result.Signals, 4)
	got := make([]string, len(result.Signals))
	for i, sig := range result.Signals {
		got[i] = sig.Symbol
	}
	assert.Equal(t, []string{"ALPHA", "BETA", "MID", "ZETA"}, got)
}

func TestScanDeterministicAcrossRuns(t *testing.T) {
	symbols := symbolList(20)
	s := New(newFlakySource(nil), signalEval{}, 15, 1, 0)
	noSleep(s)

	first := s.Scan(context.Background(), symbols, 0, 1, models.SideBuy, models.PhaseMorning)
	second := s.Scan(context.Background(), symbols, 0, 1, models.SideBuy, models.PhaseMorning)

	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, first.Failed, second.Failed)
}

func TestScanPanicContainedAsRetryableFailure(t *testing.T) {
	s := New(newFlakySource(nil), panicEval{bad: "SYM01"}, 4, 1, 0)
	noSleep(s)

	result := s.Scan(context.Background(), symbolList(3), 0, 1, models.SideBuy, models.PhaseMorning)

	assert.Len(t, result.Signals, 2)
	assert.Equal(t, []string{"SYM01"}, result.Failed)
}

func TestScanEmptySymbolList(t *testing.T) {
	s := New(newFlakySource(nil), signalEval{}, 4, 3, 0)
	noSleep(s)

	result := s.Scan(context.Background(), nil, 0, 1, models.SideBuy, models.PhaseMorning)

	assert.Empty(t, result.Signals)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, 0, result.Rounds)
}
