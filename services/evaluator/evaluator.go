package evaluator

import (
	"time"

	"github.com/shopspring/decimal"

	"trading_signals_backend/models"
)

// Params configures signal computation. Prices derived from these are
// rounded to 2 decimal places, half away from zero; quantity is always
// floored, never rounded.
type Params struct {
	Capital     float64
	BreakoutPct float64
	TargetPct   float64
	StoplossPct float64
	MinVolume   int64

	// SellCutoff splits the session for the breakdown scan; candles at or
	// before it form the morning-high prefix, candles at or after it are
	// breach candidates.
	SellCutoffHour int
	SellCutoffMin  int

	Location *time.Location
}

// Evaluator maps one symbol's candle sequence to a scan outcome.
// Pure computation; candles must be ascending by timestamp.
type Evaluator struct {
	params Params
}

func New(params Params) *Evaluator {
	if params.Location == nil {
		params.Location = time.UTC
	}
	return &Evaluator{params: params}
}

// Evaluate runs the side's algorithm over the candle sequence
func (e *Evaluator) Evaluate(symbol string, c []models.Candle, side models.Side, phase models.Phase) models.ScanOutcome {
	if len(c) == 0 {
		return models.ScanOutcome{
			Symbol: symbol,
			Kind:   models.OutcomeRetryableFailure,
			Reason: "empty candle sequence",
		}
	}
	if side == models.SideSell {
		return e.evaluateBreakdown(symbol, c)
	}
	return e.evaluateBreakout(symbol, c, phase)
}

// evaluateBreakout derives a buy signal from the first session candle:
// entry a breakout above its open, plus target, stop and floored quantity.
func (e *Evaluator) evaluateBreakout(symbol string, c []models.Candle, phase models.Phase) models.ScanOutcome {
	first := c[0]

	if first.Open <= 0 {
		return noSignal(symbol, "non-positive open price")
	}
	if first.Volume < e.params.MinVolume {
		return noSignal(symbol, "volume below liquidity threshold")
	}

	open := decimal.NewFromFloat(first.Open)
	entry := open.Mul(onePlus(e.params.BreakoutPct)).Round(2)
	target := entry.Mul(onePlus(e.params.TargetPct)).Round(2)
	stoploss := entry.Mul(oneMinus(e.params.StoplossPct)).Round(2)

	qty := e.quantity(entry)
	if qty <= 0 {
		return noSignal(symbol, "capital below one-share entry")
	}

	sig := &models.SignalRecord{
		Symbol:    symbol,
		Open:      round2(first.Open),
		Entry:     entry.InexactFloat64(),
		Target:    target.InexactFloat64(),
		StopLoss:  stoploss.InexactFloat64(),
		Qty:       qty,
		EntryTime: first.Time(e.params.Location).Format("15:04"),
		Status:    models.StatusPending,
	}

	// Afternoon pass attaches the session extremes as read-only summary
	// fields; the entry derivation is untouched.
	if phase == models.PhaseAfternoon {
		hi, lo := first.High, first.Low
		for _, bar := range c[1:] {
			if bar.High > hi {
				hi = bar.High
			}
			if bar.Low < lo {
				lo = bar.Low
			}
		}
		dayHigh, dayLow := round2(hi), round2(lo)
		sig.DayHigh = &dayHigh
		sig.DayLow = &dayLow
	}

	return models.ScanOutcome{Symbol: symbol, Kind: models.OutcomeSignal, Signal: sig}
}

// evaluateBreakdown derives a sell signal: the high of the pre-cutoff
// prefix is the reference level, and the first post-cutoff candle whose
// low trades under it supplies the entry. First breach wins; later,
// deeper breaches are never examined.
func (e *Evaluator) evaluateBreakdown(symbol string, c []models.Candle) models.ScanOutcome {
	cutoff := e.params.SellCutoffHour*60 + e.params.SellCutoffMin

	morningHigh := 0.0
	havePrefix := false
	for _, bar := range c {
		if e.minuteOfDay(bar) > cutoff {
			continue
		}
		if !havePrefix || bar.High > morningHigh {
			morningHigh = bar.High
		}
		havePrefix = true
	}
	if !havePrefix {
		return noSignal(symbol, "no candle before sell cutoff")
	}

	for _, bar := range c {
		if e.minuteOfDay(bar) < cutoff {
			continue
		}
		if bar.Low >= morningHigh {
			continue
		}

		entry := decimal.NewFromFloat(bar.Close).Round(2)
		if entry.Sign() <= 0 {
			return noSignal(symbol, "non-positive breach close")
		}
		target := entry.Mul(oneMinus(e.params.TargetPct)).Round(2)
		// short position: stop sits above entry
		stoploss := entry.Mul(onePlus(e.params.StoplossPct)).Round(2)

		qty := e.quantity(entry)
		if qty <= 0 {
			return noSignal(symbol, "capital below one-share entry")
		}

		return models.ScanOutcome{
			Symbol: symbol,
			Kind:   models.OutcomeSignal,
			Signal: &models.SignalRecord{
				Symbol:      symbol,
				MorningHigh: round2(morningHigh),
				Entry:       entry.InexactFloat64(),
				Target:      target.InexactFloat64(),
				StopLoss:    stoploss.InexactFloat64(),
				Qty:         qty,
				EntryTime:   bar.Time(e.params.Location).Format("15:04"),
				Status:      models.StatusPending,
			},
		}
	}

	return noSignal(symbol, "no breakdown below morning high")
}

func (e *Evaluator) quantity(entry decimal.Decimal) int64 {
	if entry.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromFloat(e.params.Capital).Div(entry).Floor().IntPart()
}

func (e *Evaluator) minuteOfDay(bar models.Candle) int {
	t := bar.Time(e.params.Location)
	return t.Hour()*60 + t.Minute()
}

func noSignal(symbol, reason string) models.ScanOutcome {
	return models.ScanOutcome{Symbol: symbol, Kind: models.OutcomeNoSignal, Reason: reason}
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

func onePlus(pct float64) decimal.Decimal {
	return decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct))
}

func oneMinus(pct float64) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct))
}
