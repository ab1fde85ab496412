package models

import (
	"strings"
	"time"
)

// Side selects which scanner algorithm produced a signal
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Phase is the sub-run of a trading day; each side runs morning first,
// then afternoon, tracked independently
type Phase string

const (
	PhaseMorning   Phase = "MORNING"
	PhaseAfternoon Phase = "AFTERNOON"
)

// Signal status lifecycle. Only PENDING is assigned here; FILLED/CLOSED
// belong to the downstream execution system.
const (
	StatusPending = "PENDING"
	StatusFilled  = "FILLED"
	StatusClosed  = "CLOSED"
)

// SymbolDescriptor is one entry of the tradable-instrument master list
type SymbolDescriptor struct {
	NSECode      string `json:"nse_code"`
	NSEAvailable string `json:"nse_available"`
}

// Tradable reports whether the instrument can be scanned. The master list
// stores availability as a bool-like string ("True"/"true").
func (s SymbolDescriptor) Tradable() bool {
	return strings.EqualFold(s.NSEAvailable, "true")
}

// Candle is one OHLCV bar. Timestamp is epoch seconds; sequences are
// ascending by timestamp within a symbol.
type Candle struct {
	Timestamp int64   `json:"timestamp" bson:"timestamp"`
	Open      float64 `json:"open" bson:"open"`
	High      float64 `json:"high" bson:"high"`
	Low       float64 `json:"low" bson:"low"`
	Close     float64 `json:"close" bson:"close"`
	Volume    int64   `json:"volume" bson:"volume"`
}

// Time returns the candle timestamp in the given location
func (c Candle) Time(loc *time.Location) time.Time {
	return time.Unix(c.Timestamp, 0).In(loc)
}

// SignalRecord is one computed trade signal. Created once per symbol per
// run and never field-edited afterwards; later phases replace the whole
// per-side sequence in the day record. ExitTime/Hit/PnL stay null here,
// they are filled by the downstream execution system.
type SignalRecord struct {
	Symbol      string   `json:"symbol" bson:"symbol"`
	Open        float64  `json:"open,omitempty" bson:"open,omitempty"`
	MorningHigh float64  `json:"morning_high,omitempty" bson:"morning_high,omitempty"`
	Entry       float64  `json:"entry" bson:"entry"`
	Target      float64  `json:"target" bson:"target"`
	StopLoss    float64  `json:"stoploss" bson:"stoploss"`
	Qty         int64    `json:"qty" bson:"qty"`
	EntryTime   string   `json:"entry_time" bson:"entry_time"`
	DayHigh     *float64 `json:"day_high,omitempty" bson:"day_high,omitempty"`
	DayLow      *float64 `json:"day_low,omitempty" bson:"day_low,omitempty"`
	ExitTime    *string  `json:"exit_time" bson:"exit_time"`
	Hit         *string  `json:"hit" bson:"hit"`
	PnL         *float64 `json:"pnl" bson:"pnl"`
	Status      string   `json:"status" bson:"status"`
}

// RunFlags tracks which phases have been persisted for the trading day.
// A flag goes false -> true exactly once per day and is never reset; the
// next day gets a fresh record.
type RunFlags struct {
	BuyMorningDone    bool `json:"buy_morning_done" bson:"buy_morning_done"`
	BuyAfternoonDone  bool `json:"buy_afternoon_done" bson:"buy_afternoon_done"`
	SellMorningDone   bool `json:"sell_morning_done" bson:"sell_morning_done"`
	SellAfternoonDone bool `json:"sell_afternoon_done" bson:"sell_afternoon_done"`
}

// MorningDone returns the morning flag for one side
func (f RunFlags) MorningDone(side Side) bool {
	if side == SideSell {
		return f.SellMorningDone
	}
	return f.BuyMorningDone
}

// DayRecord is the single persisted document for one trading date,
// keyed uniquely by TradeDate.
type DayRecord struct {
	TradeDate   string         `json:"trade_date" bson:"trade_date"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
	Capital     float64        `json:"capital" bson:"capital"`
	Margin      int            `json:"margin" bson:"margin"`
	RunFlags    RunFlags       `json:"run_flags" bson:"run_flags"`
	BuySignals  []SignalRecord `json:"buy_signals" bson:"buy_signals"`
	SellSignals []SignalRecord `json:"sell_signals" bson:"sell_signals"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
}

// OutcomeKind classifies the result of evaluating a single symbol
type OutcomeKind int

const (
	// OutcomeSignal means the evaluator produced a signal record
	OutcomeSignal OutcomeKind = iota
	// OutcomeNoSignal means the symbol was evaluated and rejected
	OutcomeNoSignal
	// OutcomeRetryableFailure means the symbol could not be evaluated
	// (fetch exhausted, empty data, malformed bar) and should be
	// re-scanned on a fallback round
	OutcomeRetryableFailure
)

// ScanOutcome is the transient per-symbol result of one scan pass.
// Never persisted; consumed entirely within one orchestrator invocation.
type ScanOutcome struct {
	Symbol string
	Kind   OutcomeKind
	Signal *SignalRecord
	Reason string
}
