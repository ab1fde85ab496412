package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"trading_signals_backend/models"
)

func TestResolvePhase(t *testing.T) {
	assert.Equal(t, models.PhaseMorning, ResolvePhase(nil, models.SideBuy))
	assert.Equal(t, models.PhaseMorning, ResolvePhase(nil, models.SideSell))

	rec := &models.DayRecord{}
	assert.Equal(t, models.PhaseMorning, ResolvePhase(rec, models.SideBuy))

	rec.RunFlags.BuyMorningDone = true
	assert.Equal(t, models.PhaseAfternoon, ResolvePhase(rec, models.SideBuy))
	// the other side is tracked independently
	assert.Equal(t, models.PhaseMorning, ResolvePhase(rec, models.SideSell))

	rec.RunFlags.SellMorningDone = true
	assert.Equal(t, models.PhaseAfternoon, ResolvePhase(rec, models.SideSell))
}

func TestResolvePhaseIgnoresAfternoonFlags(t *testing.T) {
	rec := &models.DayRecord{}
	rec.RunFlags.BuyAfternoonDone = true
	assert.Equal(t, models.PhaseMorning, ResolvePhase(rec, models.SideBuy))
}

func TestBuildUpsertShape(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)
	signals := []models.SignalRecord{{Symbol: "X", Entry: 103, Status: models.StatusPending}}

	filter, update := buildUpsert("2025-06-02", models.SideBuy, models.PhaseMorning, signals, 20000, 5, now)

	assert.Equal(t, bson.M{"trade_date": "2025-06-02"}, filter)

	onInsert, ok := update["$setOnInsert"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "2025-06-02", onInsert["trade_date"])
	assert.Equal(t, now, onInsert["created_at"])
	assert.Equal(t, float64(20000), onInsert["capital"])
	assert.Equal(t, 5, onInsert["margin"])

	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, signals, set["buy_signals"])
	assert.Equal(t, true, set["run_flags.buy_morning_done"])
	assert.Equal(t, now, set["updated_at"])
	assert.NotContains(t, set, "sell_signals")
}

func TestBuildUpsertFieldSelection(t *testing.T) {
	cases := []struct {
		side    models.Side
		phase   models.Phase
		signals string
		flag    string
	}{
		{models.SideBuy, models.PhaseMorning, "buy_signals", "run_flags.buy_morning_done"},
		{models.SideBuy, models.PhaseAfternoon, "buy_signals", "run_flags.buy_afternoon_done"},
		{models.SideSell, models.PhaseMorning, "sell_signals", "run_flags.sell_morning_done"},
		{models.SideSell, models.PhaseAfternoon, "sell_signals", "run_flags.sell_afternoon_done"},
	}
	for _, tc := range cases {
		_, update := buildUpsert("2025-06-02", tc.side, tc.phase, nil, 20000, 5, time.Now())
		set := update["$set"].(bson.M)
		assert.Contains(t, set, tc.signals, "%s %s", tc.side, tc.phase)
		assert.Equal(t, true, set[tc.flag], "%s %s", tc.side, tc.phase)
	}
}

func TestBuildUpsertNilSignalsBecomeEmptySlice(t *testing.T) {
	_, update := buildUpsert("2025-06-02", models.SideSell, models.PhaseMorning, nil, 20000, 5, time.Now())

	set := update["$set"].(bson.M)
	sigs, ok := set["sell_signals"].([]models.SignalRecord)
	require.True(t, ok)
	assert.NotNil(t, sigs)
	assert.Empty(t, sigs)
}

// applyUpsert mimics the server-side upsert semantics the store relies
// on: $setOnInsert only on document creation, $set on every write.
func applyUpsert(days map[string]*models.DayRecord, filter, update bson.M) {
	tradeDate := filter["trade_date"].(string)
	rec, exists := days[tradeDate]
	if !exists {
		onInsert := update["$setOnInsert"].(bson.M)
		rec = &models.DayRecord{
			TradeDate: onInsert["trade_date"].(string),
			CreatedAt: onInsert["created_at"].(time.Time),
			Capital:   onInsert["capital"].(float64),
			Margin:    onInsert["margin"].(int),
		}
		days[tradeDate] = rec
	}
	set := update["$set"].(bson.M)
	for key, value := range set {
		switch key {
		case "buy_signals":
			rec.BuySignals = value.([]models.SignalRecord)
		case "sell_signals":
			rec.SellSignals = value.([]models.SignalRecord)
		case "run_flags.buy_morning_done":
			rec.RunFlags.BuyMorningDone = true
		case "run_flags.buy_afternoon_done":
			rec.RunFlags.BuyAfternoonDone = true
		case "run_flags.sell_morning_done":
			rec.RunFlags.SellMorningDone = true
		case "run_flags.sell_afternoon_done":
			rec.RunFlags.SellAfternoonDone = true
		case "updated_at":
			rec.UpdatedAt = value.(time.Time)
		}
	}
}

func TestUpsertIsIdempotentPerDay(t *testing.T) {
	days := make(map[string]*models.DayRecord)
	created := time.Date(2025, 6, 2, 9, 45, 0, 0, time.UTC)
	later := created.Add(4 * time.Hour)

	morning := []models.SignalRecord{{Symbol: "X", Status: models.StatusPending}}
	filter, update := buildUpsert("2025-06-02", models.SideBuy, models.PhaseMorning, morning, 20000, 5, created)
	applyUpsert(days, filter, update)

	afternoon := []models.SignalRecord{{Symbol: "X", Status: models.StatusPending}, {Symbol: "Y", Status: models.StatusPending}}
	filter, update = buildUpsert("2025-06-02", models.SideBuy, models.PhaseAfternoon, afternoon, 20000, 5, later)
	applyUpsert(days, filter, update)

	require.Len(t, days, 1)
	rec := days["2025-06-02"]
	// created_at survives the second write, updated_at does not
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, later, rec.UpdatedAt)
	assert.True(t, rec.RunFlags.BuyMorningDone)
	assert.True(t, rec.RunFlags.BuyAfternoonDone)
	assert.Len(t, rec.BuySignals, 2)
	assert.Empty(t, rec.SellSignals)
}

func TestUpsertSidesShareOneRecord(t *testing.T) {
	days := make(map[string]*models.DayRecord)
	now := time.Now().UTC()

	filter, update := buildUpsert("2025-06-02", models.SideBuy, models.PhaseMorning,
		[]models.SignalRecord{{Symbol: "B"}}, 20000, 5, now)
	applyUpsert(days, filter, update)

	filter, update = buildUpsert("2025-06-02", models.SideSell, models.PhaseMorning,
		[]models.SignalRecord{{Symbol: "S"}}, 20000, 5, now)
	applyUpsert(days, filter, update)

	require.Len(t, days, 1)
	rec := days["2025-06-02"]
	assert.Len(t, rec.BuySignals, 1)
	assert.Len(t, rec.SellSignals, 1)
	assert.True(t, rec.RunFlags.BuyMorningDone)
	assert.True(t, rec.RunFlags.SellMorningDone)
	assert.False(t, rec.RunFlags.BuyAfternoonDone)
}
