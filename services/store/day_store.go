package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trading_signals_backend/models"
)

// DayStore persists the per-trading-date signal document in MongoDB.
// One document per trade_date, enforced by a unique index.
type DayStore struct {
	client      *mongo.Client
	collection  *mongo.Collection
	mu          sync.RWMutex
	isConnected bool
	lastError   string
}

// Connect establishes the MongoDB connection and verifies it with a ping
func Connect(uri, database, collection string) (*DayStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &DayStore{
		client:      client,
		collection:  client.Database(database).Collection(collection),
		isConnected: true,
	}

	log.Println("MongoDB connected successfully")
	return s, nil
}

// IsConnected reports whether the store is usable
func (s *DayStore) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

// Ping verifies the connection, used by the readiness probe
func (s *DayStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("MongoDB not connected")
	}
	return s.client.Ping(ctx, nil)
}

// Close disconnects from MongoDB
func (s *DayStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.Lock()
	s.isConnected = false
	s.mu.Unlock()

	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique trade_date index. At most one day
// record can exist per trading date.
func (s *DayStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "trade_date", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create trade_date index: %w", err)
	}
	return nil
}

// FindDay loads the day record for a trading date. A missing record is
// (nil, nil), not an error: the resolver treats absence as NOT_STARTED.
func (s *DayStore) FindDay(ctx context.Context, tradeDate string) (*models.DayRecord, error) {
	var rec models.DayRecord
	err := s.collection.FindOne(ctx, bson.M{"trade_date": tradeDate}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load day record for %s: %w", tradeDate, err)
	}
	return &rec, nil
}

// SaveSignals merges one phase's signals into the day record with a
// single upsert: creation metadata only on insert, the side's signal
// sequence and phase flag on every write. Running it twice neither
// duplicates the record nor resets created_at.
func (s *DayStore) SaveSignals(ctx context.Context, tradeDate string, side models.Side, phase models.Phase, signals []models.SignalRecord, capital float64, margin int) error {
	filter, update := buildUpsert(tradeDate, side, phase, signals, capital, margin, time.Now().UTC())

	opts := options.Update().SetUpsert(true)
	if _, err := s.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save %s %s signals for %s: %w", side, phase, tradeDate, err)
	}

	log.Printf("Saved %d %s signals for %s (%s)", len(signals), side, tradeDate, phase)
	return nil
}

// buildUpsert shapes the upsert document: conditional-insert clauses for
// creation fields, unconditional-set clauses for the phase's fields
func buildUpsert(tradeDate string, side models.Side, phase models.Phase, signals []models.SignalRecord, capital float64, margin int, now time.Time) (bson.M, bson.M) {
	if signals == nil {
		signals = []models.SignalRecord{}
	}

	filter := bson.M{"trade_date": tradeDate}
	update := bson.M{
		"$setOnInsert": bson.M{
			"trade_date": tradeDate,
			"created_at": now,
			"capital":    capital,
			"margin":     margin,
		},
		"$set": bson.M{
			signalsField(side):    signals,
			flagField(side, phase): true,
			"updated_at":           now,
		},
	}
	return filter, update
}

func signalsField(side models.Side) string {
	if side == models.SideSell {
		return "sell_signals"
	}
	return "buy_signals"
}

func flagField(side models.Side, phase models.Phase) string {
	name := "buy"
	if side == models.SideSell {
		name = "sell"
	}
	if phase == models.PhaseAfternoon {
		return "run_flags." + name + "_afternoon_done"
	}
	return "run_flags." + name + "_morning_done"
}

// ResolvePhase decides which phase this invocation represents for one
// side. Absence of a record, or an unset morning flag, means MORNING;
// a persisted morning flag forces AFTERNOON regardless of wall clock,
// which is what makes repeated same-day invocations idempotent.
func ResolvePhase(rec *models.DayRecord, side models.Side) models.Phase {
	if rec == nil {
		return models.PhaseMorning
	}
	if rec.RunFlags.MorningDone(side) {
		return models.PhaseAfternoon
	}
	return models.PhaseMorning
}
